package domain

import "time"

// Amounts are integer minor units; currencies are lowercase ISO codes.

type Charge struct {
	ID       string
	Amount   int64
	Currency string
	Paid     bool
	Status   string
	Created  time.Time
}

// Counts reports whether the charge represents collected revenue.
func (c Charge) Counts() bool {
	return c.Paid && c.Status == ChargeStatusSucceeded
}

type Refund struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
	Created  time.Time
}

type Invoice struct {
	ID      string
	Status  string
	Created time.Time
}

type Subscription struct {
	ID      string
	Status  string
	Created time.Time
	Items   []SubscriptionItem
}

// Recurring reports whether the subscription contributes to MRR.
func (s Subscription) Recurring() bool {
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

type SubscriptionItem struct {
	ID string
	// Quantity is nil when the provider omits it; callers treat that as 1.
	Quantity *int64
	Price    *Price
}

type Price struct {
	ID         string
	Nickname   *string
	Currency   string
	UnitAmount *int64
	Recurring  *Recurring
}

type Recurring struct {
	Interval      Interval
	IntervalCount int64
}

type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

const (
	ChargeStatusSucceeded = "succeeded"

	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
)
