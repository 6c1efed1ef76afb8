package service

import (
	"cmp"
	"slices"
	"time"

	aggdomain "github.com/smallbiznis/revenuepulse/internal/aggregation/domain"
	billingdomain "github.com/smallbiznis/revenuepulse/internal/billing/domain"
)

const dayLayout = "2006-01-02"

// anchors are the UTC-midnight lower bounds of the reporting windows.
type anchors struct {
	year    time.Time
	month   time.Time
	last30d time.Time
	today   time.Time
}

func anchorsAt(now time.Time) anchors {
	now = now.UTC()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return anchors{
		year:    time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC),
		month:   time.Date(y, m, 1, 0, 0, 0, 0, time.UTC),
		last30d: today.AddDate(0, 0, -30),
		today:   today,
	}
}

// monthlyFactor is the monthly equivalent of one billing interval as a
// fraction num/den.
func monthlyFactor(interval billingdomain.Interval) (num, den int64, ok bool) {
	switch interval {
	case billingdomain.IntervalDay:
		return 30, 1, true
	case billingdomain.IntervalWeek:
		return 52, 12, true
	case billingdomain.IntervalMonth:
		return 1, 1, true
	case billingdomain.IntervalYear:
		return 1, 12, true
	default:
		return 0, 0, false
	}
}

// roundDiv returns x/den rounded half away from zero. den must be positive.
func roundDiv(x, den int64) int64 {
	q, r := x/den, x%den
	if r < 0 {
		r = -r
	}
	if 2*r >= den {
		if x < 0 {
			return q - 1
		}
		return q + 1
	}
	return q
}

type accumulator struct {
	anchors  anchors
	currency string
	totals   aggdomain.Totals
	daily    map[string]int64
	counts   aggdomain.RawCounts

	mrrTotal  int64
	breakdown map[string]*aggdomain.BreakdownEntry
}

func newAccumulator(now time.Time) *accumulator {
	return &accumulator{
		anchors:   anchorsAt(now),
		daily:     map[string]int64{},
		breakdown: map[string]*aggdomain.BreakdownEntry{},
	}
}

// book applies a signed amount to the lifetime total, every window the
// timestamp falls in and its daily bucket.
func (a *accumulator) book(at time.Time, amount int64) {
	at = at.UTC()
	a.totals.GrossSalesTotal += amount
	if !at.Before(a.anchors.year) {
		a.totals.YTD += amount
	}
	if !at.Before(a.anchors.month) {
		a.totals.MTD += amount
	}
	if !at.Before(a.anchors.last30d) {
		a.totals.Last30d += amount
	}
	if !at.Before(a.anchors.today) {
		a.totals.Today += amount
	}
	a.daily[at.Format(dayLayout)] += amount
}

func (a *accumulator) addCharges(charges []billingdomain.Charge) {
	for _, ch := range charges {
		if !ch.Counts() {
			continue
		}
		if a.currency == "" {
			a.currency = ch.Currency
		}
		a.counts.Charges++
		a.book(ch.Created, ch.Amount)
	}
}

func (a *accumulator) addRefunds(refunds []billingdomain.Refund) {
	for _, rf := range refunds {
		a.counts.Refunds++
		a.book(rf.Created, -rf.Amount)
	}
}

func (a *accumulator) addInvoices(invoices []billingdomain.Invoice) {
	a.counts.Invoices += len(invoices)
}

func (a *accumulator) addSubscriptions(subs []billingdomain.Subscription) {
	for _, sub := range subs {
		a.counts.Subscriptions++
		if !sub.Recurring() {
			continue
		}
		for _, item := range sub.Items {
			a.addItem(item)
		}
	}
}

func (a *accumulator) addItem(item billingdomain.SubscriptionItem) {
	price := item.Price
	if price == nil || price.Recurring == nil || price.UnitAmount == nil {
		return
	}
	num, den, ok := monthlyFactor(price.Recurring.Interval)
	if !ok {
		return
	}
	if a.currency == "" {
		a.currency = price.Currency
	}

	qty := int64(1)
	if item.Quantity != nil {
		qty = *item.Quantity
	}
	unit := *price.UnitAmount
	itemMonthly := roundDiv(unit*qty*num, den)
	a.mrrTotal += itemMonthly

	entry, exists := a.breakdown[price.ID]
	if !exists {
		entry = &aggdomain.BreakdownEntry{
			PriceID:    price.ID,
			Nickname:   price.Nickname,
			Currency:   price.Currency,
			Interval:   string(price.Recurring.Interval),
			UnitAmount: unit,
		}
		a.breakdown[price.ID] = entry
	}
	entry.QuantityTotal += qty
	entry.MRR += itemMonthly
}

func (a *accumulator) result(asOf time.Time) *aggdomain.MetricsResult {
	breakdown := make([]aggdomain.BreakdownEntry, 0, len(a.breakdown))
	for _, entry := range a.breakdown {
		breakdown = append(breakdown, *entry)
	}
	slices.SortFunc(breakdown, func(x, y aggdomain.BreakdownEntry) int {
		if c := cmp.Compare(y.MRR, x.MRR); c != 0 {
			return c
		}
		return cmp.Compare(x.PriceID, y.PriceID)
	})

	currency := a.currency
	if currency == "" {
		currency = aggdomain.DefaultCurrency
	}

	return &aggdomain.MetricsResult{
		Currency:     currency,
		Totals:       a.totals,
		DailyRevenue: a.daily,
		MRR: aggdomain.MRR{
			Total:     a.mrrTotal,
			ARR:       a.mrrTotal * 12,
			AsOf:      asOf.UTC(),
			Breakdown: breakdown,
		},
		RawCounts: a.counts,
	}
}
