package domain

import (
	"context"
	"time"

	billingdomain "github.com/smallbiznis/revenuepulse/internal/billing/domain"
)

const DefaultCurrency = "usd"

// MetricsResult is the outcome of one complete aggregation run. All amounts
// are integer minor units of Currency.
type MetricsResult struct {
	Currency     string           `json:"currency"`
	Totals       Totals           `json:"totals"`
	DailyRevenue map[string]int64 `json:"dailyRevenue"`
	MRR          MRR              `json:"mrr"`
	RawCounts    RawCounts        `json:"rawCounts"`
}

// Totals holds net revenue (charges minus refunds) overall and per window.
type Totals struct {
	GrossSalesTotal int64 `json:"grossSalesTotal"`
	YTD             int64 `json:"ytd"`
	MTD             int64 `json:"mtd"`
	Last30d         int64 `json:"last30d"`
	Today           int64 `json:"today"`
}

type MRR struct {
	Total     int64            `json:"total"`
	ARR       int64            `json:"arr"`
	AsOf      time.Time        `json:"asOf"`
	Breakdown []BreakdownEntry `json:"breakdown"`
}

// BreakdownEntry is one price plan's share of MRR.
type BreakdownEntry struct {
	PriceID       string  `json:"priceId"`
	Nickname      *string `json:"nickname"`
	Currency      string  `json:"currency"`
	Interval      string  `json:"interval"`
	UnitAmount    int64   `json:"unitAmount"`
	QuantityTotal int64   `json:"quantityTotal"`
	MRR           int64   `json:"mrr"`
}

type RawCounts struct {
	Charges       int `json:"charges"`
	Refunds       int `json:"refunds"`
	Invoices      int `json:"invoices"`
	Subscriptions int `json:"subscriptions"`
}

// ProgressFunc receives a completion percentage after each resource stream.
type ProgressFunc func(ctx context.Context, percent int)

// Aggregator turns a billing account's full history into MetricsResult.
// It either returns a complete result or an error, never a partial result.
type Aggregator interface {
	Aggregate(ctx context.Context, client billingdomain.Client, progress ProgressFunc) (*MetricsResult, error)
}
