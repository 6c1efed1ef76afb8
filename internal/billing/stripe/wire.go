package stripe

import (
	"strings"
	"time"

	"github.com/smallbiznis/revenuepulse/internal/billing/domain"
)

type stripeList[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type stripeCharge struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Paid     bool   `json:"paid"`
	Status   string `json:"status"`
	Created  int64  `json:"created"`
}

type stripeRefund struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Created  int64  `json:"created"`
}

type stripeInvoice struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Created int64  `json:"created"`
}

type stripeSubscription struct {
	ID      string                             `json:"id"`
	Status  string                             `json:"status"`
	Created int64                              `json:"created"`
	Items   stripeList[stripeSubscriptionItem] `json:"items"`
}

type stripeSubscriptionItem struct {
	ID       string       `json:"id"`
	Quantity *int64       `json:"quantity"`
	Price    *stripePrice `json:"price"`
}

type stripePrice struct {
	ID         string  `json:"id"`
	Nickname   *string `json:"nickname"`
	Currency   string  `json:"currency"`
	UnitAmount *int64  `json:"unit_amount"`
	Recurring  *struct {
		Interval      string `json:"interval"`
		IntervalCount int64  `json:"interval_count"`
	} `json:"recurring"`
}

func unixUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func (c stripeCharge) toDomain() domain.Charge {
	return domain.Charge{
		ID:       c.ID,
		Amount:   c.Amount,
		Currency: strings.ToLower(c.Currency),
		Paid:     c.Paid,
		Status:   c.Status,
		Created:  unixUTC(c.Created),
	}
}

func (r stripeRefund) toDomain() domain.Refund {
	return domain.Refund{
		ID:       r.ID,
		Amount:   r.Amount,
		Currency: strings.ToLower(r.Currency),
		Status:   r.Status,
		Created:  unixUTC(r.Created),
	}
}

func (i stripeInvoice) toDomain() domain.Invoice {
	return domain.Invoice{
		ID:      i.ID,
		Status:  i.Status,
		Created: unixUTC(i.Created),
	}
}

func (s stripeSubscription) toDomain() domain.Subscription {
	items := make([]domain.SubscriptionItem, 0, len(s.Items.Data))
	for _, item := range s.Items.Data {
		items = append(items, domain.SubscriptionItem{
			ID:       item.ID,
			Quantity: item.Quantity,
			Price:    item.Price.toDomain(),
		})
	}
	return domain.Subscription{
		ID:      s.ID,
		Status:  s.Status,
		Created: unixUTC(s.Created),
		Items:   items,
	}
}

func (p *stripePrice) toDomain() *domain.Price {
	if p == nil {
		return nil
	}
	price := &domain.Price{
		ID:         p.ID,
		Nickname:   p.Nickname,
		Currency:   strings.ToLower(p.Currency),
		UnitAmount: p.UnitAmount,
	}
	if p.Recurring != nil {
		price.Recurring = &domain.Recurring{
			Interval:      domain.Interval(p.Recurring.Interval),
			IntervalCount: p.Recurring.IntervalCount,
		}
	}
	return price
}

func mapPage[W any, T any](list stripeList[W], convert func(W) T) domain.Page[T] {
	data := make([]T, 0, len(list.Data))
	for _, item := range list.Data {
		data = append(data, convert(item))
	}
	return domain.Page[T]{Data: data, HasMore: list.HasMore}
}
