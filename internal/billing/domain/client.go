package domain

import (
	"context"
	"errors"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 100
)

var (
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrRateLimited       = errors.New("rate_limited")
	ErrUpstream          = errors.New("upstream_error")
)

type ListParams struct {
	Limit         int
	StartingAfter string
}

type Page[T any] struct {
	Data    []T
	HasMore bool
}

// Client reads a provider account's transaction history one page at a time.
type Client interface {
	ListCharges(ctx context.Context, params ListParams) (Page[Charge], error)
	ListRefunds(ctx context.Context, params ListParams) (Page[Refund], error)
	ListInvoices(ctx context.Context, params ListParams) (Page[Invoice], error)
	ListSubscriptions(ctx context.Context, params ListParams) (Page[Subscription], error)
}

// ClientFactory binds a Client to one account credential.
type ClientFactory interface {
	NewClient(credential string) (Client, error)
}
