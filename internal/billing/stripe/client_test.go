package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/revenuepulse/internal/billing/domain"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFactory(t *testing.T, handler http.HandlerFunc) *Factory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := NewFactory(config.Config{Stripe: config.StripeConfig{
		APIBase:     srv.URL,
		HTTPTimeout: 5 * time.Second,
		MaxRetries:  2,
	}}, zap.NewNop())
	f.backOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return f
}

func newTestClient(t *testing.T, handler http.HandlerFunc) domain.Client {
	t.Helper()
	client, err := newTestFactory(t, handler).NewClient("sk_test_123")
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsEmptyCredential(t *testing.T) {
	f := NewFactory(config.Config{}, zap.NewNop())
	_, err := f.NewClient("   ")
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestListChargesSendsCursorAndDecodes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/charges", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		require.Equal(t, "50", r.URL.Query().Get("limit"))
		require.Equal(t, "ch_prev", r.URL.Query().Get("starting_after"))
		_, _ = w.Write([]byte(`{"object":"list","has_more":true,"data":[
			{"id":"ch_1","amount":5000,"currency":"USD","paid":true,"status":"succeeded","created":1710460800}
		]}`))
	})

	page, err := client.ListCharges(context.Background(), domain.ListParams{Limit: 50, StartingAfter: "ch_prev"})
	require.NoError(t, err)
	require.True(t, page.HasMore)
	require.Len(t, page.Data, 1)
	ch := page.Data[0]
	require.Equal(t, "ch_1", ch.ID)
	require.Equal(t, int64(5000), ch.Amount)
	require.Equal(t, "usd", ch.Currency)
	require.True(t, ch.Counts())
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ch.Created)
}

func TestListSubscriptionsRequestsAllStatusesWithPrices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "all", q.Get("status"))
		require.Equal(t, []string{"data.items.data.price"}, q["expand[]"])
		require.Equal(t, "100", q.Get("limit"))
		_, _ = w.Write([]byte(`{"object":"list","has_more":false,"data":[
			{"id":"sub_1","status":"active","created":1710460800,"items":{"object":"list","data":[
				{"id":"si_1","quantity":2,"price":{"id":"price_1","nickname":"Pro","currency":"eur","unit_amount":2000,"recurring":{"interval":"month","interval_count":1}}},
				{"id":"si_2","price":{"id":"price_2","currency":"eur","unit_amount":null,"recurring":null}}
			]}}
		]}`))
	})

	page, err := client.ListSubscriptions(context.Background(), domain.ListParams{})
	require.NoError(t, err)
	require.False(t, page.HasMore)
	sub := page.Data[0]
	require.True(t, sub.Recurring())
	require.Len(t, sub.Items, 2)

	first := sub.Items[0]
	require.Equal(t, int64(2), *first.Quantity)
	require.Equal(t, "Pro", *first.Price.Nickname)
	require.Equal(t, domain.IntervalMonth, first.Price.Recurring.Interval)
	require.Equal(t, int64(2000), *first.Price.UnitAmount)

	second := sub.Items[1]
	require.Nil(t, second.Quantity)
	require.Nil(t, second.Price.UnitAmount)
	require.Nil(t, second.Price.Recurring)
}

func TestUnauthorizedIsPermanentInvalidCredential(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`))
	})

	_, err := client.ListRefunds(context.Background(), domain.ListParams{})
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
	require.Contains(t, err.Error(), "Invalid API Key provided")
	require.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","has_more":false,"data":[{"id":"in_1","status":"paid","created":1}]}`))
	})

	page, err := client.ListInvoices(context.Background(), domain.ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	require.Equal(t, int32(3), calls.Load())
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ListCharges(context.Background(), domain.ListParams{})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Equal(t, int32(3), calls.Load())
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","has_more":false,"data":[]}`))
	})

	start := time.Now()
	_, err := client.ListCharges(context.Background(), domain.ListParams{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestClientErrorIsPermanentUpstream(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"No such charge: 'ch_x'"}}`))
	})

	_, err := client.ListCharges(context.Background(), domain.ListParams{StartingAfter: "ch_x"})
	require.ErrorIs(t, err, domain.ErrUpstream)
	require.Equal(t, int32(1), calls.Load())
}

func TestContextDeadlineStopsRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ListCharges(ctx, domain.ListParams{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
