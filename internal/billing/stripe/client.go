package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/revenuepulse/internal/billing/domain"
	"github.com/smallbiznis/revenuepulse/internal/config"
	"go.uber.org/zap"
)

const (
	defaultAPIBase     = "https://api.stripe.com"
	defaultHTTPTimeout = 20 * time.Second
	maxRetryAfter      = 30 * time.Second
)

type Factory struct {
	apiBase    string
	maxRetries int
	httpClient *http.Client
	backOff    func() backoff.BackOff
	log        *zap.Logger
}

func NewFactory(cfg config.Config, log *zap.Logger) *Factory {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.Stripe.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	timeout := cfg.Stripe.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	maxRetries := cfg.Stripe.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Factory{
		apiBase:    apiBase,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		backOff:    newBackOff,
		log:        log.Named("billing.stripe"),
	}
}

func (f *Factory) NewClient(credential string) (domain.Client, error) {
	apiKey := strings.TrimSpace(credential)
	if apiKey == "" {
		return nil, domain.ErrInvalidCredential
	}
	return &Client{
		apiKey:     apiKey,
		apiBase:    f.apiBase,
		maxRetries: f.maxRetries,
		httpClient: f.httpClient,
		backOff:    f.backOff,
		log:        f.log,
	}, nil
}

// Client is a read-only Stripe REST client scoped to one secret key.
type Client struct {
	apiKey     string
	apiBase    string
	maxRetries int
	httpClient *http.Client
	backOff    func() backoff.BackOff
	log        *zap.Logger
}

func (c *Client) ListCharges(ctx context.Context, params domain.ListParams) (domain.Page[domain.Charge], error) {
	var list stripeList[stripeCharge]
	if err := c.list(ctx, "/v1/charges", params, nil, &list); err != nil {
		return domain.Page[domain.Charge]{}, err
	}
	return mapPage(list, stripeCharge.toDomain), nil
}

func (c *Client) ListRefunds(ctx context.Context, params domain.ListParams) (domain.Page[domain.Refund], error) {
	var list stripeList[stripeRefund]
	if err := c.list(ctx, "/v1/refunds", params, nil, &list); err != nil {
		return domain.Page[domain.Refund]{}, err
	}
	return mapPage(list, stripeRefund.toDomain), nil
}

func (c *Client) ListInvoices(ctx context.Context, params domain.ListParams) (domain.Page[domain.Invoice], error) {
	var list stripeList[stripeInvoice]
	if err := c.list(ctx, "/v1/invoices", params, nil, &list); err != nil {
		return domain.Page[domain.Invoice]{}, err
	}
	return mapPage(list, stripeInvoice.toDomain), nil
}

// ListSubscriptions lists subscriptions in every status with prices
// expanded on their items.
func (c *Client) ListSubscriptions(ctx context.Context, params domain.ListParams) (domain.Page[domain.Subscription], error) {
	extra := url.Values{}
	extra.Set("status", "all")
	extra.Add("expand[]", "data.items.data.price")

	var list stripeList[stripeSubscription]
	if err := c.list(ctx, "/v1/subscriptions", params, extra, &list); err != nil {
		return domain.Page[domain.Subscription]{}, err
	}
	return mapPage(list, stripeSubscription.toDomain), nil
}

func (c *Client) list(ctx context.Context, path string, params domain.ListParams, extra url.Values, out any) error {
	values := url.Values{}
	for key, vals := range extra {
		for _, v := range vals {
			values.Add(key, v)
		}
	}
	limit := params.Limit
	if limit <= 0 || limit > domain.MaxPageSize {
		limit = domain.DefaultPageSize
	}
	values.Set("limit", strconv.Itoa(limit))
	if params.StartingAfter != "" {
		values.Set("starting_after", params.StartingAfter)
	}
	endpoint := c.apiBase + path + "?" + values.Encode()

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.doRequest(ctx, endpoint)
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug("retrying stripe request",
				zap.String("path", path),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return classifyExhausted(path, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w: %v", path, domain.ErrUpstream, err)
	}
	return nil
}

// doRequest performs one GET. Transient failures are returned as plain
// errors so that backoff retries them; everything else is Permanent.
func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode < http.StatusBadRequest:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrInvalidCredential, errorMessage(body)))
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			return nil, backoff.RetryAfter(int(wait.Seconds()))
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, errorMessage(body))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, resp.StatusCode, errorMessage(body))
	default:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, resp.StatusCode, errorMessage(body)))
	}
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

func classifyExhausted(path string, err error) error {
	// The last attempt may have been a Retry-After hint, which carries no
	// domain error of its own.
	var retryAfterErr *backoff.RetryAfterError
	if errors.As(err, &retryAfterErr) {
		return fmt.Errorf("%s: %w", path, domain.ErrRateLimited)
	}
	return fmt.Errorf("%s: %w", path, err)
}

func retryAfter(header string) (time.Duration, bool) {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 0, false
	}
	wait := time.Duration(seconds) * time.Second
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait, true
}

func errorMessage(body []byte) string {
	var stripeErr stripeErrorResponse
	if err := json.Unmarshal(body, &stripeErr); err != nil {
		return "stripe_request_failed"
	}
	message := strings.TrimSpace(stripeErr.Error.Message)
	if message == "" {
		return "stripe_request_failed"
	}
	return message
}

var (
	_ domain.Client        = (*Client)(nil)
	_ domain.ClientFactory = (*Factory)(nil)
)
