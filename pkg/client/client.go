// Package client is a Go client for the revenuepulse HTTP API. It submits
// scrape jobs, reads their status and waits for them to finish.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 5 * time.Minute
)

var (
	ErrWaitTimeout = errors.New("wait_timeout")
	ErrJobFailed   = errors.New("job_failed")

	errNotFinished = errors.New("job not finished")
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("revenuepulse: http %d", e.StatusCode)
	}
	return fmt.Sprintf("revenuepulse: http %d: %s", e.StatusCode, e.Message)
}

type Status struct {
	ID            string     `json:"id"`
	State         string     `json:"state"`
	Progress      int        `json:"progress"`
	FailedReason  *string    `json:"failedReason"`
	Result        *JobResult `json:"result"`
	AttemptsMade  int        `json:"attemptsMade"`
	AttemptsTotal int        `json:"attemptsTotal"`
}

// Finished reports whether the job reached completed or failed.
func (s *Status) Finished() bool {
	return s.State == "completed" || s.State == "failed"
}

type JobResult struct {
	RecordID string `json:"recordId"`
}

type Record struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	JobID     string          `json:"jobId"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func WithMaxWait(d time.Duration) Option {
	return func(c *Client) { c.maxWait = d }
}

type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
}

// New returns a client for baseURL that authenticates with a session token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:        strings.TrimSpace(token),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: DefaultPollInterval,
		maxWait:      DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxWait <= 0 {
		c.maxWait = DefaultMaxWait
	}
	return c
}

// Submit queues a scrape of the account behind stripeAPIKey and returns the
// job id.
func (c *Client) Submit(ctx context.Context, stripeAPIKey string) (string, error) {
	var out struct {
		Queued bool   `json:"queued"`
		ID     string `json:"id"`
	}
	body := map[string]string{"stripeApiKey": stripeAPIKey}
	if err := c.do(ctx, http.MethodPost, "/api/stripe", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*Status, error) {
	var out Status
	if err := c.do(ctx, http.MethodGet, "/api/stripe/status/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Result(ctx context.Context, jobID string) (*Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodGet, "/api/stripe/data/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Results returns the caller's most recent records, newest first.
func (c *Client) Results(ctx context.Context) ([]Record, error) {
	var out struct {
		Data  []Record `json:"data"`
		Count int      `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/stripe/data", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Wait polls the job until it finishes or the max wait elapses. A failed job
// is returned together with ErrJobFailed.
func (c *Client) Wait(ctx context.Context, jobID string) (*Status, error) {
	var last *Status
	status, err := backoff.Retry(ctx, func() (*Status, error) {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError && apiErr.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		last = status
		if !status.Finished() {
			return nil, errNotFinished
		}
		return status, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.pollInterval)),
		backoff.WithMaxElapsedTime(c.maxWait),
	)
	if err != nil {
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
		if errors.Is(err, errNotFinished) {
			return last, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, jobID, c.maxWait)
		}
		return last, err
	}

	if status.State == "failed" {
		reason := ""
		if status.FailedReason != nil {
			reason = *status.FailedReason
		}
		return status, fmt.Errorf("%w: %s", ErrJobFailed, reason)
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeAPIError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
