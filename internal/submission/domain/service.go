package domain

import (
	"context"
	"errors"
	"time"

	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
	scrapeddatadomain "github.com/smallbiznis/revenuepulse/internal/scrapeddata/domain"
)

var (
	ErrMissingCredential = errors.New("missing_credential")
	ErrRateLimited       = errors.New("rate_limited")
	ErrForbidden         = errors.New("forbidden")
	ErrUnavailable       = errors.New("submission_unavailable")
)

// RateLimitedError carries how long the owner should wait before submitting
// again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// StatusView is the owner-facing projection of a job. Result is set only
// once the job completed.
type StatusView struct {
	ID            string            `json:"id"`
	State         jobdomain.State   `json:"state"`
	Progress      int               `json:"progress"`
	FailedReason  *string           `json:"failedReason"`
	Result        *jobdomain.Result `json:"result"`
	AttemptsMade  int               `json:"attemptsMade"`
	AttemptsTotal int               `json:"attemptsTotal"`
}

type Service interface {
	Submit(ctx context.Context, ownerID, credential string) (string, error)
	Status(ctx context.Context, ownerID, jobID string) (*StatusView, error)
	ListResults(ctx context.Context, ownerID string) ([]scrapeddatadomain.ScrapedDataRecord, error)
	GetResult(ctx context.Context, ownerID, jobID string) (*scrapeddatadomain.ScrapedDataRecord, error)
}
