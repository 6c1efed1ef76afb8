package domain

import (
	"context"
	"errors"
	"time"

	aggdomain "github.com/smallbiznis/revenuepulse/internal/aggregation/domain"
)

const MaxListLimit = 10

var (
	ErrDuplicateRecord = errors.New("duplicate_record")
	ErrNotFound        = errors.New("record_not_found")
	ErrInvalidOwner    = errors.New("invalid_owner")
	ErrInvalidJobID    = errors.New("invalid_job_id")
)

type SaveRequest struct {
	OwnerID    string
	JobID      string
	Metrics    aggdomain.MetricsResult
	FinishedAt time.Time
}

type Service interface {
	Save(ctx context.Context, req SaveRequest) (*ScrapedDataRecord, error)
	List(ctx context.Context, ownerID string, limit int) ([]ScrapedDataRecord, error)
	Get(ctx context.Context, ownerID, jobID string) (*ScrapedDataRecord, error)
}
