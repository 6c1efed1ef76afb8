package domain

import (
	"context"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
	StatePaused    State = "paused"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one unit of work held by the queue. Only the queue and the executor
// change its state.
type Job struct {
	ID              string
	Kind            string
	OwnerID         string
	Payload         Payload
	Options         Options
	State           State
	Progress        int
	AttemptsMade    int
	AttemptsAllowed int
	FailedReason    string
	Result          *Result
	CreatedAt       time.Time
	ProcessedAt     *time.Time
	HeartbeatAt     *time.Time
	FinishedAt      *time.Time
}

// LastSeen is the latest sign of life of an active job.
func (j Job) LastSeen() *time.Time {
	if j.HeartbeatAt != nil && (j.ProcessedAt == nil || j.HeartbeatAt.After(*j.ProcessedAt)) {
		return j.HeartbeatAt
	}
	return j.ProcessedAt
}

// Payload never carries a plaintext credential; SealedCredential is opened
// by the executor right before use.
type Payload struct {
	SealedCredential string            `json:"sealedCredential"`
	Trace            map[string]string `json:"trace,omitempty"`
}

// Result references the record a completed job produced.
type Result struct {
	RecordID string `json:"recordId"`
}

type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    int64 `json:"paused"`
}

// Queue is the work distribution primitive shared by the gateway and the
// executor.
type Queue interface {
	// Enqueue stores job in the waiting state. A job id that already exists
	// yields ErrDuplicateJob.
	Enqueue(ctx context.Context, job Job, opts Options) (*Job, error)
	// Lease blocks up to wait for a waiting job and marks it active. It
	// returns nil, nil when nothing arrived in time.
	Lease(ctx context.Context, consumer string, wait time.Duration) (*Job, error)
	Complete(ctx context.Context, id string, result Result) error
	Fail(ctx context.Context, id string, reason string) error
	// UpdateProgress also counts as a heartbeat.
	UpdateProgress(ctx context.Context, id string, percent int) error
	// Heartbeat refreshes the lease of an active job. It returns
	// ErrInvalidTransition once the job has left the active state.
	Heartbeat(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Job, error)

	Counts(ctx context.Context) (Counts, error)
	// Clean removes up to limit jobs in state that finished more than grace
	// ago and returns their ids.
	Clean(ctx context.Context, state State, grace time.Duration, limit int) ([]string, error)
	// Drain removes every waiting job.
	Drain(ctx context.Context) (int64, error)
	// Stalled lists up to limit active jobs whose last lease or heartbeat is
	// more than olderThan ago.
	Stalled(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
}
