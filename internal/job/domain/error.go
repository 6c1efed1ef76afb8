package domain

import "errors"

var (
	ErrDuplicateJob      = errors.New("duplicate_job")
	ErrJobNotFound       = errors.New("job_not_found")
	ErrInvalidTransition = errors.New("invalid_job_transition")
	ErrMalformedJobID    = errors.New("malformed_job_id")
	ErrUnknownJobKind    = errors.New("unknown_job_kind")
	ErrJobPanicked       = errors.New("job_panicked")
	ErrInvalidProgress   = errors.New("invalid_job_progress")
	ErrJobStalled        = errors.New("job_stalled")
	ErrLeaseLost         = errors.New("job_lease_lost")
)
