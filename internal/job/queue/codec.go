package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	jobdomain "github.com/smallbiznis/revenuepulse/internal/job/domain"
)

const (
	fieldID                = "id"
	fieldKind              = "kind"
	fieldOwner             = "ownerId"
	fieldPayload           = "payload"
	fieldOptions           = "opts"
	fieldState             = "state"
	fieldProgress          = "progress"
	fieldAttemptsMade      = "attemptsMade"
	fieldAttemptsAllowed   = "attemptsAllowed"
	fieldFailedReason      = "failedReason"
	fieldResult            = "result"
	fieldCreatedAt         = "createdAt"
	fieldProcessedAt       = "processedAt"
	fieldHeartbeatAt       = "heartbeatAt"
	fieldFinishedAt        = "finishedAt"
	fieldKeepCompleteAge   = "keepCompleteAge"
	fieldKeepCompleteCount = "keepCompleteCount"
	fieldKeepFailAge       = "keepFailAge"
	fieldKeepFailCount     = "keepFailCount"
)

func encodeJob(job jobdomain.Job) ([]interface{}, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	opts, err := json.Marshal(job.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}

	return []interface{}{
		fieldID, job.ID,
		fieldKind, job.Kind,
		fieldOwner, job.OwnerID,
		fieldPayload, string(payload),
		fieldOptions, string(opts),
		fieldState, string(job.State),
		fieldProgress, job.Progress,
		fieldAttemptsMade, job.AttemptsMade,
		fieldAttemptsAllowed, job.AttemptsAllowed,
		fieldCreatedAt, job.CreatedAt.UnixMilli(),
		fieldKeepCompleteAge, job.Options.RemoveOnComplete.Age.Milliseconds(),
		fieldKeepCompleteCount, job.Options.RemoveOnComplete.Count,
		fieldKeepFailAge, job.Options.RemoveOnFail.Age.Milliseconds(),
		fieldKeepFailCount, job.Options.RemoveOnFail.Count,
	}, nil
}

func decodeJob(fields map[string]string) (*jobdomain.Job, error) {
	job := &jobdomain.Job{
		ID:           fields[fieldID],
		Kind:         fields[fieldKind],
		OwnerID:      fields[fieldOwner],
		State:        jobdomain.State(fields[fieldState]),
		FailedReason: fields[fieldFailedReason],
	}

	if raw := fields[fieldPayload]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", job.ID, err)
		}
	}
	if raw := fields[fieldOptions]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", job.ID, err)
		}
	}
	if raw := fields[fieldResult]; raw != "" {
		var result jobdomain.Result
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", job.ID, err)
		}
		job.Result = &result
	}

	job.Progress = atoi(fields[fieldProgress])
	job.AttemptsMade = atoi(fields[fieldAttemptsMade])
	job.AttemptsAllowed = atoi(fields[fieldAttemptsAllowed])
	if created := millis(fields[fieldCreatedAt]); created != nil {
		job.CreatedAt = *created
	}
	job.ProcessedAt = millis(fields[fieldProcessedAt])
	job.HeartbeatAt = millis(fields[fieldHeartbeatAt])
	job.FinishedAt = millis(fields[fieldFinishedAt])
	return job, nil
}

func atoi(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

func millis(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
