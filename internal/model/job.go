package model

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobAvailable JobState = "available"
	JobRunning   JobState = "running"
	JobRetryable JobState = "retryable"
	JobCompleted JobState = "completed"
	JobDiscarded JobState = "discarded"
)

// IsActive reports whether the job is waiting or executing.
func (s JobState) IsActive() bool {
	return s == JobAvailable || s == JobRunning || s == JobRetryable
}

// Job is a durable unit of work pulled from a named queue. Lower Priority
// values run first.
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Queue       string          `json:"queue"`
	Args        json.RawMessage `json:"args"`
	UniqueKey   string          `json:"unique_key,omitempty"`
	State       JobState        `json:"state"`
	Priority    int             `json:"priority"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	AttemptedAt *time.Time      `json:"attempted_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`

	// LeaseExpiresAt bounds a running attempt. A running job past its lease
	// was abandoned by its worker and may be claimed again.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// Abandoned reports whether j is running on a lease that expired before now.
func (j *Job) Abandoned(now time.Time) bool {
	return j.State == JobRunning && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now)
}

// ResultStatus is the outcome classification recorded for a job.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
	ResultUnknown ResultStatus = "unknown"
)

// JobOutcome is the structured result attached to a job's metadata for
// observability tooling. The pipeline never reads it back.
type JobOutcome struct {
	ProcessedAt  time.Time      `json:"processed_at"`
	ResultStatus ResultStatus   `json:"result_status"`
	VenueID      *int64         `json:"venue_id,omitempty"`
	EventID      *int64         `json:"event_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}
