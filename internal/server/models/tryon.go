package models

import "time"

// JobStatus is the lifecycle state of a try-on job.
type JobStatus string

const (
	JobSubmitted JobStatus = "submitted"
	JobPolling   JobStatus = "polling"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobTimedOut
}

func (s JobStatus) order() int {
	switch s {
	case JobSubmitted:
		return 1
	case JobPolling:
		return 2
	case JobCompleted, JobFailed, JobTimedOut:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether moving from s to next goes forward.
// Staying in polling is allowed; leaving a terminal state is not.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.Terminal() || next.order() == 0 {
		return false
	}
	if s == JobPolling && next == JobPolling {
		return true
	}
	return next.order() > s.order()
}

// TryOnJob tracks one provider job on behalf of the submitting account.
type TryOnJob struct {
	ID          string    `json:"job_id"`
	AccountID   string    `json:"-"`
	ProviderID  string    `json:"-"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ResultURL   string    `json:"image_url,omitempty"`
}
