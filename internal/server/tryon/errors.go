package tryon

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/stylist/internal/server/provider"
)

// ErrBusy is returned when every try-on slot is taken.
var ErrBusy = errors.New("too many try-ons in flight")

// SubmissionError is returned when the provider did not accept a job.
// Kind is never provider.SubmitAccepted.
type SubmissionError struct {
	Kind       provider.SubmitKind
	RetryAfter time.Duration
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("try-on submission %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the caller may submit again later.
func (e *SubmissionError) Retryable() bool {
	return e.Kind != provider.SubmitUnauthorized
}

// JobErrorKind distinguishes a failed job from one that may still finish.
type JobErrorKind string

const (
	JobProviderFailed JobErrorKind = "provider_failed"
	JobTimedOut       JobErrorKind = "timed_out"
)

// JobError is the outcome of a job that produced no image.
type JobError struct {
	Kind    JobErrorKind
	JobID   string
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("try-on job %s %s", e.JobID, e.Kind)
	}
	return fmt.Sprintf("try-on job %s %s: %s", e.JobID, e.Kind, e.Message)
}
