package provider

import (
	"fmt"
	"time"
)

// SubmitKind classifies the outcome of a run request.
type SubmitKind int

const (
	SubmitAccepted SubmitKind = iota
	// SubmitUnauthorized means the provider rejected our credential. Not retryable.
	SubmitUnauthorized
	// SubmitRateLimited means the caller should back off for RetryAfter.
	SubmitRateLimited
	// SubmitFailed covers transport errors and every other non-success status.
	SubmitFailed
)

func (k SubmitKind) String() string {
	switch k {
	case SubmitAccepted:
		return "accepted"
	case SubmitUnauthorized:
		return "unauthorized"
	case SubmitRateLimited:
		return "rate_limited"
	case SubmitFailed:
		return "failed"
	default:
		return fmt.Sprintf("SubmitKind(%d)", int(k))
	}
}

// SubmitResult is the decoded response of POST /run. JobID is set only for
// SubmitAccepted.
type SubmitResult struct {
	Kind       SubmitKind
	JobID      string
	RetryAfter time.Duration
	HTTPStatus int
	Message    string
}

// StatusKind classifies a status poll.
type StatusKind int

const (
	// StatusPending means the job is queued or processing.
	StatusPending StatusKind = iota
	StatusCompleted
	StatusFailed
	// StatusUnavailable means the poll itself failed; the job state is unknown.
	StatusUnavailable
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// StatusResult is the decoded response of GET /status/{id}. Image is set only
// for StatusCompleted, Message for StatusFailed and StatusUnavailable.
type StatusResult struct {
	Kind    StatusKind
	Image   *Image
	Message string
}

// Image is a normalized result image regardless of how the provider
// delivered it.
type Image struct {
	Data        []byte
	ContentType string
}
