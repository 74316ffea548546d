// Package tryon runs virtual try-on jobs against the external provider:
// submit once, poll on a fixed interval under a hard deadline, and charge the
// account only when an image was produced.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/provider"
)

// Provider is the try-on backend.
type Provider interface {
	Submit(ctx context.Context, person, garment []byte) provider.SubmitResult
	Status(ctx context.Context, jobID string) provider.StatusResult
}

// Charger records billable usage.
type Charger interface {
	TryConsume(ctx context.Context, accountID string, kind models.UsageKind, amount int, metadata map[string]string) (models.Entitlement, error)
}

// ResultStore persists result images and returns a URL the client can fetch.
type ResultStore interface {
	PutResult(ctx context.Context, key string, img *provider.Image) (string, error)
}

// Result is a finished, charged try-on.
type Result struct {
	Job         models.TryOnJob
	Image       *provider.Image
	Entitlement models.Entitlement
}

// Orchestrator drives try-on jobs.
type Orchestrator struct {
	provider    Provider
	ledger      Charger
	registry    *Registry
	store       ResultStore
	slots       *semaphore.Weighted
	interval    time.Duration
	deadline    time.Duration
	maxAttempts int
	logger      logging.Logger
	metrics     metrics.Recorder
	now         func() time.Time
}

// NewOrchestrator builds an Orchestrator. store may be nil, in which case
// results are returned inline only.
func NewOrchestrator(p Provider, ledger Charger, registry *Registry, store ResultStore, cfg *config.Config,
	logger logging.Logger, mx metrics.Recorder) *Orchestrator {
	slots := int64(cfg.MaxConcurrentTryOns)
	if slots < 1 {
		slots = 1
	}
	return &Orchestrator{
		provider:    p,
		ledger:      ledger,
		registry:    registry,
		store:       store,
		slots:       semaphore.NewWeighted(slots),
		interval:    cfg.PollInterval,
		deadline:    cfg.TryOnDeadline,
		maxAttempts: cfg.MaxPollAttempts,
		logger:      logger.With("module", "tryon"),
		metrics:     mx,
		now:         time.Now,
	}
}

// Attempts is the number of polls that fit in deadline at the configured
// interval, capped by the configured maximum.
func (o *Orchestrator) Attempts(deadline time.Duration) int {
	n := 1
	if o.interval > 0 {
		n = int((deadline + o.interval - 1) / o.interval)
	}
	if o.maxAttempts > 0 && n > o.maxAttempts {
		n = o.maxAttempts
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run submits a job, waits for it and charges the account on success. It
// holds one concurrency slot for its whole duration and fails fast with
// ErrBusy when none is free.
func (o *Orchestrator) Run(ctx context.Context, accountID string, person, garment []byte) (*Result, error) {
	if !o.slots.TryAcquire(1) {
		o.metrics.TryOnFinished("busy", 0)
		return nil, ErrBusy
	}
	defer o.slots.Release(1)
	o.metrics.TryOnInFlight(1)
	defer o.metrics.TryOnInFlight(-1)

	start := o.now()
	res, err := o.run(ctx, accountID, person, garment)
	o.metrics.TryOnFinished(outcome(err), o.now().Sub(start))
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, accountID string, person, garment []byte) (*Result, error) {
	job, err := o.Submit(ctx, accountID, person, garment)
	if err != nil {
		return nil, err
	}

	img, err := o.AwaitResult(ctx, job.ID, o.deadline)
	if err != nil {
		return nil, err
	}

	var url string
	if o.store != nil {
		if url, err = o.store.PutResult(ctx, resultKey(accountID, job.ID), img); err != nil {
			o.fail(job.ID, models.JobFailed, "result storage failed")
			return nil, fmt.Errorf("%w: store result: %w", common.ErrorStorage, err)
		}
	}

	ent, err := o.ledger.TryConsume(ctx, accountID, models.UsageTryOn, 1, map[string]string{"job_id": job.ID})
	if err != nil {
		o.fail(job.ID, models.JobFailed, "charge failed")
		o.logger.Warn(ctx, "try-on produced an image but could not be charged", "job_id", job.ID, "error", err)
		return nil, err
	}

	done, err := o.registry.Transition(job.ID, models.JobCompleted, func(j *models.TryOnJob) { j.ResultURL = url })
	if err != nil {
		return nil, err
	}
	o.logger.Info(ctx, "try-on completed", "job_id", job.ID, "account_id", accountID)
	return &Result{Job: done, Image: img, Entitlement: ent}, nil
}

// Submit validates the images and hands them to the provider in a single
// request. The returned job is registered in the submitted state.
func (o *Orchestrator) Submit(ctx context.Context, accountID string, person, garment []byte) (models.TryOnJob, error) {
	if len(person) == 0 || len(garment) == 0 {
		return models.TryOnJob{}, fmt.Errorf("%w: person and garment images are required", common.ErrorValidation)
	}

	res := o.provider.Submit(ctx, person, garment)
	if res.Kind != provider.SubmitAccepted {
		o.logger.Warn(ctx, "try-on submission rejected",
			"account_id", accountID, "kind", res.Kind.String(), "http_status", res.HTTPStatus, "message", res.Message)
		return models.TryOnJob{}, &SubmissionError{Kind: res.Kind, RetryAfter: res.RetryAfter, Message: res.Message}
	}

	now := o.now()
	job := models.TryOnJob{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ProviderID:  res.JobID,
		Status:      models.JobSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := o.registry.Add(job); err != nil {
		return models.TryOnJob{}, err
	}
	o.logger.Debug(ctx, "try-on submitted", "job_id", job.ID, "provider_job_id", res.JobID)
	return job, nil
}

// AwaitResult polls the job until it is terminal, deadline elapses or the
// attempt budget is spent, whichever comes first. Canceling ctx stops polling
// promptly; the provider job is left to finish on its own.
func (o *Orchestrator) AwaitResult(ctx context.Context, jobID string, deadline time.Duration) (*provider.Image, error) {
	job, err := o.registry.Transition(jobID, models.JobPolling, nil)
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	attempts := o.Attempts(deadline)
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-pollCtx.Done():
			return nil, o.stopped(ctx, jobID)
		case <-ticker.C:
		}

		st := o.provider.Status(pollCtx, job.ProviderID)
		switch st.Kind {
		case provider.StatusCompleted:
			return st.Image, nil
		case provider.StatusFailed:
			o.fail(jobID, models.JobFailed, st.Message)
			return nil, &JobError{Kind: JobProviderFailed, JobID: jobID, Message: st.Message}
		case provider.StatusUnavailable:
			o.logger.Debug(ctx, "try-on status unavailable", "job_id", jobID, "attempt", attempt, "message", st.Message)
		}
		if _, err := o.registry.Transition(jobID, models.JobPolling, nil); err != nil {
			return nil, err
		}
	}

	o.fail(jobID, models.JobTimedOut, "")
	return nil, &JobError{Kind: JobTimedOut, JobID: jobID, Message: fmt.Sprintf("no result after %d polls", attempts)}
}

// stopped handles the end of the poll context: a caller cancellation is
// returned as is, an elapsed deadline as a timed-out JobError. Both leave the
// job timed out since it may still finish on the provider.
func (o *Orchestrator) stopped(ctx context.Context, jobID string) error {
	o.fail(jobID, models.JobTimedOut, "")
	if err := ctx.Err(); err != nil {
		return err
	}
	return &JobError{Kind: JobTimedOut, JobID: jobID, Message: "deadline exceeded"}
}

func (o *Orchestrator) fail(jobID string, status models.JobStatus, msg string) {
	_, _ = o.registry.Transition(jobID, status, func(j *models.TryOnJob) { j.Error = msg })
}

func resultKey(accountID, jobID string) string {
	return "tryon/" + accountID + "/" + jobID
}

func outcome(err error) string {
	var subErr *SubmissionError
	var jobErr *JobError
	switch {
	case err == nil:
		return "completed"
	case errors.As(err, &subErr):
		return "rejected"
	case errors.As(err, &jobErr):
		return string(jobErr.Kind)
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, common.ErrorValidation):
		return "invalid"
	default:
		return "error"
	}
}
