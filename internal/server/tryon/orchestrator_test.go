package tryon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/provider"
)

type fakeProvider struct {
	mu       sync.Mutex
	submit   provider.SubmitResult
	statuses []provider.StatusResult
	polls    int
	block    chan struct{}
}

func (f *fakeProvider) Submit(context.Context, []byte, []byte) provider.SubmitResult {
	return f.submit
}

func (f *fakeProvider) Status(ctx context.Context, _ string) provider.StatusResult {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return provider.StatusResult{Kind: provider.StatusUnavailable, Message: ctx.Err().Error()}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		return provider.StatusResult{Kind: provider.StatusPending}
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st
}

func (f *fakeProvider) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakeCharger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCharger) TryConsume(_ context.Context, _ string, kind models.UsageKind, amount int, md map[string]string) (models.Entitlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Entitlement{}, f.err
	}
	return models.Entitlement{Tier: models.TierPremium, Used: f.calls, Limit: models.UnlimitedQuota}, nil
}

func (f *fakeCharger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	keys []string
	err  error
}

func (f *fakeStore) PutResult(_ context.Context, key string, _ *provider.Image) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

var image = &provider.Image{Data: []byte("img"), ContentType: "image/png"}

func accepted() provider.SubmitResult {
	return provider.SubmitResult{Kind: provider.SubmitAccepted, JobID: "p-1"}
}

func newOrchestrator(p Provider, c Charger, store ResultStore) (*Orchestrator, *Registry) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.TryOnDeadline = 200 * time.Millisecond
	cfg.MaxPollAttempts = 20
	cfg.MaxConcurrentTryOns = 1
	reg := NewRegistry(time.Hour)
	return NewOrchestrator(p, c, reg, store, cfg, logging.NewNopLogger(), metrics.Nop{}), reg
}

func TestAttempts(t *testing.T) {
	o, _ := newOrchestrator(&fakeProvider{}, &fakeCharger{}, nil)
	o.interval = 2 * time.Second
	o.maxAttempts = 30

	assert.Equal(t, 30, o.Attempts(60*time.Second))
	assert.Equal(t, 30, o.Attempts(120*time.Second))
	assert.Equal(t, 5, o.Attempts(9*time.Second))
	assert.Equal(t, 1, o.Attempts(time.Millisecond))
}

func TestRun_CompletedIsChargedOnce(t *testing.T) {
	p := &fakeProvider{submit: accepted(), statuses: []provider.StatusResult{
		{Kind: provider.StatusPending},
		{Kind: provider.StatusUnavailable, Message: "502"},
		{Kind: provider.StatusCompleted, Image: image},
	}}
	c := &fakeCharger{}
	store := &fakeStore{}
	o, reg := newOrchestrator(p, c, store)

	res, err := o.Run(context.Background(), "acc-1", []byte("p"), []byte("g"))
	require.NoError(t, err)
	assert.Equal(t, image, res.Image)
	assert.Equal(t, 1, c.Calls())
	assert.Equal(t, 3, p.Polls())
	assert.Equal(t, models.JobCompleted, res.Job.Status)
	assert.Equal(t, "https://cdn.example.com/tryon/acc-1/"+res.Job.ID, res.Job.ResultURL)

	job, err := reg.Get("acc-1", res.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "p-1", job.ProviderID)
}

func TestRun_ProviderFailedIsNotCharged(t *testing.T) {
	p := &fakeProvider{submit: accepted(), statuses: []provider.StatusResult{
		{Kind: provider.StatusFailed, Message: "no person detected"},
	}}
	c := &fakeCharger{}
	o, _ := newOrchestrator(p, c, nil)

	_, err := o.Run(context.Background(), "acc-1", []byte("p"), []byte("g"))
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, JobProviderFailed, jobErr.Kind)
	assert.Equal(t, "no person detected", jobErr.Message)
	assert.Zero(t, c.Calls())
}

func TestRun_TimedOutIsNotCharged(t *testing.T) {
	p := &fakeProvider{submit: accepted()}
	c := &fakeCharger{}
	o, reg := newOrchestrator(p, c, nil)

	start := time.Now()
	_, err := o.Run(context.Background(), "acc-1", []byte("p"), []byte("g"))
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, JobTimedOut, jobErr.Kind)
	assert.Zero(t, c.Calls())
	assert.LessOrEqual(t, p.Polls(), 20)
	assert.Less(t, time.Since(start), 2*time.Second)

	job, err := reg.Get("acc-1", jobErr.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobTimedOut, job.Status)
}

func TestAwaitResult_AttemptCapBeforeDeadline(t *testing.T) {
	p := &fakeProvider{submit: accepted()}
	o, _ := newOrchestrator(p, &fakeCharger{}, nil)
	o.maxAttempts = 3

	job, err := o.Submit(context.Background(), "acc-1", []byte("p"), []byte("g"))
	require.NoError(t, err)

	_, err = o.AwaitResult(context.Background(), job.ID, time.Minute)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, JobTimedOut, jobErr.Kind)
	assert.Equal(t, 3, p.Polls())
}

func TestAwaitResult_DeadlineBeforeAttemptCap(t *testing.T) {
	// a slow provider makes each poll outlast the interval
	p := &fakeProvider{submit: accepted(), block: make(chan struct{})}
	o, _ := newOrchestrator(p, &fakeCharger{}, nil)

	job, err := o.Submit(context.Background(), "acc-1", []byte("p"), []byte("g"))
	require.NoError(t, err)

	start := time.Now()
	_, err = o.AwaitResult(context.Background(), job.ID, 50*time.Millisecond)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, JobTimedOut, jobErr.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitResult_CallerCancel(t *testing.T) {
	p := &fakeProvider{submit: accepted()}
	c := &fakeCharger{}
	o, reg := newOrchestrator(p, c, nil)
	o.deadline = time.Minute
	o.maxAttempts = 0

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := o.Run(ctx, "acc-1", []byte("p"), []byte("g"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Calls())

	// the slot is released
	assert.True(t, o.slots.TryAcquire(1))
	o.slots.Release(1)
	assert.Equal(t, 1, reg.Len())
}

func TestRun_SubmissionErrors(t *testing.T) {
	tests := []struct {
		name      string
		res       provider.SubmitResult
		retryable bool
	}{
		{"unauthorized", provider.SubmitResult{Kind: provider.SubmitUnauthorized, Message: "bad key"}, false},
		{"rate limited", provider.SubmitResult{Kind: provider.SubmitRateLimited, RetryAfter: time.Second}, true},
		{"failed", provider.SubmitResult{Kind: provider.SubmitFailed, Message: "dial tcp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{submit: tt.res}
			c := &fakeCharger{}
			o, reg := newOrchestrator(p, c, nil)

			_, err := o.Run(context.Background(), "acc-1", []byte("p"), []byte("g"))
			var subErr *SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, tt.res.Kind, subErr.Kind)
			assert.Equal(t, tt.res.RetryAfter, subErr.RetryAfter)
			assert.Equal(t, tt.retryable, subErr.Retryable())
			assert.Zero(t, p.Polls())
			assert.Zero(t, c.Calls())
			assert.Zero(t, reg.Len())
		})
	}
}

func TestSubmit_RequiresBothImages(t *testing.T) {
	p := &fakeProvider{submit: accepted()}
	o, _ := newOrchestrator(p, &fakeCharger{}, nil)

	_, err := o.Submit(context.Background(), "acc-1", nil, []byte("g"))
	require.ErrorIs(t, err, common.ErrorValidation)
	_, err = o.Submit(context.Background(), "acc-1", []byte("p"), []byte{})
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestRun_ChargeFailureFailsRequest(t *testing.T) {
	p := &fakeProvider{submit: accepted(), statuses: []provider.StatusResult{{Kind: provider.StatusCompleted, Image: image}}}
	c := &fakeCharger{err: common.ErrorStorage}
	o, _ := newOrchestrator(p, c, nil)

	_, err := o.Run(context.Background(), "acc-1", []byte("p"), []byte("g"))
	require.ErrorIs(t, err, common.ErrorStorage)
}

func TestRun_StoreFailureIsNotCharged(t *testing.T) {
	p := &fakeProvider{submit: accepted(), statuses: []provider.StatusResult{{Kind: provider.StatusCompleted, Image: image}}}
	c := &fakeCharger{}
	o, _ := newOrchestrator(p, c, &fakeStore{err: errors.New("s3 down")})

	_, err := o.Run(context.Background(), "acc-1", []byte("p"), []byte("g"))
	require.ErrorIs(t, err, common.ErrorStorage)
	assert.Zero(t, c.Calls())
}

func TestRun_BusyWhenNoSlot(t *testing.T) {
	p := &fakeProvider{submit: accepted()}
	o, _ := newOrchestrator(p, &fakeCharger{}, nil)

	require.True(t, o.slots.TryAcquire(1))
	defer o.slots.Release(1)

	_, err := o.Run(context.Background(), "acc-1", []byte("p"), []byte("g"))
	require.ErrorIs(t, err, ErrBusy)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "completed", outcome(nil))
	assert.Equal(t, "rejected", outcome(&SubmissionError{}))
	assert.Equal(t, "timed_out", outcome(&JobError{Kind: JobTimedOut}))
	assert.Equal(t, "canceled", outcome(context.Canceled))
	assert.Equal(t, "error", outcome(errors.New("x")))
}
