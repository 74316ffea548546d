package tryon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

// DefaultJobTTL is how long a job stays visible after its last update.
const DefaultJobTTL = time.Hour

// Registry keeps recent jobs in memory so clients can look them up by id.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*entry
	ttl  time.Duration
	now  func() time.Time
}

type entry struct {
	job       models.TryOnJob
	expiresAt time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &Registry{jobs: map[string]*entry{}, ttl: ttl, now: time.Now}
}

// Add stores a new job. An existing id yields common.ErrorAlreadyExists.
func (r *Registry) Add(job models.TryOnJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return common.ErrorAlreadyExists
	}
	r.jobs[job.ID] = &entry{job: job, expiresAt: r.now().Add(r.ttl)}
	return nil
}

// Transition moves a job to status. Backward moves and moves out of a
// terminal state are rejected with common.ErrorValidation.
func (r *Registry) Transition(id string, status models.JobStatus, update func(*models.TryOnJob)) (models.TryOnJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return models.TryOnJob{}, common.ErrorNotFound
	}
	if !e.job.Status.CanTransition(status) {
		return e.job, fmt.Errorf("%w: job %s cannot go from %s to %s", common.ErrorValidation, id, e.job.Status, status)
	}
	now := r.now()
	e.job.Status = status
	e.job.UpdatedAt = now
	if update != nil {
		update(&e.job)
	}
	e.expiresAt = now.Add(r.ttl)
	return e.job, nil
}

// Get returns the job only to its owner; everybody else gets
// common.ErrorNotFound, as do expired jobs.
func (r *Registry) Get(accountID, id string) (models.TryOnJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok || e.job.AccountID != accountID || !r.now().Before(e.expiresAt) {
		return models.TryOnJob{}, common.ErrorNotFound
	}
	return e.job, nil
}

// Evict drops expired jobs and returns how many were removed.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for id, e := range r.jobs {
		if !now.Before(e.expiresAt) {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored jobs, expired ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// RunCleanup evicts expired jobs every interval until ctx is done.
func (r *Registry) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict()
		}
	}
}
