package tryon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

func newJob(id, owner string) models.TryOnJob {
	return models.TryOnJob{ID: id, AccountID: owner, Status: models.JobSubmitted}
}

func TestRegistry_OwnerOnly(t *testing.T) {
	r := NewRegistry(time.Hour)
	require.NoError(t, r.Add(newJob("j1", "alice")))
	require.ErrorIs(t, r.Add(newJob("j1", "alice")), common.ErrorAlreadyExists)

	job, err := r.Get("alice", "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobSubmitted, job.Status)

	_, err = r.Get("bob", "j1")
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = r.Get("alice", "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRegistry_TransitionsGoForward(t *testing.T) {
	r := NewRegistry(time.Hour)
	require.NoError(t, r.Add(newJob("j1", "alice")))

	_, err := r.Transition("j1", models.JobPolling, nil)
	require.NoError(t, err)
	_, err = r.Transition("j1", models.JobPolling, nil)
	require.NoError(t, err)
	_, err = r.Transition("j1", models.JobSubmitted, nil)
	require.ErrorIs(t, err, common.ErrorValidation)

	job, err := r.Transition("j1", models.JobFailed, func(j *models.TryOnJob) { j.Error = "boom" })
	require.NoError(t, err)
	assert.Equal(t, "boom", job.Error)

	_, err = r.Transition("j1", models.JobCompleted, nil)
	require.ErrorIs(t, err, common.ErrorValidation)
	_, err = r.Transition("nope", models.JobPolling, nil)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRegistry_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(time.Hour)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Add(newJob("j1", "alice")))
	now = now.Add(30 * time.Minute)
	require.NoError(t, r.Add(newJob("j2", "alice")))

	now = now.Add(31 * time.Minute)
	_, err := r.Get("alice", "j1")
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = r.Get("alice", "j2")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Evict())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RunCleanupStops(t *testing.T) {
	r := NewRegistry(time.Nanosecond)
	require.NoError(t, r.Add(newJob("j1", "alice")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
