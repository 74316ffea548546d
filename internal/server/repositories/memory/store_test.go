package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/repomanager"
)

var (
	_ repomanager.RepositoryManager = (*Manager)(nil)
	_ dbx.Transactor                = (*Store)(nil)
)

func seed(t *testing.T, s *Store, limit, used int) {
	t.Helper()
	m := NewManager(s)
	email := "a@example.com"
	_, err := m.Accounts(nil).Create(context.Background(), &models.Account{ID: "acc", Email: &email})
	require.NoError(t, err)
	require.NoError(t, m.Subscriptions(nil).Create(context.Background(), &models.Subscription{
		AccountID: "acc", Tier: models.TierFree, Status: models.StatusActive,
		QuotaLimit: limit, QuotaUsed: used, ResetAt: time.Now().Add(time.Hour),
	}))
}

func TestConsume_ConcurrentSingleUnit(t *testing.T) {
	s := NewStore()
	seed(t, s, 5, 4)
	repo := NewManager(s).Subscriptions(nil)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Consume(context.Background(), "acc", 1, time.Now())
			assert.NoError(t, err)
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, allowed.Load())
	sub, err := repo.Get(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, 5, sub.QuotaUsed)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	seed(t, s, 5, 0)
	m := NewManager(s)

	err := s.WithTx(context.Background(), func(ctx context.Context, tx dbx.DBTX) error {
		_, _, err := m.Subscriptions(tx).Consume(ctx, "acc", 2, time.Now())
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	sub, err := m.Subscriptions(nil).Get(context.Background(), "acc")
	require.NoError(t, err)
	assert.Equal(t, 0, sub.QuotaUsed)
}

func TestWithTx_CanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(context.Context, dbx.DBTX) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFailOn_InjectsInOrder(t *testing.T) {
	s := NewStore()
	seed(t, s, 5, 0)
	repo := NewManager(s).Subscriptions(nil)
	boom := errors.New("boom")
	s.FailOn("subscriptions.Get", boom)

	_, err := repo.Get(context.Background(), "acc")
	require.ErrorIs(t, err, boom)

	_, err = repo.Get(context.Background(), "acc")
	require.NoError(t, err)
}

func TestAccountDelete_Cascades(t *testing.T) {
	s := NewStore()
	seed(t, s, 5, 0)
	m := NewManager(s)
	ctx := context.Background()

	require.NoError(t, m.RefreshTokens(nil).Create(ctx, &models.RefreshToken{ID: "t1", AccountID: "acc", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, m.UsageEvents(nil).Append(ctx, &models.UsageEvent{ID: "e1", AccountID: "acc", Kind: models.UsageTryOn}))

	require.NoError(t, m.Accounts(nil).Delete(ctx, "acc"))

	_, err := m.Subscriptions(nil).Get(ctx, "acc")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 0, s.TokenCount("acc"))
	events, err := m.UsageEvents(nil).ListByAccount(ctx, "acc", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAccountCreate_DuplicateEmail(t *testing.T) {
	s := NewStore()
	seed(t, s, 5, 0)
	email := "a@example.com"

	_, err := NewManager(s).Accounts(nil).Create(context.Background(), &models.Account{ID: "other", Email: &email})
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestTokenTake_SingleWinner(t *testing.T) {
	s := NewStore()
	seed(t, s, 5, 0)
	repo := NewManager(s).RefreshTokens(nil)
	require.NoError(t, repo.Create(context.Background(), &models.RefreshToken{ID: "t1", AccountID: "acc"}))

	_, err := repo.Take(context.Background(), "t1")
	require.NoError(t, err)
	_, err = repo.Take(context.Background(), "t1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
