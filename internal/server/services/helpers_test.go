package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/stylist/internal/cryptox"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/memory"
)

func init() {
	cryptox.Cost = bcrypt.MinCost
}

// fakeClock is a settable clock shared by all services of a test env.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store    *memory.Store
	clock    *fakeClock
	cfg      *config.Config
	tokens   *TokenService
	ledger   *EntitlementLedger
	accounts *AccountService
	billing  *BillingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorageTimeout = time.Second

	store := memory.NewStore()
	m := memory.NewManager(store)
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	logger := logging.NewNopLogger()

	tokens := NewTokenService(nil, store, m, cfg, logger, metrics.Nop{})
	tokens.now = clock.Now
	ledger := NewEntitlementLedger(nil, store, m, cfg, logger, metrics.Nop{})
	ledger.now = clock.Now

	return &testEnv{
		store:    store,
		clock:    clock,
		cfg:      cfg,
		tokens:   tokens,
		ledger:   ledger,
		accounts: NewAccountService(nil, store, m, tokens, ledger, cfg, logger),
		billing:  NewBillingService(store, m, ledger, logger),
	}
}

func (e *testEnv) register(t *testing.T, email string) *Session {
	t.Helper()
	s, err := e.accounts.Register(context.Background(), email, "password123", "Tester")
	require.NoError(t, err)
	return s
}
