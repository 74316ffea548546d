// Package memory provides in-process implementations of every server
// repository together with a Transactor, for tests and local runs without
// PostgreSQL.
//
// Each repository call is atomic. Transactions are serialized with a single
// lock and roll back by restoring a snapshot taken when they began.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/usageevents"
)

// Store holds all tables. The zero value is not usable; call NewStore.
type Store struct {
	txMu sync.Mutex

	mu       sync.Mutex
	accounts map[string]models.Account
	subs     map[string]models.Subscription
	tokens   map[string]models.RefreshToken
	events   []models.UsageEvent
	failures map[string][]error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		accounts: map[string]models.Account{},
		subs:     map[string]models.Subscription{},
		tokens:   map[string]models.RefreshToken{},
		failures: map[string][]error{},
	}
}

// FailOn makes the next len(errs) calls of op return those errors in order.
// op is "<repository>.<Method>", e.g. "subscriptions.Consume".
func (s *Store) FailOn(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// must be called with mu held
func (s *Store) injected(op string) error {
	queue := s.failures[op]
	if len(queue) == 0 {
		return nil
	}
	s.failures[op] = queue[1:]
	return queue[0]
}

type snapshot struct {
	accounts map[string]models.Account
	subs     map[string]models.Subscription
	tokens   map[string]models.RefreshToken
	events   []models.UsageEvent
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		accounts: make(map[string]models.Account, len(s.accounts)),
		subs:     make(map[string]models.Subscription, len(s.subs)),
		tokens:   make(map[string]models.RefreshToken, len(s.tokens)),
		events:   append([]models.UsageEvent(nil), s.events...),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.subs {
		snap.subs[k] = v
	}
	for k, v := range s.tokens {
		snap.tokens[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = snap.accounts
	s.subs = snap.subs
	s.tokens = snap.tokens
	s.events = snap.events
}

// WithTx implements dbx.Transactor. The DBTX passed to fn is nil; the
// repositories returned by Manager ignore it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(ctx, nil)
}

// Manager implements repomanager.RepositoryManager over a Store.
type Manager struct {
	store *Store
}

// NewManager returns a manager whose repositories all share store.
func NewManager(store *Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Accounts(dbx.DBTX) accounts.Repository { return (*accountRepo)(m.store) }

func (m *Manager) Subscriptions(dbx.DBTX) subscriptions.Repository {
	return (*subscriptionRepo)(m.store)
}

func (m *Manager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return (*tokenRepo)(m.store) }

func (m *Manager) UsageEvents(dbx.DBTX) usageevents.Repository { return (*eventRepo)(m.store) }

type accountRepo Store

func (r *accountRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("accounts.Create"); err != nil {
		return nil, err
	}
	if _, ok := s.accounts[a.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}
	if a.Email != nil {
		for _, existing := range s.accounts {
			if existing.Email != nil && *existing.Email == *a.Email {
				return nil, common.ErrorAlreadyExists
			}
		}
	}
	a.CreatedAt = time.Now().UTC()
	s.accounts[a.ID] = *a
	return a, nil
}

func (r *accountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("accounts.GetByID"); err != nil {
		return nil, err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (r *accountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("accounts.GetByEmail"); err != nil {
		return nil, err
	}
	for _, a := range s.accounts {
		if a.Email != nil && *a.Email == email {
			return &a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *accountRepo) Delete(_ context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("accounts.Delete"); err != nil {
		return err
	}
	if _, ok := s.accounts[id]; !ok {
		return common.ErrorNotFound
	}
	delete(s.accounts, id)
	delete(s.subs, id)
	for k, t := range s.tokens {
		if t.AccountID == id {
			delete(s.tokens, k)
		}
	}
	kept := s.events[:0]
	for _, e := range s.events {
		if e.AccountID != id {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return nil
}

type subscriptionRepo Store

func (r *subscriptionRepo) Create(_ context.Context, sub *models.Subscription) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("subscriptions.Create"); err != nil {
		return err
	}
	if _, ok := s.accounts[sub.AccountID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := s.subs[sub.AccountID]; ok {
		return common.ErrorAlreadyExists
	}
	s.subs[sub.AccountID] = *sub
	return nil
}

func (r *subscriptionRepo) Get(_ context.Context, accountID string) (*models.Subscription, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("subscriptions.Get"); err != nil {
		return nil, err
	}
	sub, ok := s.subs[accountID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &sub, nil
}

func (r *subscriptionRepo) ResetIfDue(_ context.Context, accountID string, now, nextResetAt time.Time) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("subscriptions.ResetIfDue"); err != nil {
		return false, err
	}
	sub, ok := s.subs[accountID]
	if !ok || sub.ResetAt.After(now) {
		return false, nil
	}
	sub.QuotaUsed = 0
	sub.ResetAt = nextResetAt
	sub.UpdatedAt = now
	s.subs[accountID] = sub
	return true, nil
}

func (r *subscriptionRepo) Consume(_ context.Context, accountID string, amount int, now time.Time) (*models.Subscription, bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("subscriptions.Consume"); err != nil {
		return nil, false, err
	}
	sub, ok := s.subs[accountID]
	if !ok {
		return nil, false, nil
	}
	if !sub.Unlimited() && sub.QuotaUsed+amount > sub.QuotaLimit {
		return nil, false, nil
	}
	sub.QuotaUsed += amount
	sub.UpdatedAt = now
	s.subs[accountID] = sub
	return &sub, true, nil
}

func (r *subscriptionRepo) SetTier(_ context.Context, accountID string, tier models.Tier, limit int, now time.Time) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("subscriptions.SetTier"); err != nil {
		return false, err
	}
	sub, ok := s.subs[accountID]
	if !ok || (sub.Tier == tier && sub.QuotaLimit == limit) {
		return false, nil
	}
	sub.Tier = tier
	sub.QuotaLimit = limit
	sub.UpdatedAt = now
	s.subs[accountID] = sub
	return true, nil
}

func (r *subscriptionRepo) SetStatus(_ context.Context, accountID string, status models.SubscriptionStatus, now time.Time) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("subscriptions.SetStatus"); err != nil {
		return false, err
	}
	sub, ok := s.subs[accountID]
	if !ok || sub.Status == status {
		return false, nil
	}
	sub.Status = status
	sub.UpdatedAt = now
	s.subs[accountID] = sub
	return true, nil
}

func (r *subscriptionRepo) SetBillingIDs(_ context.Context, accountID string, customerID, subscriptionID *string, now time.Time) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("subscriptions.SetBillingIDs"); err != nil {
		return false, err
	}
	sub, ok := s.subs[accountID]
	if !ok {
		return false, nil
	}
	changed := false
	if customerID != nil && (sub.BillingCustomerID == nil || *sub.BillingCustomerID != *customerID) {
		v := *customerID
		sub.BillingCustomerID = &v
		changed = true
	}
	if subscriptionID != nil && (sub.BillingSubscriptionID == nil || *sub.BillingSubscriptionID != *subscriptionID) {
		v := *subscriptionID
		sub.BillingSubscriptionID = &v
		changed = true
	}
	if changed {
		sub.UpdatedAt = now
		s.subs[accountID] = sub
	}
	return changed, nil
}

type tokenRepo Store

func (r *tokenRepo) Create(_ context.Context, t *models.RefreshToken) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("refreshtokens.Create"); err != nil {
		return err
	}
	if _, ok := s.accounts[t.AccountID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := s.tokens[t.ID]; ok {
		return common.ErrorAlreadyExists
	}
	s.tokens[t.ID] = *t
	return nil
}

func (r *tokenRepo) Take(_ context.Context, tokenID string) (*models.RefreshToken, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("refreshtokens.Take"); err != nil {
		return nil, err
	}
	t, ok := s.tokens[tokenID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(s.tokens, tokenID)
	return &t, nil
}

func (r *tokenRepo) Delete(_ context.Context, tokenID string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("refreshtokens.Delete"); err != nil {
		return err
	}
	delete(s.tokens, tokenID)
	return nil
}

func (r *tokenRepo) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("refreshtokens.DeleteByAccount"); err != nil {
		return 0, err
	}
	var n int64
	for k, t := range s.tokens {
		if t.AccountID == accountID {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("refreshtokens.DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	for k, t := range s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

// TokenCount returns the number of refresh token records of the account.
func (s *Store) TokenCount(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.AccountID == accountID {
			n++
		}
	}
	return n
}

type eventRepo Store

func (r *eventRepo) Append(_ context.Context, e *models.UsageEvent) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("usageevents.Append"); err != nil {
		return err
	}
	s.events = append(s.events, *e)
	return nil
}

func (r *eventRepo) ListByAccount(_ context.Context, accountID string, limit int) ([]models.UsageEvent, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("usageevents.ListByAccount"); err != nil {
		return nil, err
	}
	out := make([]models.UsageEvent, 0)
	for _, e := range s.events {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
