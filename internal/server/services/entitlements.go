package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/repomanager"
)

// QuotaExceededError is returned when a charge would go over the monthly limit.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: %d of %d used", e.Used, e.Limit)
}

// EntitlementLedger owns per-account tiers and monthly counters.
//
// The counter is reset lazily: every read and every charge first applies a
// conditional reset, so no scheduled job is needed and a month boundary is
// crossed exactly once.
type EntitlementLedger struct {
	db               dbx.DBTX
	tx               dbx.Transactor
	repomanager      repomanager.RepositoryManager
	freeMonthlyQuota int
	storageTimeout   time.Duration
	logger           logging.Logger
	metrics          metrics.Recorder
	now              func() time.Time
}

// NewEntitlementLedger constructs a ledger using repositories and server config.
func NewEntitlementLedger(db dbx.DBTX, tx dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config,
	logger logging.Logger, mx metrics.Recorder) *EntitlementLedger {
	return &EntitlementLedger{
		db:               db,
		tx:               tx,
		repomanager:      m,
		freeMonthlyQuota: cfg.FreeMonthlyQuota,
		storageTimeout:   cfg.StorageTimeout,
		logger:           logger.With("module", "entitlements"),
		metrics:          mx,
		now:              time.Now,
	}
}

// LimitFor returns the monthly quota limit of a tier.
func (l *EntitlementLedger) LimitFor(tier models.Tier) int {
	if tier == models.TierPremium {
		return models.UnlimitedQuota
	}
	return l.freeMonthlyQuota
}

// NewSubscription builds the FREE subscription a new account starts with.
func (l *EntitlementLedger) NewSubscription(accountID string) *models.Subscription {
	now := l.now().UTC()
	return &models.Subscription{
		AccountID:  accountID,
		Tier:       models.TierFree,
		Status:     models.StatusActive,
		QuotaLimit: l.LimitFor(models.TierFree),
		ResetAt:    models.NextResetAt(now),
		UpdatedAt:  now,
	}
}

// CurrentStatus applies a due monthly reset and returns the entitlement.
func (l *EntitlementLedger) CurrentStatus(ctx context.Context, accountID string) (models.Entitlement, error) {
	ctx, cancel := storageCtx(ctx, l.storageTimeout)
	defer cancel()

	if err := l.resetIfDue(ctx, l.db, accountID); err != nil {
		return models.Entitlement{}, err
	}

	sub, err := dbx.RetryOnce(ctx, retryableRead, func(ctx context.Context) (*models.Subscription, error) {
		return l.repomanager.Subscriptions(l.db).Get(ctx, accountID)
	})
	if err != nil {
		return models.Entitlement{}, storageError("get subscription", err)
	}
	return models.EntitlementOf(sub), nil
}

// CheckQuota reports a QuotaExceededError if amount more units would not fit.
// It never mutates the counter; TryConsume makes the binding decision.
func (l *EntitlementLedger) CheckQuota(ctx context.Context, accountID string, amount int) (models.Entitlement, error) {
	ent, err := l.CurrentStatus(ctx, accountID)
	if err != nil {
		return ent, err
	}
	if ent.Limit >= 0 && ent.Used+amount > ent.Limit {
		return ent, &QuotaExceededError{Used: ent.Used, Limit: ent.Limit}
	}
	return ent, nil
}

// TryConsume atomically charges amount units and records a usage event.
// If the limit would be exceeded nothing is written and a
// *QuotaExceededError is returned. It is never retried: a failed write fails
// the caller's request.
func (l *EntitlementLedger) TryConsume(ctx context.Context, accountID string, kind models.UsageKind, amount int, metadata map[string]string) (models.Entitlement, error) {
	if amount <= 0 {
		return models.Entitlement{}, fmt.Errorf("%w: amount must be positive", common.ErrorValidation)
	}

	ctx, cancel := storageCtx(ctx, l.storageTimeout)
	defer cancel()

	var ent models.Entitlement
	err := l.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := l.resetIfDue(ctx, tx, accountID); err != nil {
			return err
		}

		subs := l.repomanager.Subscriptions(tx)
		sub, ok, err := subs.Consume(ctx, accountID, amount, l.now().UTC())
		if err != nil {
			return storageError("consume quota", err)
		}
		if !ok {
			current, err := subs.Get(ctx, accountID)
			if err != nil {
				return storageError("get subscription", err)
			}
			ent = models.EntitlementOf(current)
			return &QuotaExceededError{Used: current.QuotaUsed, Limit: current.QuotaLimit}
		}
		ent = models.EntitlementOf(sub)

		event := &models.UsageEvent{
			ID:        uuid.NewString(),
			AccountID: accountID,
			Kind:      kind,
			Amount:    amount,
			Metadata:  metadata,
			CreatedAt: l.now().UTC(),
		}
		if err := l.repomanager.UsageEvents(tx).Append(ctx, event); err != nil {
			return storageError("append usage event", err)
		}
		return nil
	})

	var quotaErr *QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		l.metrics.QuotaDecision(false)
		l.logger.Info(ctx, "quota exceeded", "account_id", accountID, "kind", kind, "used", quotaErr.Used, "limit", quotaErr.Limit)
		return ent, err
	case err != nil:
		l.logger.Error(ctx, "quota consumption failed", "account_id", accountID, "kind", kind, "error", err)
		return models.Entitlement{}, err
	}

	l.metrics.QuotaDecision(true)
	return ent, nil
}

// SetTier changes tier and limit without resetting the counter. Re-applying
// the same values changes nothing. It reports whether the row changed.
func (l *EntitlementLedger) SetTier(ctx context.Context, accountID string, tier models.Tier, limit int) (bool, error) {
	ctx, cancel := storageCtx(ctx, l.storageTimeout)
	defer cancel()
	return l.setTier(ctx, l.db, accountID, tier, limit)
}

func (l *EntitlementLedger) setTier(ctx context.Context, db dbx.DBTX, accountID string, tier models.Tier, limit int) (bool, error) {
	subs := l.repomanager.Subscriptions(db)
	changed, err := subs.SetTier(ctx, accountID, tier, limit, l.now().UTC())
	if err != nil {
		return false, storageError("set tier", err)
	}
	if !changed {
		if _, err := subs.Get(ctx, accountID); err != nil {
			return false, storageError("get subscription", err)
		}
	}
	return changed, nil
}

func (l *EntitlementLedger) setStatus(ctx context.Context, db dbx.DBTX, accountID string, status models.SubscriptionStatus) (bool, error) {
	subs := l.repomanager.Subscriptions(db)
	changed, err := subs.SetStatus(ctx, accountID, status, l.now().UTC())
	if err != nil {
		return false, storageError("set status", err)
	}
	if !changed {
		if _, err := subs.Get(ctx, accountID); err != nil {
			return false, storageError("get subscription", err)
		}
	}
	return changed, nil
}

// UsageHistory lists the newest usage events of the account.
func (l *EntitlementLedger) UsageHistory(ctx context.Context, accountID string, limit int) ([]models.UsageEvent, error) {
	ctx, cancel := storageCtx(ctx, l.storageTimeout)
	defer cancel()

	events, err := dbx.RetryOnce(ctx, retryableRead, func(ctx context.Context) ([]models.UsageEvent, error) {
		return l.repomanager.UsageEvents(l.db).ListByAccount(ctx, accountID, limit)
	})
	return events, storageError("list usage events", err)
}

func (l *EntitlementLedger) resetIfDue(ctx context.Context, db dbx.DBTX, accountID string) error {
	now := l.now().UTC()
	reset, err := l.repomanager.Subscriptions(db).ResetIfDue(ctx, accountID, now, models.NextResetAt(now))
	if err != nil {
		return storageError("reset quota", err)
	}
	if reset {
		l.logger.Info(ctx, "monthly quota reset", "account_id", accountID)
	}
	return nil
}
