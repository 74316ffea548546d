package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/repomanager"
)

// BillingEventType is a subscription lifecycle event from the billing provider.
type BillingEventType string

const (
	EventSubscriptionActivated BillingEventType = "subscription.activated"
	EventSubscriptionUpdated   BillingEventType = "subscription.updated"
	EventSubscriptionCanceled  BillingEventType = "subscription.canceled"
	EventPaymentFailed         BillingEventType = "payment.failed"
)

// BillingEvent is the provider-neutral shape of a lifecycle event.
type BillingEvent struct {
	Type           BillingEventType `json:"type"`
	AccountID      string           `json:"account_id"`
	Tier           models.Tier      `json:"tier,omitempty"`
	CustomerID     *string          `json:"customer_id,omitempty"`
	SubscriptionID *string          `json:"subscription_id,omitempty"`
}

// BillingService applies lifecycle events to the entitlement ledger. Events
// are authoritative and idempotent: replaying one leaves storage unchanged.
type BillingService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	ledger      *EntitlementLedger
	logger      logging.Logger
}

// NewBillingService constructs a BillingService on top of ledger.
func NewBillingService(tx dbx.Transactor, m repomanager.RepositoryManager, ledger *EntitlementLedger, logger logging.Logger) *BillingService {
	return &BillingService{
		tx:          tx,
		repomanager: m,
		ledger:      ledger,
		logger:      logger.With("module", "billing"),
	}
}

// Apply validates and applies event in one transaction. It reports whether
// anything changed.
//
//   - subscription.activated / subscription.updated: tier and its limit, ACTIVE, billing ids
//   - subscription.canceled: FREE and its limit, CANCELED
//   - payment.failed: PAST_DUE, tier kept
func (s *BillingService) Apply(ctx context.Context, event BillingEvent) (bool, error) {
	if event.AccountID == "" {
		return false, fmt.Errorf("%w: account_id is required", common.ErrorValidation)
	}

	var apply func(ctx context.Context, tx dbx.DBTX) (bool, error)

	switch event.Type {
	case EventSubscriptionActivated, EventSubscriptionUpdated:
		tier, err := models.ParseTier(string(event.Tier))
		if err != nil {
			return false, fmt.Errorf("%w: %v", common.ErrorValidation, err)
		}
		apply = func(ctx context.Context, tx dbx.DBTX) (bool, error) {
			return s.applyAll(ctx, tx, event.AccountID, tier, models.StatusActive, event.CustomerID, event.SubscriptionID)
		}
	case EventSubscriptionCanceled:
		apply = func(ctx context.Context, tx dbx.DBTX) (bool, error) {
			return s.applyAll(ctx, tx, event.AccountID, models.TierFree, models.StatusCanceled, nil, nil)
		}
	case EventPaymentFailed:
		apply = func(ctx context.Context, tx dbx.DBTX) (bool, error) {
			return s.ledger.setStatus(ctx, tx, event.AccountID, models.StatusPastDue)
		}
	default:
		return false, fmt.Errorf("%w: unknown billing event %q", common.ErrorValidation, event.Type)
	}

	ctx, cancel := storageCtx(ctx, s.ledger.storageTimeout)
	defer cancel()

	var changed bool
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		changed, err = apply(ctx, tx)
		return err
	})
	if err != nil {
		return false, err
	}

	s.logger.Info(ctx, "billing event applied", "type", event.Type, "account_id", event.AccountID, "changed", changed)
	return changed, nil
}

func (s *BillingService) applyAll(ctx context.Context, tx dbx.DBTX, accountID string, tier models.Tier,
	status models.SubscriptionStatus, customerID, subscriptionID *string) (bool, error) {
	tierChanged, err := s.ledger.setTier(ctx, tx, accountID, tier, s.ledger.LimitFor(tier))
	if err != nil {
		return false, err
	}
	statusChanged, err := s.ledger.setStatus(ctx, tx, accountID, status)
	if err != nil {
		return false, err
	}
	idsChanged := false
	if customerID != nil || subscriptionID != nil {
		idsChanged, err = s.repomanager.Subscriptions(tx).SetBillingIDs(ctx, accountID, customerID, subscriptionID, s.ledger.now().UTC())
		if err != nil {
			return false, storageError("set billing ids", err)
		}
	}
	return tierChanged || statusChanged || idsChanged, nil
}
