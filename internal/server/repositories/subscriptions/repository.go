// Package subscriptions declares the repository contract for per-account
// entitlement rows. Every mutating method is a single conditional statement
// so concurrent callers never race on a read-then-write.
package subscriptions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/stylist/internal/server/models"
)

// Repository persists subscriptions.
type Repository interface {
	// Create inserts the subscription row for a new account.
	Create(ctx context.Context, sub *models.Subscription) error

	// Get returns common.ErrorNotFound when the account has no subscription.
	Get(ctx context.Context, accountID string) (*models.Subscription, error)

	// ResetIfDue zeroes the counter and moves ResetAt to nextResetAt when
	// ResetAt <= now. It reports whether a reset happened.
	ResetIfDue(ctx context.Context, accountID string, now, nextResetAt time.Time) (bool, error)

	// Consume adds amount to the counter if the limit allows it and returns the
	// updated row. ok is false when the ceiling would be exceeded or the row is
	// absent; nothing is written in that case.
	Consume(ctx context.Context, accountID string, amount int, now time.Time) (sub *models.Subscription, ok bool, err error)

	// SetTier changes tier and limit without touching the counter.
	// It reports false when the row already matched.
	SetTier(ctx context.Context, accountID string, tier models.Tier, limit int, now time.Time) (bool, error)

	// SetStatus changes the billing status. It reports false when unchanged.
	SetStatus(ctx context.Context, accountID string, status models.SubscriptionStatus, now time.Time) (bool, error)

	// SetBillingIDs stores external billing identifiers; nil keeps the current value.
	// It reports false when unchanged.
	SetBillingIDs(ctx context.Context, accountID string, customerID, subscriptionID *string, now time.Time) (bool, error)
}
