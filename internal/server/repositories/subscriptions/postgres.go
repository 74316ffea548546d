package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

const columns = `account_id, tier, status, quota_limit, quota_used, reset_at, billing_customer_id, billing_subscription_id, updated_at`

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*models.Subscription, error) {
	s := &models.Subscription{}
	var customerID, subscriptionID sql.NullString
	err := row.Scan(&s.AccountID, &s.Tier, &s.Status, &s.QuotaLimit, &s.QuotaUsed, &s.ResetAt,
		&customerID, &subscriptionID, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		s.BillingCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		s.BillingSubscriptionID = &subscriptionID.String
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (account_id, tier, status, quota_limit, quota_used, reset_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		sub.AccountID, sub.Tier, sub.Status, sub.QuotaLimit, sub.QuotaUsed, sub.ResetAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (*models.Subscription, error) {
	query := `SELECT ` + columns + ` FROM subscriptions WHERE account_id = $1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ResetIfDue(ctx context.Context, accountID string, now, nextResetAt time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET quota_used = 0, reset_at = $2, updated_at = $3
		WHERE account_id = $1 AND reset_at <= $3
	`
	return r.execChanged(ctx, query, accountID, nextResetAt, now)
}

func (r *PostgresRepository) Consume(ctx context.Context, accountID string, amount int, now time.Time) (*models.Subscription, bool, error) {
	query := `
		UPDATE subscriptions
		SET quota_used = quota_used + $2, updated_at = $3
		WHERE account_id = $1 AND (quota_limit < 0 OR quota_used + $2 <= quota_limit)
		RETURNING ` + columns
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, accountID, amount, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return s, true, nil
}

func (r *PostgresRepository) SetTier(ctx context.Context, accountID string, tier models.Tier, limit int, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET tier = $2, quota_limit = $3, updated_at = $4
		WHERE account_id = $1 AND (tier <> $2 OR quota_limit <> $3)
	`
	return r.execChanged(ctx, query, accountID, tier, limit, now)
}

func (r *PostgresRepository) SetStatus(ctx context.Context, accountID string, status models.SubscriptionStatus, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = $2, updated_at = $3
		WHERE account_id = $1 AND status <> $2
	`
	return r.execChanged(ctx, query, accountID, status, now)
}

func (r *PostgresRepository) SetBillingIDs(ctx context.Context, accountID string, customerID, subscriptionID *string, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET billing_customer_id = COALESCE($2, billing_customer_id),
			billing_subscription_id = COALESCE($3, billing_subscription_id),
			updated_at = $4
		WHERE account_id = $1
			AND (billing_customer_id IS DISTINCT FROM COALESCE($2, billing_customer_id)
				OR billing_subscription_id IS DISTINCT FROM COALESCE($3, billing_subscription_id))
	`
	return r.execChanged(ctx, query, accountID, customerID, subscriptionID, now)
}

func (r *PostgresRepository) execChanged(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
