// Package refreshtokens declares the server-side repository contract for
// refresh token records.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/stylist/internal/server/models"
)

// Repository stores the records that keep refresh tokens usable.
type Repository interface {
	// Create stores a new record.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Take deletes the record and returns it. Exactly one of several
	// concurrent callers gets the record; the rest get common.ErrorNotFound.
	Take(ctx context.Context, tokenID string) (*models.RefreshToken, error)

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, tokenID string) error

	// DeleteByAccount removes every record of the account and returns how many.
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)

	// DeleteExpired removes records that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
