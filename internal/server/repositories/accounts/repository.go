// Package accounts declares the server-side repository contract for
// account identities and their password credentials.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/stylist/internal/server/models"
)

// Repository persists accounts.
type Repository interface {
	// Create inserts account (ID must be set) and fills CreatedAt.
	// A duplicate email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// GetByID returns common.ErrorNotFound when the account is absent.
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// GetByEmail returns common.ErrorNotFound when no account has the email.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// Delete removes the account; subscription, refresh tokens and usage
	// events go with it. Returns common.ErrorNotFound when absent.
	Delete(ctx context.Context, id string) error
}
