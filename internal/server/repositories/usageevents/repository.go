// Package usageevents declares the append-only audit log of charged actions.
package usageevents

import (
	"context"

	"github.com/dmitrijs2005/stylist/internal/server/models"
)

// Repository appends and lists usage events. Events are never updated.
type Repository interface {
	Append(ctx context.Context, event *models.UsageEvent) error

	// ListByAccount returns the newest events first, at most limit of them.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.UsageEvent, error)
}
