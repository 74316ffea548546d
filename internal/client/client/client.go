package client

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/stylist/internal/client/models"
)

// API is the server surface used by the CLI.
type API interface {
	Health(ctx context.Context) error
	Register(ctx context.Context, email, password, displayName string) (*models.Session, error)
	Guest(ctx context.Context, displayName string) (*models.Session, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.Profile, error)
	Entitlement(ctx context.Context) (*models.Entitlement, error)
	TryOn(ctx context.Context, person, garment Upload) (*models.TryOn, error)
	Outfits(ctx context.Context, request json.RawMessage) (*OutfitsResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// TokenStore persists the current token pair between runs.
type TokenStore interface {
	// Tokens returns ErrNotLoggedIn when nothing is stored.
	Tokens(ctx context.Context) (*models.TokenPair, error)
	SaveTokens(ctx context.Context, pair *models.TokenPair) error
	ClearTokens(ctx context.Context) error
}

// Upload is one image part of a try-on request.
type Upload struct {
	Name string
	Data []byte
}

type OutfitsResult struct {
	Result      json.RawMessage     `json:"result"`
	Entitlement *models.Entitlement `json:"entitlement"`
}
