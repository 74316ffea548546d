package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/stylist/internal/client/client"
	"github.com/dmitrijs2005/stylist/internal/client/models"
	"github.com/dmitrijs2005/stylist/internal/client/repositories/metadata"
)

const (
	keyAccessToken      = "access_token"
	keyRefreshToken     = "refresh_token"
	keyAccessExpiresAt  = "access_expires_at"
	keyRefreshExpiresAt = "refresh_expires_at"
	keyDisplayName      = "display_name"
	keyGuest            = "guest"
)

var tokenKeys = []string{keyAccessToken, keyRefreshToken, keyAccessExpiresAt, keyRefreshExpiresAt}

// TokenStore keeps the session tokens in the metadata table. It implements
// client.TokenStore.
type TokenStore struct {
	repo metadata.Repository
}

func NewTokenStore(repo metadata.Repository) *TokenStore {
	return &TokenStore{repo: repo}
}

func (s *TokenStore) Tokens(ctx context.Context) (*models.TokenPair, error) {
	access, err := s.repo.Get(ctx, keyAccessToken)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, client.ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}
	refresh, err := s.repo.Get(ctx, keyRefreshToken)
	if errors.Is(err, metadata.ErrNotFound) {
		return nil, client.ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}

	pair := &models.TokenPair{AccessToken: access, RefreshToken: refresh}
	pair.AccessExpiresAt = s.timeValue(ctx, keyAccessExpiresAt)
	pair.RefreshExpiresAt = s.timeValue(ctx, keyRefreshExpiresAt)
	return pair, nil
}

func (s *TokenStore) SaveTokens(ctx context.Context, pair *models.TokenPair) error {
	return s.repo.SetMany(ctx, map[string]string{
		keyAccessToken:      pair.AccessToken,
		keyRefreshToken:     pair.RefreshToken,
		keyAccessExpiresAt:  pair.AccessExpiresAt.UTC().Format(time.RFC3339),
		keyRefreshExpiresAt: pair.RefreshExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *TokenStore) ClearTokens(ctx context.Context) error {
	return s.repo.Delete(ctx, tokenKeys...)
}

func (s *TokenStore) timeValue(ctx context.Context, key string) time.Time {
	v, err := s.repo.Get(ctx, key)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
