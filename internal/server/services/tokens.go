package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/auth"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/metrics"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

var errRefreshRecordMissing = errors.New("refresh record missing")

// TokenService issues access tokens, which are verified without I/O, and
// refresh tokens, which additionally need a live record in storage.
type TokenService struct {
	db                           dbx.DBTX
	tx                           dbx.Transactor
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	storageTimeout               time.Duration
	logger                       logging.Logger
	metrics                      metrics.Recorder
	now                          func() time.Time
}

// NewTokenService constructs a TokenService using repositories and server config.
func NewTokenService(db dbx.DBTX, tx dbx.Transactor, m repomanager.RepositoryManager, cfg *config.Config,
	logger logging.Logger, mx metrics.Recorder) *TokenService {
	return &TokenService{
		db:                           db,
		tx:                           tx,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		storageTimeout:               cfg.StorageTimeout,
		logger:                       logger.With("module", "tokens"),
		metrics:                      mx,
		now:                          time.Now,
	}
}

// Issue mints a token pair for accountID and stores the refresh record.
func (s *TokenService) Issue(ctx context.Context, accountID string) (*TokenPair, error) {
	ctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	return s.issue(ctx, s.db, accountID)
}

// VerifyAccess checks signature and expiry of an access token and returns
// its account id. It never touches storage and never returns an error:
// anything wrong with the token is simply a refusal.
func (s *TokenService) VerifyAccess(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	claims, err := auth.ParseToken(token, s.jwtSecret, auth.AccessToken, s.now())
	if err != nil {
		return "", false
	}
	return claims.AccountID, true
}

// Rotate exchanges a refresh token for a new pair. The old record is deleted
// and its successor created in one transaction. A structurally valid token
// without a record means it was already used: every refresh record of the
// account is revoked and common.ErrRefreshTokenReused is returned.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := auth.ParseToken(refreshToken, s.jwtSecret, auth.RefreshToken, s.now())
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, common.ErrInvalidToken
	}

	ctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()

	var pair *TokenPair
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		record, err := s.repomanager.RefreshTokens(tx).Take(ctx, claims.ID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errRefreshRecordMissing
			}
			return storageError("take refresh token", err)
		}
		if record.AccountID != claims.AccountID {
			return common.ErrInvalidToken
		}
		if !s.now().Before(record.ExpiresAt) {
			return common.ErrTokenExpired
		}
		pair, err = s.issue(ctx, tx, record.AccountID)
		return err
	})

	switch {
	case errors.Is(err, errRefreshRecordMissing):
		return nil, s.containReuse(ctx, claims.AccountID)
	case err != nil:
		return nil, err
	}

	s.metrics.TokenRotated()
	return pair, nil
}

// containReuse revokes every refresh record of the account after a replayed
// refresh token was seen. The revocation runs outside the failed transaction
// so it is not rolled back with it.
func (s *TokenService) containReuse(ctx context.Context, accountID string) error {
	s.metrics.RefreshReuseDetected()
	n, err := s.repomanager.RefreshTokens(s.db).DeleteByAccount(ctx, accountID)
	if err != nil {
		s.logger.Error(ctx, "revoking refresh tokens after reuse failed", "account_id", accountID, "error", err)
		return storageError("revoke refresh tokens", err)
	}
	s.logger.Warn(ctx, "refresh token reuse detected, all sessions revoked", "account_id", accountID, "revoked", n)
	return common.ErrRefreshTokenReused
}

// Revoke deletes the record behind refreshToken. Unknown or already rotated
// tokens are not an error; expired ones are still removed.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := auth.ParseToken(refreshToken, s.jwtSecret, auth.RefreshToken, s.now())
	if errors.Is(err, common.ErrTokenExpired) {
		// left for PurgeExpired
		return nil
	}
	if err != nil {
		return err
	}

	ctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	return storageError("delete refresh token", s.repomanager.RefreshTokens(s.db).Delete(ctx, claims.ID))
}

// RevokeAll deletes every refresh record of the account.
func (s *TokenService) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	ctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	n, err := s.repomanager.RefreshTokens(s.db).DeleteByAccount(ctx, accountID)
	return n, storageError("revoke refresh tokens", err)
}

// PurgeExpired removes refresh records that can no longer be exchanged.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
	return n, storageError("purge refresh tokens", err)
}

func (s *TokenService) issue(ctx context.Context, db dbx.DBTX, accountID string) (*TokenPair, error) {
	now := s.now()

	access, accessExp, err := auth.GenerateToken(accountID, auth.AccessToken, uuid.NewString(), s.jwtSecret, now, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	tokenID := uuid.NewString()
	refresh, refreshExp, err := auth.GenerateToken(accountID, auth.RefreshToken, tokenID, s.jwtSecret, now, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}

	record := &models.RefreshToken{ID: tokenID, AccountID: accountID, ExpiresAt: refreshExp, CreatedAt: now}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, record); err != nil {
		return nil, storageError("create refresh token", err)
	}

	s.metrics.TokensIssued()
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
