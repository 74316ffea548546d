// Package auth signs and parses the HS256 tokens handed out to clients.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// TokenType separates access tokens from refresh tokens so one can never
// be presented in place of the other.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims are the registered claims plus the owning account and token type.
// ID (jti) identifies the refresh token record for refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string    `json:"aid"`
	Type      TokenType `json:"token_type"`
}

// GenerateToken signs a token for accountID valid for validity from issuedAt.
// It returns the token and its expiry as encoded in the claims.
func GenerateToken(accountID string, tokenType TokenType, tokenID string, secretKey []byte, issuedAt time.Time, validity time.Duration) (string, time.Time, error) {
	expiresAt := jwt.NewNumericDate(issuedAt.Add(validity))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: expiresAt,
		},
		AccountID: accountID,
		Type:      tokenType,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt.Time, nil
}

// ParseToken verifies the signature and expiry of tokenString as seen at now
// and checks that it is of the expected type.
//
// Expired tokens yield common.ErrTokenExpired; every other failure wraps
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte, expected TokenType, now time.Time) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", common.ErrInvalidToken, expected, claims.Type)
	}

	if claims.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id", common.ErrInvalidToken)
	}

	return claims, nil
}
