package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, exp, err := GenerateToken("account-123", AccessToken, "jti-1", secret, issuedAt, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(15*time.Minute), exp.UTC())

	claims, err := ParseToken(tok, secret, AccessToken, issuedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "account-123", claims.AccountID)
	assert.Equal(t, "jti-1", claims.ID)
	assert.Equal(t, AccessToken, claims.Type)
}

func TestParseToken_ValidUntilExpiry(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, exp, err := GenerateToken("u1", AccessToken, "", secret, issuedAt, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(tok, secret, AccessToken, exp.Add(-time.Nanosecond))
	require.NoError(t, err)

	_, err = ParseToken(tok, secret, AccessToken, exp)
	require.ErrorIs(t, err, common.ErrTokenExpired)

	_, err = ParseToken(tok, secret, AccessToken, exp.Add(time.Second))
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParseToken_WrongType(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, _, err := GenerateToken("u1", RefreshToken, "jti", secret, issuedAt, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, secret, AccessToken, issuedAt)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, _, err := GenerateToken("u2", AccessToken, "", []byte("right-secret"), issuedAt, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, []byte("wrong-secret"), AccessToken, issuedAt)
	require.ErrorIs(t, err, common.ErrInvalidToken)
	assert.False(t, errors.Is(err, common.ErrTokenExpired))
}

func TestParseToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := ParseToken("not.a.jwt", []byte("k"), AccessToken, issuedAt)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour))},
		AccountID:        "u3",
		Type:             AccessToken,
	})
	tok, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(tok, []byte("k"), AccessToken, issuedAt)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_MissingAccount(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, _, err := GenerateToken("", AccessToken, "", secret, issuedAt, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, secret, AccessToken, issuedAt)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
