package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stylist/internal/common"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, err := env.accounts.Register(ctx, "  Ann@Example.com ", "password123", "Ann")
	require.NoError(t, err)
	require.NotNil(t, s.Account.Email)
	assert.Equal(t, "ann@example.com", *s.Account.Email)
	assert.NotEmpty(t, s.Tokens.AccessToken)
	assert.NotEqual(t, []byte("password123"), s.Account.PasswordHash)

	_, err = env.accounts.Register(ctx, "ann@example.com", "password456", "Other")
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name, email, password, display string
	}{
		{"bad email", "not-an-email", "password123", ""},
		{"display name in email", "Ann <ann@example.com>", "password123", ""},
		{"short password", "a@example.com", "short", ""},
		{"long display name", "a@example.com", "password123", string(make([]rune, 65))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accounts.Register(ctx, tt.email, tt.password, tt.display)
			require.ErrorIs(t, err, common.ErrorValidation)
		})
	}
}

func TestRegister_RollsBackOnSubscriptionFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.FailOn("subscriptions.Create", assert.AnError)
	_, err := env.accounts.Register(ctx, "a@example.com", "password123", "")
	require.ErrorIs(t, err, common.ErrorStorage)

	// the account row was rolled back, so the email is still free
	_, err = env.accounts.Register(ctx, "a@example.com", "password123", "")
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "a@example.com")

	s, err := env.accounts.Login(ctx, "A@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, s.Account.ID)

	_, err = env.accounts.Login(ctx, "a@example.com", "wrong-password")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = env.accounts.Login(ctx, "nobody@example.com", "password123")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = env.accounts.Login(ctx, "garbage", "password123")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestGuest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, err := env.accounts.RegisterGuest(ctx, "")
	require.NoError(t, err)
	assert.True(t, s.Account.IsGuest())
	assert.Equal(t, "Guest", s.Account.DisplayName)

	// guests keep their session through refresh only
	_, err = env.tokens.Rotate(ctx, s.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestMeAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "a@example.com")

	acc, ent, err := env.accounts.Me(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tester", acc.DisplayName)
	assert.Equal(t, env.cfg.FreeMonthlyQuota, ent.Limit)

	require.NoError(t, env.accounts.Delete(ctx, reg.Account.ID))
	assert.Equal(t, 0, env.store.TokenCount(reg.Account.ID))

	_, _, err = env.accounts.Me(ctx, reg.Account.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.ErrorIs(t, env.accounts.Delete(ctx, reg.Account.ID), common.ErrorNotFound)

	_, err = env.tokens.Rotate(ctx, reg.Tokens.RefreshToken)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
