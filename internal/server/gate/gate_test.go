package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

type fakeTokens map[string]string

func (f fakeTokens) VerifyAccess(token string) (string, bool) {
	id, ok := f[token]
	return id, ok
}

type fakeLedger struct {
	ents  map[string]models.Entitlement
	err   error
	calls int
}

func (f *fakeLedger) CurrentStatus(_ context.Context, accountID string) (models.Entitlement, error) {
	f.calls++
	if f.err != nil {
		return models.Entitlement{}, f.err
	}
	ent, ok := f.ents[accountID]
	if !ok {
		return models.Entitlement{}, common.ErrorNotFound
	}
	return ent, nil
}

func newGate() (*Gate, *fakeLedger) {
	ledger := &fakeLedger{ents: map[string]models.Entitlement{
		"free":    {Tier: models.TierFree, Used: 5, Limit: 5},
		"premium": {Tier: models.TierPremium, Limit: models.UnlimitedQuota},
	}}
	tokens := fakeTokens{"t-free": "free", "t-premium": "premium", "t-gone": "gone"}
	return New(tokens, ledger), ledger
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestAuthorize(t *testing.T) {
	g, _ := newGate()
	ctx := context.Background()

	_, err := g.Authorize(ctx, "", "")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = g.Authorize(ctx, "Bearer nope", "")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	p, err := g.Authorize(ctx, "Bearer t-free", "")
	require.NoError(t, err)
	assert.Equal(t, "free", p.AccountID)

	p, err = g.Authorize(ctx, "Bearer t-premium", models.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, p.Entitlement.Tier)

	_, err = g.Authorize(ctx, "Bearer t-gone", models.TierFree)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuthorize_TierIndependentOfQuota(t *testing.T) {
	g, _ := newGate()

	// FREE with an exhausted quota still gets TierRequired, not a quota error.
	_, err := g.Authorize(context.Background(), "Bearer t-free", models.TierPremium)
	var tierErr *TierRequiredError
	require.ErrorAs(t, err, &tierErr)
	assert.Equal(t, models.TierPremium, tierErr.Required)
	assert.Equal(t, models.TierFree, tierErr.Current)
}

func TestAuthorize_NoLookupWithoutTier(t *testing.T) {
	g, ledger := newGate()
	_, err := g.Authorize(context.Background(), "Bearer t-free", "")
	require.NoError(t, err)
	assert.Zero(t, ledger.calls)
}

func TestAuthorize_StorageError(t *testing.T) {
	g, ledger := newGate()
	ledger.err = common.ErrorStorage
	_, err := g.Authorize(context.Background(), "Bearer t-free", models.TierFree)
	require.ErrorIs(t, err, common.ErrorStorage)
}

func TestRequire(t *testing.T) {
	g, _ := newGate()

	var gotErr error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusForbidden)
	}
	h := g.Require(models.TierPremium, onError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(p.AccountID))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(common.AuthorizationHeader, "Bearer t-premium")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "premium", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(common.AuthorizationHeader, "Bearer t-free")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var tierErr *TierRequiredError
	assert.True(t, errors.As(gotErr, &tierErr))
}

func TestPrincipalFrom_Empty(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)
}
