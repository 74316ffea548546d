// Package gate turns a bearer credential into an authorized principal.
// It holds no state of its own: it composes access-token verification with
// the entitlement ledger and a tier comparison.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

// TokenVerifier verifies access tokens without I/O.
type TokenVerifier interface {
	VerifyAccess(token string) (string, bool)
}

// StatusReader reports the current entitlement of an account.
type StatusReader interface {
	CurrentStatus(ctx context.Context, accountID string) (models.Entitlement, error)
}

// TierRequiredError is returned when the account's tier is below the one the
// route requires.
type TierRequiredError struct {
	Required models.Tier
	Current  models.Tier
}

func (e *TierRequiredError) Error() string {
	return fmt.Sprintf("tier %s required, current tier is %s", e.Required, e.Current)
}

// Principal is the caller of an authorized request.
type Principal struct {
	AccountID   string
	Entitlement models.Entitlement
}

// Gate authorizes requests.
type Gate struct {
	tokens TokenVerifier
	ledger StatusReader
}

func New(tokens TokenVerifier, ledger StatusReader) *Gate {
	return &Gate{tokens: tokens, ledger: ledger}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authorize checks the credential in header and, when required is not empty,
// that the account's tier is at least required. Quota is not checked here.
//
// Errors: common.ErrorUnauthorized for a missing, invalid or expired token or
// a deleted account, *TierRequiredError for an insufficient tier, a
// common.ErrorStorage wrapped error when the entitlement cannot be loaded.
func (g *Gate) Authorize(ctx context.Context, header string, required models.Tier) (*Principal, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, fmt.Errorf("%w: missing bearer token", common.ErrorUnauthorized)
	}
	accountID, ok := g.tokens.VerifyAccess(token)
	if !ok {
		return nil, fmt.Errorf("%w: invalid access token", common.ErrorUnauthorized)
	}

	p := &Principal{AccountID: accountID}
	if required == "" {
		return p, nil
	}

	ent, err := g.ledger.CurrentStatus(ctx, accountID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", common.ErrorUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	p.Entitlement = ent

	if !ent.Tier.AtLeast(required) {
		return nil, &TierRequiredError{Required: required, Current: ent.Tier}
	}
	return p, nil
}

// ErrorWriter renders an authorization failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Require returns middleware that authorizes every request and stores the
// principal in the request context. An empty tier only requires a valid token.
func (g *Gate) Require(tier models.Tier, onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.Authorize(r.Context(), r.Header.Get(common.AuthorizationHeader), tier)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the principal stored by Require.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}
