// Package services contains the CLI's application services. They sit between
// the REPL commands and the HTTP client and keep local state in sync.
package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/dmitrijs2005/stylist/internal/client/client"
	"github.com/dmitrijs2005/stylist/internal/client/models"
	"github.com/dmitrijs2005/stylist/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/stylist/internal/common"
)

// AuthService covers account sessions for the CLI.
type AuthService interface {
	Register(ctx context.Context, email string, password []byte, displayName string) (*models.Session, error)
	Login(ctx context.Context, email string, password []byte) (*models.Session, error)
	Guest(ctx context.Context, displayName string) (*models.Session, error)
	Logout(ctx context.Context) error
	Status(ctx context.Context) (*models.Profile, error)
	// CurrentUser reports the cached display name of the stored session.
	CurrentUser(ctx context.Context) (name string, guest bool, ok bool)
	Ping(ctx context.Context) error
}

type authService struct {
	api  client.API
	repo metadata.Repository
}

func NewAuthService(api client.API, repo metadata.Repository) AuthService {
	return &authService{api: api, repo: repo}
}

// Register wipes password once the request has been sent.
func (a *authService) Register(ctx context.Context, email string, password []byte, displayName string) (*models.Session, error) {
	defer common.WipeByteArray(password)
	s, err := a.api.Register(ctx, email, string(password), displayName)
	if err != nil {
		return nil, err
	}
	return s, a.remember(ctx, s.Account)
}

// Login wipes password once the request has been sent.
func (a *authService) Login(ctx context.Context, email string, password []byte) (*models.Session, error) {
	defer common.WipeByteArray(password)
	s, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		return nil, err
	}
	return s, a.remember(ctx, s.Account)
}

func (a *authService) Guest(ctx context.Context, displayName string) (*models.Session, error) {
	s, err := a.api.Guest(ctx, displayName)
	if err != nil {
		return nil, err
	}
	return s, a.remember(ctx, s.Account)
}

// Logout forgets the local session even when the server cannot be reached.
func (a *authService) Logout(ctx context.Context) error {
	err := a.api.Logout(ctx)
	if derr := a.repo.Delete(ctx, keyDisplayName, keyGuest); derr != nil {
		return errors.Join(err, derr)
	}
	return err
}

func (a *authService) Status(ctx context.Context) (*models.Profile, error) {
	p, err := a.api.Me(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) || errors.Is(err, client.ErrNotLoggedIn) {
			_ = a.repo.Delete(ctx, keyDisplayName, keyGuest)
		}
		return nil, err
	}
	return p, a.remember(ctx, p.Account)
}

func (a *authService) CurrentUser(ctx context.Context) (string, bool, bool) {
	name, err := a.repo.Get(ctx, keyDisplayName)
	if err != nil {
		return "", false, false
	}
	guest, _ := a.repo.Get(ctx, keyGuest)
	isGuest, _ := strconv.ParseBool(guest)
	return name, isGuest, true
}

func (a *authService) Ping(ctx context.Context) error {
	return a.api.Health(ctx)
}

func (a *authService) remember(ctx context.Context, acc models.Account) error {
	return a.repo.SetMany(ctx, map[string]string{
		keyDisplayName: acc.DisplayName,
		keyGuest:       strconv.FormatBool(acc.Guest),
	})
}
