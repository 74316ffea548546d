package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/cryptox"
	"github.com/dmitrijs2005/stylist/internal/dbx"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/repositories/repomanager"
)

const maxDisplayNameLength = 64

// Session is what register and login return to the client.
type Session struct {
	Account     *models.Account
	Entitlement models.Entitlement
	Tokens      *TokenPair
}

// AccountService provides registration, login and account lifecycle.
type AccountService struct {
	db             dbx.DBTX
	tx             dbx.Transactor
	repomanager    repomanager.RepositoryManager
	tokens         *TokenService
	ledger         *EntitlementLedger
	storageTimeout time.Duration
	logger         logging.Logger
}

// NewAccountService constructs an AccountService.
func NewAccountService(db dbx.DBTX, tx dbx.Transactor, m repomanager.RepositoryManager, tokens *TokenService,
	ledger *EntitlementLedger, cfg *config.Config, logger logging.Logger) *AccountService {
	return &AccountService{
		db:             db,
		tx:             tx,
		repomanager:    m,
		tokens:         tokens,
		ledger:         ledger,
		storageTimeout: cfg.StorageTimeout,
		logger:         logger.With("module", "accounts"),
	}
}

// Register creates an account with a password and its FREE subscription in
// one transaction, then issues a token pair.
func (s *AccountService) Register(ctx context.Context, email, password, displayName string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	displayName, err = normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	hash, err := cryptox.HashPassword([]byte(password))
	if err != nil {
		return nil, err
	}

	return s.create(ctx, &models.Account{
		ID:           uuid.NewString(),
		Email:        &email,
		PasswordHash: hash,
		DisplayName:  displayName,
	})
}

// RegisterGuest creates an account without credentials. It can only keep its
// session alive through refresh tokens.
func (s *AccountService) RegisterGuest(ctx context.Context, displayName string) (*Session, error) {
	displayName, err := normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = "Guest"
	}
	return s.create(ctx, &models.Account{ID: uuid.NewString(), DisplayName: displayName})
}

func (s *AccountService) create(ctx context.Context, account *models.Account) (*Session, error) {
	sub := s.ledger.NewSubscription(account.ID)

	txCtx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()

	err := s.tx.WithTx(txCtx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if account, err = s.repomanager.Accounts(tx).Create(ctx, account); err != nil {
			return storageError("create account", err)
		}
		return storageError("create subscription", s.repomanager.Subscriptions(tx).Create(ctx, sub))
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID, "guest", account.IsGuest())
	return &Session{Account: account, Entitlement: models.EntitlementOf(sub), Tokens: pair}, nil
}

// Login verifies email and password. Unknown emails, guest accounts and wrong
// passwords are indistinguishable: all yield common.ErrorUnauthorized after
// the same amount of hashing work.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		cryptox.CheckPassword(nil, []byte(password))
		return nil, common.ErrorUnauthorized
	}

	lookupCtx, cancel := storageCtx(ctx, s.storageTimeout)
	account, err := dbx.RetryOnce(lookupCtx, retryableRead, func(ctx context.Context) (*models.Account, error) {
		return s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	})
	cancel()

	var hash []byte
	switch {
	case errors.Is(err, common.ErrorNotFound):
	case err != nil:
		return nil, storageError("get account", err)
	default:
		hash = account.PasswordHash
	}

	if !cryptox.CheckPassword(hash, []byte(password)) {
		return nil, common.ErrorUnauthorized
	}

	ent, err := s.ledger.CurrentStatus(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Issue(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Account: account, Entitlement: ent, Tokens: pair}, nil
}

// Me returns the account and its current entitlement.
func (s *AccountService) Me(ctx context.Context, accountID string) (*models.Account, models.Entitlement, error) {
	lookupCtx, cancel := storageCtx(ctx, s.storageTimeout)
	account, err := dbx.RetryOnce(lookupCtx, retryableRead, func(ctx context.Context) (*models.Account, error) {
		return s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	})
	cancel()
	if err != nil {
		return nil, models.Entitlement{}, storageError("get account", err)
	}

	ent, err := s.ledger.CurrentStatus(ctx, accountID)
	if err != nil {
		return nil, models.Entitlement{}, err
	}
	return account, ent, nil
}

// Delete removes the account together with its subscription, refresh records
// and usage history.
func (s *AccountService) Delete(ctx context.Context, accountID string) error {
	ctx, cancel := storageCtx(ctx, s.storageTimeout)
	defer cancel()

	if err := s.repomanager.Accounts(s.db).Delete(ctx, accountID); err != nil {
		return storageError("delete account", err)
	}
	s.logger.Info(ctx, "account deleted", "account_id", accountID)
	return nil
}

// Logout revokes the given refresh token.
func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Revoke(ctx, refreshToken)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	return email, nil
}

func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) > maxDisplayNameLength {
		return "", fmt.Errorf("%w: display name is too long", common.ErrorValidation)
	}
	return name, nil
}
