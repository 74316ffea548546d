// Package outfits forwards outfit generation requests to the recommendation
// service and meters them like try-ons: only a successful answer is charged.
package outfits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/config"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

const maxResponseBytes = 4 << 20

// ErrNotConfigured is returned when no recommendation service is set up.
var ErrNotConfigured = errors.New("outfit service is not configured")

// UpstreamError is a failed call to the recommendation service.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return "outfit service unavailable: " + e.Message
	}
	return fmt.Sprintf("outfit service returned %d: %s", e.Status, e.Message)
}

// Ledger is the part of the entitlement ledger outfits need.
type Ledger interface {
	CheckQuota(ctx context.Context, accountID string, amount int) (models.Entitlement, error)
	TryConsume(ctx context.Context, accountID string, kind models.UsageKind, amount int, metadata map[string]string) (models.Entitlement, error)
}

// Result is the upstream JSON plus the entitlement after charging.
type Result struct {
	Body        json.RawMessage
	Entitlement models.Entitlement
}

type Service struct {
	url    string
	http   *http.Client
	ledger Ledger
	logger logging.Logger
}

func NewService(cfg *config.Config, ledger Ledger, logger logging.Logger) *Service {
	return &Service{
		url:    strings.TrimRight(cfg.OutfitServiceURL, "/"),
		http:   &http.Client{Timeout: cfg.ProviderRequestTimeout},
		ledger: ledger,
		logger: logger.With("module", "outfits"),
	}
}

// Generate checks the quota, forwards body and charges one unit when the
// upstream answers 2xx with JSON.
func (s *Service) Generate(ctx context.Context, accountID string, body []byte) (*Result, error) {
	if s.url == "" {
		return nil, ErrNotConfigured
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid request body: %w", errInvalidJSON)
	}
	if _, err := s.ledger.CheckQuota(ctx, accountID, 1); err != nil {
		return nil, err
	}

	out, err := s.forward(ctx, body)
	if err != nil {
		s.logger.Warn(ctx, "outfit generation failed", "account_id", accountID, "error", err)
		return nil, err
	}

	ent, err := s.ledger.TryConsume(ctx, accountID, models.UsageOutfitGeneration, 1, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Body: out, Entitlement: ent}, nil
}

var errInvalidJSON = errors.New("body is not valid JSON")

// IsInvalidInput reports whether err was caused by the caller's payload.
func IsInvalidInput(err error) bool {
	return errors.Is(err, errInvalidJSON)
}

func (s *Service) forward(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if !json.Valid(raw) {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: "response is not JSON"}
	}
	return raw, nil
}
