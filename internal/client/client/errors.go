package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrUpgradeRequired = errors.New("premium subscription required")
	ErrQuotaExceeded   = errors.New("monthly quota exceeded")
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status     int
	Code       string
	Message    string
	Details    map[string]any
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%d)", e.Code, e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Is lets callers match status classes with the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrUpgradeRequired:
		return e.Status == http.StatusForbidden
	case ErrQuotaExceeded:
		return e.Status == http.StatusPaymentRequired
	case ErrUnavailable:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}
