// Package common defines shared constants and sentinel errors used across
// the server and the CLI client. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// ErrorStorage marks any persistence failure. It is surfaced to clients as
	// a generic server error.
	ErrorStorage = errors.New("storage error")

	// Auth errors (invalid, malformed or replayed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrRefreshTokenReused is returned when a structurally valid refresh token
	// has no matching record. All refresh tokens of the account are revoked
	// before it is returned.
	ErrRefreshTokenReused = fmt.Errorf("%w: refresh token reuse detected", ErrInvalidToken)
)
