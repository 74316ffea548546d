package models

import "time"

// RefreshToken is the server-side record that keeps a refresh token usable.
// ID matches the jti claim of the signed token.
type RefreshToken struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
