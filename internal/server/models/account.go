// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a registered or guest identity. PasswordHash is nil for guests.
type Account struct {
	ID           string
	Email        *string
	PasswordHash []byte
	DisplayName  string
	CreatedAt    time.Time
}

// IsGuest reports whether the account has no password credential.
func (a *Account) IsGuest() bool {
	return len(a.PasswordHash) == 0
}
