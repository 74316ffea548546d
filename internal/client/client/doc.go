// Package client contains the CLI's transport to the stylist server and the
// bootstrap of its local state database.
//
// HTTPClient implements API over the JSON HTTP surface. Tokens live in a
// TokenStore; an authenticated call that gets 401 rotates the refresh token
// once and retries. Non-2xx responses become *APIError values that match
// ErrUnauthorized, ErrUpgradeRequired, ErrQuotaExceeded and ErrUnavailable
// with errors.Is.
//
// InitDatabase opens the SQLite state file and applies the embedded goose
// migrations.
package client
