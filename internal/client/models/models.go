// Package models defines the data the stylist CLI exchanges with the server
// and keeps in its local state database.
package models

import "time"

// Tier is the subscription tier reported by the server.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierPremium Tier = "PREMIUM"
)

// UnlimitedQuota is the limit the server reports for unmetered tiers.
const UnlimitedQuota = -1

type Account struct {
	ID          string    `json:"id"`
	Email       *string   `json:"email,omitempty"`
	DisplayName string    `json:"display_name"`
	Guest       bool      `json:"guest"`
	CreatedAt   time.Time `json:"created_at"`
}

type Entitlement struct {
	Tier    Tier      `json:"tier"`
	Status  string    `json:"status"`
	Used    int       `json:"used"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns the units left this period, or -1 when unmetered.
func (e Entitlement) Remaining() int {
	if e.Limit == UnlimitedQuota {
		return UnlimitedQuota
	}
	return max(e.Limit-e.Used, 0)
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Session is returned by register, guest and login.
type Session struct {
	Account     Account     `json:"account"`
	Entitlement Entitlement `json:"entitlement"`
	Tokens      *TokenPair  `json:"tokens"`
}

// Profile is the body of GET /api/me.
type Profile struct {
	Account     Account     `json:"account"`
	Entitlement Entitlement `json:"entitlement"`
}

// TryOn is a finished try-on as returned by POST /api/tryon.
type TryOn struct {
	JobID       string       `json:"job_id"`
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ImageURL    string       `json:"image_url,omitempty"`
	ContentType string       `json:"content_type,omitempty"`
	ImageBase64 string       `json:"image_base64,omitempty"`
	Entitlement *Entitlement `json:"entitlement,omitempty"`
}

// HistoryEntry records a try-on run from this machine.
type HistoryEntry struct {
	JobID       string
	PersonPath  string
	GarmentPath string
	OutputPath  string
	Status      string
	CreatedAt   time.Time
}
