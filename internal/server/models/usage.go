package models

import "time"

// UsageKind names a chargeable action.
type UsageKind string

const (
	UsageTryOn            UsageKind = "tryon"
	UsageOutfitGeneration UsageKind = "outfit_generation"
)

// UsageEvent is an append-only audit record of a charged action.
// Quota decisions never read it back.
type UsageEvent struct {
	ID        string
	AccountID string
	Kind      UsageKind
	Amount    int
	Metadata  map[string]string
	CreatedAt time.Time
}
