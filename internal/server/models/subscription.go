package models

import (
	"fmt"
	"time"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierPremium Tier = "PREMIUM"
)

// Rank orders tiers so a route can require "at least" a tier.
// Unknown tiers rank below FREE.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPremium:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether t satisfies a requirement of min.
func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank()
}

// ParseTier accepts the canonical tier names only.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierPremium:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// SubscriptionStatus mirrors the billing provider's view of the subscription.
type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "ACTIVE"
	StatusPastDue  SubscriptionStatus = "PAST_DUE"
	StatusCanceled SubscriptionStatus = "CANCELED"
)

// UnlimitedQuota as a QuotaLimit disables the ceiling; usage is still counted.
const UnlimitedQuota = -1

// Subscription is the per-account entitlement row.
type Subscription struct {
	AccountID             string
	Tier                  Tier
	Status                SubscriptionStatus
	QuotaLimit            int
	QuotaUsed             int
	ResetAt               time.Time
	BillingCustomerID     *string
	BillingSubscriptionID *string
	UpdatedAt             time.Time
}

// Unlimited reports whether the subscription has no quota ceiling.
func (s *Subscription) Unlimited() bool {
	return s.QuotaLimit < 0
}

// Remaining is the number of chargeable actions left this month,
// or -1 when unlimited.
func (s *Subscription) Remaining() int {
	if s.Unlimited() {
		return UnlimitedQuota
	}
	if s.QuotaUsed >= s.QuotaLimit {
		return 0
	}
	return s.QuotaLimit - s.QuotaUsed
}

// NextResetAt returns the first instant of the calendar month after t, in UTC.
func NextResetAt(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Entitlement is the caller-visible snapshot of a subscription.
type Entitlement struct {
	Tier    Tier               `json:"tier"`
	Status  SubscriptionStatus `json:"status"`
	Used    int                `json:"used"`
	Limit   int                `json:"limit"`
	ResetAt time.Time          `json:"reset_at"`
}

// EntitlementOf projects s into an Entitlement.
func EntitlementOf(s *Subscription) Entitlement {
	return Entitlement{
		Tier:    s.Tier,
		Status:  s.Status,
		Used:    s.QuotaUsed,
		Limit:   s.QuotaLimit,
		ResetAt: s.ResetAt,
	}
}
