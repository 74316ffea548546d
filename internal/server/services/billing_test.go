package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

func strPtr(s string) *string { return &s }

func TestBilling_ActivateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "a@example.com").Account.ID

	_, err := env.ledger.TryConsume(ctx, id, models.UsageTryOn, 3, nil)
	require.NoError(t, err)

	event := BillingEvent{
		Type:           EventSubscriptionActivated,
		AccountID:      id,
		Tier:           models.TierPremium,
		CustomerID:     strPtr("cus_1"),
		SubscriptionID: strPtr("sub_1"),
	}

	changed, err := env.billing.Apply(ctx, event)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = env.billing.Apply(ctx, event)
	require.NoError(t, err)
	assert.False(t, changed, "replay must be a no-op")

	ent, err := env.ledger.CurrentStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, ent.Tier)
	assert.Equal(t, models.StatusActive, ent.Status)
	assert.Equal(t, models.UnlimitedQuota, ent.Limit)
	assert.Equal(t, 3, ent.Used)
}

func TestBilling_PaymentFailedKeepsTier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "a@example.com").Account.ID

	_, err := env.billing.Apply(ctx, BillingEvent{Type: EventSubscriptionActivated, AccountID: id, Tier: models.TierPremium})
	require.NoError(t, err)

	changed, err := env.billing.Apply(ctx, BillingEvent{Type: EventPaymentFailed, AccountID: id})
	require.NoError(t, err)
	assert.True(t, changed)

	ent, err := env.ledger.CurrentStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, ent.Tier)
	assert.Equal(t, models.StatusPastDue, ent.Status)
}

func TestBilling_CancelDowngrades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "a@example.com").Account.ID

	_, err := env.billing.Apply(ctx, BillingEvent{Type: EventSubscriptionUpdated, AccountID: id, Tier: models.TierPremium})
	require.NoError(t, err)

	changed, err := env.billing.Apply(ctx, BillingEvent{Type: EventSubscriptionCanceled, AccountID: id})
	require.NoError(t, err)
	assert.True(t, changed)

	ent, err := env.ledger.CurrentStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, ent.Tier)
	assert.Equal(t, models.StatusCanceled, ent.Status)
	assert.Equal(t, env.cfg.FreeMonthlyQuota, ent.Limit)
}

func TestBilling_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "a@example.com").Account.ID

	tests := []struct {
		name  string
		event BillingEvent
		want  error
	}{
		{name: "no account", event: BillingEvent{Type: EventPaymentFailed}, want: common.ErrorValidation},
		{name: "unknown type", event: BillingEvent{Type: "invoice.paid", AccountID: id}, want: common.ErrorValidation},
		{name: "bad tier", event: BillingEvent{Type: EventSubscriptionActivated, AccountID: id, Tier: "GOLD"}, want: common.ErrorValidation},
		{name: "unknown account", event: BillingEvent{Type: EventPaymentFailed, AccountID: "missing"}, want: common.ErrorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.billing.Apply(ctx, tt.event)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBilling_PartialFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "a@example.com").Account.ID

	env.store.FailOn("subscriptions.SetStatus", assert.AnError)
	_, err := env.billing.Apply(ctx, BillingEvent{Type: EventSubscriptionActivated, AccountID: id, Tier: models.TierPremium})
	require.ErrorIs(t, err, common.ErrorStorage)

	ent, err := env.ledger.CurrentStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, ent.Tier)
}
