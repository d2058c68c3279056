package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func monthly(amount int64) CreateSubscriptionInput {
	return CreateSubscriptionInput{
		CustomerEmail: "sub@example.com",
		Amount:        amount,
		Currency:      "EUR",
		CountryCode:   "FR",
		BillingCycle:  "MONTHLY",
	}
}

func (f *fixture) subscription(t *testing.T, id string) *models.Subscription {
	t.Helper()
	var s models.Subscription
	require.NoError(t, f.db.First(&s, "id = ?", id).Error)
	return &s
}

func TestNextBillingDate(t *testing.T) {
	base := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, base.AddDate(0, 0, 1), NextBillingDate(base, domain.CycleDaily))
	assert.Equal(t, base.AddDate(0, 0, 7), NextBillingDate(base, domain.CycleWeekly))
	assert.Equal(t, base.AddDate(0, 1, 0), NextBillingDate(base, domain.CycleMonthly))
	assert.Equal(t, base.AddDate(0, 3, 0), NextBillingDate(base, domain.CycleQuarterly))
	assert.Equal(t, base.AddDate(1, 0, 0), NextBillingDate(base, domain.CycleYearly))
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sub, err := f.subs.Create(ctx, "m1", monthly(1000))
	require.NoError(t, err)
	assert.Equal(t, string(domain.SubscriptionActive), sub.Status)

	paused, err := f.subs.Pause(ctx, "m1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.SubscriptionPaused), paused.Status)

	_, err = f.subs.Pause(ctx, "m1", sub.ID)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	resumed, err := f.subs.Resume(ctx, "m1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.SubscriptionActive), resumed.Status)

	cancelled, err := f.subs.Cancel(ctx, "m1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.SubscriptionCancelled), cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = f.subs.Resume(ctx, "m1", sub.ID)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	_, err = f.subs.Get(ctx, "m2", sub.ID)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestProcessBillingAdvancesCycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sub, err := f.subs.Create(ctx, "m1", monthly(1000))
	require.NoError(t, err)
	before := f.subscription(t, sub.ID).NextBillingDate

	rep, err := f.billing.ProcessBilling(ctx)
	require.NoError(t, err)
	assert.Equal(t, BillingReport{Processed: 1, Succeeded: 1}, rep)

	after := f.subscription(t, sub.ID)
	assert.True(t, after.NextBillingDate.Equal(before.AddDate(0, 1, 0)))
	require.NotNil(t, after.LastBillingDate)

	var p models.Payment
	require.NoError(t, f.db.First(&p, "subscription_id = ?", sub.ID).Error)
	assert.Equal(t, string(domain.PaymentSucceeded), p.Status)
	assert.Equal(t, sub.ID, p.Metadata["subscriptionId"])
	assert.Equal(t, "MONTHLY", p.Metadata["subscriptionBillingCycle"])
	assert.Equal(t, domain.MethodCard, p.PaymentMethod)

	rep, err = f.billing.ProcessBilling(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
}

func TestBillingProviderErrorRecordsFailedPayment(t *testing.T) {
	m := &mockProvider{}
	m.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, errors.New("card network down"))
	f := newFixture(t, map[domain.Gateway]any{domain.GatewayStripe: m})
	ctx := context.Background()
	sub, err := f.subs.Create(ctx, "m1", monthly(1000))
	require.NoError(t, err)

	rep, err := f.billing.ProcessBilling(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)

	var p models.Payment
	require.NoError(t, f.db.Preload("Events").First(&p, "subscription_id = ?", sub.ID).Error)
	assert.Equal(t, string(domain.PaymentFailed), p.Status)
	require.Len(t, p.Events, 1)
	assert.Equal(t, domain.EventPaymentFailed, p.Events[0].Type)

	// The failed cycle now belongs to dunning, not to the next billing run.
	rep, err = f.billing.ProcessBilling(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
}

func TestDunningCancelsAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sub, err := f.subs.Create(ctx, "m1", monthly(1099))
	require.NoError(t, err)
	_, err = f.billing.ProcessBilling(ctx)
	require.NoError(t, err)

	clock := time.Now().UTC()
	f.dunning.now = func() time.Time { return clock }

	rep, err := f.dunning.ProcessDunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Retried)

	rep, err = f.dunning.ProcessDunning(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Retried, "next retry is not due yet")

	for i := 2; i <= MaxDunningAttempts; i++ {
		clock = clock.Add(dunningBackoff(i-1) + time.Hour)
		rep, err = f.dunning.ProcessDunning(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, rep.Retried, "attempt %d", i)
	}
	clock = clock.Add(dunningBackoff(MaxDunningAttempts) + time.Hour)
	rep, err = f.dunning.ProcessDunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Cancelled)

	s := f.subscription(t, sub.ID)
	assert.Equal(t, string(domain.SubscriptionCancelled), s.Status)
	assert.NotNil(t, s.CancelledAt)
	assert.Contains(t, f.notifier.kinds, NotifySubscriptionEnded)

	attempts, err := f.subs.Attempts(ctx, "m1", sub.ID)
	require.NoError(t, err)
	require.Len(t, attempts, MaxDunningAttempts)
	for _, a := range attempts {
		assert.Equal(t, domain.DunningFailed, a.Status)
	}

	rep, err = f.dunning.ProcessDunning(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Checked)
}

func TestDunningRecoversSubscription(t *testing.T) {
	m := &mockProvider{}
	m.On("CreatePayment", mock.Anything, mock.Anything).Return(&payment.PaymentResult{
		ProviderReference: "pi_fail", Status: domain.PaymentFailed,
	}, nil).Once()
	m.On("CreatePayment", mock.Anything, mock.Anything).Return(&payment.PaymentResult{
		ProviderReference: "pi_ok", Status: domain.PaymentSucceeded,
	}, nil).Once()
	f := newFixture(t, map[domain.Gateway]any{domain.GatewayStripe: m})
	ctx := context.Background()
	sub, err := f.subs.Create(ctx, "m1", monthly(1000))
	require.NoError(t, err)
	before := f.subscription(t, sub.ID).NextBillingDate

	_, err = f.billing.ProcessBilling(ctx)
	require.NoError(t, err)

	rep, err := f.dunning.ProcessDunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, DunningReport{Checked: 1, Retried: 1, Recovered: 1}, rep)

	attempts, err := f.subs.Attempts(ctx, "m1", sub.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.DunningSucceeded, attempts[0].Status)
	assert.True(t, f.subscription(t, sub.ID).NextBillingDate.Equal(before.AddDate(0, 1, 0)))

	rep, err = f.dunning.ProcessDunning(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Retried)
	m.AssertExpectations(t)
}
