package service

import (
	"context"
	"errors"
	"testing"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/queue"
	"boohpay/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func payoutInput(amount int64) CreatePayoutInput {
	return CreatePayoutInput{
		PaymentSystemName: "airtelmoney",
		PayeeMSISDN:       "+241 07 12 34 56",
		Amount:            amount,
		Currency:          "xaf",
	}
}

func payoutEvents(p *models.Payout) []string {
	return eventTypes(p.Events, func(e models.PayoutEvent) string { return e.Type })
}

func TestCreatePayoutQueuesJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	view, err := f.payouts.CreatePayout(ctx, "m1", payoutInput(5000))
	require.NoError(t, err)
	assert.Equal(t, string(domain.GatewayShap), view.Provider)
	assert.Equal(t, string(domain.PayoutPending), view.Status)
	assert.Equal(t, "24107123456", view.MSISDN)
	assert.Equal(t, "XAF", view.Currency)

	st, err := f.payouts.JobStatus(ctx, "m1", view.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobID(view.PayoutID), st.JobID)
	assert.Equal(t, models.JobWaiting, st.State)

	_, err = f.payouts.JobStatus(ctx, "m2", view.PayoutID)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestCreatePayoutProviderChoice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	in := payoutInput(5000)
	in.Metadata = map[string]any{"provider": "moneroo"}
	view, err := f.payouts.CreatePayout(ctx, "m1", in)
	require.NoError(t, err)
	assert.Equal(t, string(domain.GatewayMoneroo), view.Provider)

	in.Provider = "STRIPE"
	view, err = f.payouts.CreatePayout(ctx, "m1", in)
	require.NoError(t, err)
	assert.Equal(t, string(domain.GatewayStripe), view.Provider)

	in.Provider = "PAYPAL"
	_, err = f.payouts.CreatePayout(ctx, "m1", in)
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestPayoutProcessedByWorker(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	view, err := f.payouts.CreatePayout(ctx, "m1", payoutInput(5000))
	require.NoError(t, err)

	ran, err := f.workers.RunOnce(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ran)

	p := f.payout(t, view.PayoutID)
	assert.Equal(t, string(domain.PayoutSucceeded), p.Status)
	assert.Equal(t, "sbx_po_"+p.ID, p.ProviderReference)
	assert.Equal(t, []string{
		domain.EventPayoutInitiated,
		domain.EventPayoutProcessing,
		domain.EventPayoutProviderResponse,
	}, payoutEvents(p))
	assert.Contains(t, f.notifier.kinds, NotifyPayoutSucceeded)

	st, err := f.payouts.JobStatus(ctx, "m1", view.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, st.State)
	assert.Equal(t, 100, st.Progress)
}

func TestPayoutFinalFailure(t *testing.T) {
	m := &mockProvider{}
	m.On("CreatePayout", mock.Anything, mock.Anything).Return(nil, errors.New("shap api: status 503"))
	f := newFixture(t, map[domain.Gateway]any{domain.GatewayShap: m})
	ctx := context.Background()
	view, err := f.payouts.CreatePayout(ctx, "m1", payoutInput(5000))
	require.NoError(t, err)

	ran, err := f.workers.RunOnce(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ran)
	assert.Equal(t, string(domain.PayoutProcessing), f.payout(t, view.PayoutID).Status)

	// The retry is delayed by the backoff; make it due now.
	require.NoError(t, f.db.Model(&models.PayoutJob{}).Where("payout_id = ?", view.PayoutID).
		Update("run_at", f.payouts.now().Add(-1)).Error)
	ran, err = f.workers.RunOnce(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ran)

	p := f.payout(t, view.PayoutID)
	assert.Equal(t, string(domain.PayoutFailed), p.Status)
	assert.Equal(t, "SHAP payout: shap api: status 503", p.Metadata["error"])
	assert.EqualValues(t, 2, p.Metadata["totalAttempts"])
	assert.Contains(t, payoutEvents(p), domain.EventPayoutFailed)
	assert.Contains(t, f.notifier.kinds, NotifyPayoutFailed)
	m.AssertNumberOfCalls(t, "CreatePayout", 2)

	t.Run("operator retry requeues", func(t *testing.T) {
		m.ExpectedCalls = nil
		m.On("CreatePayout", mock.Anything, mock.Anything).Return(&payment.PayoutResult{
			ProviderReference: "shap_1", Status: domain.PayoutSucceeded,
		}, nil)
		st, err := f.payouts.RetryPayout(ctx, "m1", view.PayoutID)
		require.NoError(t, err)
		assert.Equal(t, models.JobWaiting, st.State)
		assert.Equal(t, string(domain.PayoutPending), f.payout(t, view.PayoutID).Status)
	})
}

func TestCancelPayout(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	view, err := f.payouts.CreatePayout(ctx, "m1", payoutInput(5000))
	require.NoError(t, err)

	cancelled, err := f.payouts.CancelPayout(ctx, "m1", view.PayoutID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PayoutFailed), cancelled.Status)
	assert.Contains(t, payoutEvents(f.payout(t, view.PayoutID)), domain.EventPayoutCancelled)

	ran, err := f.workers.RunOnce(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, ran)

	_, err = f.payouts.CancelPayout(ctx, "m1", view.PayoutID)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestApplyPayoutCallback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	in := payoutInput(5000)
	in.ExternalReference = "wd-42"
	view, err := f.payouts.CreatePayout(ctx, "m1", in)
	require.NoError(t, err)

	cb := PayoutCallback{
		Provider:          domain.GatewayShap,
		EventID:           "shap-evt-1",
		ExternalReference: "wd-42",
		ProviderReference: "shap-tx-9",
		Status:            domain.PayoutSucceeded,
		Payload:           map[string]any{"status": "success"},
	}
	applied, err := f.payouts.ApplyCallback(ctx, cb)
	require.NoError(t, err)
	assert.True(t, applied)
	p := f.payout(t, view.PayoutID)
	assert.Equal(t, string(domain.PayoutSucceeded), p.Status)
	assert.Equal(t, "shap-tx-9", p.ProviderReference)
	assert.Contains(t, payoutEvents(p), domain.PayoutStatusEvent(domain.PayoutSucceeded))

	applied, err = f.payouts.ApplyCallback(ctx, cb)
	require.NoError(t, err)
	assert.False(t, applied)

	late := cb
	late.EventID = "shap-evt-2"
	late.Status = domain.PayoutFailed
	applied, err = f.payouts.ApplyCallback(ctx, late)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, string(domain.PayoutSucceeded), f.payout(t, view.PayoutID).Status)

	// The queued job finds the payout already terminal and does not call the provider again.
	ran, err := f.workers.RunOnce(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ran)
	assert.Equal(t, []string{
		domain.EventPayoutInitiated,
		domain.EventPayoutCallback,
		domain.PayoutStatusEvent(domain.PayoutSucceeded),
		domain.EventPayoutCallback,
	}, payoutEvents(f.payout(t, view.PayoutID)))
}

func TestQueueControlsThroughService(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.payouts.CreatePayout(ctx, "m1", payoutInput(5000))
	require.NoError(t, err)

	require.NoError(t, f.payouts.PauseQueue(ctx))
	ran, err := f.workers.RunOnce(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, ran)

	stats, err := f.payouts.QueueStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Paused)
	assert.EqualValues(t, 1, stats.Waiting)

	require.NoError(t, f.payouts.ResumeQueue(ctx))
	ran, err = f.workers.RunOnce(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, ran)
}
