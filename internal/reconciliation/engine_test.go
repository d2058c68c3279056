package reconciliation

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"boohpay/config"
	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"
	"boohpay/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type memArchive struct {
	keys []string
	err  error
}

func (a *memArchive) Archive(_ context.Context, key string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return "https://archive.test/" + key, nil
}

type notifications struct {
	merchants []string
}

func (n *notifications) Notify(_ context.Context, merchantID, kind, _, _ string, _ map[string]any) sideeffect.Result {
	if kind == notifyCritical {
		n.merchants = append(n.merchants, merchantID)
	}
	return sideeffect.OK("notification")
}

type harness struct {
	db     *gorm.DB
	engine *Engine
	arch   *memArchive
	notes  *notifications
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	h := &harness{db: db, arch: &memArchive{}, notes: &notifications{}}
	h.engine = NewEngine(db, h.arch, h.notes, config.ReconciliationConfig{TimeZone: "Europe/Paris"}, zap.NewNop())
	h.now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	h.engine.now = func() time.Time { return h.now }
	return h
}

func (h *harness) payment(t *testing.T, merchant, order string, amount int64, status domain.PaymentStatus, ref string, at time.Time, events ...string) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:                uuid.NewString(),
		MerchantID:        merchant,
		OrderID:           order,
		AmountMinor:       amount,
		Currency:          "EUR",
		PaymentMethod:     domain.MethodCard,
		GatewayUsed:       string(domain.GatewayStripe),
		Status:            string(status),
		ProviderReference: ref,
		CreatedAt:         at,
	}
	for _, typ := range events {
		p.Events = append(p.Events, models.PaymentEvent{ID: uuid.NewString(), Type: typ, OccurredAt: at})
	}
	require.NoError(t, h.db.Create(p).Error)
	return p
}

func (h *harness) payout(t *testing.T, merchant string, amount int64, status domain.PayoutStatus, ref, external string, at time.Time) *models.Payout {
	t.Helper()
	p := &models.Payout{
		ID:                uuid.NewString(),
		MerchantID:        merchant,
		Provider:          string(domain.GatewayShap),
		Status:            string(status),
		PaymentSystem:     "airtelmoney",
		PayoutType:        "WITHDRAWAL",
		AmountMinor:       amount,
		Currency:          "EUR",
		MSISDN:            "24107000000",
		ProviderReference: ref,
		CreatedAt:         at,
	}
	if external != "" {
		p.ExternalReference = &external
	}
	require.NoError(t, h.db.Create(p).Error)
	return p
}

func (h *harness) window() repository.Window {
	return repository.Window{Start: h.now.Add(-24 * time.Hour), End: h.now}
}

func issuesOf(res *Result, typ IssueType) []Issue {
	var out []Issue
	for _, i := range res.Issues {
		if i.Type == typ {
			out = append(out, i)
		}
	}
	return out
}

func TestBalanceAfterPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := h.now.Add(-time.Hour)
	h.payment(t, "m1", "ORD-1", 10000, domain.PaymentSucceeded, "pi_1", at, domain.EventPaymentSucceeded)
	require.NoError(t, repository.NewMerchantRepository(h.db).SetBalance(ctx, "m1", "EUR", 10000))

	res, err := h.engine.ReconcileMerchant(ctx, "m1", h.window())
	require.NoError(t, err)
	require.Len(t, res.Balances, 1)
	assert.Equal(t, Balance{ExpectedBalance: 10000, ActualBalance: 10000, Currency: "EUR"}, res.Balances[0])
	assert.Empty(t, res.Issues)
	assert.Equal(t, PaymentStats{Total: 1, Matched: 1}, res.Payments)

	h.payout(t, "m1", 4000, domain.PayoutSucceeded, "shap_1", "", at)
	res, err = h.engine.ReconcileMerchant(ctx, "m1", h.window())
	require.NoError(t, err)
	assert.Equal(t, int64(6000), res.Balances[0].ExpectedBalance)
	assert.Equal(t, int64(4000), res.Balances[0].Discrepancy)
	bal := issuesOf(res, BalanceDiscrepancy)
	require.Len(t, bal, 1)
	assert.Equal(t, SeverityCritical, bal[0].Severity)
	assert.EqualValues(t, 6000, bal[0].ExpectedValue)

	require.NoError(t, repository.NewMerchantRepository(h.db).SetBalance(ctx, "m1", "EUR", 6050))
	res, err = h.engine.ReconcileMerchant(ctx, "m1", h.window())
	require.NoError(t, err)
	assert.Empty(t, issuesOf(res, BalanceDiscrepancy), "drift within threshold")
}

func TestDuplicateOrder(t *testing.T) {
	h := newHarness(t)
	at := h.now.Add(-time.Hour)
	a := h.payment(t, "m1", "ORD-1", 1000, domain.PaymentSucceeded, "pi_a", at, domain.EventPaymentSucceeded)
	b := h.payment(t, "m1", "ORD-1", 1000, domain.PaymentSucceeded, "pi_b", at.Add(time.Minute), domain.EventPaymentSucceeded)
	h.payment(t, "m1", "ORD-2", 1000, domain.PaymentPending, "pi_c", at)
	h.payout(t, "m1", 100, domain.PayoutSucceeded, "s1", "wd-1", at)
	h.payout(t, "m1", 100, domain.PayoutSucceeded, "s2", "wd-1", at)

	res, err := h.engine.ReconcileMerchant(context.Background(), "m1", h.window())
	require.NoError(t, err)
	dups := issuesOf(res, Duplicate)
	require.Len(t, dups, 2)
	assert.Equal(t, EntityPayment, dups[0].EntityType)
	assert.Equal(t, []string{a.ID, b.ID}, dups[0].Metadata["allIds"])
	assert.Equal(t, EntityPayout, dups[1].EntityType)
}

func TestPaymentAndPayoutRules(t *testing.T) {
	h := newHarness(t)
	at := h.now.Add(-2 * time.Hour)
	w := repository.Window{Start: h.now.Add(-72 * time.Hour), End: h.now}
	stuck := h.payout(t, "m1", 100, domain.PayoutProcessing, "", "", h.now.Add(-48*time.Hour))

	noRef := h.payment(t, "m1", "A", 1000, domain.PaymentSucceeded, "", at)
	h.payment(t, "m1", "B", 1000, domain.PaymentPending, "", at.Add(time.Minute))
	noEvent := h.payment(t, "m1", "C", 1000, domain.PaymentSucceeded, "pi_c", at.Add(2*time.Minute))
	h.payment(t, "m1", "D", 1000, domain.PaymentSucceeded, "pi_d", at.Add(3*time.Minute), "payment.succeeded")

	unreferenced := h.payout(t, "m1", 100, domain.PayoutSucceeded, "", "", at)
	h.payout(t, "m1", 100, domain.PayoutFailed, "", "", at.Add(time.Minute))
	h.payout(t, "m1", 100, domain.PayoutPending, "", "", at.Add(2*time.Minute))

	res, err := h.engine.ReconcileMerchant(context.Background(), "m1", w)
	require.NoError(t, err)
	assert.Equal(t, PaymentStats{Total: 4, Matched: 2, Unmatched: 1, Discrepancies: 2}, res.Payments)
	assert.Equal(t, PayoutStats{Total: 4, Matched: 1, Pending: 2, Failed: 1}, res.Payouts)

	pm := issuesOf(res, PaymentMismatch)
	require.Len(t, pm, 2)
	assert.Equal(t, noRef.ID, pm[0].EntityID)
	assert.Equal(t, SeverityHigh, pm[0].Severity)
	assert.Equal(t, noEvent.ID, pm[1].EntityID)
	assert.Equal(t, SeverityMedium, pm[1].Severity)

	po := issuesOf(res, PayoutMismatch)
	require.Len(t, po, 2)
	assert.Equal(t, stuck.ID, po[0].EntityID)
	assert.Equal(t, SeverityMedium, po[0].Severity)
	assert.Equal(t, unreferenced.ID, po[1].EntityID)
	assert.Equal(t, SeverityHigh, po[1].Severity)
}

func TestOrphanEvents(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Create(&models.PaymentEvent{
		ID: uuid.NewString(), PaymentID: "gone", Type: domain.EventPaymentInitiated, OccurredAt: h.now.Add(-time.Hour),
	}).Error)

	res, err := h.engine.ReconcileMerchant(context.Background(), "m1", h.window())
	require.NoError(t, err)
	orphans := issuesOf(res, OrphanTransaction)
	require.Len(t, orphans, 1)
	assert.Equal(t, "gone", orphans[0].EntityID)
}

func TestRunStoredAndArchived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.ReconcileMerchant(ctx, "m1", h.window())
	require.NoError(t, err)
	assert.Equal(t, "recon-m1-"+strconv.FormatInt(h.now.UnixMilli(), 10), res.RunID)
	assert.Equal(t, []string{"m1/" + res.RunID + ".json"}, h.arch.keys)

	history, err := h.engine.History(ctx, "m1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.RunID, history[0].RunID)
	assert.Equal(t, "https://archive.test/m1/"+res.RunID+".json", history[0].ArchiveURL)

	h.arch.err = errors.New("bucket unavailable")
	h.now = h.now.Add(time.Minute)
	res, err = h.engine.ReconcileMerchant(ctx, "m1", h.window())
	require.NoError(t, err, "archive failures do not fail the run")
	assert.Empty(t, res.ArchiveURL)

	history, err = h.engine.History(ctx, "m2", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunDaily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// 2026-03-10 09:00 UTC is 10:00 in Paris; yesterday runs from 2026-03-08 23:00 to 2026-03-09 23:00 UTC.
	yesterday := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	h.payment(t, "m1", "ORD-1", 5000, domain.PaymentSucceeded, "pi_1", yesterday, domain.EventPaymentSucceeded)
	h.payment(t, "m2", "ORD-9", 2000, domain.PaymentSucceeded, "pi_2", yesterday, domain.EventPaymentSucceeded)
	h.payment(t, "m3", "ORD-5", 700, domain.PaymentSucceeded, "pi_3", h.now.Add(-time.Hour), domain.EventPaymentSucceeded)
	require.NoError(t, repository.NewMerchantRepository(h.db).SetBalance(ctx, "m2", "EUR", 0))

	sum, err := h.engine.RunDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", sum.Date)
	assert.Equal(t, 2, sum.MerchantsProcessed)
	assert.Equal(t, 2, sum.TotalPayments)
	assert.Equal(t, int64(7000), sum.TotalVolume)
	assert.Equal(t, 1, sum.IssuesCount)
	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, []string{"m2"}, h.notes.merchants)

	stored, err := h.engine.Summary(ctx, "2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MerchantsProcessed)

	// A rerun for the same day replaces the summary.
	h.now = h.now.Add(time.Hour)
	_, err = h.engine.RunDaily(ctx)
	require.NoError(t, err)
	var n int64
	require.NoError(t, h.db.Model(&models.ReconciliationSummary{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestDayWindow(t *testing.T) {
	h := newHarness(t)
	w := h.engine.DayWindow(time.Date(2026, 7, 1, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 7, 1, 22, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 7, 2, 22, 0, 0, 0, time.UTC), w.End)
}
