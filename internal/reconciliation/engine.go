package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"boohpay/config"
	"boohpay/internal/archive"
	"boohpay/internal/currency"
	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	notifyCritical    = "RECONCILIATION_CRITICAL"
	stuckPayoutAfter  = 24 * time.Hour
	defaultHistoryLen = 30
)

const (
	StatusSuccess = "SUCCESS"
	StatusPartial = "PARTIAL"
	StatusFailed  = "FAILED"
)

type Engine struct {
	payments  *repository.PaymentRepository
	payouts   *repository.PayoutRepository
	merchants *repository.MerchantRepository
	logs      *repository.ReconciliationRepository
	archiver  archive.Archiver
	notifier  sideeffect.Notifier
	loc       *time.Location
	log       *zap.Logger
	now       func() time.Time
}

func NewEngine(db *gorm.DB, archiver archive.Archiver, notifier sideeffect.Notifier, cfg config.ReconciliationConfig, log *zap.Logger) *Engine {
	log = log.Named("reconciliation")
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil || cfg.TimeZone == "" {
		if cfg.TimeZone != "" {
			log.Warn("unknown reconciliation time zone, using UTC", zap.String("tz", cfg.TimeZone), zap.Error(err))
		}
		loc = time.UTC
	}
	if archiver == nil {
		archiver = archive.Nop{}
	}
	if notifier == nil {
		notifier = sideeffect.NopNotifier{}
	}
	return &Engine{
		payments:  repository.NewPaymentRepository(db),
		payouts:   repository.NewPayoutRepository(db),
		merchants: repository.NewMerchantRepository(db),
		logs:      repository.NewReconciliationRepository(db),
		archiver:  archiver,
		notifier:  notifier,
		loc:       loc,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Location is the zone daily runs are computed in.
func (e *Engine) Location() *time.Location { return e.loc }

// ReconcileMerchant checks one merchant's activity in w and stores the run log.
func (e *Engine) ReconcileMerchant(ctx context.Context, merchantID string, w repository.Window) (*Result, error) {
	started := e.now()
	res := &Result{
		RunID:      fmt.Sprintf("recon-%s-%d", merchantID, started.UnixMilli()),
		StartedAt:  started,
		MerchantID: merchantID,
		Balances:   []Balance{},
		Issues:     []Issue{},
	}

	payments, err := e.payments.ListInWindow(ctx, merchantID, w)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	payouts, err := e.payouts.ListInWindow(ctx, merchantID, w)
	if err != nil {
		return nil, fmt.Errorf("load payouts: %w", err)
	}

	e.checkPayments(res, payments)
	e.checkPayouts(res, payouts, started)
	if err := e.checkBalances(ctx, res); err != nil {
		return nil, err
	}
	checkDuplicates(res, payments, payouts)
	if err := e.checkOrphans(ctx, res, w); err != nil {
		return nil, err
	}

	res.CompletedAt = e.now()
	if err := e.store(ctx, res); err != nil {
		return nil, err
	}
	e.log.Info("merchant reconciled",
		zap.String("run_id", res.RunID),
		zap.String("merchant_id", merchantID),
		zap.Int("payments", res.Payments.Total),
		zap.Int("payouts", res.Payouts.Total),
		zap.Int("issues", len(res.Issues)))
	return res, nil
}

func (e *Engine) checkPayments(res *Result, payments []models.Payment) {
	for i := range payments {
		p := &payments[i]
		res.Payments.Total++
		succeeded := p.Status == string(domain.PaymentSucceeded)
		if p.ProviderReference == "" {
			if succeeded {
				res.Payments.Discrepancies++
				res.Issues = append(res.Issues, Issue{
					Type:        PaymentMismatch,
					Severity:    SeverityHigh,
					EntityType:  EntityPayment,
					EntityID:    p.ID,
					Description: "payment marked SUCCEEDED without a provider reference",
					Currency:    p.Currency,
				})
			} else {
				res.Payments.Unmatched++
			}
			continue
		}
		if succeeded && !hasSuccessEvent(p.Events) {
			res.Payments.Discrepancies++
			res.Issues = append(res.Issues, Issue{
				Type:          PaymentMismatch,
				Severity:      SeverityMedium,
				EntityType:    EntityPayment,
				EntityID:      p.ID,
				Description:   "payment marked SUCCEEDED but no success event was recorded",
				ExpectedValue: domain.EventPaymentSucceeded,
				Currency:      p.Currency,
			})
		}
		res.Payments.Matched++
	}
}

func hasSuccessEvent(events []models.PaymentEvent) bool {
	for _, ev := range events {
		if ev.Type == domain.EventPaymentSucceeded || ev.Type == "payment.succeeded" {
			return true
		}
	}
	return false
}

func (e *Engine) checkPayouts(res *Result, payouts []models.Payout, now time.Time) {
	for i := range payouts {
		p := &payouts[i]
		res.Payouts.Total++
		switch domain.PayoutStatus(p.Status) {
		case domain.PayoutSucceeded:
			if p.ProviderReference == "" {
				res.Issues = append(res.Issues, Issue{
					Type:        PayoutMismatch,
					Severity:    SeverityHigh,
					EntityType:  EntityPayout,
					EntityID:    p.ID,
					Description: "payout marked SUCCEEDED without a provider reference",
					Currency:    p.Currency,
				})
			}
			res.Payouts.Matched++
		case domain.PayoutPending, domain.PayoutProcessing:
			res.Payouts.Pending++
			if age := now.Sub(p.CreatedAt); age > stuckPayoutAfter {
				res.Issues = append(res.Issues, Issue{
					Type:        PayoutMismatch,
					Severity:    SeverityMedium,
					EntityType:  EntityPayout,
					EntityID:    p.ID,
					Description: fmt.Sprintf("payout stuck in %s for %s", p.Status, age.Truncate(time.Hour)),
					Currency:    p.Currency,
					Metadata:    map[string]any{"createdAt": p.CreatedAt},
				})
			}
		case domain.PayoutFailed:
			res.Payouts.Failed++
		}
	}
}

// checkBalances compares settled inflows minus settled outflows with the stored ledger balance.
func (e *Engine) checkBalances(ctx context.Context, res *Result) error {
	in, err := e.payments.SucceededTotals(ctx, res.MerchantID)
	if err != nil {
		return fmt.Errorf("payment totals: %w", err)
	}
	out, err := e.payouts.SucceededTotals(ctx, res.MerchantID)
	if err != nil {
		return fmt.Errorf("payout totals: %w", err)
	}
	stored, err := e.merchants.Balances(ctx, res.MerchantID)
	if err != nil {
		return fmt.Errorf("merchant balances: %w", err)
	}

	codes := map[string]struct{}{}
	for _, m := range []map[string]int64{in, out, stored} {
		for c := range m {
			codes[c] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(codes))
	for c := range codes {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	for _, code := range sorted {
		expected := in[code] - out[code]
		actual, ok := stored[code]
		if !ok {
			actual = expected
		}
		b := Balance{ExpectedBalance: expected, ActualBalance: actual, Discrepancy: actual - expected, Currency: code}
		res.Balances = append(res.Balances, b)

		drift := b.Discrepancy
		if drift < 0 {
			drift = -drift
		}
		limit := currency.BalanceThreshold(code)
		if drift <= limit {
			continue
		}
		sev := SeverityHigh
		if drift > 10*limit {
			sev = SeverityCritical
		}
		res.Issues = append(res.Issues, Issue{
			Type:          BalanceDiscrepancy,
			Severity:      sev,
			EntityType:    EntityPayment,
			EntityID:      res.MerchantID,
			Description:   fmt.Sprintf("%s balance is off by %d", code, b.Discrepancy),
			ExpectedValue: expected,
			ActualValue:   actual,
			Currency:      code,
		})
	}
	return nil
}

func checkDuplicates(res *Result, payments []models.Payment, payouts []models.Payout) {
	byOrder := map[string][]string{}
	var orders []string
	for _, p := range payments {
		if _, seen := byOrder[p.OrderID]; !seen {
			orders = append(orders, p.OrderID)
		}
		byOrder[p.OrderID] = append(byOrder[p.OrderID], p.ID)
	}
	for _, order := range orders {
		ids := byOrder[order]
		if len(ids) < 2 {
			continue
		}
		res.Issues = append(res.Issues, Issue{
			Type:        Duplicate,
			Severity:    SeverityMedium,
			EntityType:  EntityPayment,
			EntityID:    ids[0],
			Description: fmt.Sprintf("%d payments share order %s", len(ids), order),
			Metadata:    map[string]any{"orderId": order, "allIds": ids},
		})
	}

	byRef := map[string][]string{}
	var refs []string
	for _, p := range payouts {
		if p.ExternalReference == nil || strings.TrimSpace(*p.ExternalReference) == "" {
			continue
		}
		ref := *p.ExternalReference
		if _, seen := byRef[ref]; !seen {
			refs = append(refs, ref)
		}
		byRef[ref] = append(byRef[ref], p.ID)
	}
	for _, ref := range refs {
		ids := byRef[ref]
		if len(ids) < 2 {
			continue
		}
		res.Issues = append(res.Issues, Issue{
			Type:        Duplicate,
			Severity:    SeverityMedium,
			EntityType:  EntityPayout,
			EntityID:    ids[0],
			Description: fmt.Sprintf("%d payouts share external reference %s", len(ids), ref),
			Metadata:    map[string]any{"externalReference": ref, "allIds": ids},
		})
	}
}

func (e *Engine) checkOrphans(ctx context.Context, res *Result, w repository.Window) error {
	events, err := e.payments.OrphanEvents(ctx, w)
	if err != nil {
		return fmt.Errorf("orphan events: %w", err)
	}
	for _, ev := range events {
		res.Issues = append(res.Issues, Issue{
			Type:        OrphanTransaction,
			Severity:    SeverityMedium,
			EntityType:  EntityPayment,
			EntityID:    ev.PaymentID,
			Description: fmt.Sprintf("event %s references a missing payment", ev.Type),
			Metadata:    map[string]any{"eventId": ev.ID, "eventType": ev.Type},
		})
	}
	return nil
}

func (e *Engine) store(ctx context.Context, res *Result) error {
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := e.logs.SaveLog(ctx, &models.ReconciliationLog{
		RunID:       res.RunID,
		MerchantID:  res.MerchantID,
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
		Result:      body,
		IssuesCount: len(res.Issues),
	}); err != nil {
		return fmt.Errorf("save run log: %w", err)
	}

	// A failed upload leaves the run in the database only.
	url, err := e.archiver.Archive(ctx, fmt.Sprintf("%s/%s.json", res.MerchantID, res.RunID), body)
	if err != nil {
		e.log.Warn("archive upload failed", zap.String("run_id", res.RunID), zap.Error(err))
		return nil
	}
	if url != "" {
		res.ArchiveURL = url
		if err := e.logs.SetArchiveURL(ctx, res.RunID, url); err != nil {
			e.log.Warn("store archive url failed", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	return nil
}

// Trigger reconciles a merchant over the trailing period, 24 hours by default.
func (e *Engine) Trigger(ctx context.Context, merchantID string, period time.Duration) (*Result, error) {
	if period <= 0 {
		period = 24 * time.Hour
	}
	end := e.now()
	return e.ReconcileMerchant(ctx, merchantID, repository.Window{Start: end.Add(-period), End: end})
}

// DayWindow returns the local calendar day containing t as a half-open UTC window.
func (e *Engine) DayWindow(t time.Time) repository.Window {
	local := t.In(e.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	return repository.Window{Start: start.UTC(), End: start.AddDate(0, 0, 1).UTC()}
}

// RunDaily reconciles every merchant active yesterday and upserts the daily summary.
func (e *Engine) RunDaily(ctx context.Context) (*models.ReconciliationSummary, error) {
	w := e.DayWindow(e.now().In(e.loc).AddDate(0, 0, -1))
	date := w.Start.In(e.loc).Format("2006-01-02")
	log := e.log.With(zap.String("date", date))

	merchants, err := e.payments.MerchantsInWindow(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("list merchants: %w", err)
	}
	sum := &models.ReconciliationSummary{Date: date}
	failed := 0
	for _, id := range merchants {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res, err := e.ReconcileMerchant(ctx, id, w)
		if err != nil {
			failed++
			log.Error("merchant reconciliation failed", zap.String("merchant_id", id), zap.Error(err))
			continue
		}
		sum.MerchantsProcessed++
		sum.TotalPayments += res.Payments.Total
		sum.TotalPayouts += res.Payouts.Total
		sum.TotalVolume += res.ExpectedVolume()
		sum.IssuesCount += len(res.Issues)
		if res.HasCritical() {
			r := e.notifier.Notify(ctx, id, notifyCritical, "Reconciliation alert",
				fmt.Sprintf("Reconciliation for %s found critical issues", date),
				map[string]any{"run_id": res.RunID, "date": date, "issues": len(res.Issues)})
			sideeffect.Log(log, res.RunID, r)
		}
	}

	switch {
	case failed == 0:
		sum.Status = StatusSuccess
	case sum.MerchantsProcessed > 0:
		sum.Status = StatusPartial
	default:
		sum.Status = StatusFailed
	}
	if err := e.logs.SaveSummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	log.Info("daily reconciliation finished",
		zap.Int("merchants", sum.MerchantsProcessed),
		zap.Int("failed", failed),
		zap.Int("issues", sum.IssuesCount),
		zap.String("status", sum.Status))
	return sum, nil
}

// History returns recent run results, newest first.
func (e *Engine) History(ctx context.Context, merchantID string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultHistoryLen
	}
	logs, err := e.logs.History(ctx, merchantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(logs))
	for _, l := range logs {
		var r Result
		if err := json.Unmarshal(l.Result, &r); err != nil {
			e.log.Warn("skip unreadable run log", zap.String("run_id", l.RunID), zap.Error(err))
			continue
		}
		if l.ArchiveURL != "" {
			r.ArchiveURL = l.ArchiveURL
		}
		out = append(out, r)
	}
	return out, nil
}

// Summary returns the stored daily summary for date (YYYY-MM-DD).
func (e *Engine) Summary(ctx context.Context, date string) (*models.ReconciliationSummary, error) {
	return e.logs.GetSummary(ctx, date)
}
