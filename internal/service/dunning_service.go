package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MaxDunningAttempts = 5
	dunningLookback    = 90 * 24 * time.Hour
)

// dunningBackoffDays is the wait before each retry; the last value repeats.
var dunningBackoffDays = []int{1, 3, 7, 14, 30}

func dunningBackoff(attempt int) time.Duration {
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(dunningBackoffDays) {
		i = len(dunningBackoffDays) - 1
	}
	return time.Duration(dunningBackoffDays[i]) * 24 * time.Hour
}

// DunningService retries failed subscription charges and cancels subscriptions that keep failing.
type DunningService struct {
	subs    *repository.SubscriptionRepository
	billing *BillingService
	deps    Deps
	log     *zap.Logger
	now     func() time.Time
}

func NewDunningService(db *gorm.DB, billing *BillingService, deps Deps, log *zap.Logger) *DunningService {
	log = log.Named("dunning")
	return &DunningService{
		subs:    repository.NewSubscriptionRepository(db),
		billing: billing,
		deps:    deps.withDefaults(log),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type DunningReport struct {
	Checked   int `json:"checked"`
	Retried   int `json:"retried"`
	Recovered int `json:"recovered"`
	Cancelled int `json:"cancelled"`
}

// ProcessDunning runs one dunning pass over subscriptions with recent failed charges.
func (s *DunningService) ProcessDunning(ctx context.Context) (DunningReport, error) {
	var rep DunningReport
	now := s.now()
	subs, err := s.subs.WithFailedPaymentsSince(ctx, now.Add(-dunningLookback))
	if err != nil {
		return rep, fmt.Errorf("load failing subscriptions: %w", err)
	}
	for i := range subs {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++
		outcome, err := s.processSubscription(ctx, &subs[i], now)
		if err != nil {
			s.log.Error("dunning step failed", zap.String("subscription_id", subs[i].ID), zap.Error(err))
			continue
		}
		switch outcome {
		case dunningRetried:
			rep.Retried++
		case dunningRecovered:
			rep.Retried++
			rep.Recovered++
		case dunningCancelled:
			rep.Cancelled++
		}
	}
	if rep.Checked > 0 {
		s.log.Info("dunning run finished", zap.Int("checked", rep.Checked), zap.Int("retried", rep.Retried),
			zap.Int("recovered", rep.Recovered), zap.Int("cancelled", rep.Cancelled))
	}
	return rep, nil
}

type dunningOutcome int

const (
	dunningSkipped dunningOutcome = iota
	dunningRetried
	dunningRecovered
	dunningCancelled
)

func (s *DunningService) processSubscription(ctx context.Context, sub *models.Subscription, now time.Time) (dunningOutcome, error) {
	failed, err := s.subs.LastFailedPayment(ctx, sub.ID, now.Add(-dunningLookback))
	if err != nil {
		return dunningSkipped, err
	}
	last, err := s.subs.LastAttempt(ctx, sub.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return dunningSkipped, err
	}

	number := 1
	if last != nil {
		switch {
		case last.Status == domain.DunningSucceeded && !failed.CreatedAt.After(last.CreatedAt):
			return dunningSkipped, nil
		case last.Status == domain.DunningSucceeded:
			// A new cycle failed after an earlier recovery.
			number = 1
		default:
			if last.NextRetryAt != nil && last.NextRetryAt.After(now) {
				return dunningSkipped, nil
			}
			number = last.AttemptNumber + 1
		}
	}

	if number > MaxDunningAttempts {
		return dunningCancelled, s.cancel(ctx, sub, last, now)
	}

	if last != nil && last.Status == domain.DunningPending {
		if err := s.subs.UpdateAttempt(ctx, last.ID, map[string]any{"status": domain.DunningFailed}); err != nil {
			return dunningSkipped, err
		}
	}
	next := now.Add(dunningBackoff(number))
	attempt := &models.DunningAttempt{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		PaymentID:      failed.ID,
		AttemptNumber:  number,
		Status:         domain.DunningPending,
		NextRetryAt:    &next,
	}
	if err := s.subs.CreateAttempt(ctx, attempt); err != nil {
		return dunningSkipped, err
	}
	res := s.deps.Notifier.Notify(ctx, sub.MerchantID, NotifyDunningRetry, "Subscription payment retry",
		fmt.Sprintf("Retrying the failed charge for %s (attempt %d of %d)", sub.CustomerEmail, number, MaxDunningAttempts),
		map[string]any{"subscription_id": sub.ID, "customer_email": sub.CustomerEmail, "attempt": number, "next_retry_at": next})
	sideeffect.Log(s.log, sub.ID, res)

	view, err := s.billing.BillSubscription(ctx, sub)
	if err != nil {
		s.log.Warn("dunning charge failed", zap.String("subscription_id", sub.ID), zap.Int("attempt", number), zap.Error(err))
		return dunningRetried, nil
	}
	if view.Status != string(domain.PaymentSucceeded) {
		return dunningRetried, nil
	}
	if err := s.subs.UpdateAttempt(ctx, attempt.ID, map[string]any{"status": domain.DunningSucceeded, "payment_id": view.PaymentID}); err != nil {
		return dunningRetried, err
	}
	return dunningRecovered, nil
}

func (s *DunningService) cancel(ctx context.Context, sub *models.Subscription, last *models.DunningAttempt, now time.Time) error {
	if last != nil && last.Status == domain.DunningPending {
		if err := s.subs.UpdateAttempt(ctx, last.ID, map[string]any{"status": domain.DunningFailed}); err != nil {
			return err
		}
	}
	if err := s.subs.Update(ctx, sub.ID, map[string]any{
		"status":       string(domain.SubscriptionCancelled),
		"cancelled_at": now,
	}); err != nil {
		return err
	}
	s.log.Warn("subscription cancelled after failed dunning", zap.String("subscription_id", sub.ID))
	res := s.deps.Notifier.Notify(ctx, sub.MerchantID, NotifySubscriptionEnded, "Subscription cancelled",
		fmt.Sprintf("Subscription for %s was cancelled after %d failed payment attempts", sub.CustomerEmail, MaxDunningAttempts),
		map[string]any{"subscription_id": sub.ID})
	sideeffect.Log(s.log, sub.ID, res)
	return nil
}
