package service

import (
	"context"
	"fmt"
	"time"

	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const billingBatchSize = 100

// BillingService charges subscriptions whose billing date has come.
type BillingService struct {
	subs     *repository.SubscriptionRepository
	payments *PaymentService
	log      *zap.Logger
	now      func() time.Time
}

func NewBillingService(db *gorm.DB, payments *PaymentService, log *zap.Logger) *BillingService {
	return &BillingService{
		subs:     repository.NewSubscriptionRepository(db),
		payments: payments,
		log:      log.Named("billing"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type BillingReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProcessBilling bills one batch of due subscriptions. A failing subscription does not stop the batch.
func (s *BillingService) ProcessBilling(ctx context.Context) (BillingReport, error) {
	var rep BillingReport
	due, err := s.subs.DueForBilling(ctx, s.now(), billingBatchSize)
	if err != nil {
		return rep, fmt.Errorf("load due subscriptions: %w", err)
	}
	for i := range due {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if s.awaitingDunning(ctx, &due[i]) {
			continue
		}
		rep.Processed++
		view, err := s.BillSubscription(ctx, &due[i])
		switch {
		case err != nil:
			rep.Failed++
			s.log.Warn("subscription billing failed", zap.String("subscription_id", due[i].ID), zap.Error(err))
		case view.Status == string(domain.PaymentSucceeded):
			rep.Succeeded++
		default:
			rep.Failed++
		}
	}
	if rep.Processed > 0 {
		s.log.Info("billing run finished", zap.Int("processed", rep.Processed),
			zap.Int("succeeded", rep.Succeeded), zap.Int("failed", rep.Failed))
	}
	return rep, nil
}

// awaitingDunning reports whether the current cycle was already charged without success. Such
// subscriptions are left to the dunning run.
func (s *BillingService) awaitingDunning(ctx context.Context, sub *models.Subscription) bool {
	last, err := s.payments.payments.LatestForSubscription(ctx, sub.ID, sub.NextBillingDate)
	if err != nil {
		return false
	}
	return last.Status != string(domain.PaymentSucceeded)
}

// BillSubscription charges one cycle. On success the billing dates advance; otherwise the payment
// stays FAILED or PENDING for dunning. A provider refusal is stored as a FAILED payment and returned as an error.
func (s *BillingService) BillSubscription(ctx context.Context, sub *models.Subscription) (*PaymentView, error) {
	now := s.now()
	method := sub.PaymentMethod
	if method == "" {
		method = domain.MethodCard
	}
	country := sub.CountryCode
	if country == "" {
		country = "XX"
	}
	in := CreatePaymentInput{
		OrderID:       fmt.Sprintf("sub_%s_%d", sub.ID, now.UnixMilli()),
		Amount:        sub.AmountMinor,
		Currency:      sub.Currency,
		CountryCode:   country,
		PaymentMethod: method,
		Customer:      &CustomerInput{Email: sub.CustomerEmail, Phone: sub.CustomerPhone},
		Metadata: map[string]any{
			"subscriptionId":           sub.ID,
			"subscriptionBillingCycle": sub.BillingCycle,
			"isTestMode":               sub.IsTestMode,
		},
		SubscriptionID: sub.ID,
	}
	view, err := s.payments.CreatePayment(ctx, sub.MerchantID, in)
	if err != nil {
		if _, ferr := s.payments.recordFailedCharge(ctx, sub.MerchantID, in, err); ferr != nil {
			s.log.Error("record failed charge", zap.String("subscription_id", sub.ID), zap.Error(ferr))
		}
		return nil, err
	}
	if view.Status == string(domain.PaymentSucceeded) {
		if err := s.subs.Update(ctx, sub.ID, map[string]any{
			"last_billing_date": now,
			"next_billing_date": NextBillingDate(sub.NextBillingDate, sub.BillingCycle),
		}); err != nil {
			return view, fmt.Errorf("advance billing date: %w", err)
		}
	}
	return view, nil
}
