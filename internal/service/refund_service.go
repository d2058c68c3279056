package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/gateway"
	"boohpay/internal/models"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"
	"boohpay/pkg/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateRefundInput struct {
	Amount   *int64         `json:"amount" binding:"omitempty,gt=0"`
	Reason   string         `json:"reason" binding:"omitempty,max=255"`
	Metadata map[string]any `json:"metadata"`
}

// RefundService refunds settled payments through the provider that took them.
type RefundService struct {
	db       *gorm.DB
	payments *repository.PaymentRepository
	refunds  *repository.RefundRepository
	registry *gateway.Registry
	deps     Deps
	log      *zap.Logger
	now      func() time.Time
}

func NewRefundService(db *gorm.DB, registry *gateway.Registry, deps Deps, log *zap.Logger) *RefundService {
	log = log.Named("refunds")
	return &RefundService{
		db:       db,
		payments: repository.NewPaymentRepository(db),
		refunds:  repository.NewRefundRepository(db),
		registry: registry,
		deps:     deps.withDefaults(log),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRefund validates the refundable amount, records a PENDING refund and calls the provider.
// A provider failure leaves the refund FAILED; nothing is rolled back.
func (s *RefundService) CreateRefund(ctx context.Context, merchantID, paymentID string, in CreateRefundInput) (*RefundView, error) {
	p, err := s.payments.GetForMerchant(ctx, merchantID, paymentID)
	if err != nil {
		return nil, notFound(err, "Payment")
	}
	status := domain.PaymentStatus(p.Status)
	if status != domain.PaymentSucceeded && status != domain.PaymentAuthorized {
		return nil, apperr.ValidationErr(fmt.Sprintf("Payment in status %s cannot be refunded", p.Status), nil)
	}
	if p.ProviderReference == "" {
		return nil, apperr.ValidationErr("Payment has no provider reference", nil)
	}
	gw := s.registry.Resolve(domain.Gateway(p.GatewayUsed), p.IsTestMode)
	adapter, err := s.registry.Refund(gw)
	if err != nil {
		return nil, providerError(p.GatewayUsed, err)
	}

	rf := &models.Refund{
		ID:         uuid.NewString(),
		PaymentID:  p.ID,
		MerchantID: merchantID,
		Currency:   p.Currency,
		Status:     string(domain.RefundPending),
		Reason:     strings.TrimSpace(in.Reason),
		Metadata:   in.Metadata,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refunds := s.refunds.WithTx(tx)
		if _, err := s.payments.WithTx(tx).Lock(ctx, p.ID); err != nil {
			return err
		}
		active, err := refunds.SumActive(ctx, p.ID)
		if err != nil {
			return err
		}
		remaining := p.AmountMinor - active
		amount := remaining
		if in.Amount != nil {
			amount = *in.Amount
		}
		if amount <= 0 || amount > remaining {
			return apperr.ValidationErr(fmt.Sprintf("Refund amount must be between 1 and %d", remaining),
				map[string]string{"amount": "exceeds refundable amount"})
		}
		rf.AmountMinor = amount
		rf.Events = []models.RefundEvent{{
			Type:       domain.EventRefundInitiated,
			Payload:    map[string]any{"amount": amount, "reason": rf.Reason},
			OccurredAt: s.now(),
		}}
		return refunds.Create(ctx, rf)
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("create refund: %w", err)
	}

	res, callErr := adapter.CreateRefund(ctx, payment.RefundRequest{
		RefundID:          rf.ID,
		PaymentID:         p.ID,
		MerchantID:        merchantID,
		ProviderReference: p.ProviderReference,
		AmountMinor:       rf.AmountMinor,
		Currency:          p.Currency,
		Reason:            rf.Reason,
		Metadata:          in.Metadata,
	})
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refunds := s.refunds.WithTx(tx)
		if callErr != nil {
			code := truncate(callErr.Error(), 255)
			if err := refunds.Update(ctx, rf.ID, map[string]any{"status": string(domain.RefundFailed), "failure_code": code}); err != nil {
				return err
			}
			return refunds.AppendEvent(ctx, &models.RefundEvent{
				RefundID:   rf.ID,
				Type:       domain.EventRefundFailed,
				Payload:    map[string]any{"error": apperr.PublicMessage(providerError(p.GatewayUsed, callErr))},
				OccurredAt: s.now(),
			})
		}
		st := res.Status
		if st == "" {
			st = domain.RefundProcessing
		}
		if err := refunds.Update(ctx, rf.ID, map[string]any{
			"status":             string(st),
			"provider_reference": res.ProviderReference,
			"metadata":           toJSONMap(payment.MergeMetadata(map[string]any{}, in.Metadata, res.Metadata)),
		}); err != nil {
			return err
		}
		return refunds.AppendEvent(ctx, &models.RefundEvent{
			RefundID:   rf.ID,
			Type:       domain.EventRefundProviderResponse,
			Payload:    map[string]any{"status": string(st), "providerReference": res.ProviderReference},
			OccurredAt: s.now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("record refund response: %w", err)
	}
	if callErr != nil {
		s.log.Warn("refund provider call failed", zap.String("refund_id", rf.ID), zap.Error(callErr))
	}

	saved, err := s.refunds.GetByID(ctx, rf.ID)
	if err != nil {
		return nil, err
	}
	s.afterRefund(ctx, p, saved)
	return NewRefundView(saved), nil
}

func (s *RefundService) afterRefund(ctx context.Context, p *models.Payment, rf *models.Refund) {
	results := []sideeffect.Result{
		s.deps.Notifier.Notify(ctx, rf.MerchantID, NotifyRefundStatus, "Refund "+strings.ToLower(rf.Status),
			fmt.Sprintf("Refund of %d %s on order %s is %s", rf.AmountMinor, rf.Currency, p.OrderID, strings.ToLower(rf.Status)),
			map[string]any{"refund_id": rf.ID, "payment_id": p.ID, "status": rf.Status}),
		s.deps.Cache.Invalidate(ctx, "payments:list:"+rf.MerchantID+":*", "analytics:*"),
		s.deps.Webhooks.Dispatch(ctx, rf.MerchantID, "refund."+strings.ToLower(rf.Status), map[string]any{
			"refundId": rf.ID, "paymentId": p.ID, "status": rf.Status, "amount": rf.AmountMinor, "currency": rf.Currency,
		}),
	}
	if domain.RefundStatus(rf.Status) == domain.RefundSucceeded {
		results = append(results, s.deps.VAT.RefundSucceeded(ctx, rf.MerchantID, p.ID, rf.ID, rf.AmountMinor, rf.AmountMinor == p.AmountMinor))
	}
	sideeffect.Log(s.log, rf.ID, results...)
}

func (s *RefundService) ListRefunds(ctx context.Context, merchantID, paymentID string) ([]*RefundView, error) {
	if _, err := s.payments.GetForMerchant(ctx, merchantID, paymentID); err != nil {
		return nil, notFound(err, "Payment")
	}
	list, err := s.refunds.ListByPayment(ctx, merchantID, paymentID)
	if err != nil {
		return nil, err
	}
	out := make([]*RefundView, 0, len(list))
	for i := range list {
		out = append(out, NewRefundView(&list[i]))
	}
	return out, nil
}
