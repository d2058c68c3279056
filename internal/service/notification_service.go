package service

import (
	"context"
	"fmt"

	"boohpay/internal/models"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"

	"go.uber.org/zap"
)

// Notification kinds.
const (
	NotifyPaymentStatus     = "PAYMENT_STATUS"
	NotifyRefundStatus      = "REFUND_STATUS"
	NotifyPayoutSucceeded   = "PAYOUT_SUCCEEDED"
	NotifyPayoutFailed      = "PAYOUT_FAILED"
	NotifyDunningRetry      = "DUNNING_RETRY"
	NotifySubscriptionEnded = "SUBSCRIPTION_CANCELLED"
	NotifyReconciliation    = "RECONCILIATION_CRITICAL"
)

// NotificationService stores merchant notifications, pushes them to the merchant's device
// and mirrors them on the live event stream.
type NotificationService struct {
	repo      *repository.NotificationRepository
	merchants *repository.MerchantRepository
	push      Pusher
	publisher sideeffect.Publisher
	log       *zap.Logger
}

func NewNotificationService(repo *repository.NotificationRepository, merchants *repository.MerchantRepository, push Pusher, publisher sideeffect.Publisher, log *zap.Logger) *NotificationService {
	if publisher == nil {
		publisher = sideeffect.NopPublisher{}
	}
	return &NotificationService{repo: repo, merchants: merchants, push: push, publisher: publisher, log: log.Named("notifications")}
}

func (s *NotificationService) Notify(ctx context.Context, merchantID, kind, title, body string, data map[string]any) sideeffect.Result {
	n := &models.Notification{MerchantID: merchantID, Type: kind, Title: title, Body: body, Data: data}
	if err := s.repo.Create(ctx, n); err != nil {
		return sideeffect.Fail("notify", fmt.Errorf("store notification: %w", err))
	}
	if merchantID == "" {
		s.log.Warn(title, zap.String("type", kind), zap.String("body", body))
		return sideeffect.OK("notify")
	}
	s.publisher.Publish(merchantID, "notification", n)
	if s.push == nil || s.merchants == nil {
		return sideeffect.OK("notify")
	}
	m, err := s.merchants.GetByID(ctx, merchantID)
	if err != nil || m.DeviceToken == "" {
		return sideeffect.OK("notify")
	}
	if err := s.push.Send(ctx, m.DeviceToken, title, body, pushData(kind, data)); err != nil {
		return sideeffect.Fail("notify", fmt.Errorf("push: %w", err))
	}
	return sideeffect.OK("notify")
}

func (s *NotificationService) List(ctx context.Context, merchantID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByMerchant(ctx, merchantID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, merchantID string, id uint) error {
	return s.repo.MarkRead(ctx, id, merchantID)
}
