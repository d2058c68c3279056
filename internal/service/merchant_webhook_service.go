package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"boohpay/config"
	"boohpay/internal/models"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"
	"boohpay/internal/webhook"

	"go.uber.org/zap"
)

const (
	SignatureHeader = "X-BoohPay-Signature"
	EventHeader     = "X-BoohPay-Event"
	maxDeliveryWait = 6 * time.Hour
)

// MerchantWebhookService queues status events for merchants and delivers them to their endpoints.
type MerchantWebhookService struct {
	repo      *repository.WebhookRepository
	merchants *repository.MerchantRepository
	client    *http.Client
	cfg       config.WebhooksConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewMerchantWebhookService(repo *repository.WebhookRepository, merchants *repository.MerchantRepository, cfg config.WebhooksConfig, client *http.Client, log *zap.Logger) *MerchantWebhookService {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.DeliveryMaxTries <= 0 {
		cfg.DeliveryMaxTries = 8
	}
	if cfg.DeliveryInterval <= 0 {
		cfg.DeliveryInterval = time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.DeliveryTimeout}
	}
	return &MerchantWebhookService{
		repo:      repo,
		merchants: merchants,
		client:    client,
		cfg:       cfg,
		log:       log.Named("merchant_webhooks"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch queues an event when the merchant has a webhook endpoint.
func (s *MerchantWebhookService) Dispatch(ctx context.Context, merchantID, eventType string, payload map[string]any) sideeffect.Result {
	m, err := s.merchants.GetByID(ctx, merchantID)
	if err != nil {
		return sideeffect.Fail("merchant_webhook", fmt.Errorf("load merchant: %w", err))
	}
	if m.WebhookURL == "" {
		return sideeffect.Skip("merchant_webhook")
	}
	d := &models.WebhookDelivery{MerchantID: merchantID, EventType: eventType, Payload: payload, NextAttemptAt: s.now()}
	if err := s.repo.EnqueueDelivery(ctx, d); err != nil {
		return sideeffect.Fail("merchant_webhook", err)
	}
	return sideeffect.OK("merchant_webhook")
}

// DeliverDue sends up to limit pending deliveries and returns how many succeeded.
func (s *MerchantWebhookService) DeliverDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.DueDeliveries(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for i := range due {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if s.deliver(ctx, &due[i]) {
			delivered++
		}
	}
	return delivered, nil
}

func (s *MerchantWebhookService) deliver(ctx context.Context, d *models.WebhookDelivery) bool {
	attempts := d.Attempts + 1
	err := s.post(ctx, d)
	if err == nil {
		if err := s.repo.MarkDelivered(ctx, d.ID, attempts, s.now()); err != nil {
			s.log.Error("mark delivered", zap.String("delivery_id", d.ID), zap.Error(err))
		}
		return true
	}
	var next time.Time
	if attempts < s.cfg.DeliveryMaxTries {
		wait := s.cfg.DeliveryInterval << (attempts - 1)
		if wait <= 0 || wait > maxDeliveryWait {
			wait = maxDeliveryWait
		}
		next = s.now().Add(wait)
	}
	s.log.Warn("merchant webhook delivery failed", zap.String("delivery_id", d.ID),
		zap.String("merchant_id", d.MerchantID), zap.Int("attempt", attempts), zap.Error(err))
	if rerr := s.repo.Reschedule(ctx, d.ID, attempts, next, err.Error()); rerr != nil {
		s.log.Error("reschedule delivery", zap.String("delivery_id", d.ID), zap.Error(rerr))
	}
	return false
}

func (s *MerchantWebhookService) post(ctx context.Context, d *models.WebhookDelivery) error {
	m, err := s.merchants.GetByID(ctx, d.MerchantID)
	if err != nil {
		return err
	}
	if m.WebhookURL == "" {
		return fmt.Errorf("merchant has no webhook url")
	}
	body, err := json.Marshal(map[string]any{
		"id":        d.ID,
		"type":      d.EventType,
		"createdAt": d.CreatedAt,
		"data":      d.Payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, d.EventType)
	req.Header.Set("X-BoohPay-Timestamp", ts)
	if m.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, webhook.SignHMAC(append([]byte(ts+"."), body...), m.WebhookSecret))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
