package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"boohpay/config"
	"boohpay/internal/apperr"
	"boohpay/internal/cache"
	"boohpay/internal/currency"
	"boohpay/internal/domain"
	"boohpay/internal/gateway"
	"boohpay/internal/models"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"
	"boohpay/pkg/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CustomerInput struct {
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"omitempty,max=32"`
}

type CreatePaymentInput struct {
	OrderID       string         `json:"orderId" binding:"required,max=128"`
	Amount        int64          `json:"amount" binding:"required,gt=0"`
	Currency      string         `json:"currency" binding:"required,len=3"`
	CountryCode   string         `json:"countryCode" binding:"required,len=2"`
	PaymentMethod string         `json:"paymentMethod" binding:"required,oneof=CARD MOBILE_MONEY MOMO"`
	Customer      *CustomerInput `json:"customer"`
	Metadata      map[string]any `json:"metadata"`
	ReturnURL     string         `json:"returnUrl" binding:"omitempty,url"`
	// SubscriptionID links a billing-cycle charge to its subscription. Not accepted from API clients.
	SubscriptionID string `json:"-"`
}

func (in *CreatePaymentInput) normalize() {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.CountryCode = strings.ToUpper(strings.TrimSpace(in.CountryCode))
	in.PaymentMethod = strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
}

// WebhookEvent is a provider notification about a payment, already authenticated and normalized.
type WebhookEvent struct {
	Provider          domain.Gateway
	EventID           string
	EventType         string
	PaymentID         string
	OrderID           string
	ProviderReference string
	Status            domain.PaymentStatus
	Payload           map[string]any
}

// PaymentService creates payments through the selected provider and applies provider webhooks.
type PaymentService struct {
	db        *gorm.DB
	payments  *repository.PaymentRepository
	merchants *repository.MerchantRepository
	webhooks  *repository.WebhookRepository
	registry  *gateway.Registry
	fees      config.FeesConfig
	deps      Deps
	reads     *cache.ResponseCache
	log       *zap.Logger
	now       func() time.Time
}

func NewPaymentService(db *gorm.DB, registry *gateway.Registry, fees config.FeesConfig, deps Deps, reads *cache.ResponseCache, log *zap.Logger) *PaymentService {
	log = log.Named("payments")
	return &PaymentService{
		db:        db,
		payments:  repository.NewPaymentRepository(db),
		merchants: repository.NewMerchantRepository(db),
		webhooks:  repository.NewWebhookRepository(db),
		registry:  registry,
		fees:      fees,
		deps:      deps.withDefaults(log),
		reads:     reads,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, merchantID string, in CreatePaymentInput) (*PaymentView, error) {
	in.normalize()
	if in.Amount <= 0 {
		return nil, apperr.ValidationErr("amount must be greater than zero", map[string]string{"amount": "gt"})
	}
	gw := gateway.Select(in.CountryCode, in.PaymentMethod)
	testMode := metaBool(in.Metadata, "isTestMode")
	adapter, err := s.registry.Payment(s.registry.Resolve(gw, testMode))
	if err != nil {
		return nil, providerError(string(gw), err)
	}

	platformFee, commission := s.computeFees(ctx, s.merchants, merchantID, in.Amount, in.Metadata)
	now := s.now()
	p := &models.Payment{
		ID:            uuid.NewString(),
		MerchantID:    merchantID,
		OrderID:       in.OrderID,
		AmountMinor:   in.Amount,
		Currency:      in.Currency,
		CountryCode:   in.CountryCode,
		PaymentMethod: in.PaymentMethod,
		GatewayUsed:   string(gw),
		Status:        string(domain.PaymentPending),
		PlatformFee:   platformFee,
		AppCommission: commission,
		TotalFees:     platformFee + commission,
		IsTestMode:    testMode,
		Metadata:      in.Metadata,
		Events: []models.PaymentEvent{{
			Type: domain.EventPaymentInitiated,
			Payload: map[string]any{
				"gateway":       string(gw),
				"amount":        in.Amount,
				"boohpayFee":    platformFee,
				"appCommission": commission,
			},
			OccurredAt: now,
		}},
	}
	if in.SubscriptionID != "" {
		sub := in.SubscriptionID
		p.SubscriptionID = &sub
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	req := payment.PaymentRequest{
		PaymentID:     p.ID,
		MerchantID:    merchantID,
		OrderID:       in.OrderID,
		AmountMinor:   in.Amount,
		Currency:      in.Currency,
		CountryCode:   in.CountryCode,
		PaymentMethod: in.PaymentMethod,
		ReturnURL:     in.ReturnURL,
		Metadata:      in.Metadata,
		IsTestMode:    testMode,
	}
	if in.Customer != nil {
		req.Customer = payment.Customer{Email: in.Customer.Email, Phone: in.Customer.Phone}
	}
	res, err := adapter.CreatePayment(ctx, req)
	if err != nil {
		if derr := s.payments.Delete(ctx, p.ID); derr != nil {
			s.log.Error("delete pending payment after provider error", zap.String("payment_id", p.ID), zap.Error(derr))
		}
		s.deps.Metrics.Count("payments.provider_error", map[string]string{"gateway": string(gw)})
		s.log.Warn("provider rejected payment", zap.String("payment_id", p.ID), zap.String("gateway", string(gw)), zap.Error(err))
		return nil, providerError(string(gw), err)
	}

	status := res.Status
	if status == "" {
		status = domain.PaymentPending
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		if err := payments.Update(ctx, p.ID, map[string]any{
			"provider_reference": res.ProviderReference,
			"status":             string(status),
			"checkout_payload":   toJSONMap(res.Checkout),
			"metadata":           toJSONMap(payment.MergeMetadata(map[string]any{}, in.Metadata, res.Metadata)),
		}); err != nil {
			return err
		}
		if err := payments.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID:  p.ID,
			Type:       domain.EventPaymentProviderResponse,
			Payload:    map[string]any{"providerReference": res.ProviderReference, "status": string(status)},
			OccurredAt: s.now(),
		}); err != nil {
			return err
		}
		if status != domain.PaymentPending {
			return payments.AppendEvent(ctx, &models.PaymentEvent{
				PaymentID:  p.ID,
				Type:       domain.PaymentStatusEvent(status),
				OccurredAt: s.now(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record provider response: %w", err)
	}

	saved, err := s.payments.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.Count("payments.created", map[string]string{"gateway": string(gw), "status": string(status)})
	s.afterStatusChange(ctx, saved)
	return NewPaymentView(saved), nil
}

// computeFees returns the platform fee and the tenant app commission. Commission settings come from
// request metadata first, then the merchant, then zero.
func (s *PaymentService) computeFees(ctx context.Context, merchants *repository.MerchantRepository, merchantID string, amount int64, meta map[string]any) (int64, int64) {
	platform := currency.Fee(amount, s.fees.PlatformRate, s.fees.PlatformFixed)

	rate, hasRate := metaFloat(meta, "commission_rate")
	fixed, hasFixed := metaFloat(meta, "commission_fixed")
	if !hasRate || !hasFixed {
		if m, err := merchants.GetByID(ctx, merchantID); err == nil {
			if !hasRate {
				rate = m.CommissionRate
			}
			if !hasFixed {
				fixed = float64(m.CommissionFixed)
			}
		}
	}
	return platform, currency.Fee(amount, rate, int64(fixed))
}

// ApplyWebhookEvent moves a payment to the status a provider reported. It returns false when the
// event was already applied. Disallowed transitions are recorded as events only.
func (s *PaymentService) ApplyWebhookEvent(ctx context.Context, ev WebhookEvent) (bool, error) {
	p, err := s.locate(ctx, ev)
	if err != nil {
		return false, notFound(err, "Payment")
	}

	var changed bool
	var duplicate bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ev.EventID != "" {
			fresh, err := s.webhooks.WithTx(tx).MarkProcessed(ctx, string(ev.Provider), ev.EventID, "payment", p.ID)
			if err != nil {
				return err
			}
			if !fresh {
				duplicate = true
				return nil
			}
		}
		payments := s.payments.WithTx(tx)
		cur, err := payments.Lock(ctx, p.ID)
		if err != nil {
			return err
		}
		eventType := ev.EventType
		if eventType == "" {
			eventType = strings.ToLower(string(ev.Provider)) + ".webhook"
		}
		if err := payments.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID:       cur.ID,
			Type:            eventType,
			ProviderEventID: ev.EventID,
			Payload:         toJSONMap(ev.Payload),
			OccurredAt:      s.now(),
		}); err != nil {
			return err
		}

		from := domain.PaymentStatus(cur.Status)
		if ev.Status == "" || ev.Status == from {
			return nil
		}
		if !domain.CanTransitionPayment(from, ev.Status) {
			s.log.Info("ignoring payment transition", zap.String("payment_id", cur.ID),
				zap.String("from", string(from)), zap.String("to", string(ev.Status)))
			return nil
		}
		fields := map[string]any{"status": string(ev.Status)}
		if ev.ProviderReference != "" && cur.ProviderReference == "" {
			fields["provider_reference"] = ev.ProviderReference
		}
		if ev.Status == domain.PaymentSucceeded && cur.PlatformFee == 0 {
			platform, commission := s.computeFees(ctx, repository.NewMerchantRepository(tx), cur.MerchantID, cur.AmountMinor, cur.Metadata)
			fields["platform_fee"] = platform
			fields["app_commission"] = commission
			fields["total_fees"] = platform + commission
		}
		if err := payments.Update(ctx, cur.ID, fields); err != nil {
			return err
		}
		if ev.Status == domain.PaymentSucceeded && cur.SubscriptionID != nil {
			if err := s.settleSubscriptionCycle(ctx, tx, *cur.SubscriptionID, cur.CreatedAt); err != nil {
				return err
			}
		}
		changed = true
		return payments.AppendEvent(ctx, &models.PaymentEvent{
			PaymentID:       cur.ID,
			Type:            domain.PaymentStatusEvent(ev.Status),
			ProviderEventID: ev.EventID,
			OccurredAt:      s.now(),
		})
	})
	if err != nil {
		return false, fmt.Errorf("apply %s webhook: %w", ev.Provider, err)
	}
	if duplicate {
		s.log.Debug("duplicate webhook event", zap.String("provider", string(ev.Provider)), zap.String("event_id", ev.EventID))
		return false, nil
	}
	if changed {
		if saved, err := s.payments.GetByID(ctx, p.ID); err == nil {
			s.afterStatusChange(ctx, saved)
		}
	}
	return true, nil
}

// settleSubscriptionCycle advances a subscription whose pending cycle charge was confirmed late by webhook.
func (s *PaymentService) settleSubscriptionCycle(ctx context.Context, tx *gorm.DB, subscriptionID string, chargedAt time.Time) error {
	subs := repository.NewSubscriptionRepository(tx)
	sub, err := subs.GetByID(ctx, subscriptionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sub.NextBillingDate.After(chargedAt) {
		return nil
	}
	return subs.Update(ctx, sub.ID, map[string]any{
		"last_billing_date": s.now(),
		"next_billing_date": NextBillingDate(sub.NextBillingDate, sub.BillingCycle),
	})
}

func (s *PaymentService) locate(ctx context.Context, ev WebhookEvent) (*models.Payment, error) {
	if ev.PaymentID != "" {
		if p, err := s.payments.GetByID(ctx, ev.PaymentID); err == nil {
			return p, nil
		}
	}
	if ev.OrderID != "" {
		if p, err := s.payments.GetByOrderID(ctx, ev.OrderID, string(ev.Provider)); err == nil {
			return p, nil
		}
	}
	if ev.ProviderReference != "" {
		return s.payments.GetByProviderRef(ctx, ev.ProviderReference)
	}
	return nil, repository.ErrNotFound
}

func (s *PaymentService) afterStatusChange(ctx context.Context, p *models.Payment) {
	status := domain.PaymentStatus(p.Status)
	results := []sideeffect.Result{
		s.deps.Notifier.Notify(ctx, p.MerchantID, NotifyPaymentStatus,
			"Payment "+strings.ToLower(p.Status),
			fmt.Sprintf("Order %s: %s %s is %s", p.OrderID, currency.FormatMajor(p.AmountMinor, p.Currency), p.Currency, strings.ToLower(p.Status)),
			map[string]any{"payment_id": p.ID, "status": p.Status}),
		s.deps.Cache.Invalidate(ctx, "payments:list:"+p.MerchantID+":*", "analytics:*"),
		s.deps.Webhooks.Dispatch(ctx, p.MerchantID, "payment."+strings.ToLower(p.Status), map[string]any{
			"paymentId": p.ID, "orderId": p.OrderID, "status": p.Status, "amount": p.AmountMinor, "currency": p.Currency,
		}),
	}
	if status == domain.PaymentSucceeded {
		results = append(results, s.deps.VAT.PaymentSucceeded(ctx, p.MerchantID, p.ID, p.AmountMinor, p.Currency))
	}
	s.deps.Publisher.Publish(p.MerchantID, "payment.status", map[string]any{"paymentId": p.ID, "status": p.Status})
	sideeffect.Log(s.log, p.ID, results...)
}

func (s *PaymentService) GetPayment(ctx context.Context, merchantID, id string) (*PaymentView, error) {
	p, err := s.payments.GetForMerchant(ctx, merchantID, id)
	if err != nil {
		return nil, notFound(err, "Payment")
	}
	return NewPaymentView(p), nil
}

type ListPaymentsInput struct {
	Status  string `form:"status" binding:"omitempty,oneof=PENDING AUTHORIZED SUCCEEDED FAILED"`
	Gateway string `form:"gateway" binding:"omitempty,oneof=STRIPE MONEROO EBILLING"`
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
}

func (s *PaymentService) ListPayments(ctx context.Context, merchantID string, in ListPaymentsInput) (*Paged[*PaymentView], error) {
	key := fmt.Sprintf("payments:list:%s:%s:%s:%d:%d", merchantID, in.Status, in.Gateway, in.Page, in.Limit)
	if s.reads != nil {
		if v, ok := s.reads.Get(key); ok {
			if page, ok := v.(*Paged[*PaymentView]); ok {
				return page, nil
			}
		}
	}
	f := repository.PaymentFilter{Status: in.Status, Gateway: in.Gateway, Page: repository.Page{Page: in.Page, Limit: in.Limit}}
	list, total, err := s.payments.List(ctx, merchantID, f)
	if err != nil {
		return nil, err
	}
	out := &Paged[*PaymentView]{Items: make([]*PaymentView, 0, len(list)), Total: total, Page: max(in.Page, 1), Limit: in.Limit}
	if out.Limit < 1 || out.Limit > 100 {
		out.Limit = 20
	}
	for i := range list {
		out.Items = append(out.Items, NewPaymentView(&list[i]))
	}
	if s.reads != nil {
		s.reads.Set(key, out)
	}
	return out, nil
}

// recordFailedCharge stores a FAILED payment for a charge the provider refused, so billing can hand it to dunning.
func (s *PaymentService) recordFailedCharge(ctx context.Context, merchantID string, in CreatePaymentInput, cause error) (*models.Payment, error) {
	in.normalize()
	now := s.now()
	p := &models.Payment{
		MerchantID:    merchantID,
		OrderID:       in.OrderID,
		AmountMinor:   in.Amount,
		Currency:      in.Currency,
		CountryCode:   in.CountryCode,
		PaymentMethod: in.PaymentMethod,
		GatewayUsed:   string(gateway.Select(in.CountryCode, in.PaymentMethod)),
		Status:        string(domain.PaymentFailed),
		IsTestMode:    metaBool(in.Metadata, "isTestMode"),
		Metadata:      in.Metadata,
		Events: []models.PaymentEvent{{
			Type:       domain.EventPaymentFailed,
			Payload:    map[string]any{"error": truncate(apperr.PublicMessage(cause), 255)},
			OccurredAt: now,
		}},
	}
	if in.SubscriptionID != "" {
		sub := in.SubscriptionID
		p.SubscriptionID = &sub
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func toJSONMap(m map[string]any) datatypes.JSONMap {
	if m == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(m)
}

func metaBool(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func metaFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
