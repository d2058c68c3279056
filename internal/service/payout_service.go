package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/queue"
	"boohpay/internal/repository"
	"boohpay/internal/sideeffect"
	"boohpay/pkg/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreatePayoutInput struct {
	PaymentSystemName string         `json:"paymentSystemName" binding:"required,max=64"`
	PayeeMSISDN       string         `json:"payeeMsisdn" binding:"required,max=32"`
	Amount            int64          `json:"amount" binding:"required,gt=0"`
	Currency          string         `json:"currency" binding:"required,len=3"`
	ExternalReference string         `json:"externalReference" binding:"omitempty,max=128"`
	PayoutType        string         `json:"payoutType" binding:"omitempty,oneof=WITHDRAWAL REFUND CASHBACK"`
	Provider          string         `json:"provider" binding:"omitempty,oneof=SHAP MONEROO STRIPE"`
	Priority          string         `json:"priority" binding:"omitempty,oneof=high normal low"`
	ScheduledFor      *time.Time     `json:"scheduledFor"`
	Metadata          map[string]any `json:"metadata"`
}

// PayoutCallback is an authenticated provider notification about a payout.
type PayoutCallback struct {
	Provider          domain.Gateway
	EventID           string
	EventType         string
	PayoutID          string
	ExternalReference string
	ProviderReference string
	Status            domain.PayoutStatus
	Payload           map[string]any
}

// PayoutService records payouts and hands them to the durable queue.
type PayoutService struct {
	db       *gorm.DB
	payouts  *repository.PayoutRepository
	webhooks *repository.WebhookRepository
	queue    *queue.PayoutQueue
	deps     Deps
	log      *zap.Logger
	now      func() time.Time
}

func NewPayoutService(db *gorm.DB, q *queue.PayoutQueue, deps Deps, log *zap.Logger) *PayoutService {
	log = log.Named("payouts")
	return &PayoutService{
		db:       db,
		payouts:  repository.NewPayoutRepository(db),
		webhooks: repository.NewWebhookRepository(db),
		queue:    q,
		deps:     deps.withDefaults(log),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func priorityValue(p string) int {
	switch strings.ToLower(p) {
	case "high":
		return queue.PriorityHigh
	case "low":
		return queue.PriorityLow
	}
	return queue.PriorityNormal
}

// CreatePayout stores a PENDING payout and enqueues it. The provider is the explicit field,
// then metadata.provider, then SHAP.
func (s *PayoutService) CreatePayout(ctx context.Context, merchantID string, in CreatePayoutInput) (*PayoutView, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	msisdn := payment.DigitsOnly(in.PayeeMSISDN)
	if msisdn == "" {
		return nil, apperr.ValidationErr("payeeMsisdn must contain digits", map[string]string{"payeeMsisdn": "invalid"})
	}
	if in.Amount <= 0 {
		return nil, apperr.ValidationErr("amount must be greater than zero", map[string]string{"amount": "gt"})
	}
	provider := strings.ToUpper(strings.TrimSpace(in.Provider))
	if provider == "" {
		provider = strings.ToUpper(metaString(in.Metadata, "provider"))
	}
	switch domain.Gateway(provider) {
	case domain.GatewayShap, domain.GatewayMoneroo, domain.GatewayStripe:
	case "":
		provider = string(domain.GatewayShap)
	default:
		return nil, apperr.ValidationErr("Unsupported payout provider "+provider, map[string]string{"provider": "oneof"})
	}
	payoutType := in.PayoutType
	if payoutType == "" {
		payoutType = domain.PayoutTypeWithdrawal
	}

	p := &models.Payout{
		ID:            uuid.NewString(),
		MerchantID:    merchantID,
		Provider:      provider,
		Status:        string(domain.PayoutPending),
		PaymentSystem: strings.TrimSpace(in.PaymentSystemName),
		PayoutType:    payoutType,
		AmountMinor:   in.Amount,
		Currency:      in.Currency,
		MSISDN:        msisdn,
		IsTestMode:    metaBool(in.Metadata, "isTestMode"),
		Metadata:      in.Metadata,
	}
	if ref := strings.TrimSpace(in.ExternalReference); ref != "" {
		p.ExternalReference = &ref
	}
	p.Events = []models.PayoutEvent{{
		Type:       domain.EventPayoutInitiated,
		Payload:    map[string]any{"provider": provider, "amount": in.Amount, "currency": in.Currency},
		OccurredAt: s.now(),
	}}
	opts := queue.EnqueueOptions{Priority: priorityValue(in.Priority), Payload: map[string]any{"payoutId": p.ID}}
	if in.ScheduledFor != nil {
		opts.RunAt = *in.ScheduledFor
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payouts.WithTx(tx).Create(ctx, p); err != nil {
			return err
		}
		_, err := s.queue.EnqueueTx(ctx, tx, p, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}
	s.deps.Metrics.Count("payouts.created", map[string]string{"provider": provider})
	s.deps.Publisher.Publish(merchantID, "payout.queued", map[string]any{"payoutId": p.ID})
	return s.GetPayout(ctx, merchantID, p.ID)
}

func (s *PayoutService) GetPayout(ctx context.Context, merchantID, id string) (*PayoutView, error) {
	p, err := s.payouts.GetForMerchant(ctx, merchantID, id)
	if err != nil {
		return nil, notFound(err, "Payout")
	}
	return NewPayoutView(p), nil
}

type ListPayoutsInput struct {
	Status   string `form:"status" binding:"omitempty,oneof=PENDING PROCESSING SUCCEEDED FAILED"`
	Provider string `form:"provider" binding:"omitempty,oneof=SHAP MONEROO STRIPE"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

func (s *PayoutService) ListPayouts(ctx context.Context, merchantID string, in ListPayoutsInput) (*Paged[*PayoutView], error) {
	f := repository.PayoutFilter{Status: in.Status, Provider: in.Provider, Page: repository.Page{Page: in.Page, Limit: in.Limit}}
	list, total, err := s.payouts.List(ctx, merchantID, f)
	if err != nil {
		return nil, err
	}
	out := &Paged[*PayoutView]{Items: make([]*PayoutView, 0, len(list)), Total: total, Page: max(in.Page, 1), Limit: in.Limit}
	if out.Limit < 1 || out.Limit > 100 {
		out.Limit = 20
	}
	for i := range list {
		out.Items = append(out.Items, NewPayoutView(&list[i]))
	}
	return out, nil
}

func (s *PayoutService) JobStatus(ctx context.Context, merchantID, payoutID string) (*queue.JobStatus, error) {
	if _, err := s.payouts.GetForMerchant(ctx, merchantID, payoutID); err != nil {
		return nil, notFound(err, "Payout")
	}
	st, err := s.queue.Status(ctx, payoutID)
	if errors.Is(err, queue.ErrJobNotFound) {
		return nil, apperr.NotFoundErr("Payout job not found")
	}
	return st, err
}

// CancelPayout cancels a payout whose job has not started. The payout is marked FAILED.
func (s *PayoutService) CancelPayout(ctx context.Context, merchantID, payoutID string) (*PayoutView, error) {
	p, err := s.payouts.GetForMerchant(ctx, merchantID, payoutID)
	if err != nil {
		return nil, notFound(err, "Payout")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.queue.CancelTx(ctx, tx, payoutID); err != nil {
			return err
		}
		payouts := s.payouts.WithTx(tx)
		if err := payouts.Update(ctx, p.ID, map[string]any{"status": string(domain.PayoutFailed)}); err != nil {
			return err
		}
		return payouts.AppendEvent(ctx, &models.PayoutEvent{
			PayoutID:   p.ID,
			Type:       domain.EventPayoutCancelled,
			Payload:    map[string]any{"cancelledAt": s.now()},
			OccurredAt: s.now(),
		})
	})
	switch {
	case errors.Is(err, queue.ErrNotCancellable):
		return nil, apperr.ConflictErr("Payout is already being processed or finished")
	case errors.Is(err, queue.ErrJobNotFound):
		return nil, apperr.NotFoundErr("Payout job not found")
	case err != nil:
		return nil, err
	}
	s.deps.Publisher.Publish(merchantID, "payout.cancelled", map[string]any{"payoutId": p.ID})
	return s.GetPayout(ctx, merchantID, payoutID)
}

// RetryPayout requeues a payout whose job failed permanently.
func (s *PayoutService) RetryPayout(ctx context.Context, merchantID, payoutID string) (*queue.JobStatus, error) {
	p, err := s.payouts.GetForMerchant(ctx, merchantID, payoutID)
	if err != nil {
		return nil, notFound(err, "Payout")
	}
	if err := s.RetryJob(ctx, p.ID); err != nil {
		return nil, err
	}
	return s.queue.Status(ctx, p.ID)
}

// RetryJob requeues a failed job regardless of merchant. Used by operators.
func (s *PayoutService) RetryJob(ctx context.Context, payoutID string) error {
	err := s.queue.Retry(ctx, payoutID)
	switch {
	case errors.Is(err, queue.ErrNotRetryable):
		return apperr.ConflictErr("Only failed payouts can be retried")
	case errors.Is(err, queue.ErrJobNotFound):
		return apperr.NotFoundErr("Payout job not found")
	case err != nil:
		return err
	}
	return s.payouts.Update(ctx, payoutID, map[string]any{"status": string(domain.PayoutPending)})
}

func (s *PayoutService) QueueStats(ctx context.Context) (*queue.Stats, error) {
	return s.queue.Stats(ctx)
}

func (s *PayoutService) PauseQueue(ctx context.Context) error  { return s.queue.Pause(ctx) }
func (s *PayoutService) ResumeQueue(ctx context.Context) error { return s.queue.Resume(ctx) }

// ApplyCallback applies a provider payout notification. Terminal statuses are never overwritten.
// It returns false when the callback was a duplicate.
func (s *PayoutService) ApplyCallback(ctx context.Context, cb PayoutCallback) (bool, error) {
	p, err := s.locate(ctx, cb)
	if err != nil {
		return false, notFound(err, "Payout")
	}
	var changed, duplicate bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cb.EventID != "" {
			fresh, err := s.webhooks.WithTx(tx).MarkProcessed(ctx, string(cb.Provider), cb.EventID, "payout", p.ID)
			if err != nil {
				return err
			}
			if !fresh {
				duplicate = true
				return nil
			}
		}
		payouts := s.payouts.WithTx(tx)
		cur, err := payouts.Lock(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := payouts.AppendEvent(ctx, &models.PayoutEvent{
			PayoutID:        cur.ID,
			Type:            domain.EventPayoutCallback,
			ProviderEventID: cb.EventID,
			Payload:         toJSONMap(cb.Payload),
			OccurredAt:      s.now(),
		}); err != nil {
			return err
		}
		if cb.Status == "" || !domain.CanTransitionPayout(domain.PayoutStatus(cur.Status), cb.Status) {
			return nil
		}
		fields := map[string]any{"status": string(cb.Status)}
		if cb.ProviderReference != "" && cur.ProviderReference == "" {
			fields["provider_reference"] = cb.ProviderReference
		}
		if err := payouts.Update(ctx, cur.ID, fields); err != nil {
			return err
		}
		changed = true
		return payouts.AppendEvent(ctx, &models.PayoutEvent{
			PayoutID:        cur.ID,
			Type:            domain.PayoutStatusEvent(cb.Status),
			ProviderEventID: cb.EventID,
			OccurredAt:      s.now(),
		})
	})
	if err != nil {
		return false, fmt.Errorf("apply %s payout callback: %w", cb.Provider, err)
	}
	if duplicate {
		return false, nil
	}
	if changed {
		s.afterPayoutStatus(ctx, p.MerchantID, p.ID, string(cb.Status))
	}
	return true, nil
}

func (s *PayoutService) locate(ctx context.Context, cb PayoutCallback) (*models.Payout, error) {
	if cb.PayoutID != "" {
		if p, err := s.payouts.GetByID(ctx, cb.PayoutID); err == nil {
			return p, nil
		}
	}
	if cb.ExternalReference != "" {
		provider := ""
		if cb.Provider == domain.GatewayMoneroo {
			provider = string(domain.GatewayMoneroo)
		}
		if p, err := s.payouts.GetByExternalRef(ctx, cb.ExternalReference, provider); err == nil {
			return p, nil
		}
		// Without an explicit external reference the provider echoes the payout id.
		if p, err := s.payouts.GetByID(ctx, cb.ExternalReference); err == nil {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *PayoutService) afterPayoutStatus(ctx context.Context, merchantID, payoutID, status string) {
	results := []sideeffect.Result{
		s.deps.Webhooks.Dispatch(ctx, merchantID, "payout."+strings.ToLower(status), map[string]any{"payoutId": payoutID, "status": status}),
	}
	switch domain.PayoutStatus(status) {
	case domain.PayoutSucceeded:
		results = append(results, s.deps.Notifier.Notify(ctx, merchantID, NotifyPayoutSucceeded, "Payout completed",
			"Payout "+payoutID+" was paid out", map[string]any{"payout_id": payoutID}))
	case domain.PayoutFailed:
		results = append(results, s.deps.Notifier.Notify(ctx, merchantID, NotifyPayoutFailed, "Payout failed",
			"Payout "+payoutID+" failed", map[string]any{"payout_id": payoutID}))
	}
	s.deps.Publisher.Publish(merchantID, "payout.status", map[string]any{"payoutId": payoutID, "status": status})
	sideeffect.Log(s.log, payoutID, results...)
}
