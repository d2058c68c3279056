package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"boohpay/internal/apperr"
	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateSubscriptionInput struct {
	CustomerEmail string         `json:"customerEmail" binding:"required,email"`
	CustomerPhone string         `json:"customerPhone" binding:"omitempty,max=32"`
	Amount        int64          `json:"amount" binding:"required,gt=0"`
	Currency      string         `json:"currency" binding:"required,len=3"`
	CountryCode   string         `json:"countryCode" binding:"omitempty,len=2"`
	PaymentMethod string         `json:"paymentMethod" binding:"omitempty,oneof=CARD MOBILE_MONEY MOMO"`
	BillingCycle  string         `json:"billingCycle" binding:"required,oneof=DAILY WEEKLY MONTHLY QUARTERLY YEARLY"`
	StartDate     *time.Time     `json:"startDate"`
	Metadata      map[string]any `json:"metadata"`
}

type SubscriptionView struct {
	ID              string         `json:"id"`
	MerchantID      string         `json:"merchantId"`
	CustomerEmail   string         `json:"customerEmail"`
	CustomerPhone   string         `json:"customerPhone,omitempty"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	BillingCycle    string         `json:"billingCycle"`
	Status          string         `json:"status"`
	NextBillingDate time.Time      `json:"nextBillingDate"`
	LastBillingDate *time.Time     `json:"lastBillingDate"`
	CancelledAt     *time.Time     `json:"cancelledAt"`
	IsTestMode      bool           `json:"isTestMode"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

func NewSubscriptionView(s *models.Subscription) *SubscriptionView {
	return &SubscriptionView{
		ID:              s.ID,
		MerchantID:      s.MerchantID,
		CustomerEmail:   s.CustomerEmail,
		CustomerPhone:   s.CustomerPhone,
		Amount:          s.AmountMinor,
		Currency:        s.Currency,
		BillingCycle:    s.BillingCycle,
		Status:          s.Status,
		NextBillingDate: s.NextBillingDate,
		LastBillingDate: s.LastBillingDate,
		CancelledAt:     s.CancelledAt,
		IsTestMode:      s.IsTestMode,
		Metadata:        s.Metadata,
		CreatedAt:       s.CreatedAt,
	}
}

// NextBillingDate advances t by one billing cycle. Unknown cycles are treated as monthly.
func NextBillingDate(t time.Time, cycle string) time.Time {
	switch strings.ToUpper(cycle) {
	case domain.CycleDaily:
		return t.AddDate(0, 0, 1)
	case domain.CycleWeekly:
		return t.AddDate(0, 0, 7)
	case domain.CycleQuarterly:
		return t.AddDate(0, 3, 0)
	case domain.CycleYearly:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

type SubscriptionService struct {
	subs *repository.SubscriptionRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewSubscriptionService(db *gorm.DB, log *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		subs: repository.NewSubscriptionRepository(db),
		log:  log.Named("subscriptions"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create starts an ACTIVE subscription. The first charge is due at StartDate, or immediately.
func (s *SubscriptionService) Create(ctx context.Context, merchantID string, in CreateSubscriptionInput) (*SubscriptionView, error) {
	if in.Amount <= 0 {
		return nil, apperr.ValidationErr("amount must be greater than zero", map[string]string{"amount": "gt"})
	}
	next := s.now()
	if in.StartDate != nil && in.StartDate.After(next) {
		next = in.StartDate.UTC()
	}
	sub := &models.Subscription{
		ID:              uuid.NewString(),
		MerchantID:      merchantID,
		CustomerEmail:   strings.TrimSpace(in.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(in.CustomerPhone),
		AmountMinor:     in.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(in.Currency)),
		CountryCode:     strings.ToUpper(strings.TrimSpace(in.CountryCode)),
		PaymentMethod:   strings.ToUpper(strings.TrimSpace(in.PaymentMethod)),
		BillingCycle:    strings.ToUpper(in.BillingCycle),
		Status:          string(domain.SubscriptionActive),
		NextBillingDate: next,
		IsTestMode:      metaBool(in.Metadata, "isTestMode"),
		Metadata:        in.Metadata,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return NewSubscriptionView(sub), nil
}

func (s *SubscriptionService) Get(ctx context.Context, merchantID, id string) (*SubscriptionView, error) {
	sub, err := s.subs.GetForMerchant(ctx, merchantID, id)
	if err != nil {
		return nil, notFound(err, "Subscription")
	}
	return NewSubscriptionView(sub), nil
}

type ListSubscriptionsInput struct {
	Status string `form:"status" binding:"omitempty,oneof=ACTIVE PAUSED CANCELLED EXPIRED"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

func (s *SubscriptionService) List(ctx context.Context, merchantID string, in ListSubscriptionsInput) (*Paged[*SubscriptionView], error) {
	page := repository.Page{Page: in.Page, Limit: in.Limit}
	list, total, err := s.subs.List(ctx, merchantID, in.Status, page)
	if err != nil {
		return nil, err
	}
	out := &Paged[*SubscriptionView]{Items: make([]*SubscriptionView, 0, len(list)), Total: total, Page: max(in.Page, 1), Limit: in.Limit}
	if out.Limit < 1 || out.Limit > 100 {
		out.Limit = 20
	}
	for i := range list {
		out.Items = append(out.Items, NewSubscriptionView(&list[i]))
	}
	return out, nil
}

func (s *SubscriptionService) Cancel(ctx context.Context, merchantID, id string) (*SubscriptionView, error) {
	return s.transition(ctx, merchantID, id, domain.SubscriptionCancelled)
}

func (s *SubscriptionService) Pause(ctx context.Context, merchantID, id string) (*SubscriptionView, error) {
	return s.transition(ctx, merchantID, id, domain.SubscriptionPaused)
}

// Resume reactivates a paused subscription. A billing date that passed while paused is moved to now.
func (s *SubscriptionService) Resume(ctx context.Context, merchantID, id string) (*SubscriptionView, error) {
	return s.transition(ctx, merchantID, id, domain.SubscriptionActive)
}

func (s *SubscriptionService) transition(ctx context.Context, merchantID, id string, to domain.SubscriptionStatus) (*SubscriptionView, error) {
	sub, err := s.subs.GetForMerchant(ctx, merchantID, id)
	if err != nil {
		return nil, notFound(err, "Subscription")
	}
	if !domain.CanTransitionSubscription(domain.SubscriptionStatus(sub.Status), to) {
		return nil, apperr.ConflictErr(fmt.Sprintf("Subscription in status %s cannot become %s", sub.Status, to))
	}
	now := s.now()
	fields := map[string]any{"status": string(to)}
	switch to {
	case domain.SubscriptionCancelled:
		fields["cancelled_at"] = now
	case domain.SubscriptionActive:
		if sub.NextBillingDate.Before(now) {
			fields["next_billing_date"] = now
		}
	}
	if err := s.subs.Update(ctx, sub.ID, fields); err != nil {
		return nil, err
	}
	s.log.Info("subscription status changed", zap.String("subscription_id", sub.ID),
		zap.String("from", sub.Status), zap.String("to", string(to)))
	return s.Get(ctx, merchantID, id)
}

type DunningAttemptView struct {
	AttemptNumber int        `json:"attemptNumber"`
	PaymentID     string     `json:"paymentId"`
	Status        string     `json:"status"`
	NextRetryAt   *time.Time `json:"nextRetryAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (s *SubscriptionService) Attempts(ctx context.Context, merchantID, id string) ([]DunningAttemptView, error) {
	if _, err := s.subs.GetForMerchant(ctx, merchantID, id); err != nil {
		return nil, notFound(err, "Subscription")
	}
	list, err := s.subs.Attempts(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]DunningAttemptView, 0, len(list))
	for _, a := range list {
		out = append(out, DunningAttemptView{
			AttemptNumber: a.AttemptNumber,
			PaymentID:     a.PaymentID,
			Status:        a.Status,
			NextRetryAt:   a.NextRetryAt,
			CreatedAt:     a.CreatedAt,
		})
	}
	return out, nil
}
