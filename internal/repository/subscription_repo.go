package repository

import (
	"context"
	"time"

	"boohpay/internal/models"

	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *models.Subscription) error {
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *SubscriptionRepository) GetForMerchant(ctx context.Context, merchantID, id string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ? AND merchant_id = ?", id, merchantID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *SubscriptionRepository) List(ctx context.Context, merchantID, status string, p Page) ([]models.Subscription, int64, error) {
	pg := p.normalize()
	q := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("merchant_id = ?", merchantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Subscription
	err := q.Order("created_at DESC").Limit(pg.Limit).Offset(pg.offset()).Find(&list).Error
	return list, total, err
}

func (r *SubscriptionRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	return translate(r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).Updates(fields).Error)
}

// DueForBilling returns ACTIVE subscriptions whose next billing date has passed, oldest first.
func (r *SubscriptionRepository) DueForBilling(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var list []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_billing_date <= ?", "ACTIVE", now).
		Order("next_billing_date ASC").Limit(limit).Find(&list).Error
	return list, err
}

// WithFailedPaymentsSince returns ACTIVE subscriptions that have at least one FAILED payment created after since.
func (r *SubscriptionRepository) WithFailedPaymentsSince(ctx context.Context, since time.Time) ([]models.Subscription, error) {
	var list []models.Subscription
	sub := r.db.Model(&models.Payment{}).Select("subscription_id").
		Where("status = ? AND created_at >= ? AND subscription_id IS NOT NULL", "FAILED", since)
	err := r.db.WithContext(ctx).
		Where("status = ? AND id IN (?)", "ACTIVE", sub).
		Order("created_at ASC").Find(&list).Error
	return list, err
}

// LastFailedPayment returns the newest FAILED payment of a subscription created after since.
func (r *SubscriptionRepository) LastFailedPayment(ctx context.Context, subscriptionID string, since time.Time) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ? AND created_at >= ?", subscriptionID, "FAILED", since).
		Order("created_at DESC").First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *SubscriptionRepository) LastAttempt(ctx context.Context, subscriptionID string) (*models.DunningAttempt, error) {
	var a models.DunningAttempt
	err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC, attempt_number DESC").First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *SubscriptionRepository) CreateAttempt(ctx context.Context, a *models.DunningAttempt) error {
	return translate(r.db.WithContext(ctx).Create(a).Error)
}

func (r *SubscriptionRepository) UpdateAttempt(ctx context.Context, id string, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.DunningAttempt{}).Where("id = ?", id).Updates(fields).Error
}

func (r *SubscriptionRepository) Attempts(ctx context.Context, subscriptionID string) ([]models.DunningAttempt, error) {
	var list []models.DunningAttempt
	err := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).
		Order("attempt_number ASC").Find(&list).Error
	return list, err
}
