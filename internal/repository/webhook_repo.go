package repository

import (
	"context"
	"time"

	"boohpay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) WithTx(tx *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: tx}
}

// MarkProcessed records a provider event id. It returns false when the event was already recorded.
func (r *WebhookRepository) MarkProcessed(ctx context.Context, provider, eventID, entityType, entityID string) (bool, error) {
	row := models.ProcessedWebhookEvent{
		Provider:   provider,
		EventID:    eventID,
		EntityType: entityType,
		EntityID:   entityID,
		ReceivedAt: time.Now().UTC(),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *WebhookRepository) EnqueueDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	if d.Status == "" {
		d.Status = "PENDING"
	}
	if d.NextAttemptAt.IsZero() {
		d.NextAttemptAt = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Create(d).Error)
}

// DueDeliveries returns PENDING deliveries whose next attempt time has passed.
func (r *WebhookRepository) DueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error) {
	var list []models.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", "PENDING", now).
		Order("next_attempt_at ASC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *WebhookRepository) MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("id = ?", id).
		Updates(map[string]any{"status": "DELIVERED", "attempts": attempts, "delivered_at": at, "last_error": ""}).Error
}

// Reschedule records a failed attempt. A zero next time marks the delivery FAILED.
func (r *WebhookRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	fields := map[string]any{"attempts": attempts, "last_error": truncate(lastErr, 512)}
	if next.IsZero() {
		fields["status"] = "FAILED"
	} else {
		fields["next_attempt_at"] = next
	}
	return r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("id = ?", id).Updates(fields).Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
