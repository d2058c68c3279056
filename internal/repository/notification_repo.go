package repository

import (
	"context"
	"time"

	"boohpay/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id uint, merchantID string) error {
	return r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND merchant_id = ?", id, merchantID).Update("read_at", time.Now().UTC()).Error
}
