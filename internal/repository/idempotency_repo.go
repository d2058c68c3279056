package repository

import (
	"context"
	"time"

	"boohpay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Get returns the unexpired record for (merchant, key).
func (r *IdempotencyRepository) Get(ctx context.Context, merchantID, key string, now time.Time) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND idem_key = ? AND expires_at > ?", merchantID, key, now).
		First(&rec).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// Insert stores rec unless a record for the same (merchant, key) exists. It reports whether a row was written.
func (r *IdempotencyRepository) Insert(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteExpiredKey drops an expired record so the key can be reused.
func (r *IdempotencyRepository) DeleteExpiredKey(ctx context.Context, merchantID, key string, now time.Time) error {
	return r.db.WithContext(ctx).
		Where("merchant_id = ? AND idem_key = ? AND expires_at <= ?", merchantID, key, now).
		Delete(&models.IdempotencyRecord{}).Error
}

func (r *IdempotencyRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
