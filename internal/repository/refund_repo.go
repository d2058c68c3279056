package repository

import (
	"context"

	"boohpay/internal/models"

	"gorm.io/gorm"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) WithTx(tx *gorm.DB) *RefundRepository {
	return &RefundRepository{db: tx}
}

func (r *RefundRepository) Create(ctx context.Context, rf *models.Refund) error {
	return translate(r.db.WithContext(ctx).Create(rf).Error)
}

func (r *RefundRepository) GetByID(ctx context.Context, id string) (*models.Refund, error) {
	var rf models.Refund
	err := r.db.WithContext(ctx).Preload("Events", orderEvents).First(&rf, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &rf, nil
}

// Lock reloads a refund inside a transaction, taking a row lock where the dialect supports it.
func (r *RefundRepository) Lock(ctx context.Context, id string) (*models.Refund, error) {
	var v models.Refund
	if err := forUpdate(r.db.WithContext(ctx)).First(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *RefundRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	delete(fields, "amount_minor")
	return translate(r.db.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", id).Updates(fields).Error)
}

func (r *RefundRepository) AppendEvent(ctx context.Context, ev *models.RefundEvent) error {
	return translate(r.db.WithContext(ctx).Create(ev).Error)
}

// SumActive totals PENDING, PROCESSING and SUCCEEDED refunds of a payment.
func (r *RefundRepository) SumActive(ctx context.Context, paymentID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("payment_id = ? AND status IN ?", paymentID, []string{"PENDING", "PROCESSING", "SUCCEEDED"}).
		Select("COALESCE(SUM(amount_minor), 0)").Scan(&total).Error
	return total, err
}

func (r *RefundRepository) ListByPayment(ctx context.Context, merchantID, paymentID string) ([]models.Refund, error) {
	var list []models.Refund
	err := r.db.WithContext(ctx).Preload("Events", orderEvents).
		Where("merchant_id = ? AND payment_id = ?", merchantID, paymentID).
		Order("created_at DESC").Find(&list).Error
	return list, err
}
