package repository

import (
	"context"

	"boohpay/internal/models"

	"gorm.io/gorm"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) WithTx(tx *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: tx}
}

func (r *PayoutRepository) Create(ctx context.Context, p *models.Payout) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *PayoutRepository) GetByID(ctx context.Context, id string) (*models.Payout, error) {
	var p models.Payout
	if err := r.db.WithContext(ctx).Preload("Events", orderEvents).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PayoutRepository) GetForMerchant(ctx context.Context, merchantID, id string) (*models.Payout, error) {
	var p models.Payout
	err := r.db.WithContext(ctx).Preload("Events", orderEvents).
		Where("id = ? AND merchant_id = ?", id, merchantID).First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetByExternalRef finds a payout by its external reference, optionally for one provider.
func (r *PayoutRepository) GetByExternalRef(ctx context.Context, ref, provider string) (*models.Payout, error) {
	var p models.Payout
	q := r.db.WithContext(ctx).Where("external_reference = ?", ref)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if err := q.Order("created_at DESC").First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Lock reloads a payout inside a transaction, taking a row lock where the dialect supports it.
func (r *PayoutRepository) Lock(ctx context.Context, id string) (*models.Payout, error) {
	var v models.Payout
	if err := forUpdate(r.db.WithContext(ctx)).First(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *PayoutRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	delete(fields, "amount_minor")
	delete(fields, "currency")
	return translate(r.db.WithContext(ctx).Model(&models.Payout{}).Where("id = ?", id).Updates(fields).Error)
}

func (r *PayoutRepository) AppendEvent(ctx context.Context, ev *models.PayoutEvent) error {
	return translate(r.db.WithContext(ctx).Create(ev).Error)
}

type PayoutFilter struct {
	Status   string
	Provider string
	Page
}

func (r *PayoutRepository) List(ctx context.Context, merchantID string, f PayoutFilter) ([]models.Payout, int64, error) {
	pg := f.Page.normalize()
	q := r.db.WithContext(ctx).Model(&models.Payout{}).Where("merchant_id = ?", merchantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Payout
	err := q.Order("created_at DESC").Limit(pg.Limit).Offset(pg.offset()).Find(&list).Error
	return list, total, err
}

func (r *PayoutRepository) ListInWindow(ctx context.Context, merchantID string, w Window) ([]models.Payout, error) {
	var list []models.Payout
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND created_at >= ? AND created_at < ?", merchantID, w.Start, w.End).
		Order("created_at ASC").Find(&list).Error
	return list, err
}

// SucceededTotals sums SUCCEEDED payout amounts per currency.
func (r *PayoutRepository) SucceededTotals(ctx context.Context, merchantID string) (map[string]int64, error) {
	return sumByCurrency(r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("merchant_id = ? AND status = ?", merchantID, "SUCCEEDED"))
}
