package repository

import (
	"context"
	"time"

	"boohpay/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// Create inserts the payment with its initial events.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Preload("Events", orderEvents).First(&p, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetForMerchant loads a payment only if it belongs to merchantID.
func (r *PaymentRepository) GetForMerchant(ctx context.Context, merchantID, id string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Preload("Events", orderEvents).
		Where("id = ? AND merchant_id = ?", id, merchantID).First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID, gateway string) (*models.Payment, error) {
	var p models.Payment
	q := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if gateway != "" {
		q = q.Where("gateway_used = ?", gateway)
	}
	if err := q.Order("created_at DESC").First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *PaymentRepository) GetByProviderRef(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("provider_reference = ?", ref).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Lock reloads a payment inside a transaction, taking a row lock where the dialect supports it.
func (r *PaymentRepository) Lock(ctx context.Context, id string) (*models.Payment, error) {
	var v models.Payment
	if err := forUpdate(r.db.WithContext(ctx)).First(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// Update writes the given columns. Amount and currency are never written after insert.
func (r *PaymentRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	delete(fields, "amount_minor")
	delete(fields, "currency")
	return translate(r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Updates(fields).Error)
}

func (r *PaymentRepository) AppendEvent(ctx context.Context, ev *models.PaymentEvent) error {
	return translate(r.db.WithContext(ctx).Create(ev).Error)
}

// Delete removes a payment and its events.
func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("payment_id = ?", id).Delete(&models.PaymentEvent{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Payment{}).Error
	})
}

type PaymentFilter struct {
	Status  string
	Gateway string
	Page
}

func (r *PaymentRepository) List(ctx context.Context, merchantID string, f PaymentFilter) ([]models.Payment, int64, error) {
	pg := f.Page.normalize()
	q := r.db.WithContext(ctx).Model(&models.Payment{}).Where("merchant_id = ?", merchantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Gateway != "" {
		q = q.Where("gateway_used = ?", f.Gateway)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Payment
	err := q.Order("created_at DESC").Limit(pg.Limit).Offset(pg.offset()).Find(&list).Error
	return list, total, err
}

// ListInWindow returns a merchant's payments created in w, with events.
func (r *PaymentRepository) ListInWindow(ctx context.Context, merchantID string, w Window) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.WithContext(ctx).Preload("Events", orderEvents).
		Where("merchant_id = ? AND created_at >= ? AND created_at < ?", merchantID, w.Start, w.End).
		Order("created_at ASC").Find(&list).Error
	return list, err
}

// MerchantsInWindow lists merchants that created at least one payment in w.
func (r *PaymentRepository) MerchantsInWindow(ctx context.Context, w Window) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("created_at >= ? AND created_at < ?", w.Start, w.End).
		Distinct().Pluck("merchant_id", &ids).Error
	return ids, err
}

// SucceededTotals sums SUCCEEDED payment amounts per currency.
func (r *PaymentRepository) SucceededTotals(ctx context.Context, merchantID string) (map[string]int64, error) {
	return sumByCurrency(r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("merchant_id = ? AND status = ?", merchantID, "SUCCEEDED"))
}

// OrphanEvents returns payment events in w whose payment row no longer exists.
func (r *PaymentRepository) OrphanEvents(ctx context.Context, w Window) ([]models.PaymentEvent, error) {
	var list []models.PaymentEvent
	err := r.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Joins("LEFT JOIN transactions ON transactions.id = transaction_events.payment_id").
		Where("transactions.id IS NULL AND transaction_events.occurred_at >= ? AND transaction_events.occurred_at < ?", w.Start, w.End).
		Find(&list).Error
	return list, err
}

// LatestForSubscription returns the most recent payment billed for a subscription.
func (r *PaymentRepository) LatestForSubscription(ctx context.Context, subscriptionID string, since time.Time) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND created_at >= ?", subscriptionID, since).
		Order("created_at DESC").First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func orderEvents(db *gorm.DB) *gorm.DB {
	return db.Order("occurred_at ASC")
}

type currencySum struct {
	Currency string
	Total    int64
}

func sumByCurrency(q *gorm.DB) (map[string]int64, error) {
	var rows []currencySum
	if err := q.Select("currency, COALESCE(SUM(amount_minor), 0) AS total").Group("currency").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Currency] = row.Total
	}
	return out, nil
}
