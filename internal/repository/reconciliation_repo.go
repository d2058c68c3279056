package repository

import (
	"context"

	"boohpay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// SaveLog upserts a run log by run id.
func (r *ReconciliationRepository) SaveLog(ctx context.Context, l *models.ReconciliationLog) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		UpdateAll: true,
	}).Create(l).Error
}

func (r *ReconciliationRepository) SetArchiveURL(ctx context.Context, runID, url string) error {
	return r.db.WithContext(ctx).Model(&models.ReconciliationLog{}).
		Where("run_id = ?", runID).Update("archive_url", url).Error
}

// SaveSummary upserts the daily summary by date.
func (r *ReconciliationRepository) SaveSummary(ctx context.Context, s *models.ReconciliationSummary) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		UpdateAll: true,
	}).Create(s).Error
}

func (r *ReconciliationRepository) GetSummary(ctx context.Context, date string) (*models.ReconciliationSummary, error) {
	var s models.ReconciliationSummary
	if err := r.db.WithContext(ctx).First(&s, "date = ?", date).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// History lists the newest run logs, optionally for one merchant.
func (r *ReconciliationRepository) History(ctx context.Context, merchantID string, limit int) ([]models.ReconciliationLog, error) {
	if limit <= 0 {
		limit = 30
	}
	q := r.db.WithContext(ctx).Model(&models.ReconciliationLog{})
	if merchantID != "" {
		q = q.Where("merchant_id = ?", merchantID)
	}
	var list []models.ReconciliationLog
	err := q.Order("started_at DESC").Limit(limit).Find(&list).Error
	return list, err
}
