package models

import (
	"time"

	"gorm.io/datatypes"
)

type ReconciliationLog struct {
	RunID       string         `gorm:"primaryKey;size:96" json:"run_id"`
	MerchantID  string         `gorm:"size:36;index" json:"merchant_id"`
	StartedAt   time.Time      `gorm:"index" json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Result      datatypes.JSON `json:"result"`
	IssuesCount int            `json:"issues_count"`
	ArchiveURL  string         `gorm:"size:512" json:"archive_url"`
}

func (ReconciliationLog) TableName() string {
	return "reconciliation_logs"
}

type ReconciliationSummary struct {
	Date               string    `gorm:"primaryKey;size:10" json:"date"`
	MerchantsProcessed int       `json:"merchants_processed"`
	TotalPayments      int       `json:"total_payments"`
	TotalPayouts       int       `json:"total_payouts"`
	TotalVolume        int64     `json:"total_volume"`
	IssuesCount        int       `json:"issues_count"`
	Status             string    `gorm:"size:20" json:"status"` // SUCCESS, PARTIAL, FAILED
	UpdatedAt          time.Time `json:"updated_at"`
}

func (ReconciliationSummary) TableName() string {
	return "reconciliation_summaries"
}
