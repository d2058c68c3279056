package models

import "time"

// IdempotencyRecord maps (merchant, key) to the first response served for it. Rows are never updated.
type IdempotencyRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	MerchantID   string    `gorm:"size:36;not null;uniqueIndex:idx_idem_merchant_key,priority:1" json:"merchant_id"`
	Key          string    `gorm:"column:idem_key;size:255;not null;uniqueIndex:idx_idem_merchant_key,priority:2" json:"key"`
	RequestHash  string    `gorm:"size:64;not null" json:"request_hash"`
	StatusCode   int       `gorm:"not null" json:"status_code"`
	ResponseBody []byte    `gorm:"type:mediumblob" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `gorm:"index" json:"expires_at"`
}

func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
