package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is the merchant-facing notification log. System alerts have an empty MerchantID.
type Notification struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	MerchantID string            `gorm:"size:36;index" json:"merchant_id"`
	Type       string            `gorm:"size:50;not null;index" json:"type"`
	Title      string            `gorm:"size:255" json:"title"`
	Body       string            `gorm:"type:text" json:"body"`
	Data       datatypes.JSONMap `json:"data"`
	ReadAt     *time.Time        `json:"read_at"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
