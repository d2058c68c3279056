package models

import (
	"time"

	"gorm.io/datatypes"
)

type Refund struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	PaymentID         string            `gorm:"size:36;not null;index" json:"payment_id"`
	MerchantID        string            `gorm:"size:36;not null;index" json:"merchant_id"`
	AmountMinor       int64             `gorm:"not null" json:"amount_minor"`
	Currency          string            `gorm:"size:3;not null" json:"currency"`
	Status            string            `gorm:"size:20;not null;index" json:"status"` // PENDING, PROCESSING, SUCCEEDED, FAILED
	ProviderReference string            `gorm:"size:255" json:"provider_reference"`
	FailureCode       string            `gorm:"size:255" json:"failure_code"`
	Reason            string            `gorm:"size:255" json:"reason"`
	Metadata          datatypes.JSONMap `json:"metadata"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	Events []RefundEvent `gorm:"foreignKey:RefundID" json:"events,omitempty"`
}

func (Refund) TableName() string {
	return "refunds"
}

type RefundEvent struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	RefundID   string            `gorm:"size:36;not null;index" json:"refund_id"`
	Type       string            `gorm:"size:80;not null" json:"type"`
	Payload    datatypes.JSONMap `json:"payload"`
	OccurredAt time.Time         `gorm:"not null" json:"occurred_at"`
}

func (RefundEvent) TableName() string {
	return "refund_events"
}
