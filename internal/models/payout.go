package models

import (
	"time"

	"gorm.io/datatypes"
)

type Payout struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	MerchantID        string            `gorm:"size:36;not null;index:idx_payout_merchant_created,priority:1" json:"merchant_id"`
	Provider          string            `gorm:"size:20;not null" json:"provider"`
	Status            string            `gorm:"size:20;not null;index" json:"status"` // PENDING, PROCESSING, SUCCEEDED, FAILED
	PaymentSystem     string            `gorm:"size:64;not null" json:"payment_system"`
	PayoutType        string            `gorm:"size:20;not null" json:"payout_type"`
	AmountMinor       int64             `gorm:"not null" json:"amount_minor"`
	Currency          string            `gorm:"size:3;not null" json:"currency"`
	MSISDN            string            `gorm:"column:msisdn;size:32;not null" json:"msisdn"`
	ProviderReference string            `gorm:"size:255" json:"provider_reference"`
	ExternalReference *string           `gorm:"size:128;index" json:"external_reference"`
	IsTestMode        bool              `gorm:"not null;default:false" json:"is_test_mode"`
	Metadata          datatypes.JSONMap `json:"metadata"`
	CreatedAt         time.Time         `gorm:"index:idx_payout_merchant_created,priority:2" json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	Events []PayoutEvent `gorm:"foreignKey:PayoutID" json:"events,omitempty"`
}

func (Payout) TableName() string {
	return "payouts"
}

type PayoutEvent struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	PayoutID        string            `gorm:"size:36;not null;index" json:"payout_id"`
	Type            string            `gorm:"size:80;not null" json:"type"`
	ProviderEventID string            `gorm:"size:255" json:"provider_event_id,omitempty"`
	Payload         datatypes.JSONMap `json:"payload"`
	OccurredAt      time.Time         `gorm:"not null" json:"occurred_at"`
}

func (PayoutEvent) TableName() string {
	return "payout_events"
}
