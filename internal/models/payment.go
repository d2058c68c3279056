package models

import (
	"time"

	"gorm.io/datatypes"
)

// Payment is the canonical record of a pay-in, stored in the transactions table.
// AmountMinor and Currency are written once at creation.
type Payment struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	MerchantID        string            `gorm:"size:36;not null;index:idx_tx_merchant_created,priority:1;index:idx_tx_merchant_order,priority:1" json:"merchant_id"`
	OrderID           string            `gorm:"size:128;not null;index:idx_tx_merchant_order,priority:2" json:"order_id"`
	AmountMinor       int64             `gorm:"not null" json:"amount_minor"`
	Currency          string            `gorm:"size:3;not null" json:"currency"`
	CountryCode       string            `gorm:"size:2" json:"country_code"`
	PaymentMethod     string            `gorm:"size:20;not null" json:"payment_method"`
	GatewayUsed       string            `gorm:"size:20;not null;index" json:"gateway_used"`
	Status            string            `gorm:"size:20;not null;index" json:"status"`
	ProviderReference string            `gorm:"size:255;index" json:"provider_reference"`
	CheckoutPayload   datatypes.JSONMap `json:"checkout_payload"`
	PlatformFee       int64             `gorm:"not null;default:0" json:"platform_fee"`
	AppCommission     int64             `gorm:"not null;default:0" json:"app_commission"`
	TotalFees         int64             `gorm:"not null;default:0" json:"total_fees"`
	SubscriptionID    *string           `gorm:"size:36;index" json:"subscription_id"`
	IsTestMode        bool              `gorm:"not null;default:false" json:"is_test_mode"`
	Metadata          datatypes.JSONMap `json:"metadata"`
	CreatedAt         time.Time         `gorm:"index:idx_tx_merchant_created,priority:2" json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	Events []PaymentEvent `gorm:"foreignKey:PaymentID" json:"events,omitempty"`
}

func (Payment) TableName() string {
	return "transactions"
}

// PaymentEvent is an append-only entry in a payment's history.
type PaymentEvent struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	PaymentID       string            `gorm:"size:36;not null;index" json:"payment_id"`
	Type            string            `gorm:"size:80;not null" json:"type"`
	ProviderEventID string            `gorm:"size:255" json:"provider_event_id,omitempty"`
	Payload         datatypes.JSONMap `json:"payload"`
	OccurredAt      time.Time         `gorm:"not null;index" json:"occurred_at"`
}

func (PaymentEvent) TableName() string {
	return "transaction_events"
}
