package models

import (
	"time"

	"gorm.io/datatypes"
)

type Merchant struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	Email           string    `gorm:"size:255" json:"email"`
	Role            string    `gorm:"size:20;not null;default:'MERCHANT'" json:"role"`
	CommissionRate  float64   `gorm:"not null;default:0" json:"commission_rate"`
	CommissionFixed int64     `gorm:"not null;default:0" json:"commission_fixed"`
	DeviceToken     string    `gorm:"size:512" json:"-"`
	WebhookURL      string    `gorm:"size:512" json:"webhook_url"`
	WebhookSecret   string    `gorm:"size:255" json:"-"`
	APIKeyPrefix    string    `gorm:"size:16;uniqueIndex" json:"api_key_prefix"`
	APIKeyHash      string    `gorm:"size:255" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Merchant) TableName() string {
	return "merchants"
}

// MerchantBalance is the externally maintained ledger balance per currency.
type MerchantBalance struct {
	MerchantID string    `gorm:"primaryKey;size:36" json:"merchant_id"`
	Currency   string    `gorm:"primaryKey;size:3" json:"currency"`
	Balance    int64     `gorm:"not null" json:"balance"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (MerchantBalance) TableName() string {
	return "merchant_balances"
}

// ProviderCredential holds one merchant's credentials for one provider.
type ProviderCredential struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	MerchantID string            `gorm:"size:36;not null;uniqueIndex:idx_cred_merchant_provider,priority:1" json:"merchant_id"`
	Provider   string            `gorm:"size:20;not null;uniqueIndex:idx_cred_merchant_provider,priority:2" json:"provider"`
	Data       datatypes.JSONMap `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (ProviderCredential) TableName() string {
	return "provider_credentials"
}
