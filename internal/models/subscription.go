package models

import (
	"time"

	"gorm.io/datatypes"
)

type Subscription struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	MerchantID      string            `gorm:"size:36;not null;index" json:"merchant_id"`
	CustomerEmail   string            `gorm:"size:255;not null" json:"customer_email"`
	CustomerPhone   string            `gorm:"size:32" json:"customer_phone"`
	AmountMinor     int64             `gorm:"not null" json:"amount_minor"`
	Currency        string            `gorm:"size:3;not null" json:"currency"`
	CountryCode     string            `gorm:"size:2" json:"country_code"`
	PaymentMethod   string            `gorm:"size:20" json:"payment_method"`
	BillingCycle    string            `gorm:"size:20;not null" json:"billing_cycle"`
	Status          string            `gorm:"size:20;not null;index:idx_sub_due,priority:1" json:"status"`
	NextBillingDate time.Time         `gorm:"index:idx_sub_due,priority:2" json:"next_billing_date"`
	LastBillingDate *time.Time        `json:"last_billing_date"`
	CancelledAt     *time.Time        `json:"cancelled_at"`
	IsTestMode      bool              `gorm:"not null;default:false" json:"is_test_mode"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// DunningAttempt is one retry step for a failed subscription charge. Earlier rows stay for audit.
type DunningAttempt struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	SubscriptionID string     `gorm:"size:36;not null;index" json:"subscription_id"`
	PaymentID      string     `gorm:"size:36;not null" json:"payment_id"`
	AttemptNumber  int        `gorm:"not null" json:"attempt_number"`
	Status         string     `gorm:"size:20;not null" json:"status"` // pending, succeeded, failed
	NextRetryAt    *time.Time `json:"next_retry_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (DunningAttempt) TableName() string {
	return "dunning_attempts"
}
