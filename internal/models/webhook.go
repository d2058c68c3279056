package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessedWebhookEvent records a provider event id once it has been applied.
type ProcessedWebhookEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Provider   string    `gorm:"size:20;not null;uniqueIndex:idx_provider_event,priority:1" json:"provider"`
	EventID    string    `gorm:"size:255;not null;uniqueIndex:idx_provider_event,priority:2" json:"event_id"`
	EntityType string    `gorm:"size:20;not null" json:"entity_type"`
	EntityID   string    `gorm:"size:36;not null" json:"entity_id"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
}

func (ProcessedWebhookEvent) TableName() string {
	return "processed_webhook_events"
}

// WebhookDelivery is an outbound event queued for a merchant's webhook endpoint.
type WebhookDelivery struct {
	ID            string            `gorm:"primaryKey;size:36" json:"id"`
	MerchantID    string            `gorm:"size:36;not null;index" json:"merchant_id"`
	EventType     string            `gorm:"size:64;not null" json:"event_type"`
	Payload       datatypes.JSONMap `json:"payload"`
	Status        string            `gorm:"size:20;not null;index:idx_delivery_due,priority:1" json:"status"` // PENDING, DELIVERED, FAILED
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt time.Time         `gorm:"index:idx_delivery_due,priority:2" json:"next_attempt_at"`
	LastError     string            `gorm:"size:512" json:"last_error"`
	DeliveredAt   *time.Time        `json:"delivered_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
