package models

import (
	"time"

	"gorm.io/datatypes"
)

// PayPalWebhookEvent stores provider webhook deliveries with deduplication
// metadata for idempotent processing.
type PayPalWebhookEvent struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	ProviderEventID string            `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_event_id"`
	EventType       string            `gorm:"type:varchar(100);not null;index" json:"event_type"`
	ResourceID      string            `gorm:"type:varchar(128);not null;default:''" json:"resource_id"`
	Payload         datatypes.JSON    `gorm:"type:json" json:"payload"`
	Headers         datatypes.JSONMap `gorm:"type:json" json:"headers,omitempty"`
	SignatureValid  bool              `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time        `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string            `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PayPalWebhookEvent) TableName() string {
	return "paypal_webhook_events"
}
