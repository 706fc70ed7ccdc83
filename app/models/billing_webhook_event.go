package models

import "time"

// BillingProviderRazorpay is the only payment gateway wired today.
const BillingProviderRazorpay = "razorpay"

// BillingWebhookEvent is the delivery log of gateway notifications. One row per
// provider event id; redeliveries bump DeliveryCount and keep FirstReceivedAt,
// which anchors the validity window granted by the event.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PaymentID       string     `gorm:"type:varchar(191);not null;default:'';index" json:"payment_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	DeliveryCount   int        `gorm:"not null;default:1" json:"delivery_count"`
	FirstReceivedAt time.Time  `gorm:"type:timestamp;not null" json:"first_received_at"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
