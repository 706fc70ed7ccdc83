package models

import "time"

const (
	BillingOrderStatusCreated = "created"
	BillingOrderStatusPaid    = "paid"
)

// BillingOrder records a gateway order handed out to a checkout attempt.
type BillingOrder struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_billing_orders_provider_order,unique,priority:1" json:"provider"`
	ProviderOrderID string    `gorm:"type:varchar(191);not null;index:ux_billing_orders_provider_order,unique,priority:2" json:"provider_order_id"`
	Receipt         string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"receipt"`
	BillingInterval string    `gorm:"type:varchar(16);not null" json:"billing_interval"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Currency        string    `gorm:"type:varchar(8);not null" json:"currency"`
	Status          string    `gorm:"type:varchar(20);not null;default:'created'" json:"status"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
