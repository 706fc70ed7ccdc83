package models

import "time"

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusExpired  = "expired"
)

const (
	BillingIntervalMonthly = "monthly"
	BillingIntervalYearly  = "yearly"
)

// Subscription is the authoritative entitlement record of a user. There is
// exactly one row per user; it is written by the webhook reconciler and the
// expiry sweeper only.
type Subscription struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;uniqueIndex:ux_subscriptions_user" json:"user_id"`
	Plan            string     `gorm:"type:varchar(20);not null;default:'free';index" json:"plan"`
	Status          string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	BillingInterval string     `gorm:"type:varchar(16);not null;default:''" json:"billing_interval"`
	StartDate       *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	EndDate         *time.Time `gorm:"type:timestamp;default:null;index" json:"end_date,omitempty"`
	LastPaymentID   string     `gorm:"type:varchar(191);not null;default:''" json:"last_payment_id"`
	LastOrderID     string     `gorm:"type:varchar(191);not null;default:''" json:"last_order_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewFreeSubscription returns the row created together with a new account.
func NewFreeSubscription(userID uint, now time.Time) *Subscription {
	start := now
	return &Subscription{
		UserID:    userID,
		Plan:      PlanFree,
		Status:    SubscriptionStatusActive,
		StartDate: &start,
	}
}
