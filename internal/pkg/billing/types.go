package billing

import (
	"time"

	"github.com/ManuelReschke/CalcFox/app/models"
)

// WebhookDelivery is one inbound gateway call as received on the wire.
type WebhookDelivery struct {
	Body      []byte
	Signature string
	EventID   string
}

// WebhookResult describes what the reconciler did with an authenticated delivery.
type WebhookResult struct {
	EventType    string
	Ignored      bool
	Redelivery   bool
	UserID       uint
	Subscription *models.Subscription
}

// ProfileMirror pairs a profile's plan_type with the subscription it mirrors.
type ProfileMirror struct {
	UserID   uint
	PlanType string
	Plan     string
	Status   string
	EndDate  *time.Time
}

// CheckoutRequest is the authenticated user's request for an order handle.
type CheckoutRequest struct {
	UserID uint
	Email  string
	Name   string
	Plan   string `validate:"required,oneof=monthly yearly"`
}

// Prefill is optional customer data the payment widget may display.
type Prefill struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// CheckoutOrder is the order handle handed to the browser. It carries the
// public key id only.
type CheckoutOrder struct {
	OrderID     string  `json:"orderId"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	KeyID       string  `json:"keyId"`
	Description string  `json:"description"`
	Prefill     Prefill `json:"prefill"`
}

// PriceList holds the amounts charged per billing interval, in minor units.
type PriceList struct {
	Monthly  int64
	Yearly   int64
	Currency string
}

func (p PriceList) amountFor(interval string) int64 {
	if normalizeInterval(interval) == models.BillingIntervalYearly {
		return p.Yearly
	}
	return p.Monthly
}
