package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/CalcFox/internal/pkg/env"
)

const defaultRazorpayAPIBaseURL = "https://api.razorpay.com/v1"

// Razorpay webhook event types the reconciler acts on.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
)

// Header names used by the gateway on webhook deliveries.
const (
	HeaderWebhookSignature = "X-Razorpay-Signature"
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"
)

// RazorpayClient talks to the gateway REST API with the secret key pair.
type RazorpayClient struct {
	KeyID      string
	KeySecret  string
	APIBaseURL string

	HTTPClient *http.Client
}

// RazorpayOrder is the gateway's order entity.
type RazorpayOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	Notes    Notes  `json:"notes"`
}

// OrderRequest is the body sent to the gateway when creating an order.
type OrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Notes    Notes  `json:"notes"`
}

func NewRazorpayClientFromEnv() *RazorpayClient {
	return &RazorpayClient{
		KeyID:      strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("RAZORPAY_API_BASE_URL", defaultRazorpayAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PublicKeyID is the key id the browser widget needs. It is not secret.
func (c *RazorpayClient) PublicKeyID() string {
	return c.KeyID
}

// CreateOrder creates a gateway order. Notes are echoed back on every payment
// notification for this order and are the only link to the local user.
func (c *RazorpayClient) CreateOrder(ctx context.Context, in OrderRequest) (*RazorpayOrder, error) {
	if c.KeyID == "" || c.KeySecret == "" {
		return nil, errors.New("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not configured")
	}
	if in.Amount <= 0 || strings.TrimSpace(in.Currency) == "" {
		return nil, errors.New("order amount and currency are required")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.APIBaseURL, "/") + "/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay order creation failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out RazorpayOrder
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("razorpay order response missing id")
	}
	return &out, nil
}

// Notes is the free-form key/value map attached to gateway entities. The
// gateway encodes an empty map as [] and may send scalar values unquoted.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*n = Notes{}
		return nil
	}
	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		if len(arr) > 0 {
			return errors.New("notes: non-empty array is not supported")
		}
		*n = Notes{}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var num json.Number
		if err := json.Unmarshal(v, &num); err == nil {
			out[k] = num.String()
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			out[k] = strconv.FormatBool(b)
			continue
		}
		// nested values are not used for linkage; keep them verbatim
		out[k] = string(v)
	}
	*n = out
	return nil
}

// UserID returns the local user id carried in the notes.
func (n Notes) UserID() (uint, bool) {
	raw := strings.TrimSpace(n["user_id"])
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Plan returns the billing interval carried in the notes.
func (n Notes) Plan() string {
	return strings.TrimSpace(n["plan"])
}

// PaymentNotification is the normalized form of a gateway webhook body.
type PaymentNotification struct {
	EventType string
	AccountID string
	PaymentID string
	OrderID   string
	Amount    int64
	Currency  string
	Status    string
	Email     string
	Notes     Notes
	CreatedAt time.Time
}

// ParsePaymentNotification parses an already authenticated webhook body.
func ParsePaymentNotification(payload []byte) (*PaymentNotification, error) {
	type paymentEntity struct {
		ID       string `json:"id"`
		OrderID  string `json:"order_id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
		Email    string `json:"email"`
		Notes    Notes  `json:"notes"`
	}
	type orderEntity struct {
		ID    string `json:"id"`
		Notes Notes  `json:"notes"`
	}
	type rawPayload struct {
		Entity    string `json:"entity"`
		AccountID string `json:"account_id"`
		Event     string `json:"event"`
		CreatedAt int64  `json:"created_at"`
		Payload   struct {
			Payment *struct {
				Entity paymentEntity `json:"entity"`
			} `json:"payment"`
			Order *struct {
				Entity orderEntity `json:"entity"`
			} `json:"order"`
		} `json:"payload"`
	}

	var raw rawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Event) == "" {
		return nil, errors.New("webhook payload missing event")
	}

	out := &PaymentNotification{
		EventType: strings.ToLower(strings.TrimSpace(raw.Event)),
		AccountID: strings.TrimSpace(raw.AccountID),
		Notes:     Notes{},
	}
	if raw.CreatedAt > 0 {
		out.CreatedAt = time.Unix(raw.CreatedAt, 0).UTC()
	}

	if p := raw.Payload.Payment; p != nil {
		out.PaymentID = strings.TrimSpace(p.Entity.ID)
		out.OrderID = strings.TrimSpace(p.Entity.OrderID)
		out.Amount = p.Entity.Amount
		out.Currency = strings.TrimSpace(p.Entity.Currency)
		out.Status = strings.TrimSpace(p.Entity.Status)
		out.Email = strings.TrimSpace(p.Entity.Email)
		if p.Entity.Notes != nil {
			out.Notes = p.Entity.Notes
		}
	}

	// Fallback: order.paid carries the notes on the order entity as well.
	if o := raw.Payload.Order; o != nil {
		if out.OrderID == "" {
			out.OrderID = strings.TrimSpace(o.Entity.ID)
		}
		for k, v := range o.Entity.Notes {
			if _, ok := out.Notes[k]; !ok {
				out.Notes[k] = v
			}
		}
	}

	return out, nil
}

// isPaymentConfirmedEvent reports whether the event proves a captured payment.
func isPaymentConfirmedEvent(eventType string) bool {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case EventPaymentCaptured, EventOrderPaid:
		return true
	default:
		return false
	}
}
