package billing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotesUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Notes
	}{
		{"null", `null`, Notes{}},
		{"empty array", `[]`, Notes{}},
		{"strings", `{"user_id":"12","plan":"yearly"}`, Notes{"user_id": "12", "plan": "yearly"}},
		{"number and bool", `{"user_id":12,"promo":true}`, Notes{"user_id": "12", "promo": "true"}},
		{"nested", `{"meta":{"a":1}}`, Notes{"meta": `{"a":1}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Notes
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &n))
			assert.Equal(t, tt.want, n)
		})
	}

	var n Notes
	assert.Error(t, json.Unmarshal([]byte(`["x"]`), &n))
}

func TestNotesUserID(t *testing.T) {
	id, ok := Notes{"user_id": " 42 "}.UserID()
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, n := range []Notes{{}, {"user_id": ""}, {"user_id": "0"}, {"user_id": "-3"}, {"user_id": "u1"}} {
		_, ok := n.UserID()
		assert.False(t, ok, "%v", n)
	}
}

func TestParsePaymentNotification(t *testing.T) {
	body := []byte(`{
		"entity": "event",
		"account_id": "acc_1",
		"event": "Payment.Captured",
		"created_at": 1700000000,
		"payload": {"payment": {"entity": {
			"id": "pay_1", "order_id": "order_1", "amount": 49900, "currency": "INR",
			"status": "captured", "email": "a@b.c", "notes": {"user_id": "5", "plan": "monthly"}
		}}}
	}`)

	n, err := ParsePaymentNotification(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, n.EventType)
	assert.Equal(t, "acc_1", n.AccountID)
	assert.Equal(t, "pay_1", n.PaymentID)
	assert.Equal(t, "order_1", n.OrderID)
	assert.Equal(t, int64(49900), n.Amount)
	assert.Equal(t, "monthly", n.Notes.Plan())
	assert.Equal(t, int64(1700000000), n.CreatedAt.Unix())
	assert.True(t, isPaymentConfirmedEvent(n.EventType))
}

func TestParsePaymentNotificationErrors(t *testing.T) {
	_, err := ParsePaymentNotification([]byte(`{`))
	assert.Error(t, err)

	_, err = ParsePaymentNotification([]byte(`{"payload":{}}`))
	assert.Error(t, err)

	n, err := ParsePaymentNotification([]byte(`{"event":"refund.created"}`))
	require.NoError(t, err)
	assert.False(t, isPaymentConfirmedEvent(n.EventType))
	assert.NotNil(t, n.Notes)
}

func TestRazorpayClientCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)

		raw, _ := io.ReadAll(r.Body)
		var in OrderRequest
		assert.NoError(t, json.Unmarshal(raw, &in))
		assert.Equal(t, "9", in.Notes["user_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","entity":"order","amount":49900,"currency":"INR","receipt":"r1","status":"created","notes":{"user_id":"9","plan":"monthly"}}`))
	}))
	defer srv.Close()

	c := &RazorpayClient{KeyID: "rzp_test_key", KeySecret: "secret", APIBaseURL: srv.URL + "/v1/", HTTPClient: srv.Client()}
	order, err := c.CreateOrder(context.Background(), OrderRequest{
		Amount: 49900, Currency: "INR", Receipt: "r1", Notes: Notes{"user_id": "9", "plan": "monthly"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, "9", order.Notes["user_id"])
	assert.Equal(t, "rzp_test_key", c.PublicKeyID())
}

func TestRazorpayClientCreateOrderFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR"}}`))
	}))
	defer srv.Close()

	c := &RazorpayClient{KeyID: "k", KeySecret: "s", APIBaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
	assert.ErrorContains(t, err, "status=400")

	_, err = (&RazorpayClient{APIBaseURL: srv.URL}).CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
	assert.ErrorContains(t, err, "not configured")

	_, err = c.CreateOrder(context.Background(), OrderRequest{Currency: "INR"})
	assert.Error(t, err)
}
