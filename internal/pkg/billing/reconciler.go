package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/app/models"
	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
)

// Reconciler turns authenticated payment notifications into subscription
// state. It holds no per-request state and is safe for concurrent use.
type Reconciler struct {
	repo     Repository
	secret   string
	snapshot SnapshotCache
	now      func() time.Time
}

// NewReconciler creates a reconciler that verifies deliveries with secret.
func NewReconciler(repo Repository, secret string, snapshot SnapshotCache) *Reconciler {
	if snapshot == nil {
		snapshot = NopSnapshotCache{}
	}
	return &Reconciler{
		repo:     repo,
		secret:   secret,
		snapshot: snapshot,
		now:      time.Now,
	}
}

// Handle authenticates and applies one webhook delivery. A nil error means the
// gateway must be acknowledged with 2xx, including for ignored event types.
func (r *Reconciler) Handle(ctx context.Context, d WebhookDelivery) (*WebhookResult, error) {
	if len(d.Body) == 0 {
		return nil, validationError("empty_body", nil)
	}
	if strings.TrimSpace(d.Signature) == "" {
		return nil, validationError("missing_signature", nil)
	}
	if !VerifyWebhookSignature(d.Body, d.Signature, r.secret) {
		log.Warnf("[Billing] Rejected webhook with invalid signature (event_id=%q)", d.EventID)
		return nil, authError("invalid_signature", nil)
	}

	notification, err := ParsePaymentNotification(d.Body)
	if err != nil {
		log.Errorf("[Billing] Authenticated webhook with unparseable body: %v", err)
		return nil, validationError("invalid_payload", err)
	}

	if !isPaymentConfirmedEvent(notification.EventType) {
		redelivery, id := r.recordBestEffort(ctx, d, notification)
		r.markProcessed(ctx, id, nil)
		return &WebhookResult{EventType: notification.EventType, Ignored: true, Redelivery: redelivery}, nil
	}

	userID, ok := notification.Notes.UserID()
	if !ok {
		err := errors.New("payment notes missing user_id")
		log.Errorf("[Billing] %s for payment %q (order %q); check the checkout order notes", err, notification.PaymentID, notification.OrderID)
		_, id := r.recordBestEffort(ctx, d, notification)
		r.markProcessed(ctx, id, err)
		return nil, validationError("missing_user_id", err)
	}

	created, stored, err := r.repo.RecordWebhookDelivery(ctx, deliveryEvent(d, notification, r.now()))
	if err != nil {
		return nil, storeError("webhook_persist_failed", err)
	}

	result := &WebhookResult{EventType: notification.EventType, Redelivery: !created, UserID: userID}

	interval := normalizeInterval(notification.Notes.Plan())
	start, end := ValidityWindow(interval, windowAnchor(stored, r.now()))
	sub := &models.Subscription{
		UserID:          userID,
		Plan:            models.PlanPro,
		Status:          models.SubscriptionStatusActive,
		BillingInterval: interval,
		StartDate:       &start,
		EndDate:         &end,
		LastPaymentID:   notification.PaymentID,
		LastOrderID:     notification.OrderID,
	}
	if err := r.repo.ActivateSubscription(ctx, sub); err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			log.Errorf("[Billing] Payment %q references unknown user %d: %v", notification.PaymentID, userID, err)
			r.markProcessed(ctx, stored.ID, err)
			return nil, validationError("unknown_user", err)
		}
		log.Errorf("[Billing] Subscription update failed for user %d (payment %q): %v", userID, notification.PaymentID, err)
		r.markProcessed(ctx, stored.ID, err)
		return nil, storeError("subscription_update_failed", err)
	}
	result.Subscription = sub

	log.Infof("[Billing] User %d is pro until %s (payment %q, interval %s, redelivery=%t)",
		userID, end.UTC().Format(time.RFC3339), notification.PaymentID, interval, result.Redelivery)

	// The profile mirror is a projection; the subscription row is authoritative.
	if err := r.repo.UpdateProfilePlanType(ctx, userID, string(entitlements.PlanPro)); err != nil {
		log.Warnf("[Billing] Profile plan mirror update failed for user %d: %v", userID, err)
	}
	if notification.OrderID != "" {
		if err := r.repo.MarkOrderPaid(ctx, models.BillingProviderRazorpay, notification.OrderID); err != nil {
			log.Warnf("[Billing] Could not mark order %q as paid: %v", notification.OrderID, err)
		}
	}
	if err := r.snapshot.Delete(ctx, userID); err != nil {
		log.Warnf("[Billing] Entitlement cache invalidation failed for user %d: %v", userID, err)
	}

	r.markProcessed(ctx, stored.ID, nil)
	return result, nil
}

// recordBestEffort logs a delivery that will not touch the subscription. A
// failing log write must not turn such a delivery into a retryable error.
func (r *Reconciler) recordBestEffort(ctx context.Context, d WebhookDelivery, n *PaymentNotification) (bool, uint) {
	created, stored, err := r.repo.RecordWebhookDelivery(ctx, deliveryEvent(d, n, r.now()))
	if err != nil {
		log.Warnf("[Billing] Could not log %s delivery (event_id=%q): %v", n.EventType, d.EventID, err)
		return false, 0
	}
	return !created, stored.ID
}

func deliveryEvent(d WebhookDelivery, n *PaymentNotification, now time.Time) *models.BillingWebhookEvent {
	return &models.BillingWebhookEvent{
		Provider:        models.BillingProviderRazorpay,
		ProviderEventID: deliveryKey(d.EventID, d.Body),
		EventType:       n.EventType,
		PaymentID:       n.PaymentID,
		PayloadJSON:     string(d.Body),
		DeliveryCount:   1,
		FirstReceivedAt: now,
	}
}

func (r *Reconciler) markProcessed(ctx context.Context, id uint, processingErr error) {
	if id == 0 {
		return
	}
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := r.repo.MarkWebhookProcessed(ctx, id, msg); err != nil {
		log.Warnf("[Billing] Could not mark webhook event %d processed: %v", id, err)
	}
}

// deliveryKey identifies a delivery for the log: the gateway's event id when
// present, otherwise a hash of the raw body.
func deliveryKey(eventID string, body []byte) string {
	if id := strings.TrimSpace(eventID); id != "" {
		return id
	}
	sum := sha256.Sum256(body)
	return "hash:" + hex.EncodeToString(sum[:])
}

// windowAnchor pins the window of an event to the moment it was first
// received, so a redelivery sets the same absolute window again.
func windowAnchor(stored *models.BillingWebhookEvent, now time.Time) time.Time {
	if stored == nil || stored.FirstReceivedAt.IsZero() {
		return now
	}
	return stored.FirstReceivedAt
}

func formatUserID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
