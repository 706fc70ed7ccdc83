package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/internal/pkg/billing"
	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CalcFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CalcFox/internal/pkg/session"
	"github.com/ManuelReschke/CalcFox/internal/pkg/usercontext"
)

const billingSettingsRoute = "/user/settings"

// WebhookOutcomeCounter records webhook outcomes for operators.
type WebhookOutcomeCounter interface {
	Add(ctx context.Context, outcome string) error
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// BillingController serves the gateway webhook and the entitlement endpoints.
type BillingController struct {
	reconciler   *billing.Reconciler
	orders       *billing.OrderService
	entitlements *billing.Service
	outcomes     WebhookOutcomeCounter
}

// NewBillingController creates a billing controller from its services
func NewBillingController(reconciler *billing.Reconciler, orders *billing.OrderService, entitlements *billing.Service) *BillingController {
	return &BillingController{
		reconciler:   reconciler,
		orders:       orders,
		entitlements: entitlements,
	}
}

// WithOutcomeCounter enables webhook outcome counting.
func (bc *BillingController) WithOutcomeCounter(outcomes WebhookOutcomeCounter) *BillingController {
	bc.outcomes = outcomes
	return bc
}

func (bc *BillingController) countOutcome(ctx context.Context, outcome string) {
	if bc.outcomes == nil {
		return
	}
	if err := bc.outcomes.Add(ctx, outcome); err != nil {
		log.Debugf("[BillingController] Could not count webhook outcome %s: %v", outcome, err)
	}
}

// HandleRazorpayWebhook authenticates and applies a gateway notification.
// Anything but 2xx makes the gateway retry the delivery.
func (bc *BillingController) HandleRazorpayWebhook(c *fiber.Ctx) error {
	// fiber reuses the request buffer; the signature covers these exact bytes
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := bc.reconciler.Handle(ctx, billing.WebhookDelivery{
		Body:      rawBody,
		Signature: strings.TrimSpace(c.Get(billing.HeaderWebhookSignature)),
		EventID:   firstHeaderValue(c, billing.HeaderWebhookEventID),
	})
	if err != nil {
		code := billing.ErrorCode(err)
		if code == "" {
			code = "webhook_failed"
		}
		switch {
		case errors.Is(err, billing.ErrAuthentication):
			bc.countOutcome(ctx, counter.OutcomeInvalidSignature)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": code})
		case errors.Is(err, billing.ErrValidation):
			bc.countOutcome(ctx, counter.OutcomeInvalid)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": code})
		default:
			bc.countOutcome(ctx, counter.OutcomeStoreError)
			log.Errorf("[BillingController] Webhook processing failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": code})
		}
	}

	resp := fiber.Map{"received": true}
	switch {
	case res.Ignored:
		resp["ignored"] = true
		bc.countOutcome(ctx, counter.OutcomeIgnored)
	case res.Redelivery:
		bc.countOutcome(ctx, counter.OutcomeRedelivery)
	default:
		bc.countOutcome(ctx, counter.OutcomeProcessed)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleWebhookStats returns the webhook outcome counters.
func (bc *BillingController) HandleWebhookStats(c *fiber.Ctx) error {
	if bc.outcomes == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := bc.outcomes.Snapshot(ctx)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

type createOrderRequest struct {
	Plan string `json:"plan"`
}

// HandleCreateOrder returns an order handle for the payment widget.
func (bc *BillingController) HandleCreateOrder(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	order, err := bc.orders.CreateCheckoutOrder(ctx, billing.CheckoutRequest{
		UserID: userCtx.UserID,
		Email:  userCtx.Email,
		Name:   userCtx.Username,
		Plan:   req.Plan,
	})
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrAlreadyPro):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_pro"})
		case errors.Is(err, billing.ErrInvalidPlan):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_plan"})
		case errors.Is(err, billing.ErrPricingNotReady):
			log.Errorf("[BillingController] Pricing is not configured")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "checkout_unavailable"})
		case errors.Is(err, billing.ErrGatewayFailure):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed"})
		default:
			log.Errorf("[BillingController] Checkout order for user %d failed: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "checkout_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(order)
}

type subscriptionResponse struct {
	entitlements.Snapshot
	Limits entitlements.Limits `json:"limits"`
}

// HandleGetSubscription returns the session user's entitlement snapshot and
// re-syncs the plan cached in the session.
func (bc *BillingController) HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := bc.entitlements.Entitlement(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription_not_found"})
		}
		log.Errorf("[BillingController] Entitlement read for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entitlement_unavailable"})
	}

	plan := snap.EffectivePlanAt(time.Now())
	if string(plan) != userCtx.Plan {
		_ = session.SetSessionValue(c, usercontext.KeyUserPlan, string(plan))
	}
	return c.Status(fiber.StatusOK).JSON(subscriptionResponse{
		Snapshot: snap,
		Limits:   entitlements.LimitsFor(plan),
	})
}

// HandleUserBillingRefresh re-reads the subscription and updates the session plan.
func (bc *BillingController) HandleUserBillingRefresh(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snap, err := bc.entitlements.Refresh(ctx, userCtx.UserID)
	if err != nil {
		log.Warnf("[BillingController] Refresh for user %d failed: %v", userCtx.UserID, err)
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not refresh your plan, please try again"}).Redirect(billingSettingsRoute)
	}

	plan := string(snap.EffectivePlanAt(time.Now()))
	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, plan)
	msg := fmt.Sprintf("Plan refreshed. Active plan: %s", plan)
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": msg}).Redirect(billingSettingsRoute)
}
