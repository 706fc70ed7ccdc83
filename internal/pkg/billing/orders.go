package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/app/models"
	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CalcFox/internal/pkg/env"
)

// Gateway creates orders at the payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, in OrderRequest) (*RazorpayOrder, error)
	PublicKeyID() string
}

// OrderService hands out order handles for the hosted payment widget.
type OrderService struct {
	repo     Repository
	gateway  Gateway
	prices   PriceList
	validate *validator.Validate
	now      func() time.Time
}

func NewOrderService(repo Repository, gateway Gateway, prices PriceList) *OrderService {
	return &OrderService{
		repo:     repo,
		gateway:  gateway,
		prices:   prices,
		validate: validator.New(),
		now:      time.Now,
	}
}

// PriceListFromEnv reads PRO_MONTHLY_AMOUNT, PRO_YEARLY_AMOUNT and
// PRO_CURRENCY. Amounts are in minor units.
func PriceListFromEnv() PriceList {
	return PriceList{
		Monthly:  env.GetEnvInt64("PRO_MONTHLY_AMOUNT", 0),
		Yearly:   env.GetEnvInt64("PRO_YEARLY_AMOUNT", 0),
		Currency: strings.ToUpper(strings.TrimSpace(env.GetEnv("PRO_CURRENCY", "INR"))),
	}
}

// CreateCheckoutOrder creates a gateway order for a non-pro user. Nothing
// about the user's entitlement changes here; only the webhook grants pro.
func (s *OrderService) CreateCheckoutOrder(ctx context.Context, in CheckoutRequest) (*CheckoutOrder, error) {
	if in.UserID == 0 {
		return nil, ErrUserIDRequired
	}
	in.Plan = strings.ToLower(strings.TrimSpace(in.Plan))
	if err := s.validate.Struct(in); err != nil || !isKnownInterval(in.Plan) {
		return nil, ErrInvalidPlan
	}

	amount := s.prices.amountFor(in.Plan)
	if amount <= 0 || s.prices.Currency == "" {
		return nil, ErrPricingNotReady
	}

	sub, err := s.repo.GetSubscriptionByUser(ctx, in.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if sub != nil && entitlements.IsPro(sub.Plan, sub.Status, sub.EndDate, s.now()) {
		return nil, ErrAlreadyPro
	}

	receipt := uuid.NewString()
	order, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   amount,
		Currency: s.prices.Currency,
		Receipt:  receipt,
		Notes: Notes{
			"user_id": formatUserID(in.UserID),
			"plan":    in.Plan,
		},
	})
	if err != nil {
		log.Errorf("[Billing] Gateway order creation failed for user %d: %v", in.UserID, err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}

	if err := s.repo.CreateOrder(ctx, &models.BillingOrder{
		UserID:          in.UserID,
		Provider:        models.BillingProviderRazorpay,
		ProviderOrderID: order.ID,
		Receipt:         receipt,
		BillingInterval: in.Plan,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Status:          models.BillingOrderStatusCreated,
	}); err != nil {
		// The order row is bookkeeping only; the webhook links payment to user via notes.
		log.Warnf("[Billing] Could not persist order %q for user %d: %v", order.ID, in.UserID, err)
	}

	currency := order.Currency
	if currency == "" {
		currency = s.prices.Currency
	}
	amountOut := order.Amount
	if amountOut == 0 {
		amountOut = amount
	}

	return &CheckoutOrder{
		OrderID:     order.ID,
		Amount:      amountOut,
		Currency:    currency,
		KeyID:       s.gateway.PublicKeyID(),
		Description: planDescription(in.Plan),
		Prefill: Prefill{
			Email: strings.TrimSpace(in.Email),
			Name:  strings.TrimSpace(in.Name),
		},
	}, nil
}

func planDescription(interval string) string {
	if normalizeInterval(interval) == models.BillingIntervalYearly {
		return "CalcFox Pro (yearly)"
	}
	return "CalcFox Pro (monthly)"
}
