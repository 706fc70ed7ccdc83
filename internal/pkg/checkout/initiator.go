// Package checkout drives the browser side of a Pro purchase: it obtains an
// order handle, hands it to the hosted payment widget and then waits for the
// webhook-driven entitlement change to become visible.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CalcFox/internal/pkg/billing"
	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
)

var (
	ErrCheckoutInFlight = errors.New("checkout: an attempt is already in progress")
	ErrCheckoutFailed   = errors.New("checkout: could not start, please try again")
	ErrNoActiveAttempt  = errors.New("checkout: no attempt in progress")
)

// Outcome is the state of a checkout attempt after the widget reported success.
type Outcome int

const (
	Pending Outcome = iota
	Confirmed
	StillProcessing
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case StillProcessing:
		return "still_processing"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// OrderRequester obtains order handles from the backend.
type OrderRequester interface {
	CreateOrder(ctx context.Context, plan string) (*billing.CheckoutOrder, error)
}

// EntitlementSource is the read side the initiator needs from the cache.
type EntitlementSource interface {
	Current() (entitlements.Snapshot, bool)
	Refresh(ctx context.Context) (entitlements.Snapshot, error)
}

// Initiator runs at most one checkout attempt at a time.
type Initiator struct {
	orders OrderRequester
	cache  EntitlementSource
	poll   PollConfig
	now    func() time.Time

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
	attempt  uint64
}

func NewInitiator(orders OrderRequester, cache EntitlementSource, poll PollConfig) *Initiator {
	return &Initiator{orders: orders, cache: cache, poll: poll, now: time.Now}
}

// Begin requests an order handle for interval ("monthly" or "yearly").
// Nothing is retained when it fails.
func (i *Initiator) Begin(ctx context.Context, interval string) (*billing.CheckoutOrder, error) {
	snap, ok := i.cache.Current()
	if !ok {
		return nil, entitlements.ErrNotAuthenticated
	}
	if snap.ActiveAt(i.now()) {
		return nil, billing.ErrAlreadyPro
	}

	i.mu.Lock()
	if i.inFlight {
		i.mu.Unlock()
		return nil, ErrCheckoutInFlight
	}
	i.inFlight = true
	i.mu.Unlock()

	order, err := i.orders.CreateOrder(ctx, interval)
	if err != nil {
		i.reset()
		return nil, classifyOrderError(err)
	}
	return order, nil
}

// Succeeded is called from the widget's success callback. It never grants
// anything locally: it returns Pending right away and starts polling the
// entitlement cache. The channel receives the terminal outcome and is closed.
func (i *Initiator) Succeeded(ctx context.Context) (Outcome, <-chan Outcome, error) {
	i.mu.Lock()
	if !i.inFlight {
		i.mu.Unlock()
		return Pending, nil, ErrNoActiveAttempt
	}
	if i.cancel != nil {
		i.cancel()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.attempt++
	attempt := i.attempt
	i.mu.Unlock()

	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		outcome := pollUntil(pollCtx, i.poll, func(ctx context.Context) (bool, error) {
			snap, err := i.cache.Refresh(ctx)
			if err != nil {
				return false, err
			}
			return snap.ActiveAt(i.now()), nil
		})
		log.Infof("[Checkout] Post-payment poll finished: %s", outcome)
		cancel()
		i.finish(attempt)
		done <- outcome
	}()
	return Pending, done, nil
}

// Dismissed is called when the user closes the widget without paying.
func (i *Initiator) Dismissed() {
	i.reset()
}

// Cancel stops a running post-payment poll, e.g. when the user navigates away.
func (i *Initiator) Cancel() {
	i.reset()
}

// InFlight reports whether an attempt is running.
func (i *Initiator) InFlight() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inFlight
}

func (i *Initiator) reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}
	i.attempt++
	i.inFlight = false
}

// finish clears the attempt unless it was reset or replaced meanwhile.
func (i *Initiator) finish(attempt uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.attempt == attempt {
		i.cancel = nil
		i.inFlight = false
	}
}

func classifyOrderError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return entitlements.ErrNotAuthenticated
		case http.StatusConflict:
			return billing.ErrAlreadyPro
		case http.StatusBadRequest:
			return billing.ErrInvalidPlan
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
}
