package billing

import (
	"errors"
	"fmt"
)

// Error kinds of the webhook reconciler. Controllers map them to HTTP status
// codes; the gateway retries everything that is not a 2xx.
var (
	ErrAuthentication = errors.New("webhook authentication failed")
	ErrValidation     = errors.New("webhook validation failed")
	ErrTransientStore = errors.New("subscription store unavailable")
)

// Checkout errors.
var (
	ErrAlreadyPro      = errors.New("user already has an active pro subscription")
	ErrInvalidPlan     = errors.New("plan must be monthly or yearly")
	ErrGatewayFailure  = errors.New("payment gateway request failed")
	ErrUserIDRequired  = errors.New("user_id is required")
	ErrPricingNotReady = errors.New("pricing is not configured")
)

// WebhookError carries an error kind, a stable response code and the cause.
type WebhookError struct {
	Kind error
	Code string
	Err  error
}

func (e *WebhookError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Code, e.Err)
}

func (e *WebhookError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func authError(code string, err error) error {
	return &WebhookError{Kind: ErrAuthentication, Code: code, Err: err}
}

func validationError(code string, err error) error {
	return &WebhookError{Kind: ErrValidation, Code: code, Err: err}
}

func storeError(code string, err error) error {
	return &WebhookError{Kind: ErrTransientStore, Code: code, Err: err}
}

// ErrorCode returns the response code of a reconciler error, or "" if err was
// not produced by the reconciler.
func ErrorCode(err error) string {
	var werr *WebhookError
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}
