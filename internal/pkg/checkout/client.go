package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/ManuelReschke/CalcFox/internal/pkg/billing"
	"github.com/ManuelReschke/CalcFox/internal/pkg/entitlements"
)

const (
	ordersPath       = "/api/v1/billing/orders"
	subscriptionPath = "/api/v1/billing/subscription"
)

// APIError is a non-2xx answer from the CalcFox API.
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("calcfox api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("calcfox api: status %d: %s", e.StatusCode, e.Code)
}

// APIClient calls the billing endpoints with the session cookie of a signed
// in user. It implements entitlements.Loader.
type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ entitlements.Loader = (*APIClient)(nil)

// NewAPIClient creates a client with its own cookie jar when httpClient is nil.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Jar: jar, Timeout: 15 * time.Second}
	}
	return &APIClient{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: httpClient}
}

// CreateOrder asks the backend for a gateway order handle.
func (c *APIClient) CreateOrder(ctx context.Context, plan string) (*billing.CheckoutOrder, error) {
	body, err := json.Marshal(map[string]string{"plan": plan})
	if err != nil {
		return nil, err
	}
	var out billing.CheckoutOrder
	if err := c.do(ctx, http.MethodPost, ordersPath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Load fetches the session user's entitlement snapshot.
func (c *APIClient) Load(ctx context.Context) (entitlements.Snapshot, error) {
	var snap entitlements.Snapshot
	err := c.do(ctx, http.MethodGet, subscriptionPath, nil, &snap)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return entitlements.Snapshot{}, entitlements.ErrNotAuthenticated
		}
		return entitlements.Snapshot{}, err
	}
	return snap, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code = payload.Error
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
