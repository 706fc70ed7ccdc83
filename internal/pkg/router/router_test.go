package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fsession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CalcFox/app/controllers"
	"github.com/ManuelReschke/CalcFox/app/models"
	"github.com/ManuelReschke/CalcFox/internal/pkg/billing"
	"github.com/ManuelReschke/CalcFox/internal/pkg/billing/billingtest"
	"github.com/ManuelReschke/CalcFox/internal/pkg/session"
)

const secret = "whsec_router"

type memoryUsers struct {
	mu      sync.Mutex
	users   map[uint]models.User
	billing *billingtest.MemoryRepository
}

func (m *memoryUsers) Register(u *models.User, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = uint(len(m.users) + 1)
	m.users[u.ID] = *u
	m.billing.SeedFreeUser(u.ID)
	return nil
}

func (m *memoryUsers) GetByID(id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (m *memoryUsers) GetByEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryUsers) ExistsByEmail(email string) (bool, error) {
	_, err := m.GetByEmail(email)
	return err == nil, nil
}

func (m *memoryUsers) TouchLastLogin(uint, time.Time) error { return nil }

func newTestApp(t *testing.T) (*fiber.App, *billingtest.MemoryRepository) {
	t.Helper()
	session.UseStore(fsession.New())
	repo := billingtest.NewMemoryRepository()
	users := &memoryUsers{users: map[uint]models.User{}, billing: repo}
	svc := billing.NewService(repo, nil)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Billing: controllers.NewBillingController(
			billing.NewReconciler(repo, secret, nil),
			billing.NewOrderService(repo, nil, billing.PriceList{Monthly: 100, Yearly: 1000, Currency: "INR"}),
			svc,
		),
		Auth:  controllers.NewAuthController(users),
		Plans: svc,
	})
	return app, repo
}

func do(t *testing.T, app *fiber.App, method, path, body, cookie string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			return c.Name + "=" + c.Value
		}
	}
	return ""
}

func TestPurchaseFlow(t *testing.T) {
	app, repo := newTestApp(t)

	resp, body := do(t, app, http.MethodPost, "/register", `{"username":"alice","email":"alice@example.com","password":"secret123"}`, "", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "free", body["plan"])

	resp, _ = do(t, app, http.MethodPost, "/register", `{"username":"alice2","email":"ALICE@example.com","password":"secret123"}`, "", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/login", `{"email":"alice@example.com","password":"wrong"}`, "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/login", `{"email":"alice@example.com","password":"secret123"}`, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cookie := sessionCookie(resp)
	require.NotEmpty(t, cookie)

	resp, body = do(t, app, http.MethodGet, "/api/v1/billing/subscription", "", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_pro"])

	payload := billingtest.PaymentPayload(billing.EventPaymentCaptured, "pay_1", "order_1", map[string]any{"user_id": "1", "plan": "yearly"})
	resp, body = do(t, app, http.MethodPost, "/webhooks/razorpay", string(payload), "", map[string]string{
		billing.HeaderWebhookSignature: billing.SignWebhookPayload(payload, secret),
		billing.HeaderWebhookEventID:   "evt_1",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])

	resp, body = do(t, app, http.MethodGet, "/api/v1/billing/subscription", "", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_pro"])
	assert.Equal(t, "pro", body["plan"])

	resp, body = do(t, app, http.MethodPost, "/api/v1/billing/orders", `{"plan":"monthly"}`, cookie, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_pro", body["error"])

	sub, _ := repo.Subscription(1)
	assert.Equal(t, models.BillingIntervalYearly, sub.BillingInterval)

	resp, _ = do(t, app, http.MethodPost, "/logout", "", cookie, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = do(t, app, http.MethodGet, "/api/v1/billing/subscription", "", cookie, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/billing/orders", `{"plan":"monthly"}`, "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/user/settings/billing/refresh", "", "", nil)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body := do(t, app, http.MethodGet, "/api/v1/ping", "", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", body["message"])
}
