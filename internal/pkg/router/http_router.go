package router

import (
	"github.com/ManuelReschke/CalcFox/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.NewUserContextMiddleware(h.deps.Plans))

	// Gateway webhooks are authenticated by signature, not by session
	app.Post("/webhooks/razorpay", h.deps.Billing.HandleRazorpayWebhook)

	app.Post("/register", h.deps.Auth.HandleRegister)
	app.Post("/login", h.deps.Auth.HandleLogin)
	app.Post("/logout", middleware.RequireAPISessionAuth, h.deps.Auth.HandleLogout)

	app.Post("/user/settings/billing/refresh", middleware.RequireAuth, h.deps.Billing.HandleUserBillingRefresh)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
