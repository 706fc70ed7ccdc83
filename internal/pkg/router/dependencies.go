package router

import (
	"github.com/ManuelReschke/CalcFox/app/controllers"
	"github.com/ManuelReschke/CalcFox/internal/pkg/middleware"
)

// Dependencies are the controllers and middleware the routers wire up.
type Dependencies struct {
	Billing *controllers.BillingController
	Auth    *controllers.AuthController
	Plans   middleware.PlanResolver
}
