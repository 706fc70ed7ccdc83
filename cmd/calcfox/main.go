package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/CalcFox/app/controllers"
	"github.com/ManuelReschke/CalcFox/app/repository"
	"github.com/ManuelReschke/CalcFox/internal/pkg/billing"
	"github.com/ManuelReschke/CalcFox/internal/pkg/cache"
	"github.com/ManuelReschke/CalcFox/internal/pkg/database"
	"github.com/ManuelReschke/CalcFox/internal/pkg/env"
	"github.com/ManuelReschke/CalcFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CalcFox/internal/pkg/router"
	"github.com/ManuelReschke/CalcFox/internal/pkg/session"
)

func main() {
	app, scheduler := NewApplication()
	scheduler.Start()
	defer scheduler.Stop()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *cron.Cron) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	session.NewSessionStore()

	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/calcfox to project root
		"../../../", // Fallback
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	webhookSecret := env.GetEnv("RAZORPAY_WEBHOOK_SECRET", "")
	if webhookSecret == "" {
		log.Println("Warning: RAZORPAY_WEBHOOK_SECRET is empty, every webhook will be rejected")
	}

	repo := billing.NewRepository(database.GetDB())
	snapshots := billing.NewRedisSnapshotCache(cache.GetClient(), billing.SnapshotTTL)
	entitlementSvc := billing.NewService(repo, snapshots)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	billingController := controllers.NewBillingController(
		billing.NewReconciler(repo, webhookSecret, snapshots),
		billing.NewOrderService(repo, billing.NewRazorpayClientFromEnv(), billing.PriceListFromEnv()),
		entitlementSvc,
	).WithOutcomeCounter(counter.NewWebhookCounter(cache.GetClient()))

	// fiber metrics
	metricsAuth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "change-me"),
		},
	})
	app.Get("/metrics", metricsAuth, monitor.New())
	app.Get("/metrics/billing", metricsAuth, billingController.HandleWebhookStats)

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing: billingController,
		Auth:    controllers.NewAuthController(repository.NewUserRepository(database.GetDB())),
		Plans:   entitlementSvc,
	})

	// expiry + profile mirror sweeper
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := billing.NewSweeper(repo, snapshots).Schedule(scheduler, env.GetEnv("BILLING_SWEEP_SPEC", billing.DefaultSweepSpec)); err != nil {
		log.Fatalf("invalid BILLING_SWEEP_SPEC: %v", err)
	}

	return app, scheduler
}
