package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shmuelia/leadsmanager/config"
	"github.com/shmuelia/leadsmanager/pkg/api/handlers"
	"github.com/shmuelia/leadsmanager/pkg/cache"
	"github.com/shmuelia/leadsmanager/pkg/database"
	"github.com/shmuelia/leadsmanager/pkg/jobs"
	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/logger"
	"github.com/shmuelia/leadsmanager/pkg/metrics"
	custommiddleware "github.com/shmuelia/leadsmanager/pkg/middleware"
	"github.com/shmuelia/leadsmanager/pkg/sheets"
	"github.com/shmuelia/leadsmanager/pkg/store"
	syncpkg "github.com/shmuelia/leadsmanager/pkg/sync"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0, // Capture 100% of transactions in development, adjust in production
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize database
	db, err := database.NewClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis cache
	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Initialize stores and services
	st := store.New(db.DB)
	leadService := leads.NewService(st.Leads, st.Customers, cfg.DefaultPhoneRegion)

	fetcher := sheets.NewCSVFetcher(time.Duration(cfg.SyncFetchTimeout) * time.Second)
	syncEngine := syncpkg.NewEngine(fetcher, leadService, st.Campaigns, redisClient,
		time.Duration(cfg.SyncLockTTL)*time.Second, appLogger)
	orchestrator := syncpkg.NewOrchestrator(syncEngine, st.Campaigns, prometheusMetrics, appLogger)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Initialize rate limiters
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	// Webhook deliveries burst when a campaign goes live
	webhookRateLimiter := custommiddleware.NewRateLimiter(cfg.WebhookRequestsPerMinute, cfg.WebhookBurst)

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true, // Repanic after capturing to let the Recover middleware handle it
		}))
	}

	// Prometheus metrics middleware
	e.Use(prometheusMetrics.Middleware())

	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())

	// Health check endpoints (public)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "LeadsManager API",
			"version":     "1.0.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}

		if _, err := redisClient.Redis.Ping(c.Request().Context()).Result(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
			"cache":    "up",
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Initialize cron manager for the recurring sheet sync
	cronManager := jobs.NewCronManager(orchestrator, cfg.SyncSchedule, appLogger)
	if cfg.SyncSchedule != "" {
		if err := cronManager.SetupJobs(); err != nil {
			log.Fatalf("❌ Failed to setup cron jobs: %v", err)
		}
		cronManager.Start()
		log.Printf("✅ Cron jobs started successfully")
	} else {
		log.Printf("ℹ️  Scheduled sync disabled (no SYNC_SCHEDULE configured)")
	}

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(leadService, prometheusMetrics, appLogger)
	leadHandler := handlers.NewLeadHandler(leadService, prometheusMetrics)
	campaignHandler := handlers.NewCampaignHandler(st.Campaigns, st.Customers)
	customerHandler := handlers.NewCustomerHandler(st.Customers)
	syncHandler := handlers.NewSyncHandler(orchestrator)
	importHandler := handlers.NewImportHandler(leadService, prometheusMetrics)

	// Webhook routes: ad platforms push leads here. Verification probes and
	// deliveries share the per-customer path.
	e.GET("/webhook/:customer", webhookHandler.Verify)
	e.POST("/webhook/:customer", webhookHandler.Receive, webhookRateLimiter.RateLimitMiddleware())

	// API routes
	api := e.Group("/api", globalRateLimiter.RateLimitMiddleware())
	{
		api.POST("/customers", customerHandler.Create)
		api.GET("/customers", customerHandler.List)

		customerGroup := api.Group("/customers/:customer")
		{
			customerGroup.GET("/leads", leadHandler.List)
			customerGroup.GET("/leads/:id", leadHandler.Get)
			customerGroup.PUT("/leads/:id/status", leadHandler.UpdateStatus)
			customerGroup.POST("/leads/:id/activities", leadHandler.AddActivity)
			customerGroup.POST("/leads/repair", leadHandler.Repair)
			customerGroup.GET("/campaigns", campaignHandler.List)
			customerGroup.POST("/import/xlsx", importHandler.ImportXLSX)
		}

		api.POST("/campaigns", campaignHandler.Create)
		api.PUT("/campaigns/:id", campaignHandler.Update)
		api.POST("/campaigns/:id/reset-watermark", campaignHandler.ResetWatermark)

		api.POST("/sync", syncHandler.SyncAll)
		api.POST("/sync/campaigns/:id", syncHandler.SyncCampaign)
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 LeadsManager API starting on %s", address)
	log.Printf("📝 Log level: %s, Log format: %s", cfg.LogLevel, cfg.LogFormat)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d), webhooks %d req/min (burst: %d)",
		cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst,
		cfg.WebhookRequestsPerMinute, cfg.WebhookBurst)
	log.Printf("⏰ Sheet sync schedule: %s", cfg.SyncSchedule)

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Stop cron jobs
	cronManager.Stop()
	log.Println("✅ Cron jobs stopped")

	// Gracefully shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
