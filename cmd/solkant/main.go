package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/solkant/solkant/internal/app"
	"github.com/solkant/solkant/internal/auth"
	"github.com/solkant/solkant/internal/billing"
	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/catalog"
	"github.com/solkant/solkant/internal/clients"
	"github.com/solkant/solkant/internal/dashboard"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/internal/platform/cache"
	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
	"github.com/solkant/solkant/jobs"
	"github.com/solkant/solkant/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.MigrationsAuto {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 20, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "solkant_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	pages := view.NewResponder(logger, templates, csrfManager)
	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	tenantCache := cache.NewVersioned(redisClient, "solkant", cfg.DashboardCacheTTL)

	authService := auth.NewService(auth.NewRepository(dbpool), jobClient, templates, cfg.AppBaseURL, logger)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	businessRepo := businesses.NewRepository(dbpool)
	businessService := businesses.NewService(businessRepo)

	clientService := clients.NewService(clients.NewRepository(dbpool), tenantCache, auditLogger, logger)
	catalogManager := catalog.NewManager(catalog.NewRepository(dbpool), tenantCache, logger)

	quoteService := quotes.NewService(quotes.NewRepository(dbpool), logger,
		quotes.WithLocation(cfg.Location()),
		quotes.WithPackages(catalogManager),
		quotes.WithBusinesses(businessService),
		quotes.WithDispatcher(jobClient),
		quotes.WithAudit(auditLogger),
		quotes.WithInvalidator(tenantCache),
		quotes.WithMetrics(metrics),
	)
	documentService := app.NewDocuments(cfg, templates, businessService, metrics, logger)

	var gateway billing.Gateway
	if cfg.BillingEnabled() {
		gateway = billing.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	}
	billingService := billing.NewService(gateway, businessRepo, idempotencyStore, billing.Prices{
		Monthly: cfg.StripePriceMonthly,
		Yearly:  cfg.StripePriceYearly,
	}, cfg.AppBaseURL, metrics, logger)

	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), tenantCache, cfg.Location())

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var reportHandler *report.Handler
	if cfg.PDFEngine == app.PDFEngineGotenberg {
		reportHandler = report.NewHandler(report.NewClient(cfg.GotenbergURL), logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, pages),
		ClientsHandler:   clients.NewHandler(logger, clientService, pages),
		CatalogHandler:   catalog.NewHandler(logger, catalogManager, pages),
		QuotesHandler:    quotes.NewHandler(logger, quoteService, documentService, clientService, catalogManager, pages),
		SettingsHandler:  businesses.NewHandler(logger, businessService, pages),
		BillingHandler:   billing.NewHandler(logger, billingService, pages),
		ReportHandler:    reportHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Ping: func(r *http.Request) error {
			return dbpool.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
