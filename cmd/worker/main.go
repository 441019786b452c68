package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/solkant/solkant/internal/app"
	"github.com/solkant/solkant/internal/auth"
	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/catalog"
	jobmetrics "github.com/solkant/solkant/internal/jobs"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/internal/platform/cache"
	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
	"github.com/solkant/solkant/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 10})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	sender := app.NewMailSender(cfg, logger)
	tenantCache := cache.NewVersioned(redisClient, "solkant", cfg.DashboardCacheTTL)

	businessService := businesses.NewService(businesses.NewRepository(pool))
	quoteService := quotes.NewService(quotes.NewRepository(pool), logger,
		quotes.WithLocation(cfg.Location()),
		quotes.WithPackages(catalog.NewManager(catalog.NewRepository(pool), tenantCache, logger)),
		quotes.WithBusinesses(businessService),
		quotes.WithAudit(shared.NewAuditLogger(pool)),
		quotes.WithInvalidator(tenantCache),
		quotes.WithMetrics(metrics),
	)
	documentService := app.NewDocuments(cfg, templates, businessService, metrics, logger)
	authService := auth.NewService(auth.NewRepository(pool), sender, templates, cfg.AppBaseURL, logger)

	mailJob := jobs.NewMailJob(sender, logger, jobMetrics)
	deliveryJob := &jobs.QuoteDeliveryJob{
		Quotes:    quoteService,
		Documents: documentService,
		Emails:    templates,
		Sender:    sender,
		Logger:    logger,
		Metrics:   jobMetrics,
		Domain:    metrics,
	}
	purgeJob := &jobs.PurgeJob{
		Tokens:  authService,
		Keys:    shared.NewIdempotencyStore(pool),
		Logger:  logger,
		Metrics: jobMetrics,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Location:    cfg.Location(),
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSendMail, Handler: mailJob.Handle},
			{Type: jobs.TaskQuoteDeliver, Handler: deliveryJob.Handle},
			{Type: jobs.TaskMaintenancePurge, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: jobs.NewMaintenancePurgeTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
