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

	"github.com/voyager-crm/voyager/internal/app"
	"github.com/voyager-crm/voyager/internal/auth"
	"github.com/voyager-crm/voyager/internal/billing"
	"github.com/voyager-crm/voyager/internal/collaborators"
	"github.com/voyager-crm/voyager/internal/expeditions"
	"github.com/voyager-crm/voyager/internal/finance"
	"github.com/voyager-crm/voyager/internal/observability"
	"github.com/voyager-crm/voyager/internal/pipeline"
	"github.com/voyager-crm/voyager/internal/platform/cache"
	"github.com/voyager-crm/voyager/internal/platform/db"
	"github.com/voyager-crm/voyager/internal/proposals"
	"github.com/voyager-crm/voyager/internal/settlement"
	"github.com/voyager-crm/voyager/internal/shared"
	"github.com/voyager-crm/voyager/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
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

	metrics := observability.NewMetrics()
	locker := shared.NewLocker(cache.NewLocker(redisClient), cfg.LockTTL)
	idempotency := shared.NewIdempotencyStore(pool)
	audit := shared.NewAuditLogger(pool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()
	notifier := jobs.NewNotifier(jobClient)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokens)

	stageService := pipeline.NewService(pipeline.NewRepository(pool))
	settlementService := settlement.NewService(settlement.NewRepository(pool), logger,
		settlement.WithLocker(locker),
		settlement.WithRecorder(metrics.Jobs()),
		settlement.WithNotifier(notifier))
	proposalService := proposals.NewService(proposals.NewRepository(pool), stageService, settlementService, logger, cfg.PublicBaseURL)
	financeService := finance.NewService(finance.NewRepository(pool))
	collaboratorService := collaborators.NewService(collaborators.NewRepository(pool))
	expeditionService := expeditions.NewService(expeditions.NewRepository(pool), locker, idempotency, notifier, logger)

	billingOpts := []billing.Option{billing.WithAudit(audit)}
	if cfg.StripeEnabled() {
		billingOpts = append(billingOpts, billing.WithGateway(billing.NewStripeGateway(cfg.StripeSecretKey), cfg.StripePortalReturnURL))
	} else {
		logger.Warn("stripe not configured, gateway subscription actions disabled")
	}
	billingService := billing.NewService(billing.NewRepository(pool), logger, billingOpts...)

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Tokens:  tokens,
		Health: func(r *http.Request) error {
			return pool.Ping(r.Context())
		},
		AuthHandler:         auth.NewHandler(logger, authService, tokens),
		PipelineHandler:     pipeline.NewHandler(logger, stageService),
		ProposalHandler:     proposals.NewHandler(logger, proposalService),
		FinanceHandler:      finance.NewHandler(logger, financeService),
		CollaboratorHandler: collaborators.NewHandler(logger, collaboratorService),
		ExpeditionHandler:   expeditions.NewHandler(logger, expeditionService),
		BillingHandler:      billing.NewHandler(logger, billingService),
		JobHandler:          jobs.NewHandler(inspector, jobClient, logger),
	})

	go sweepIdempotencyKeys(ctx, idempotency, logger)

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

// sweepIdempotencyKeys drops public registration keys older than a day.
func sweepIdempotencyKeys(ctx context.Context, store *shared.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Sweep(ctx, 24*time.Hour)
			if err != nil {
				logger.Warn("submission key sweep", slog.Any("error", err))
				continue
			}
			logger.Debug("submission key sweep", slog.Int64("removed", removed))
		}
	}
}
