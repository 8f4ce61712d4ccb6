package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/voyager-crm/voyager/internal/app"
	"github.com/voyager-crm/voyager/internal/finance"
	jobmetrics "github.com/voyager-crm/voyager/internal/jobs"
	"github.com/voyager-crm/voyager/internal/platform/cache"
	"github.com/voyager-crm/voyager/internal/platform/db"
	"github.com/voyager-crm/voyager/internal/settlement"
	"github.com/voyager-crm/voyager/internal/shared"
	"github.com/voyager-crm/voyager/jobs"
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

	metrics := jobmetrics.NewMetrics(nil)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	settlementService := settlement.NewService(settlement.NewRepository(pool), logger,
		settlement.WithLocker(shared.NewLocker(cache.NewLocker(redisClient), cfg.LockTTL)),
		settlement.WithRecorder(metrics),
		settlement.WithNotifier(jobs.NewNotifier(jobClient)))
	financeService := finance.NewService(finance.NewRepository(pool))
	mailer := jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass)

	mailJob := jobs.NewMailJob(mailer, logger, metrics)
	backfillJob := jobs.NewSettlementBackfillJob(settlementService, logger, metrics)
	overdueJob := jobs.NewMarkOverdueJob(financeService, logger, metrics)

	backfillTask, err := jobs.NewSettlementBackfillTask(nil)
	if err != nil {
		logger.Error("build backfill task", slog.Any("error", err))
		os.Exit(1)
	}
	overdueTask, err := jobs.NewMarkOverdueTask(nil)
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskSettlementBackfill, Handler: backfillJob.Handle},
			{Type: jobs.TaskFinanceMarkOverdue, Handler: overdueJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: backfillTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 0 * * *", Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
