package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/atrium-bms/atrium/internal/accounting/accounts"
	"github.com/atrium-bms/atrium/internal/accounting/reports"
	"github.com/atrium-bms/atrium/internal/app"
	"github.com/atrium-bms/atrium/internal/ar"
	"github.com/atrium-bms/atrium/internal/billing/schedules"
	"github.com/atrium-bms/atrium/internal/observability"
	"github.com/atrium-bms/atrium/internal/platform/cache"
	"github.com/atrium-bms/atrium/internal/platform/db"
	"github.com/atrium-bms/atrium/internal/shared"
	"github.com/atrium-bms/atrium/jobs"
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

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)
	locker := shared.NewRedisMutex(redisClient, cfg.PeriodLockTTL)

	accountService := accounts.NewService(accounts.NewRepository(pool), audit)

	reportService := reports.NewService(reports.NewRepository(pool), accountService, logger)
	reportService.WithMetrics(metrics)

	receivableService := ar.NewService(ar.NewRepository(pool), audit, logger)

	scheduleService := schedules.NewService(schedules.NewRepository(pool), audit, locker, logger)
	scheduleService.WithMetrics(metrics)
	scheduleService.WithReceivables(receivableOpenerFunc(func(ctx context.Context, record schedules.GeneratedRecord) error {
		_, err := receivableService.Open(ctx, ar.OpenInput{
			CompanyID:      record.CompanyID,
			SourceRecordID: record.ID,
			Amount:         record.Amount,
			DueDate:        record.DueDate,
			Description:    record.Description,
		})
		if errors.Is(err, ar.ErrDuplicateSource) {
			return nil
		}
		return err
	}))

	sweeps := jobs.NewSweeps(jobs.NewPgCompanyLister(pool), scheduleService, receivableService, reportService, logger)

	cron, err := jobs.DefaultCron(cfg.MaterializeCron, cfg.IntegrityCron)
	if err != nil {
		logger.Error("build cron registrations", slog.Any("error", err))
		os.Exit(1)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Sweeps:    sweeps,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// receivableOpenerFunc adapts a function to schedules.ReceivableOpener.
type receivableOpenerFunc func(ctx context.Context, record schedules.GeneratedRecord) error

func (f receivableOpenerFunc) OpenForRecord(ctx context.Context, record schedules.GeneratedRecord) error {
	return f(ctx, record)
}
