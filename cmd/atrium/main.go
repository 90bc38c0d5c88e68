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

	"github.com/atrium-bms/atrium/internal/accounting/accounts"
	"github.com/atrium-bms/atrium/internal/accounting/journals"
	"github.com/atrium-bms/atrium/internal/accounting/periods"
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

// receivableOpener bridges generated income records into receivables.
// A duplicate open means a prior generation already created the
// receivable, so it is treated as success.
type receivableOpener struct {
	receivables *ar.Service
}

func (o *receivableOpener) OpenForRecord(ctx context.Context, record schedules.GeneratedRecord) error {
	_, err := o.receivables.Open(ctx, ar.OpenInput{
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
}

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
	audit := shared.NewAuditLogger(pool)
	locker := shared.NewRedisMutex(redisClient, cfg.PeriodLockTTL)

	accountService := accounts.NewService(accounts.NewRepository(pool), audit)
	periodService := periods.NewService(periods.NewRepository(pool), audit, locker)

	journalService := journals.NewService(
		journals.NewRepository(pool),
		audit,
		accountService,
		journals.NewSequenceNumberGenerator(pool),
	)
	journalService.WithMetrics(metrics)

	reportService := reports.NewService(reports.NewRepository(pool), accountService, logger)
	reportService.WithMetrics(metrics)

	receivableService := ar.NewService(ar.NewRepository(pool), audit, logger)

	scheduleService := schedules.NewService(schedules.NewRepository(pool), audit, locker, logger)
	scheduleService.WithReceivables(&receivableOpener{receivables: receivableService})
	scheduleService.WithMetrics(metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		AccountsHandler:  accounts.NewHandler(logger, accountService),
		PeriodsHandler:   periods.NewHandler(logger, periodService),
		JournalsHandler:  journals.NewHandler(logger, journalService),
		ReportsHandler:   reports.NewHandler(logger, reportService),
		SchedulesHandler: schedules.NewHandler(logger, scheduleService),
		ARHandler:        ar.NewHandler(logger, receivableService),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
