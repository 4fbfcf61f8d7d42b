package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/haulmont-ops/haulage-ledger/internal/app"
	"github.com/haulmont-ops/haulage-ledger/internal/invoices"
	jobmetrics "github.com/haulmont-ops/haulage-ledger/internal/jobs"
	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/platform/db"
	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
	"github.com/haulmont-ops/haulage-ledger/internal/settlements"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
	"github.com/haulmont-ops/haulage-ledger/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	sequenceRepo := sequence.NewRepository(pool)
	sequenceService := sequence.NewService(sequenceRepo, logger)

	loadRepo := loads.NewRepository(pool)
	settlementRepo := settlements.NewRepository(pool)
	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, loadRepo, sequenceService,
		shared.NewEntityLocker(nil, 0), logger)

	deps := jobs.TaskDeps{
		Pool:     pool,
		Invoices: invoiceService,
		Resync:   sequenceService,
		Numbers: map[sequence.Kind]jobs.NumberLister{
			sequence.KindLoad:       loadRepo.ListLoadNumbers,
			sequence.KindInvoice:    invoiceRepo.ListInvoiceNumbers,
			sequence.KindSettlement: settlementRepo.ListSettlementNumbers,
		},
		SettlementPrefix: cfg.SettlementPrefix,
		Logger:           logger,
		Metrics:          jobmetrics.NewMetrics(nil),
	}

	resyncTask, err := jobs.NewCounterResyncTask(0)
	if err != nil {
		logger.Error("build resync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Deps:      deps,
		Cron: []jobs.CronRegistration{
			{Spec: "10 0 * * *", Task: jobs.NewOverdueRefreshTask()},
			{Spec: "30 0 * * *", Task: resyncTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("ledger worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
