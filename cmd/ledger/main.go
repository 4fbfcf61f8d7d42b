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

	"github.com/redis/go-redis/v9"

	"github.com/haulmont-ops/haulage-ledger/internal/adjustments"
	"github.com/haulmont-ops/haulage-ledger/internal/app"
	"github.com/haulmont-ops/haulage-ledger/internal/drivers"
	"github.com/haulmont-ops/haulage-ledger/internal/expenses"
	"github.com/haulmont-ops/haulage-ledger/internal/invoices"
	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/platform/db"
	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
	"github.com/haulmont-ops/haulage-ledger/internal/settlements"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	locker := shared.NewEntityLocker(redisClient, cfg.LockTTL)
	auditLogger := shared.NewAuditLogger(pool)

	sequenceRepo := sequence.NewRepository(pool)
	sequenceService := sequence.NewService(sequenceRepo, logger)

	loadRepo := loads.NewRepository(pool)
	loadService := loads.NewService(loadRepo, sequenceService)
	loadHandler := loads.NewHandler(logger, loadService)

	driverRepo := drivers.NewRepository(pool)
	expenseRepo := expenses.NewRepository(pool)

	settlementRepo := settlements.NewRepository(pool)
	settlementService := settlements.NewService(settlementRepo, loadRepo, driverRepo, expenseRepo,
		sequenceService, cfg.SettlementPrefix, logger)
	settlementHandler := settlements.NewHandler(logger, settlementService)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, loadRepo, sequenceService, locker, logger)
	invoiceHandler := invoices.NewHandler(logger, invoiceService)

	adjustmentRepo := adjustments.NewRepository(pool)
	adjustmentService := adjustments.NewService(adjustmentRepo, loadRepo, locker, auditLogger, logger,
		adjustments.Config{RequireApproval: cfg.RequireAdjustmentApproval})
	adjustmentHandler := adjustments.NewHandler(logger, adjustmentService)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		Redis:              redisClient,
		LoadsHandler:       loadHandler,
		SettlementsHandler: settlementHandler,
		InvoicesHandler:    invoiceHandler,
		AdjustmentsHandler: adjustmentHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger server listening", slog.String("addr", cfg.AppAddr))
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
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
