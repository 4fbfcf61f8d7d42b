package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/haulmont-ops/haulage-ledger/internal/adjustments"
	"github.com/haulmont-ops/haulage-ledger/internal/invoices"
	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/settlements"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Pool   *pgxpool.Pool
	Redis  *redis.Client

	LoadsHandler       *loads.Handler
	SettlementsHandler *settlements.Handler
	InvoicesHandler    *invoices.Handler
	AdjustmentsHandler *adjustments.Handler
}

// NewRouter constructs the chi router and mounts the ledger API.
func NewRouter(params RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: params.Logger, Config: params.Config}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Pool, params.Redis))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/loads", func(lr chi.Router) {
			params.LoadsHandler.MountRoutes(lr)
			params.AdjustmentsHandler.MountLoadRoutes(lr)
		})
		api.Route("/settlements", params.SettlementsHandler.MountRoutes)
		api.Route("/invoices", params.InvoicesHandler.MountRoutes)
		api.Route("/adjustments", params.AdjustmentsHandler.MountRoutes)
	})

	return r
}

// healthHandler pings postgres and redis with a short deadline. Redis is
// optional; a deployment without it runs lock-free and still reports healthy.
func healthHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
