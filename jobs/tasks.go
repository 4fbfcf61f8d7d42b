// Package jobs defines the background tasks the ledger worker runs: nightly
// overdue-invoice refresh and counter resync against issued document numbers.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/haulmont-ops/haulage-ledger/internal/jobs"
	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueRefresh recomputes cached invoice statuses so listings
	// show overdue the morning after a due date passes.
	TaskOverdueRefresh = "invoice:refresh_overdue"
	// TaskCounterResync raises sequence counter floors to the highest
	// issued document number per tenant and kind.
	TaskCounterResync = "sequence:resync"
)

// OverdueRefresher is the invoice operation the refresh task drives.
type OverdueRefresher interface {
	RefreshOverdue(ctx context.Context, tenant string) (int, error)
}

// NumberLister exposes issued document numbers for one entity family.
type NumberLister func(ctx context.Context, tenant string) ([]string, error)

// Resyncer raises counter floors from issued numbers.
type Resyncer interface {
	Resync(ctx context.Context, tenant string, kind sequence.Kind, year int, prefix string, existing []string) (int64, error)
}

// TaskDeps collects everything the task handlers need.
type TaskDeps struct {
	Pool     *pgxpool.Pool
	Invoices OverdueRefresher
	Resync   Resyncer
	// Numbers maps each sequence kind to the lister over its issued numbers.
	Numbers map[sequence.Kind]NumberLister
	// SettlementPrefix matches the prefix used when settlement numbers were
	// issued; resync parses with the same prefix or raises nothing.
	SettlementPrefix string
	Logger           *slog.Logger
	Metrics          *jobmetrics.Metrics
}

type resyncPayload struct {
	Year int `json:"year"`
}

// NewOverdueRefreshTask constructs the overdue refresh task.
func NewOverdueRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueRefresh, nil)
}

// NewCounterResyncTask constructs the counter resync task. Zero year means
// the current year at execution time.
func NewCounterResyncTask(year int) (*asynq.Task, error) {
	data, err := json.Marshal(resyncPayload{Year: year})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCounterResync, data), nil
}

// HandleOverdueRefresh walks every tenant and refreshes cached invoice
// statuses. A failing tenant is logged and skipped so one bad row cannot
// starve the rest.
func (d TaskDeps) HandleOverdueRefresh(ctx context.Context, _ *asynq.Task) error {
	tracker := d.Metrics.Track("overdue_refresh")
	tenants, err := d.listTenants(ctx)
	if err != nil {
		return tracker.End(err)
	}
	for _, tenant := range tenants {
		updated, err := d.Invoices.RefreshOverdue(ctx, tenant)
		if err != nil {
			d.Logger.Error("refresh overdue invoices",
				slog.String("tenant", tenant), slog.Any("error", err))
			continue
		}
		if updated > 0 {
			d.Logger.Info("refreshed overdue invoices",
				slog.String("tenant", tenant), slog.Int("updated", updated))
		}
	}
	return tracker.End(nil)
}

// HandleCounterResync reads every issued number per tenant and kind and
// raises counter floors. Resync never lowers a counter, so re-running the
// task is always safe.
func (d TaskDeps) HandleCounterResync(ctx context.Context, t *asynq.Task) error {
	tracker := d.Metrics.Track("counter_resync")
	var payload resyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	year := payload.Year
	if year <= 0 {
		year = time.Now().UTC().Year()
	}

	tenants, err := d.listTenants(ctx)
	if err != nil {
		return tracker.End(err)
	}
	for _, tenant := range tenants {
		for kind, list := range d.Numbers {
			existing, err := list(ctx, tenant)
			if err != nil {
				d.Logger.Error("list issued numbers",
					slog.String("tenant", tenant), slog.String("kind", string(kind)), slog.Any("error", err))
				continue
			}
			prefix := ""
			if kind == sequence.KindSettlement {
				prefix = d.SettlementPrefix
			}
			if _, err := d.Resync.Resync(ctx, tenant, kind, year, prefix, existing); err != nil {
				d.Logger.Error("resync counter",
					slog.String("tenant", tenant), slog.String("kind", string(kind)), slog.Any("error", err))
			}
		}
	}
	return tracker.End(nil)
}

// listTenants collects every tenant that has issued at least one document.
func (d TaskDeps) listTenants(ctx context.Context) ([]string, error) {
	rows, err := d.Pool.Query(ctx,
		`SELECT tenant FROM loads UNION SELECT tenant FROM invoices UNION SELECT tenant FROM settlements`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
