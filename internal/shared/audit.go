package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry represents a record stored in audit_logs.
type AuditEntry struct {
	Tenant   string
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Patch    map[string]any
	Reason   string
	At       time.Time
}

// AuditSink receives audit records from mutating operations. A failed write
// must not block the underlying mutation.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the audit entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditEntry) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Entity == "" || entry.EntityID == "" || entry.Action == "" {
		return errors.New("audit entry requires entity/entity_id/action")
	}
	patchJSON, err := json.Marshal(entry.Patch)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (tenant, actor, entity, entity_id, action, patch, reason, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE(NULLIF($8, '0001-01-01T00:00:00Z'::timestamptz), NOW()))`,
		entry.Tenant, entry.Actor, entry.Entity, entry.EntityID, entry.Action, patchJSON, entry.Reason, entry.At)
	return err
}

// RecordBestEffort writes the entry and downgrades failures to a warning.
func RecordBestEffort(ctx context.Context, sink AuditSink, logger *slog.Logger, entry AuditEntry) {
	if sink == nil {
		return
	}
	if err := sink.Record(ctx, entry); err != nil {
		logger.Warn("audit write failed",
			slog.String("entity", entry.Entity),
			slog.String("entity_id", entry.EntityID),
			slog.Any("error", err))
	}
}
