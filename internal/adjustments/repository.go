package adjustments

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// RepositoryPort defines data access for adjustments.
type RepositoryPort interface {
	CreateAdjustment(ctx context.Context, adj *Adjustment) error
	GetAdjustment(ctx context.Context, tenant, id string) (*Adjustment, error)
	UpdateAdjustment(ctx context.Context, adj *Adjustment) error
	ListByLoad(ctx context.Context, tenant string, loadID int64) ([]Adjustment, error)
}

// Repository provides PostgreSQL backed persistence for adjustments. The
// patch and the applied change log are JSONB documents; rows are inserted
// and reviewed but never deleted, so the history per load is append-only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateAdjustment inserts an adjustment row.
func (r *Repository) CreateAdjustment(ctx context.Context, adj *Adjustment) error {
	patchJSON, err := json.Marshal(adj.Patch)
	if err != nil {
		return err
	}
	changesJSON, err := json.Marshal(adj.Changes)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO adjustments
(id, tenant, load_id, patch, reason, status, require_approval,
 requested_by, reviewed_by, decision_note, changes,
 created_at, reviewed_at, applied_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		adj.ID, adj.Tenant, adj.LoadID, patchJSON, adj.Reason, string(adj.Status), adj.RequireApproval,
		adj.RequestedBy, adj.ReviewedBy, adj.DecisionNote, changesJSON,
		adj.CreatedAt, adj.ReviewedAt, adj.AppliedAt)
	return err
}

const adjustmentColumns = `id, tenant, load_id, patch, reason, status, require_approval,
requested_by, reviewed_by, decision_note, changes,
created_at, reviewed_at, applied_at`

func scanAdjustment(row pgx.Row) (*Adjustment, error) {
	var adj Adjustment
	var status string
	var patchJSON, changesJSON []byte
	err := row.Scan(
		&adj.ID, &adj.Tenant, &adj.LoadID, &patchJSON, &adj.Reason, &status, &adj.RequireApproval,
		&adj.RequestedBy, &adj.ReviewedBy, &adj.DecisionNote, &changesJSON,
		&adj.CreatedAt, &adj.ReviewedAt, &adj.AppliedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	adj.Status = Status(status)
	if err := json.Unmarshal(patchJSON, &adj.Patch); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(changesJSON, &adj.Changes); err != nil {
		return nil, err
	}
	return &adj, nil
}

// GetAdjustment returns an adjustment by id scoped to the tenant.
func (r *Repository) GetAdjustment(ctx context.Context, tenant, id string) (*Adjustment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+adjustmentColumns+` FROM adjustments WHERE tenant=$1 AND id=$2`, tenant, id)
	return scanAdjustment(row)
}

// UpdateAdjustment writes the review decision and applied change log. The
// guard on status keeps terminal rows immutable even under racing reviewers.
func (r *Repository) UpdateAdjustment(ctx context.Context, adj *Adjustment) error {
	changesJSON, err := json.Marshal(adj.Changes)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE adjustments
SET status=$3, reviewed_by=$4, decision_note=$5, changes=$6, reviewed_at=$7, applied_at=$8
WHERE tenant=$1 AND id=$2 AND status='pending'`,
		adj.Tenant, adj.ID, string(adj.Status), adj.ReviewedBy, adj.DecisionNote,
		changesJSON, adj.ReviewedAt, adj.AppliedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListByLoad returns the load's adjustments, oldest first.
func (r *Repository) ListByLoad(ctx context.Context, tenant string, loadID int64) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+adjustmentColumns+` FROM adjustments WHERE tenant=$1 AND load_id=$2 ORDER BY created_at`,
		tenant, loadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *adj)
	}
	return out, rows.Err()
}
