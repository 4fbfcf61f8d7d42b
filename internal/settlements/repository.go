package settlements

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// RepositoryPort defines data access for settlements.
type RepositoryPort interface {
	CreateSettlement(ctx context.Context, s Settlement) (int64, error)
	GetSettlement(ctx context.Context, tenant string, id int64) (*Settlement, error)
	UpdateStatus(ctx context.Context, tenant string, id int64, status Status) error
	ListSettlementNumbers(ctx context.Context, tenant string) ([]string, error)
}

// Repository provides PostgreSQL backed persistence for settlements. The
// per-load breakdown, deduction categories and other earnings are stored as
// JSONB documents alongside the reconciled totals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSettlement inserts a settlement run and returns its id.
func (r *Repository) CreateSettlement(ctx context.Context, s Settlement) (int64, error) {
	loadsJSON, err := json.Marshal(s.Loads)
	if err != nil {
		return 0, err
	}
	dedJSON, err := json.Marshal(s.Deductions)
	if err != nil {
		return 0, err
	}
	earnJSON, err := json.Marshal(s.OtherEarnings)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO settlements
(tenant, settlement_number, driver_id, period_start, period_end,
 loads, gross_pay, deductions, total_deductions, other_earnings, net_pay,
 total_miles, effective_rate, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
RETURNING id`,
		s.Tenant, s.SettlementNumber, s.DriverID, s.PeriodStart, s.PeriodEnd,
		loadsJSON, s.GrossPay, dedJSON, s.TotalDeductions, earnJSON, s.NetPay,
		s.TotalMiles, s.EffectiveRate, string(s.Status)).Scan(&id)
	return id, err
}

// GetSettlement returns a settlement by id scoped to the tenant.
func (r *Repository) GetSettlement(ctx context.Context, tenant string, id int64) (*Settlement, error) {
	var s Settlement
	var status string
	var loadsJSON, dedJSON, earnJSON []byte
	err := r.pool.QueryRow(ctx, `SELECT id, tenant, settlement_number, driver_id, period_start, period_end,
loads, gross_pay, deductions, total_deductions, other_earnings, net_pay,
total_miles, effective_rate, status, created_at, updated_at
FROM settlements WHERE tenant=$1 AND id=$2`, tenant, id).Scan(
		&s.ID, &s.Tenant, &s.SettlementNumber, &s.DriverID, &s.PeriodStart, &s.PeriodEnd,
		&loadsJSON, &s.GrossPay, &dedJSON, &s.TotalDeductions, &earnJSON, &s.NetPay,
		&s.TotalMiles, &s.EffectiveRate, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	s.Status = Status(status)
	if err := json.Unmarshal(loadsJSON, &s.Loads); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dedJSON, &s.Deductions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(earnJSON, &s.OtherEarnings); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateStatus writes the new status.
func (r *Repository) UpdateStatus(ctx context.Context, tenant string, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE settlements SET status=$3, updated_at=NOW() WHERE tenant=$1 AND id=$2`,
		tenant, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListSettlementNumbers returns every issued settlement number for the
// tenant; the counter resync job feeds these back into the sequence service.
func (r *Repository) ListSettlementNumbers(ctx context.Context, tenant string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT settlement_number FROM settlements WHERE tenant=$1`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
