package expenses

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines data access for expenses.
type RepositoryPort interface {
	ListDeductible(ctx context.Context, tenant string, driverID int64, from, to time.Time) ([]Expense, error)
}

// Repository provides PostgreSQL backed persistence for expenses.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListDeductible returns approved company-paid expenses for the driver in the
// period.
func (r *Repository) ListDeductible(ctx context.Context, tenant string, driverID int64, from, to time.Time) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant, driver_id, expense_type, amount, paid_by, status, incurred_at
FROM expenses
WHERE tenant=$1 AND driver_id=$2 AND paid_by='company' AND status='approved'
  AND incurred_at >= $3 AND incurred_at <= $4
ORDER BY incurred_at`, tenant, driverID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		var etype, paidBy, status string
		if err := rows.Scan(&e.ID, &e.Tenant, &e.DriverID, &etype, &e.Amount, &paidBy, &status, &e.Incurred); err != nil {
			return nil, err
		}
		e.Type = Type(etype)
		e.PaidBy = PaidBy(paidBy)
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
