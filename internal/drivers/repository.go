package drivers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// RepositoryPort defines data access for drivers.
type RepositoryPort interface {
	GetDriver(ctx context.Context, tenant string, id int64) (*Driver, error)
	ListDrivers(ctx context.Context, tenant string) ([]Driver, error)
}

// Repository provides PostgreSQL backed persistence for drivers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const driverColumns = `id, tenant, name, driver_type, pay_method, pay_percentage, per_mile_rate, flat_rate,
legacy_rate_or_split, legacy_pay_percentage, active, created_at, updated_at`

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var method string
	var dtype string
	err := row.Scan(&d.ID, &d.Tenant, &d.Name, &dtype, &method,
		&d.Payment.Percentage, &d.Payment.PerMileRate, &d.Payment.FlatRate,
		&d.Payment.RateOrSplit, &d.Payment.PayPercentage,
		&d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	d.Type = Type(dtype)
	d.Payment.Method = PayMethod(method)
	return &d, nil
}

// GetDriver returns a driver by id scoped to the tenant.
func (r *Repository) GetDriver(ctx context.Context, tenant string, id int64) (*Driver, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE tenant=$1 AND id=$2`, tenant, id)
	return scanDriver(row)
}

// ListDrivers returns all active drivers for the tenant.
func (r *Repository) ListDrivers(ctx context.Context, tenant string) ([]Driver, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE tenant=$1 AND active ORDER BY name`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
