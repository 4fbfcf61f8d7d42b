package loads

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// RepositoryPort defines data access for loads, including the
// get-then-conditionally-patch semantics the adjustment workflow needs.
type RepositoryPort interface {
	CreateLoad(ctx context.Context, l Load) (int64, error)
	GetLoad(ctx context.Context, tenant string, id int64) (*Load, error)
	ListLoadsByIDs(ctx context.Context, tenant string, ids []int64) ([]Load, error)
	UpdateLoad(ctx context.Context, l *Load) error
	LinkInvoice(ctx context.Context, tenant string, loadID, invoiceID int64) error
	LinkSettlement(ctx context.Context, tenant string, loadID, settlementID int64) error
	ListLoadNumbers(ctx context.Context, tenant string) ([]string, error)
}

// Repository provides PostgreSQL backed persistence for loads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const loadColumns = `id, tenant, load_number, customer_name, driver_id, rate, miles,
detention, layover, lumper, fuel_surcharge, tonu, other_accessorial, grand_total,
driver_base_pay, driver_detention_pay, driver_layover_pay, driver_total_gross,
status, pod_number, bol_number, notes, invoice_id, settlement_id, created_at, updated_at`

func scanLoad(row pgx.Row) (*Load, error) {
	var l Load
	var status string
	err := row.Scan(&l.ID, &l.Tenant, &l.LoadNumber, &l.CustomerName, &l.DriverID,
		&l.Rate, &l.Miles,
		&l.Accessorials.Detention, &l.Accessorials.Layover, &l.Accessorials.Lumper,
		&l.Accessorials.FuelSurcharge, &l.Accessorials.TONU, &l.Accessorials.Other,
		&l.GrandTotal,
		&l.DriverBasePay, &l.DriverDetentionPay, &l.DriverLayoverPay, &l.DriverTotalGross,
		&status, &l.PODNumber, &l.BOLNumber, &l.Notes,
		&l.InvoiceID, &l.SettlementID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	l.Status = Status(status)
	return &l, nil
}

// CreateLoad inserts a load and returns its id.
func (r *Repository) CreateLoad(ctx context.Context, l Load) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO loads
(tenant, load_number, customer_name, driver_id, rate, miles,
 detention, layover, lumper, fuel_surcharge, tonu, other_accessorial, grand_total,
 driver_base_pay, driver_detention_pay, driver_layover_pay, driver_total_gross,
 status, pod_number, bol_number, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,NOW(),NOW())
RETURNING id`,
		l.Tenant, l.LoadNumber, l.CustomerName, l.DriverID, l.Rate, l.Miles,
		l.Accessorials.Detention, l.Accessorials.Layover, l.Accessorials.Lumper,
		l.Accessorials.FuelSurcharge, l.Accessorials.TONU, l.Accessorials.Other,
		l.GrandTotal,
		l.DriverBasePay, l.DriverDetentionPay, l.DriverLayoverPay, l.DriverTotalGross,
		string(l.Status), l.PODNumber, l.BOLNumber, l.Notes).Scan(&id)
	return id, err
}

// GetLoad returns a load by id scoped to the tenant.
func (r *Repository) GetLoad(ctx context.Context, tenant string, id int64) (*Load, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+loadColumns+` FROM loads WHERE tenant=$1 AND id=$2`, tenant, id)
	return scanLoad(row)
}

// ListLoadsByIDs returns the loads with the given ids.
func (r *Repository) ListLoadsByIDs(ctx context.Context, tenant string, ids []int64) ([]Load, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+loadColumns+` FROM loads WHERE tenant=$1 AND id = ANY($2)`, tenant, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// UpdateLoad writes the full mutable field set back.
func (r *Repository) UpdateLoad(ctx context.Context, l *Load) error {
	tag, err := r.pool.Exec(ctx, `UPDATE loads SET
customer_name=$3, rate=$4, miles=$5,
detention=$6, layover=$7, lumper=$8, fuel_surcharge=$9, tonu=$10, other_accessorial=$11,
grand_total=$12, driver_base_pay=$13, driver_detention_pay=$14, driver_layover_pay=$15,
driver_total_gross=$16, status=$17, pod_number=$18, bol_number=$19, notes=$20,
invoice_id=$21, settlement_id=$22, updated_at=NOW()
WHERE tenant=$1 AND id=$2`,
		l.Tenant, l.ID, l.CustomerName, l.Rate, l.Miles,
		l.Accessorials.Detention, l.Accessorials.Layover, l.Accessorials.Lumper,
		l.Accessorials.FuelSurcharge, l.Accessorials.TONU, l.Accessorials.Other,
		l.GrandTotal, l.DriverBasePay, l.DriverDetentionPay, l.DriverLayoverPay,
		l.DriverTotalGross, string(l.Status), l.PODNumber, l.BOLNumber, l.Notes,
		l.InvoiceID, l.SettlementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// LinkInvoice sets invoice_id only when it is not already set (no
// double-invoicing).
func (r *Repository) LinkInvoice(ctx context.Context, tenant string, loadID, invoiceID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE loads SET invoice_id=$3, updated_at=NOW() WHERE tenant=$1 AND id=$2 AND invoice_id IS NULL`,
		tenant, loadID, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("load %d already invoiced or missing: %w", loadID, shared.ErrNotFound)
	}
	return nil
}

// LinkSettlement sets settlement_id only when it is not already set (no
// double-settling).
func (r *Repository) LinkSettlement(ctx context.Context, tenant string, loadID, settlementID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE loads SET settlement_id=$3, updated_at=NOW() WHERE tenant=$1 AND id=$2 AND settlement_id IS NULL`,
		tenant, loadID, settlementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("load %d already settled or missing: %w", loadID, shared.ErrNotFound)
	}
	return nil
}

// ListLoadNumbers returns every issued load number for the tenant; the
// counter resync job feeds these back into the sequence service.
func (r *Repository) ListLoadNumbers(ctx context.Context, tenant string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT load_number FROM loads WHERE tenant=$1`, tenant)
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
