package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// RepositoryPort defines data access for invoices.
type RepositoryPort interface {
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetInvoice(ctx context.Context, tenant string, id int64) (*Invoice, error)
	AppendPayment(ctx context.Context, inv *Invoice, p Payment) error
	ListOpenInvoices(ctx context.Context, tenant string) ([]Invoice, error)
	UpdateStatusCache(ctx context.Context, tenant string, id int64, status Status) error
	ListInvoiceNumbers(ctx context.Context, tenant string) ([]string, error)
}

// Repository provides PostgreSQL backed persistence for invoices. Line items
// and the payment history are stored as JSONB documents; payments are only
// ever appended, never edited in place.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateInvoice inserts an invoice and returns its id.
func (r *Repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	linesJSON, err := json.Marshal(inv.Lines)
	if err != nil {
		return 0, err
	}
	paymentsJSON, err := json.Marshal(inv.Payments)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO invoices
(tenant, invoice_number, customer_name, lines, amount,
 factored, factoring_fee, net_amount, payments, paid_amount,
 status, issued_at, due_at, paid_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
RETURNING id`,
		inv.Tenant, inv.InvoiceNumber, inv.CustomerName, linesJSON, inv.Amount,
		inv.Factored, inv.FactoringFee, inv.NetAmount, paymentsJSON, inv.PaidAmount,
		string(inv.Status), inv.IssuedAt, nullTime(inv.DueAt), inv.PaidAt).Scan(&id)
	return id, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

const invoiceColumns = `id, tenant, invoice_number, customer_name, lines, amount,
factored, factoring_fee, net_amount, payments, paid_amount,
status, issued_at, due_at, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status string
	var linesJSON, paymentsJSON []byte
	var dueAt *time.Time
	err := row.Scan(
		&inv.ID, &inv.Tenant, &inv.InvoiceNumber, &inv.CustomerName, &linesJSON, &inv.Amount,
		&inv.Factored, &inv.FactoringFee, &inv.NetAmount, &paymentsJSON, &inv.PaidAmount,
		&status, &inv.IssuedAt, &dueAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	inv.Status = Status(status)
	if dueAt != nil {
		inv.DueAt = *dueAt
	}
	if err := json.Unmarshal(linesJSON, &inv.Lines); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(paymentsJSON, &inv.Payments); err != nil {
		return nil, err
	}
	for _, li := range inv.Lines {
		inv.LoadIDs = append(inv.LoadIDs, li.LoadID)
	}
	return &inv, nil
}

// GetInvoice returns an invoice by id scoped to the tenant.
func (r *Repository) GetInvoice(ctx context.Context, tenant string, id int64) (*Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant=$1 AND id=$2`, tenant, id)
	return scanInvoice(row)
}

// AppendPayment persists the full payment list plus the recomputed paid
// total and derived status in one statement.
func (r *Repository) AppendPayment(ctx context.Context, inv *Invoice, _ Payment) error {
	paymentsJSON, err := json.Marshal(inv.Payments)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE invoices
SET payments=$3, paid_amount=$4, status=$5, paid_at=$6, updated_at=NOW()
WHERE tenant=$1 AND id=$2`,
		inv.Tenant, inv.ID, paymentsJSON, inv.PaidAmount, string(inv.Status), inv.PaidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListOpenInvoices returns all invoices not yet fully paid for the tenant.
func (r *Repository) ListOpenInvoices(ctx context.Context, tenant string) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant=$1 AND status <> 'paid' ORDER BY due_at`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// UpdateStatusCache stores the freshly derived status.
func (r *Repository) UpdateStatusCache(ctx context.Context, tenant string, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status=$3, updated_at=NOW() WHERE tenant=$1 AND id=$2`,
		tenant, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListInvoiceNumbers returns every issued invoice number for the tenant; the
// counter resync job feeds these back into the sequence service.
func (r *Repository) ListInvoiceNumbers(ctx context.Context, tenant string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT invoice_number FROM invoices WHERE tenant=$1`, tenant)
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
