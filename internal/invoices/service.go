package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// NumberSource issues invoice numbers.
type NumberSource interface {
	Next(ctx context.Context, tenant string, kind sequence.Kind, year int) (int64, error)
}

// LoadStore is the slice of the load collaborator invoicing needs.
type LoadStore interface {
	ListLoadsByIDs(ctx context.Context, tenant string, ids []int64) ([]loads.Load, error)
	LinkInvoice(ctx context.Context, tenant string, loadID, invoiceID int64) error
}

// Locker serialises payment application per invoice.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service handles invoice business logic.
type Service struct {
	repo    RepositoryPort
	loads   LoadStore
	numbers NumberSource
	locker  Locker
	logger  *slog.Logger

	agingGroup singleflight.Group
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, loadStore LoadStore, numbers NumberSource, locker Locker, logger *slog.Logger) *Service {
	return &Service{repo: repo, loads: loadStore, numbers: numbers, locker: locker, logger: logger}
}

// CreateInput describes an invoice creation request.
type CreateInput struct {
	CustomerName    string
	LoadIDs         []int64
	DueInDays       int
	Factored        bool
	FactoringFeePct float64
}

// Create builds an invoice from delivered loads: one line item per load,
// amount fixed at creation, loads linked so they cannot be invoiced twice.
func (s *Service) Create(ctx context.Context, tenant string, input CreateInput) (*Invoice, error) {
	var violations []string
	if tenant == "" {
		violations = append(violations, "tenant required")
	}
	if input.CustomerName == "" {
		violations = append(violations, "customer name required")
	}
	if len(input.LoadIDs) == 0 {
		violations = append(violations, "at least one load required")
	}
	if input.Factored && (input.FactoringFeePct <= 0 || input.FactoringFeePct >= 100) {
		violations = append(violations, "factoring fee percent must be between 0 and 100")
	}
	if len(violations) > 0 {
		return nil, &shared.ValidationError{Violations: violations}
	}

	batch, err := s.loads.ListLoadsByIDs(ctx, tenant, input.LoadIDs)
	if err != nil {
		return nil, fmt.Errorf("list loads: %w", err)
	}
	if len(batch) != len(input.LoadIDs) {
		return nil, fmt.Errorf("%d of %d loads: %w", len(batch), len(input.LoadIDs), shared.ErrNotFound)
	}
	for _, l := range batch {
		if l.InvoiceID != nil {
			return nil, &shared.StateError{Entity: "load " + l.LoadNumber, Current: "invoiced", Attempted: "invoice"}
		}
		if !l.Locked() {
			return nil, &shared.StateError{Entity: "load " + l.LoadNumber, Current: string(l.Status), Attempted: "invoice"}
		}
	}

	inv := Invoice{
		Tenant:       tenant,
		CustomerName: input.CustomerName,
		Status:       StatusDraft,
		IssuedAt:     time.Now().UTC(),
	}
	for _, l := range batch {
		line := LineItem{
			LoadID:        l.ID,
			LoadNumber:    l.LoadNumber,
			Base:          l.Rate,
			FuelSurcharge: l.Accessorials.FuelSurcharge,
			Detention:     l.Accessorials.Detention,
			Layover:       l.Accessorials.Layover,
			Lumper:        l.Accessorials.Lumper,
			Other:         l.Accessorials.TONU + l.Accessorials.Other,
		}
		inv.Lines = append(inv.Lines, line)
		inv.LoadIDs = append(inv.LoadIDs, l.ID)
		inv.Amount += line.Total()
	}
	inv.NetAmount = inv.Amount
	if input.Factored {
		inv.Factored = true
		inv.FactoringFee = inv.Amount * input.FactoringFeePct / 100
		inv.NetAmount = inv.Amount - inv.FactoringFee
	}
	if input.DueInDays > 0 {
		inv.DueAt = inv.IssuedAt.AddDate(0, 0, input.DueInDays)
	}

	year := inv.IssuedAt.Year()
	seq, err := s.numbers.Next(ctx, tenant, sequence.KindInvoice, year)
	if err != nil {
		return nil, fmt.Errorf("issue invoice number: %w", err)
	}
	inv.InvoiceNumber = sequence.FormatInvoiceNumber(year, seq)

	id, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	inv.ID = id

	for _, l := range batch {
		if err := s.loads.LinkInvoice(ctx, tenant, l.ID, id); err != nil {
			s.logger.Warn("link load to invoice",
				slog.Int64("load_id", l.ID),
				slog.Int64("invoice_id", id),
				slog.Any("error", err))
		}
	}

	return &inv, nil
}

// PaymentInput describes a payment to apply.
type PaymentInput struct {
	Amount float64
	Date   time.Time
	Method string
}

// AddPayment is the only sanctioned path to mutate payment history. The
// whole read-modify-write runs under a per-invoice lock; paid total and
// status are recomputed from the full list, and PaidAt stamps only on the
// transition into paid.
func (s *Service) AddPayment(ctx context.Context, tenant string, invoiceID int64, input PaymentInput) (*Invoice, error) {
	release, err := s.locker.Acquire(ctx, shared.InvoiceLockKey(invoiceID))
	if err != nil {
		return nil, err
	}
	defer release()

	inv, err := s.repo.GetInvoice(ctx, tenant, invoiceID)
	if err != nil {
		return nil, err
	}

	currentPaid := inv.TotalPaid()
	maxAllowed := inv.Amount*OverpayTolerance - currentPaid
	if input.Amount <= 0 {
		return nil, &shared.PaymentError{Reason: "amount must be positive", MaxAmount: maxAllowed}
	}
	if currentPaid+input.Amount > inv.Amount*OverpayTolerance {
		return nil, &shared.PaymentError{Reason: "payment exceeds outstanding balance", MaxAmount: maxAllowed}
	}

	wasPaid := inv.Status == StatusPaid
	payment := Payment{
		ID:     uuid.NewString(),
		Amount: input.Amount,
		Date:   input.Date,
		Method: input.Method,
	}
	if payment.Date.IsZero() {
		payment.Date = time.Now().UTC()
	}
	inv.Payments = append(inv.Payments, payment)
	inv.PaidAmount = inv.TotalPaid()
	inv.Status = DeriveStatus(inv.Amount, inv.Payments, inv.DueAt, time.Now().UTC())
	if inv.Status == StatusPaid && !wasPaid {
		now := time.Now().UTC()
		inv.PaidAt = &now
	}

	if err := s.repo.AppendPayment(ctx, inv, payment); err != nil {
		return nil, fmt.Errorf("append payment: %w", err)
	}
	return inv, nil
}

// GetInvoice retrieves an invoice with its status freshly derived.
func (s *Service) GetInvoice(ctx context.Context, tenant string, id int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != StatusDraft {
		inv.Status = DeriveStatus(inv.Amount, inv.Payments, inv.DueAt, time.Now().UTC())
	}
	return inv, nil
}

// Aging computes the AR aging report across the tenant's open invoices.
// Concurrent requests for the same tenant share one computation.
func (s *Service) Aging(ctx context.Context, tenant string) (AgingBuckets, error) {
	v, err, _ := s.agingGroup.Do(tenant, func() (any, error) {
		open, err := s.repo.ListOpenInvoices(ctx, tenant)
		if err != nil {
			return AgingBuckets{}, err
		}
		return AgeInvoices(open, time.Now().UTC()), nil
	})
	if err != nil {
		return AgingBuckets{}, err
	}
	return v.(AgingBuckets), nil
}

// RefreshOverdue recomputes and stores the status cache for open invoices.
// Run nightly by the worker so listings stay truthful between payments.
func (s *Service) RefreshOverdue(ctx context.Context, tenant string) (int, error) {
	open, err := s.repo.ListOpenInvoices(ctx, tenant)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	updated := 0
	for i := range open {
		inv := &open[i]
		if inv.Status == StatusDraft {
			continue
		}
		derived := DeriveStatus(inv.Amount, inv.Payments, inv.DueAt, now)
		if derived == inv.Status {
			continue
		}
		if err := s.repo.UpdateStatusCache(ctx, tenant, inv.ID, derived); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// ListInvoiceNumbers exposes issued numbers for counter resync.
func (s *Service) ListInvoiceNumbers(ctx context.Context, tenant string) ([]string, error) {
	return s.repo.ListInvoiceNumbers(ctx, tenant)
}
