package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

type memoryInvoiceRepo struct {
	invoices map[int64]*Invoice
	nextID   int64
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[int64]*Invoice)}
}

func (r *memoryInvoiceRepo) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	r.nextID++
	inv.ID = r.nextID
	r.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (r *memoryInvoiceRepo) GetInvoice(ctx context.Context, tenant string, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.Tenant != tenant {
		return nil, shared.ErrNotFound
	}
	copied := *inv
	copied.Payments = append([]Payment(nil), inv.Payments...)
	return &copied, nil
}

func (r *memoryInvoiceRepo) AppendPayment(ctx context.Context, inv *Invoice, _ Payment) error {
	stored, ok := r.invoices[inv.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Payments = append([]Payment(nil), inv.Payments...)
	stored.PaidAmount = inv.PaidAmount
	stored.Status = inv.Status
	stored.PaidAt = inv.PaidAt
	return nil
}

func (r *memoryInvoiceRepo) ListOpenInvoices(ctx context.Context, tenant string) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.Tenant == tenant && inv.Status != StatusPaid {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *memoryInvoiceRepo) UpdateStatusCache(ctx context.Context, tenant string, id int64, status Status) error {
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.Status = status
	return nil
}

func (r *memoryInvoiceRepo) ListInvoiceNumbers(ctx context.Context, tenant string) ([]string, error) {
	var out []string
	for _, inv := range r.invoices {
		if inv.Tenant == tenant {
			out = append(out, inv.InvoiceNumber)
		}
	}
	return out, nil
}

type memoryLoadStore struct {
	loads map[int64]*loads.Load
}

func (s *memoryLoadStore) ListLoadsByIDs(ctx context.Context, tenant string, ids []int64) ([]loads.Load, error) {
	var out []loads.Load
	for _, id := range ids {
		if l, ok := s.loads[id]; ok && l.Tenant == tenant {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *memoryLoadStore) LinkInvoice(ctx context.Context, tenant string, loadID, invoiceID int64) error {
	l, ok := s.loads[loadID]
	if !ok {
		return shared.ErrNotFound
	}
	if l.InvoiceID != nil {
		return shared.ErrNotFound
	}
	l.InvoiceID = &invoiceID
	return nil
}

type stubNumbers struct {
	next int64
}

func (s *stubNumbers) Next(ctx context.Context, tenant string, kind sequence.Kind, year int) (int64, error) {
	if s.next == 0 {
		s.next = sequence.StartValue(kind)
	}
	n := s.next
	s.next++
	return n, nil
}

func newTestService(repo *memoryInvoiceRepo, store *memoryLoadStore) *Service {
	return NewService(repo, store, &stubNumbers{}, shared.NewEntityLocker(nil, 0), slog.Default())
}

func deliveredLoad(id int64, rate float64) *loads.Load {
	return &loads.Load{
		ID:         id,
		Tenant:     "acme",
		LoadNumber: fmt.Sprintf("LD-2025-%d", id),
		Rate:       rate,
		Status:     loads.StatusDelivered,
	}
}

func TestCreateInvoiceFromLoads(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{
		1: deliveredLoad(1, 2000),
		2: deliveredLoad(2, 1500),
	}}
	store.loads[2].Accessorials.Detention = 150

	svc := newTestService(repo, store)
	inv, err := svc.Create(context.Background(), "acme", CreateInput{
		CustomerName: "Shipper Co",
		LoadIDs:      []int64{1, 2},
		DueInDays:    30,
	})
	require.NoError(t, err)

	require.Contains(t, inv.InvoiceNumber, "INV-")
	require.Len(t, inv.Lines, 2)
	require.Equal(t, 3650.0, inv.Amount)
	require.Equal(t, inv.Amount, inv.NetAmount)
	require.Equal(t, StatusDraft, inv.Status)
	require.False(t, inv.DueAt.IsZero())

	require.NotNil(t, store.loads[1].InvoiceID)
	require.Equal(t, inv.ID, *store.loads[1].InvoiceID)
	require.NotNil(t, store.loads[2].InvoiceID)
}

func TestCreateInvoiceFactoring(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: deliveredLoad(1, 1000)}}

	svc := newTestService(repo, store)
	inv, err := svc.Create(context.Background(), "acme", CreateInput{
		CustomerName:    "Shipper Co",
		LoadIDs:         []int64{1},
		Factored:        true,
		FactoringFeePct: 3,
	})
	require.NoError(t, err)

	require.Equal(t, 1000.0, inv.Amount)
	require.Equal(t, 30.0, inv.FactoringFee)
	require.Equal(t, 970.0, inv.NetAmount)
}

func TestCreateInvoiceRejectsAlreadyInvoicedLoad(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	other := int64(99)
	l := deliveredLoad(1, 1000)
	l.InvoiceID = &other
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: l}}

	svc := newTestService(repo, store)
	_, err := svc.Create(context.Background(), "acme", CreateInput{
		CustomerName: "Shipper Co",
		LoadIDs:      []int64{1},
	})

	var stateErr *shared.StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, "invoiced", stateErr.Current)
}

func TestCreateInvoiceMissingLoadFails(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: deliveredLoad(1, 1000)}}

	svc := newTestService(repo, store)
	_, err := svc.Create(context.Background(), "acme", CreateInput{
		CustomerName: "Shipper Co",
		LoadIDs:      []int64{1, 7},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func createTestInvoice(t *testing.T, svc *Service, amount float64) *Invoice {
	t.Helper()
	inv, err := svc.Create(context.Background(), "acme", CreateInput{
		CustomerName: "Shipper Co",
		LoadIDs:      []int64{1},
		DueInDays:    30,
	})
	require.NoError(t, err)
	require.Equal(t, amount, inv.Amount)
	return inv
}

func TestAddPaymentTolerance(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: deliveredLoad(1, 1000)}}
	svc := newTestService(repo, store)
	inv := createTestInvoice(t, svc, 1000)
	ctx := context.Background()

	_, err := svc.AddPayment(ctx, "acme", inv.ID, PaymentInput{Amount: 400, Method: "ach"})
	require.NoError(t, err)
	got, err := svc.AddPayment(ctx, "acme", inv.ID, PaymentInput{Amount: 550, Method: "ach"})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, got.Status)
	require.Equal(t, 950.0, got.PaidAmount)

	// 950 + 61 would exceed 1000 * 1.01.
	_, err = svc.AddPayment(ctx, "acme", inv.ID, PaymentInput{Amount: 61})
	var payErr *shared.PaymentError
	require.ErrorAs(t, err, &payErr)
	require.InDelta(t, 60.0, payErr.MaxAmount, 1e-9)

	// 950 + 60 lands exactly on the tolerance ceiling.
	got, err = svc.AddPayment(ctx, "acme", inv.ID, PaymentInput{Amount: 60})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.Equal(t, 1010.0, got.PaidAmount)
	require.NotNil(t, got.PaidAt)
}

func TestAddPaymentRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: deliveredLoad(1, 1000)}}
	svc := newTestService(repo, store)
	inv := createTestInvoice(t, svc, 1000)

	for _, amount := range []float64{0, -50} {
		_, err := svc.AddPayment(context.Background(), "acme", inv.ID, PaymentInput{Amount: amount})
		var payErr *shared.PaymentError
		require.ErrorAs(t, err, &payErr)
	}
}

func TestAddPaymentStampsPaidAtOnce(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: deliveredLoad(1, 1000)}}
	svc := newTestService(repo, store)
	inv := createTestInvoice(t, svc, 1000)
	ctx := context.Background()

	got, err := svc.AddPayment(ctx, "acme", inv.ID, PaymentInput{Amount: 995})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	first := *got.PaidAt

	time.Sleep(5 * time.Millisecond)
	got, err = svc.AddPayment(ctx, "acme", inv.ID, PaymentInput{Amount: 10})
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	require.Equal(t, first, *got.PaidAt)
}

func TestAddPaymentTenantIsolation(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: deliveredLoad(1, 1000)}}
	svc := newTestService(repo, store)
	inv := createTestInvoice(t, svc, 1000)

	_, err := svc.AddPayment(context.Background(), "rival", inv.ID, PaymentInput{Amount: 100})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAgingReport(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	now := time.Now().UTC()
	repo.invoices[1] = &Invoice{ID: 1, Tenant: "acme", Amount: 1000, Status: StatusPending, DueAt: now.AddDate(0, 0, -10)}
	repo.invoices[2] = &Invoice{ID: 2, Tenant: "acme", Amount: 500, Status: StatusOverdue, DueAt: now.AddDate(0, 0, -45)}
	repo.invoices[3] = &Invoice{ID: 3, Tenant: "acme", Amount: 800, Status: StatusPaid, DueAt: now.AddDate(0, 0, -45), Payments: []Payment{{Amount: 800}}}
	repo.invoices[4] = &Invoice{ID: 4, Tenant: "rival", Amount: 9999, Status: StatusPending, DueAt: now.AddDate(0, 0, -100)}
	repo.nextID = 4

	svc := newTestService(repo, &memoryLoadStore{})
	buckets, err := svc.Aging(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, 1000.0, buckets.Current)
	require.Equal(t, 500.0, buckets.Days31to60)
	require.Equal(t, 1500.0, buckets.Total())
}

func TestRefreshOverdue(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	now := time.Now().UTC()
	repo.invoices[1] = &Invoice{ID: 1, Tenant: "acme", Amount: 1000, Status: StatusPending, DueAt: now.AddDate(0, 0, -5)}
	repo.invoices[2] = &Invoice{ID: 2, Tenant: "acme", Amount: 1000, Status: StatusPending, DueAt: now.AddDate(0, 0, 5)}
	repo.nextID = 2

	svc := newTestService(repo, &memoryLoadStore{})
	updated, err := svc.RefreshOverdue(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, 1, updated)
	require.Equal(t, StatusOverdue, repo.invoices[1].Status)
	require.Equal(t, StatusPending, repo.invoices[2].Status)
}
