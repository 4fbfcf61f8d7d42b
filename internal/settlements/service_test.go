package settlements

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haulmont-ops/haulage-ledger/internal/drivers"
	"github.com/haulmont-ops/haulage-ledger/internal/expenses"
	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

type memorySettlementRepo struct {
	settlements map[int64]*Settlement
	nextID      int64
}

func newMemorySettlementRepo() *memorySettlementRepo {
	return &memorySettlementRepo{settlements: make(map[int64]*Settlement)}
}

func (r *memorySettlementRepo) CreateSettlement(ctx context.Context, s Settlement) (int64, error) {
	r.nextID++
	s.ID = r.nextID
	r.settlements[s.ID] = &s
	return s.ID, nil
}

func (r *memorySettlementRepo) GetSettlement(ctx context.Context, tenant string, id int64) (*Settlement, error) {
	s, ok := r.settlements[id]
	if !ok || s.Tenant != tenant {
		return nil, shared.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *memorySettlementRepo) UpdateStatus(ctx context.Context, tenant string, id int64, status Status) error {
	s, ok := r.settlements[id]
	if !ok {
		return shared.ErrNotFound
	}
	s.Status = status
	return nil
}

func (r *memorySettlementRepo) ListSettlementNumbers(ctx context.Context, tenant string) ([]string, error) {
	var out []string
	for _, s := range r.settlements {
		if s.Tenant == tenant {
			out = append(out, s.SettlementNumber)
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

func (s *memoryLoadStore) LinkSettlement(ctx context.Context, tenant string, loadID, settlementID int64) error {
	l, ok := s.loads[loadID]
	if !ok {
		return shared.ErrNotFound
	}
	if l.SettlementID != nil {
		return shared.ErrNotFound
	}
	l.SettlementID = &settlementID
	return nil
}

type memoryDriverStore struct {
	drivers map[int64]*drivers.Driver
}

func (s *memoryDriverStore) GetDriver(ctx context.Context, tenant string, id int64) (*drivers.Driver, error) {
	d, ok := s.drivers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return d, nil
}

func (s *memoryDriverStore) ListDrivers(ctx context.Context, tenant string) ([]drivers.Driver, error) {
	var out []drivers.Driver
	for _, d := range s.drivers {
		out = append(out, *d)
	}
	return out, nil
}

type memoryExpenseStore struct {
	expenses []expenses.Expense
}

func (s *memoryExpenseStore) ListDeductible(ctx context.Context, tenant string, driverID int64, from, to time.Time) ([]expenses.Expense, error) {
	var out []expenses.Expense
	for _, e := range s.expenses {
		if e.DriverID == driverID && e.Deductible() {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubNumbers struct {
	seq int64
}

func (s *stubNumbers) Next(ctx context.Context, tenant string, kind sequence.Kind, year int) (int64, error) {
	if s.seq == 0 {
		s.seq = sequence.StartValue(kind)
	} else {
		s.seq++
	}
	return s.seq, nil
}

func newSettlementFixture() (*Service, *memorySettlementRepo, *memoryLoadStore) {
	repo := newMemorySettlementRepo()
	loadStore := &memoryLoadStore{loads: map[int64]*loads.Load{
		10: {ID: 10, Tenant: "t1", LoadNumber: "LD-2025-1", DriverID: 1, Rate: 2000, Miles: 500, Status: loads.StatusDelivered},
		11: {ID: 11, Tenant: "t1", LoadNumber: "LD-2025-2", DriverID: 1, Rate: 1500, Miles: 300, Status: loads.StatusDelivered},
	}}
	driverStore := &memoryDriverStore{drivers: map[int64]*drivers.Driver{
		1: {ID: 1, Tenant: "t1", Name: "J. Carter", Type: drivers.TypeCompany, Payment: drivers.PaymentProfile{Method: drivers.PayPercentage, Percentage: 30}},
	}}
	expenseStore := &memoryExpenseStore{}
	svc := NewService(repo, loadStore, driverStore, expenseStore, &stubNumbers{}, "", slog.Default())
	return svc, repo, loadStore
}

func TestRunCreatesSettlementAndLinksLoads(t *testing.T) {
	ctx := context.Background()
	svc, _, loadStore := newSettlementFixture()

	result, err := svc.Run(ctx, "t1", RunInput{
		DriverID:    1,
		LoadIDs:     []int64{10, 11},
		PeriodStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Settlement)
	require.Equal(t, StatusDraft, result.Settlement.Status)
	require.InEpsilon(t, 1050.0, result.Settlement.GrossPay, 1e-9) // 30% of 3500
	require.Contains(t, result.Settlement.SettlementNumber, "SET-")

	require.NotNil(t, loadStore.loads[10].SettlementID)
	require.NotNil(t, loadStore.loads[11].SettlementID)
	require.Equal(t, result.Settlement.ID, *loadStore.loads[10].SettlementID)
}

func TestRunNeverDoubleSettles(t *testing.T) {
	ctx := context.Background()
	svc, _, loadStore := newSettlementFixture()
	prior := int64(99)
	loadStore.loads[10].SettlementID = &prior

	result, err := svc.Run(ctx, "t1", RunInput{
		DriverID:    1,
		LoadIDs:     []int64{10},
		PeriodStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	require.Equal(t, int64(99), *loadStore.loads[10].SettlementID, "existing linkage is never overwritten")
}

func TestRunMissingLoadFails(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSettlementFixture()

	_, err := svc.Run(ctx, "t1", RunInput{DriverID: 1, LoadIDs: []int64{10, 404}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	svc, repo, loadStore := newSettlementFixture()

	calc, err := svc.Preview(ctx, "t1", RunInput{DriverID: 1, LoadIDs: []int64{10}})
	require.NoError(t, err)
	require.InEpsilon(t, 600.0, calc.GrossPay, 1e-9)
	require.Empty(t, repo.settlements)
	require.Nil(t, loadStore.loads[10].SettlementID)
}

func TestUpdateStatusFollowsTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSettlementFixture()

	result, err := svc.Run(ctx, "t1", RunInput{DriverID: 1, LoadIDs: []int64{10}})
	require.NoError(t, err)
	id := result.Settlement.ID

	for _, target := range []Status{StatusPending, StatusProcessed, StatusPaid} {
		s, err := svc.UpdateStatus(ctx, "t1", id, target)
		require.NoError(t, err)
		require.Equal(t, target, s.Status)
	}

	_, err = svc.UpdateStatus(ctx, "t1", id, StatusDraft)
	var stateErr *shared.StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, string(StatusPaid), stateErr.Current)
}

func TestUpdateStatusVoidFromDraft(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSettlementFixture()

	result, err := svc.Run(ctx, "t1", RunInput{DriverID: 1, LoadIDs: []int64{10}})
	require.NoError(t, err)

	s, err := svc.UpdateStatus(ctx, "t1", result.Settlement.ID, StatusVoid)
	require.NoError(t, err)
	require.Equal(t, StatusVoid, s.Status)

	_, err = svc.UpdateStatus(ctx, "t1", result.Settlement.ID, StatusPending)
	require.Error(t, err)
}
