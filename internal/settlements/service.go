package settlements

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haulmont-ops/haulage-ledger/internal/drivers"
	"github.com/haulmont-ops/haulage-ledger/internal/expenses"
	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// NumberSource issues settlement numbers.
type NumberSource interface {
	Next(ctx context.Context, tenant string, kind sequence.Kind, year int) (int64, error)
}

// LoadStore is the slice of the load collaborator the settlement run needs.
type LoadStore interface {
	ListLoadsByIDs(ctx context.Context, tenant string, ids []int64) ([]loads.Load, error)
	LinkSettlement(ctx context.Context, tenant string, loadID, settlementID int64) error
}

// Service orchestrates settlement runs.
type Service struct {
	repo     RepositoryPort
	loads    LoadStore
	drivers  drivers.RepositoryPort
	expenses expenses.RepositoryPort
	numbers  NumberSource
	prefix   string
	logger   *slog.Logger
}

// NewService builds Service instance. prefix overrides the settlement number
// prefix; empty means the default.
func NewService(repo RepositoryPort, loadStore LoadStore, driverStore drivers.RepositoryPort, expenseStore expenses.RepositoryPort, numbers NumberSource, prefix string, logger *slog.Logger) *Service {
	if prefix == "" {
		prefix = sequence.DefaultSettlementPrefix
	}
	return &Service{
		repo:     repo,
		loads:    loadStore,
		drivers:  driverStore,
		expenses: expenseStore,
		numbers:  numbers,
		prefix:   prefix,
		logger:   logger,
	}
}

// RunInput describes a settlement run request.
type RunInput struct {
	DriverID      int64
	LoadIDs       []int64
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Deductions    Deductions
	OtherEarnings []OtherEarning
}

// RunResult pairs the persisted settlement with calculation warnings.
type RunResult struct {
	Settlement *Settlement
	Warnings   []string
}

// Preview computes a settlement without persisting anything.
func (s *Service) Preview(ctx context.Context, tenant string, input RunInput) (Calculation, error) {
	driver, batch, expenseList, err := s.gather(ctx, tenant, input)
	if err != nil {
		return Calculation{}, err
	}
	return Calculate(*driver, batch, input.Deductions, input.OtherEarnings, expenseList)
}

// Run computes and persists a settlement, issues its number and links the
// loads so they cannot be settled twice.
func (s *Service) Run(ctx context.Context, tenant string, input RunInput) (*RunResult, error) {
	driver, batch, expenseList, err := s.gather(ctx, tenant, input)
	if err != nil {
		return nil, err
	}

	calc, err := Calculate(*driver, batch, input.Deductions, input.OtherEarnings, expenseList)
	if err != nil {
		return nil, err
	}

	year := time.Now().UTC().Year()
	seq, err := s.numbers.Next(ctx, tenant, sequence.KindSettlement, year)
	if err != nil {
		return nil, fmt.Errorf("issue settlement number: %w", err)
	}

	settlement := Settlement{
		Tenant:           tenant,
		SettlementNumber: sequence.FormatSettlementNumber(s.prefix, year, seq),
		DriverID:         input.DriverID,
		PeriodStart:      input.PeriodStart,
		PeriodEnd:        input.PeriodEnd,
		Loads:            calc.Loads,
		GrossPay:         calc.GrossPay,
		Deductions:       calc.Deductions,
		TotalDeductions:  calc.TotalDeductions,
		OtherEarnings:    calc.OtherEarnings,
		NetPay:           calc.NetPay,
		TotalMiles:       calc.TotalMiles,
		EffectiveRate:    calc.EffectiveRate,
		Status:           StatusDraft,
	}

	id, err := s.repo.CreateSettlement(ctx, settlement)
	if err != nil {
		return nil, fmt.Errorf("create settlement: %w", err)
	}
	settlement.ID = id

	for _, l := range batch {
		if l.SettlementID != nil {
			continue // already warned by the calculator
		}
		if err := s.loads.LinkSettlement(ctx, tenant, l.ID, id); err != nil {
			s.logger.Warn("link load to settlement",
				slog.Int64("load_id", l.ID),
				slog.Int64("settlement_id", id),
				slog.Any("error", err))
			calc.Warnings = append(calc.Warnings, fmt.Sprintf("load %s could not be linked", l.LoadNumber))
		}
	}

	return &RunResult{Settlement: &settlement, Warnings: calc.Warnings}, nil
}

// GetSettlement retrieves a settlement by id.
func (s *Service) GetSettlement(ctx context.Context, tenant string, id int64) (*Settlement, error) {
	return s.repo.GetSettlement(ctx, tenant, id)
}

// UpdateStatus moves the settlement along its one-directional lifecycle. A
// paid or void settlement admits no further transitions.
func (s *Service) UpdateStatus(ctx context.Context, tenant string, id int64, target Status) (*Settlement, error) {
	if !target.Valid() {
		return nil, shared.NewValidationError(fmt.Sprintf("unknown status %q", target))
	}
	settlement, err := s.repo.GetSettlement(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !settlement.Status.CanTransition(target) {
		return nil, &shared.StateError{Entity: "settlement", Current: string(settlement.Status), Attempted: string(target)}
	}
	if err := s.repo.UpdateStatus(ctx, tenant, id, target); err != nil {
		return nil, fmt.Errorf("update settlement status: %w", err)
	}
	settlement.Status = target
	return settlement, nil
}

func (s *Service) gather(ctx context.Context, tenant string, input RunInput) (*drivers.Driver, []loads.Load, []expenses.Expense, error) {
	if tenant == "" {
		return nil, nil, nil, shared.NewValidationError("tenant required")
	}
	driver, err := s.drivers.GetDriver(ctx, tenant, input.DriverID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get driver: %w", err)
	}
	batch, err := s.loads.ListLoadsByIDs(ctx, tenant, input.LoadIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list loads: %w", err)
	}
	if len(batch) != len(input.LoadIDs) {
		return nil, nil, nil, fmt.Errorf("%d of %d loads: %w", len(batch), len(input.LoadIDs), shared.ErrNotFound)
	}
	expenseList, err := s.expenses.ListDeductible(ctx, tenant, input.DriverID, input.PeriodStart, input.PeriodEnd)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list expenses: %w", err)
	}
	return driver, batch, expenseList, nil
}
