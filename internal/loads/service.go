package loads

import (
	"context"
	"fmt"
	"time"

	"github.com/haulmont-ops/haulage-ledger/internal/sequence"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// NumberSource issues load numbers.
type NumberSource interface {
	Next(ctx context.Context, tenant string, kind sequence.Kind, year int) (int64, error)
}

// Service handles load business logic.
type Service struct {
	repo    RepositoryPort
	numbers NumberSource
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, numbers NumberSource) *Service {
	return &Service{repo: repo, numbers: numbers}
}

// CreateLoadInput for creating loads.
type CreateLoadInput struct {
	CustomerName string
	DriverID     int64
	Rate         float64
	Miles        float64
	Accessorials Accessorials

	DriverBasePay      float64
	DriverDetentionPay float64
	DriverLayoverPay   float64

	Notes string
}

// CreateLoad validates input, issues an LD number and persists the load.
func (s *Service) CreateLoad(ctx context.Context, tenant string, input CreateLoadInput) (*Load, error) {
	var violations []string
	if tenant == "" {
		violations = append(violations, "tenant required")
	}
	if input.Rate < 0 {
		violations = append(violations, "rate cannot be negative")
	}
	if input.Miles < 0 {
		violations = append(violations, "miles cannot be negative")
	}
	if len(violations) > 0 {
		return nil, &shared.ValidationError{Violations: violations}
	}

	year := time.Now().UTC().Year()
	seq, err := s.numbers.Next(ctx, tenant, sequence.KindLoad, year)
	if err != nil {
		return nil, fmt.Errorf("issue load number: %w", err)
	}

	l := Load{
		Tenant:             tenant,
		LoadNumber:         sequence.FormatLoadNumber(year, seq),
		CustomerName:       input.CustomerName,
		DriverID:           input.DriverID,
		Rate:               input.Rate,
		Miles:              input.Miles,
		Accessorials:       input.Accessorials,
		DriverBasePay:      input.DriverBasePay,
		DriverDetentionPay: input.DriverDetentionPay,
		DriverLayoverPay:   input.DriverLayoverPay,
		Status:             StatusAvailable,
		Notes:              input.Notes,
	}
	l.GrandTotal = l.TotalAmount()

	id, err := s.repo.CreateLoad(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("create load: %w", err)
	}
	l.ID = id
	return &l, nil
}

// GetLoad retrieves a load by id.
func (s *Service) GetLoad(ctx context.Context, tenant string, id int64) (*Load, error) {
	return s.repo.GetLoad(ctx, tenant, id)
}

// UpdateStatus moves the load along its lifecycle, enforcing the transition
// table.
func (s *Service) UpdateStatus(ctx context.Context, tenant string, id int64, target Status) (*Load, error) {
	if !target.Valid() {
		return nil, shared.NewValidationError(fmt.Sprintf("unknown status %q", target))
	}
	l, err := s.repo.GetLoad(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !l.Status.CanTransition(target) {
		return nil, &shared.StateError{Entity: "load", Current: string(l.Status), Attempted: string(target)}
	}
	l.Status = target
	l.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateLoad(ctx, l); err != nil {
		return nil, fmt.Errorf("update load: %w", err)
	}
	return l, nil
}
