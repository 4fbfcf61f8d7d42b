package adjustments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// LoadStore is the slice of the load collaborator the workflow needs.
type LoadStore interface {
	GetLoad(ctx context.Context, tenant string, id int64) (*loads.Load, error)
	UpdateLoad(ctx context.Context, l *loads.Load) error
}

// Locker serialises the review critical section per adjustment.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Config controls workflow behaviour per deployment.
type Config struct {
	// RequireApproval is the default review gate for adjustments that do
	// not state one. When false, create and apply happen in one step.
	RequireApproval bool
}

// Service runs the adjustment workflow.
type Service struct {
	repo   RepositoryPort
	loads  LoadStore
	locker Locker
	audit  shared.AuditSink
	logger *slog.Logger
	cfg    Config
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, loadStore LoadStore, locker Locker, audit shared.AuditSink, logger *slog.Logger, cfg Config) *Service {
	return &Service{repo: repo, loads: loadStore, locker: locker, audit: audit, logger: logger, cfg: cfg}
}

// CreateInput describes an adjustment request. RequireApproval overrides the
// deployment default when set, so gated and ungated adjustments can coexist
// on one service.
type CreateInput struct {
	LoadID          int64
	Patch           loads.Patch
	Reason          string
	RequestedBy     string
	RequireApproval *bool
}

// Create records an adjustment request. Every adjustment carries a non-blank
// reason; ordinary edits that need none go through the plain load update
// path instead. With approval off the adjustment is applied immediately.
func (s *Service) Create(ctx context.Context, tenant string, input CreateInput) (*Adjustment, error) {
	var violations []string
	if tenant == "" {
		violations = append(violations, "tenant required")
	}
	if input.LoadID <= 0 {
		violations = append(violations, "load id required")
	}
	if input.Patch.IsEmpty() {
		violations = append(violations, "patch must change at least one field")
	}
	if strings.TrimSpace(input.Reason) == "" {
		violations = append(violations, "reason required")
	}
	if len(violations) > 0 {
		return nil, &shared.ValidationError{Violations: violations}
	}

	l, err := s.loads.GetLoad(ctx, tenant, input.LoadID)
	if err != nil {
		return nil, err
	}

	requireApproval := s.cfg.RequireApproval
	if input.RequireApproval != nil {
		requireApproval = *input.RequireApproval
	}

	adj := &Adjustment{
		ID:              uuid.NewString(),
		Tenant:          tenant,
		LoadID:          input.LoadID,
		Patch:           input.Patch,
		Reason:          input.Reason,
		Status:          StatusPending,
		RequestedBy:     input.RequestedBy,
		RequireApproval: requireApproval,
		CreatedAt:       time.Now().UTC(),
	}

	if !requireApproval {
		s.stageApplied(adj, l)
		if err := s.repo.CreateAdjustment(ctx, adj); err != nil {
			return nil, fmt.Errorf("create adjustment: %w", err)
		}
		if err := s.writeLoad(ctx, adj, l); err != nil {
			return nil, err
		}
		s.recordAudit(ctx, adj, "adjustment.applied")
		return adj, nil
	}

	if err := s.repo.CreateAdjustment(ctx, adj); err != nil {
		return nil, fmt.Errorf("create adjustment: %w", err)
	}
	s.recordAudit(ctx, adj, "adjustment.requested")
	return adj, nil
}

// Approve moves a pending adjustment to applied: the approval decision and
// the load mutation commit together or not at all.
func (s *Service) Approve(ctx context.Context, tenant, id, reviewer, note string) (*Adjustment, error) {
	release, err := s.locker.Acquire(ctx, shared.AdjustmentLockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	adj, err := s.repo.GetAdjustment(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusPending {
		return nil, &shared.StateError{Entity: "adjustment " + id, Current: string(adj.Status), Attempted: string(StatusApproved)}
	}

	l, err := s.loads.GetLoad(ctx, tenant, adj.LoadID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	adj.ReviewedBy = reviewer
	adj.DecisionNote = note
	adj.ReviewedAt = &now

	s.stageApplied(adj, l)
	if err := s.repo.UpdateAdjustment(ctx, adj); err != nil {
		return nil, fmt.Errorf("update adjustment: %w", err)
	}
	if err := s.writeLoad(ctx, adj, l); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, adj, "adjustment.applied")
	return adj, nil
}

// Reject closes a pending adjustment without touching the load. A rejection
// always carries a note so the requester learns why.
func (s *Service) Reject(ctx context.Context, tenant, id, reviewer, note string) (*Adjustment, error) {
	if strings.TrimSpace(note) == "" {
		return nil, shared.NewValidationError("rejection requires a note")
	}
	release, err := s.locker.Acquire(ctx, shared.AdjustmentLockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	adj, err := s.repo.GetAdjustment(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if adj.Status != StatusPending {
		return nil, &shared.StateError{Entity: "adjustment " + id, Current: string(adj.Status), Attempted: string(StatusRejected)}
	}

	now := time.Now().UTC()
	adj.Status = StatusRejected
	adj.ReviewedBy = reviewer
	adj.DecisionNote = note
	adj.ReviewedAt = &now

	if err := s.repo.UpdateAdjustment(ctx, adj); err != nil {
		return nil, fmt.Errorf("update adjustment: %w", err)
	}
	s.recordAudit(ctx, adj, "adjustment.rejected")
	return adj, nil
}

// GetAdjustment returns an adjustment by id scoped to the tenant.
func (s *Service) GetAdjustment(ctx context.Context, tenant, id string) (*Adjustment, error) {
	return s.repo.GetAdjustment(ctx, tenant, id)
}

// ListByLoad returns the load's adjustment history, oldest first.
func (s *Service) ListByLoad(ctx context.Context, tenant string, loadID int64) ([]Adjustment, error) {
	return s.repo.ListByLoad(ctx, tenant, loadID)
}

// stageApplied snapshots the change log against current load values and
// marks the adjustment applied, without touching storage. The record is
// always persisted before the load write so a storage failure cannot leave
// a patched load with no adjustment row behind it.
func (s *Service) stageApplied(adj *Adjustment, l *loads.Load) {
	now := time.Now().UTC()
	adj.Changes = adj.Patch.Changes(l)
	adj.Status = StatusApplied
	adj.AppliedAt = &now
}

func (s *Service) writeLoad(ctx context.Context, adj *Adjustment, l *loads.Load) error {
	adj.Patch.Apply(l)
	if err := s.loads.UpdateLoad(ctx, l); err != nil {
		return fmt.Errorf("apply adjustment to load: %w", err)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, adj *Adjustment, action string) {
	actor := adj.RequestedBy
	if adj.ReviewedBy != "" {
		actor = adj.ReviewedBy
	}
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditEntry{
		Tenant:   adj.Tenant,
		Actor:    actor,
		Entity:   "load",
		EntityID: strconv.FormatInt(adj.LoadID, 10),
		Action:   action,
		Patch:    loads.ChangesAsMap(adj.Changes),
		Reason:   adj.Reason,
		At:       time.Now().UTC(),
	})
}
