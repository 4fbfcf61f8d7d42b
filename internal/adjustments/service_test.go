package adjustments

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

var errStorageDown = errors.New("storage down")

type memoryAdjustmentRepo struct {
	adjustments map[string]*Adjustment
	inserted    []string
	failCreate  bool
	failUpdate  bool
}

func newMemoryAdjustmentRepo() *memoryAdjustmentRepo {
	return &memoryAdjustmentRepo{adjustments: make(map[string]*Adjustment)}
}

func (r *memoryAdjustmentRepo) CreateAdjustment(ctx context.Context, adj *Adjustment) error {
	if r.failCreate {
		return errStorageDown
	}
	copied := *adj
	r.adjustments[adj.ID] = &copied
	r.inserted = append(r.inserted, adj.ID)
	return nil
}

func (r *memoryAdjustmentRepo) GetAdjustment(ctx context.Context, tenant, id string) (*Adjustment, error) {
	adj, ok := r.adjustments[id]
	if !ok || adj.Tenant != tenant {
		return nil, shared.ErrNotFound
	}
	copied := *adj
	return &copied, nil
}

func (r *memoryAdjustmentRepo) UpdateAdjustment(ctx context.Context, adj *Adjustment) error {
	if r.failUpdate {
		return errStorageDown
	}
	stored, ok := r.adjustments[adj.ID]
	if !ok || stored.Status != StatusPending {
		return shared.ErrNotFound
	}
	copied := *adj
	r.adjustments[adj.ID] = &copied
	return nil
}

func (r *memoryAdjustmentRepo) ListByLoad(ctx context.Context, tenant string, loadID int64) ([]Adjustment, error) {
	var out []Adjustment
	for _, id := range r.inserted {
		adj := r.adjustments[id]
		if adj.Tenant == tenant && adj.LoadID == loadID {
			out = append(out, *adj)
		}
	}
	return out, nil
}

type memoryLoadStore struct {
	loads map[int64]*loads.Load
}

func (s *memoryLoadStore) GetLoad(ctx context.Context, tenant string, id int64) (*loads.Load, error) {
	l, ok := s.loads[id]
	if !ok || l.Tenant != tenant {
		return nil, shared.ErrNotFound
	}
	copied := *l
	return &copied, nil
}

func (s *memoryLoadStore) UpdateLoad(ctx context.Context, l *loads.Load) error {
	if _, ok := s.loads[l.ID]; !ok {
		return shared.ErrNotFound
	}
	copied := *l
	s.loads[l.ID] = &copied
	return nil
}

type recordingAudit struct {
	entries []shared.AuditEntry
	fail    bool
}

func (a *recordingAudit) Record(ctx context.Context, entry shared.AuditEntry) error {
	if a.fail {
		return context.DeadlineExceeded
	}
	a.entries = append(a.entries, entry)
	return nil
}

func newTestService(repo *memoryAdjustmentRepo, store *memoryLoadStore, audit shared.AuditSink, requireApproval bool) *Service {
	return NewService(repo, store, shared.NewEntityLocker(nil, 0), audit, slog.Default(), Config{RequireApproval: requireApproval})
}

func testLoad(status loads.Status) *loads.Load {
	return &loads.Load{
		ID:         1,
		Tenant:     "acme",
		LoadNumber: "LD-2025-1",
		Rate:       2000,
		Miles:      600,
		Status:     status,
	}
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestCreatePendingThenApprove(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusDelivered)}}
	audit := &recordingAudit{}
	svc := newTestService(repo, store, audit, true)
	ctx := context.Background()

	adj, err := svc.Create(ctx, "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{Rate: floatPtr(2150)},
		Reason:      "detention renegotiated with broker",
		RequestedBy: "dispatcher",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, adj.Status)
	require.Equal(t, 2000.0, store.loads[1].Rate, "pending adjustment must not touch the load")

	adj, err = svc.Approve(ctx, "acme", adj.ID, "manager", "ok")
	require.NoError(t, err)
	require.Equal(t, StatusApplied, adj.Status)
	require.NotNil(t, adj.AppliedAt)
	require.Equal(t, 2150.0, store.loads[1].Rate)

	require.Len(t, adj.Changes, 1)
	require.Equal(t, "rate", adj.Changes[0].Field)
	require.Equal(t, 2000.0, adj.Changes[0].Old)
	require.Equal(t, 2150.0, adj.Changes[0].New)
}

func TestRejectLeavesLoadUntouched(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusDelivered)}}
	svc := newTestService(repo, store, &recordingAudit{}, true)
	ctx := context.Background()

	adj, err := svc.Create(ctx, "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{Rate: floatPtr(2150)},
		Reason:      "rate dispute",
		RequestedBy: "dispatcher",
	})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, "acme", adj.ID, "manager", "  ")
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)

	adj, err = svc.Reject(ctx, "acme", adj.ID, "manager", "no supporting docs")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, adj.Status)
	require.Equal(t, "no supporting docs", adj.DecisionNote)
	require.Equal(t, 2000.0, store.loads[1].Rate)
}

func TestReviewRequiresPendingStatus(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusDelivered)}}
	svc := newTestService(repo, store, &recordingAudit{}, true)
	ctx := context.Background()

	adj, err := svc.Create(ctx, "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{Rate: floatPtr(2150)},
		Reason:      "rate change",
		RequestedBy: "dispatcher",
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, "acme", adj.ID, "manager", "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, "acme", adj.ID, "manager", "")
	var stateErr *shared.StateError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, string(StatusApplied), stateErr.Current)

	_, err = svc.Reject(ctx, "acme", adj.ID, "manager", "already applied")
	require.ErrorAs(t, err, &stateErr)
}

func TestAutoApplyWhenApprovalDisabled(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusDelivered)}}
	audit := &recordingAudit{}
	svc := newTestService(repo, store, audit, false)

	adj, err := svc.Create(context.Background(), "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{Rate: floatPtr(2150)},
		Reason:      "rate correction",
		RequestedBy: "dispatcher",
	})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, adj.Status)
	require.NotNil(t, adj.AppliedAt)
	require.Equal(t, 2150.0, store.loads[1].Rate)
	require.Len(t, adj.Changes, 1)

	require.Len(t, audit.entries, 1)
	require.Equal(t, "adjustment.applied", audit.entries[0].Action)
}

func TestCreateRequiresReason(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{
		1: testLoad(loads.StatusDelivered),
		2: testLoad(loads.StatusInTransit),
	}}
	store.loads[2].ID = 2
	svc := newTestService(repo, store, &recordingAudit{}, false)
	ctx := context.Background()

	for name, input := range map[string]CreateInput{
		"locked load":   {LoadID: 1, Patch: loads.Patch{Rate: floatPtr(2150)}, RequestedBy: "dispatcher"},
		"unlocked load": {LoadID: 2, Patch: loads.Patch{Rate: floatPtr(2150)}, RequestedBy: "dispatcher"},
		"soft field":    {LoadID: 1, Patch: loads.Patch{PODNumber: strPtr("POD-4491")}, RequestedBy: "dispatcher"},
		"blank reason":  {LoadID: 1, Patch: loads.Patch{Rate: floatPtr(2150)}, Reason: "   ", RequestedBy: "dispatcher"},
	} {
		_, err := svc.Create(ctx, "acme", input)
		var valErr *shared.ValidationError
		require.ErrorAs(t, err, &valErr, name)
		require.Contains(t, valErr.Violations, "reason required", name)
	}

	adj, err := svc.Create(ctx, "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{PODNumber: strPtr("POD-4491")},
		Reason:      "pod attached late",
		RequestedBy: "dispatcher",
	})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, adj.Status)
	require.Equal(t, "POD-4491", store.loads[1].PODNumber)
}

func TestCreateFailureLeavesLoadUntouched(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	repo.failCreate = true
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusDelivered)}}
	audit := &recordingAudit{}
	svc := newTestService(repo, store, audit, false)

	_, err := svc.Create(context.Background(), "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{Rate: floatPtr(2150)},
		Reason:      "rate correction",
		RequestedBy: "dispatcher",
	})
	require.ErrorIs(t, err, errStorageDown)
	require.Equal(t, 2000.0, store.loads[1].Rate, "load must stay untouched when the adjustment record cannot be written")
	require.Empty(t, audit.entries)
}

func TestApproveFailureLeavesLoadUntouched(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusDelivered)}}
	svc := newTestService(repo, store, &recordingAudit{}, true)
	ctx := context.Background()

	adj, err := svc.Create(ctx, "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{Rate: floatPtr(2150)},
		Reason:      "rate correction",
		RequestedBy: "dispatcher",
	})
	require.NoError(t, err)

	repo.failUpdate = true
	_, err = svc.Approve(ctx, "acme", adj.ID, "manager", "ok")
	require.ErrorIs(t, err, errStorageDown)
	require.Equal(t, 2000.0, store.loads[1].Rate)
	require.Equal(t, StatusPending, repo.adjustments[adj.ID].Status)
}

func TestPerRequestApprovalOverride(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusDelivered)}}
	svc := newTestService(repo, store, &recordingAudit{}, true)
	ctx := context.Background()
	gated := true
	ungated := false

	adj, err := svc.Create(ctx, "acme", CreateInput{
		LoadID:          1,
		Patch:           loads.Patch{Rate: floatPtr(2150)},
		Reason:          "rate correction",
		RequestedBy:     "dispatcher",
		RequireApproval: &ungated,
	})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, adj.Status)
	require.False(t, adj.RequireApproval)
	require.Equal(t, 2150.0, store.loads[1].Rate)

	adj, err = svc.Create(ctx, "acme", CreateInput{
		LoadID:          1,
		Patch:           loads.Patch{Miles: floatPtr(650)},
		Reason:          "odometer audit",
		RequestedBy:     "dispatcher",
		RequireApproval: &gated,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, adj.Status)
	require.True(t, adj.RequireApproval)
}

func TestEmptyPatchRejected(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusInTransit)}}
	svc := newTestService(repo, store, &recordingAudit{}, true)

	_, err := svc.Create(context.Background(), "acme", CreateInput{
		LoadID:      1,
		RequestedBy: "dispatcher",
	})
	var valErr *shared.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestAuditFailureDoesNotBlockApply(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusInTransit)}}
	svc := newTestService(repo, store, &recordingAudit{fail: true}, false)

	adj, err := svc.Create(context.Background(), "acme", CreateInput{
		LoadID:      1,
		Patch:       loads.Patch{Rate: floatPtr(2150)},
		Reason:      "rate correction",
		RequestedBy: "dispatcher",
	})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, adj.Status)
	require.Equal(t, 2150.0, store.loads[1].Rate)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	repo := newMemoryAdjustmentRepo()
	store := &memoryLoadStore{loads: map[int64]*loads.Load{1: testLoad(loads.StatusInTransit)}}
	svc := newTestService(repo, store, &recordingAudit{}, false)
	ctx := context.Background()

	for _, rate := range []float64{2100, 2200} {
		_, err := svc.Create(ctx, "acme", CreateInput{
			LoadID:      1,
			Patch:       loads.Patch{Rate: floatPtr(rate)},
			Reason:      "rate renegotiated",
			RequestedBy: "dispatcher",
		})
		require.NoError(t, err)
	}

	history, err := svc.ListByLoad(ctx, "acme", 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 2000.0, history[0].Changes[0].Old)
	require.Equal(t, 2100.0, history[1].Changes[0].Old)
	require.Equal(t, 2200.0, store.loads[1].Rate)
}
