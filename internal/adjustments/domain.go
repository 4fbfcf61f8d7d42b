// Package adjustments implements the review workflow through which load
// financials change after delivery.
package adjustments

import (
	"time"

	"github.com/haulmont-ops/haulage-ledger/internal/loads"
)

// Status enumerates adjustment review states.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusApplied  Status = "applied"
)

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusApplied:
		return true
	}
	return false
}

// Adjustment is a requested change to a load. The patch is captured at
// request time; the change log is captured at apply time so it reflects the
// values actually replaced.
type Adjustment struct {
	ID     string
	Tenant string
	LoadID int64
	Patch  loads.Patch
	Reason string
	Status Status

	// RequireApproval is fixed at creation; it records whether this
	// adjustment went through review or applied in one step.
	RequireApproval bool

	RequestedBy  string
	ReviewedBy   string
	DecisionNote string

	Changes []loads.FieldChange

	CreatedAt  time.Time
	ReviewedAt *time.Time
	AppliedAt  *time.Time
}

// Terminal reports whether the adjustment can no longer change state.
func (a *Adjustment) Terminal() bool {
	return a.Status == StatusRejected || a.Status == StatusApplied
}
