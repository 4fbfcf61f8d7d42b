// Package expenses supplies expense records for settlement deduction folding.
package expenses

import "time"

// PaidBy enumerates who fronted the expense.
type PaidBy string

const (
	PaidByCompany PaidBy = "company"
	PaidByDriver  PaidBy = "driver"
)

// Status enumerates expense review statuses.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Type enumerates expense categories as stored; the settlement calculator
// maps them onto deduction categories.
type Type string

const (
	TypeFuel        Type = "fuel"
	TypeMaintenance Type = "maintenance"
	TypeInsurance   Type = "insurance"
	TypeToll        Type = "toll"
)

// Expense model.
type Expense struct {
	ID       int64
	Tenant   string
	DriverID int64
	Type     Type
	Amount   float64
	PaidBy   PaidBy
	Status   Status
	Incurred time.Time
}

// Deductible reports whether the expense folds into settlement deductions:
// only approved, company-paid expenses do.
func (e Expense) Deductible() bool {
	return e.PaidBy == PaidByCompany && e.Status == StatusApproved
}
