// Package invoices builds customer invoices from loads, applies payments and
// derives status and AR aging.
package invoices

import "time"

// Status enumerates invoice statuses. Except for draft, status is always a
// pure function of (amount, payments, due date, now); the stored value is
// only a cache of that derivation.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusOverdue Status = "overdue"
	StatusPaid    Status = "paid"
)

const (
	// OverpayTolerance lets recorded payments exceed the invoice amount by 1%
	// to absorb rounding.
	OverpayTolerance = 1.01
	// PaidThreshold marks an invoice paid once 99% of the amount is covered.
	PaidThreshold = 0.99
)

// LineItem is one invoice row, one per load.
type LineItem struct {
	LoadID        int64
	LoadNumber    string
	Base          float64
	FuelSurcharge float64
	Detention     float64
	Layover       float64
	Lumper        float64
	Other         float64
}

// Total sums the line's components.
func (li LineItem) Total() float64 {
	return li.Base + li.FuelSurcharge + li.Detention + li.Layover + li.Lumper + li.Other
}

// Payment is an applied payment. The payment list is append-only.
type Payment struct {
	ID     string
	Amount float64
	Date   time.Time
	Method string
}

// Invoice model. Amount is fixed at creation; factoring reduces the
// company's received net, never what the customer owes.
type Invoice struct {
	ID            int64
	Tenant        string
	InvoiceNumber string
	CustomerName  string
	LoadIDs       []int64
	Lines         []LineItem
	Amount        float64

	Factored     bool
	FactoringFee float64
	NetAmount    float64

	Payments   []Payment
	PaidAmount float64
	Status     Status

	IssuedAt time.Time
	DueAt    time.Time
	PaidAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalPaid recomputes the paid total from the full payment list; it is never
// maintained incrementally, so the cache cannot drift.
func (inv *Invoice) TotalPaid() float64 {
	var total float64
	for _, p := range inv.Payments {
		total += p.Amount
	}
	return total
}

// Outstanding is the unpaid balance, floored at zero.
func (inv *Invoice) Outstanding() float64 {
	balance := inv.Amount - inv.TotalPaid()
	if balance < 0 {
		return 0
	}
	return balance
}
