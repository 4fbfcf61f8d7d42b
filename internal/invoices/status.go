package invoices

import "time"

// DeriveStatus computes the invoice status from amount, payments, due date
// and "now". Pure. The overdue check runs before the partial/pending
// branches so a partially-paid, past-due invoice classifies as overdue.
func DeriveStatus(amount float64, payments []Payment, dueAt, now time.Time) Status {
	var paid float64
	for _, p := range payments {
		paid += p.Amount
	}
	switch {
	case paid >= amount*PaidThreshold && amount > 0:
		return StatusPaid
	case !dueAt.IsZero() && truncateDay(dueAt).Before(truncateDay(now)):
		return StatusOverdue
	case paid > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// AgingBuckets partitions outstanding balances by days past due. Each
// invoice's entire balance lands in exactly one bucket.
type AgingBuckets struct {
	Current    float64 `json:"current"`
	Days31to60 float64 `json:"days31to60"`
	Days61to90 float64 `json:"days61to90"`
	Over90     float64 `json:"over90"`
}

// Total sums the buckets.
func (b AgingBuckets) Total() float64 {
	return b.Current + b.Days31to60 + b.Days61to90 + b.Over90
}

// AgeInvoices buckets every invoice's outstanding balance as of now.
// Summation is associative: bucket totals are independent of invoice order.
func AgeInvoices(list []Invoice, now time.Time) AgingBuckets {
	var b AgingBuckets
	today := truncateDay(now)
	for i := range list {
		inv := &list[i]
		balance := inv.Outstanding()
		if balance <= 0 {
			continue
		}
		// No due date means never past due, matching DeriveStatus.
		daysPastDue := 0
		if !inv.DueAt.IsZero() {
			daysPastDue = int(today.Sub(truncateDay(inv.DueAt)).Hours() / 24)
		}
		switch {
		case daysPastDue <= 30:
			b.Current += balance
		case daysPastDue <= 60:
			b.Days31to60 += balance
		case daysPastDue <= 90:
			b.Days61to90 += balance
		default:
			b.Over90 += balance
		}
	}
	return b
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
