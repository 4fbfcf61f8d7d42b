// Package loads holds the load aggregate and its field-patch machinery.
package loads

import (
	"fmt"
	"time"
)

// Status enumerates load lifecycle statuses.
type Status string

const (
	StatusAvailable Status = "available"
	StatusAssigned  Status = "assigned"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusAvailable: {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusInTransit, StatusAvailable, StatusCancelled},
	StatusInTransit: {StatusDelivered, StatusCancelled},
	StatusDelivered: {StatusCompleted, StatusInTransit},
	StatusCompleted: {},
	StatusCancelled: {},
}

// CanTransition reports whether s may move to target.
func (s Status) CanTransition(target Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Valid reports whether the status is known.
func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Accessorials are charge components beyond base rate, passed through 100% to
// the driver where applicable.
type Accessorials struct {
	Detention     float64
	Layover       float64
	Lumper        float64
	FuelSurcharge float64
	TONU          float64
	Other         float64
}

// Load model. InvoiceID and SettlementID, once set, are never overwritten by
// a second ledger entity.
type Load struct {
	ID           int64
	Tenant       string
	LoadNumber   string
	CustomerName string
	DriverID     int64

	Rate         float64
	Miles        float64
	Accessorials Accessorials
	GrandTotal   float64

	// Driver-pay overrides; see the settlement cascade.
	DriverBasePay      float64
	DriverDetentionPay float64
	DriverLayoverPay   float64
	DriverTotalGross   float64

	Status       Status
	PODNumber    string
	BOLNumber    string
	Notes        string
	InvoiceID    *int64
	SettlementID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the load's financial fields are frozen behind the
// adjustment workflow.
func (l *Load) Locked() bool {
	return l.Status == StatusDelivered || l.Status == StatusCompleted
}

// TotalAmount sums base rate and accessorials into the customer-billable total.
func (l *Load) TotalAmount() float64 {
	a := l.Accessorials
	return l.Rate + a.FuelSurcharge + a.Detention + a.Layover + a.Lumper + a.TONU + a.Other
}

// Patch is the closed set of patchable load fields. What can be adjusted is
// statically enumerable; nil means "leave unchanged", last writer wins per
// field, no deep merges.
type Patch struct {
	Rate             *float64
	Miles            *float64
	Detention        *float64
	Layover          *float64
	Lumper           *float64
	FuelSurcharge    *float64
	TONU             *float64
	OtherAccessorial *float64
	CustomerName     *string

	DriverBasePay      *float64
	DriverDetentionPay *float64
	DriverLayoverPay   *float64
	DriverTotalGross   *float64

	// Soft fields: these never count as locked-field changes.
	Status       *Status
	Notes        *string
	PODNumber    *string
	BOLNumber    *string
	InvoiceID    *int64
	SettlementID *int64
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.fields()) == 0
}

// FieldChange records an old/new pair for the append-only adjustment log.
type FieldChange struct {
	Field string
	Old   any
	New   any
	Soft  bool
}

type patchField struct {
	name string
	soft bool
	old  func(*Load) any
	new  func() any
	set  func(*Load)
}

func (p *Patch) fields() []patchField {
	var out []patchField
	addF := func(name string, soft bool, v *float64, get func(*Load) float64, set func(*Load, float64)) {
		if v == nil {
			return
		}
		out = append(out, patchField{
			name: name, soft: soft,
			old: func(l *Load) any { return get(l) },
			new: func() any { return *v },
			set: func(l *Load) { set(l, *v) },
		})
	}
	addS := func(name string, soft bool, v *string, get func(*Load) string, set func(*Load, string)) {
		if v == nil {
			return
		}
		out = append(out, patchField{
			name: name, soft: soft,
			old: func(l *Load) any { return get(l) },
			new: func() any { return *v },
			set: func(l *Load) { set(l, *v) },
		})
	}

	addF("rate", false, p.Rate, func(l *Load) float64 { return l.Rate }, func(l *Load, v float64) { l.Rate = v })
	addF("miles", false, p.Miles, func(l *Load) float64 { return l.Miles }, func(l *Load, v float64) { l.Miles = v })
	addF("detention", false, p.Detention, func(l *Load) float64 { return l.Accessorials.Detention }, func(l *Load, v float64) { l.Accessorials.Detention = v })
	addF("layover", false, p.Layover, func(l *Load) float64 { return l.Accessorials.Layover }, func(l *Load, v float64) { l.Accessorials.Layover = v })
	addF("lumper", false, p.Lumper, func(l *Load) float64 { return l.Accessorials.Lumper }, func(l *Load, v float64) { l.Accessorials.Lumper = v })
	addF("fuel_surcharge", false, p.FuelSurcharge, func(l *Load) float64 { return l.Accessorials.FuelSurcharge }, func(l *Load, v float64) { l.Accessorials.FuelSurcharge = v })
	addF("tonu", false, p.TONU, func(l *Load) float64 { return l.Accessorials.TONU }, func(l *Load, v float64) { l.Accessorials.TONU = v })
	addF("other_accessorial", false, p.OtherAccessorial, func(l *Load) float64 { return l.Accessorials.Other }, func(l *Load, v float64) { l.Accessorials.Other = v })
	addS("customer_name", false, p.CustomerName, func(l *Load) string { return l.CustomerName }, func(l *Load, v string) { l.CustomerName = v })
	addF("driver_base_pay", false, p.DriverBasePay, func(l *Load) float64 { return l.DriverBasePay }, func(l *Load, v float64) { l.DriverBasePay = v })
	addF("driver_detention_pay", false, p.DriverDetentionPay, func(l *Load) float64 { return l.DriverDetentionPay }, func(l *Load, v float64) { l.DriverDetentionPay = v })
	addF("driver_layover_pay", false, p.DriverLayoverPay, func(l *Load) float64 { return l.DriverLayoverPay }, func(l *Load, v float64) { l.DriverLayoverPay = v })
	addF("driver_total_gross", false, p.DriverTotalGross, func(l *Load) float64 { return l.DriverTotalGross }, func(l *Load, v float64) { l.DriverTotalGross = v })

	if p.Status != nil {
		v := *p.Status
		out = append(out, patchField{
			name: "status", soft: true,
			old: func(l *Load) any { return string(l.Status) },
			new: func() any { return string(v) },
			set: func(l *Load) { l.Status = v },
		})
	}
	addS("notes", true, p.Notes, func(l *Load) string { return l.Notes }, func(l *Load, v string) { l.Notes = v })
	addS("pod_number", true, p.PODNumber, func(l *Load) string { return l.PODNumber }, func(l *Load, v string) { l.PODNumber = v })
	addS("bol_number", true, p.BOLNumber, func(l *Load) string { return l.BOLNumber }, func(l *Load, v string) { l.BOLNumber = v })
	if p.InvoiceID != nil {
		v := *p.InvoiceID
		out = append(out, patchField{
			name: "invoice_id", soft: true,
			old: func(l *Load) any { return l.InvoiceID },
			new: func() any { return v },
			set: func(l *Load) { l.InvoiceID = &v },
		})
	}
	if p.SettlementID != nil {
		v := *p.SettlementID
		out = append(out, patchField{
			name: "settlement_id", soft: true,
			old: func(l *Load) any { return l.SettlementID },
			new: func() any { return v },
			set: func(l *Load) { l.SettlementID = &v },
		})
	}
	return out
}

// Changes returns the per-field old/new values the patch would produce
// against the load, in declaration order.
func (p Patch) Changes(l *Load) []FieldChange {
	var out []FieldChange
	for _, f := range p.fields() {
		out = append(out, FieldChange{Field: f.name, Old: f.old(l), New: f.new(), Soft: f.soft})
	}
	return out
}

// TouchesLockedFields reports whether the patch changes any field outside
// the soft allow-list.
func (p Patch) TouchesLockedFields() bool {
	for _, f := range p.fields() {
		if !f.soft {
			return true
		}
	}
	return false
}

// Apply merges the patch onto the load (last writer wins per field) and
// stamps UpdatedAt.
func (p Patch) Apply(l *Load) {
	for _, f := range p.fields() {
		f.set(l)
	}
	l.UpdatedAt = time.Now().UTC()
}

// ChangesAsMap renders the changes in audit form.
func ChangesAsMap(changes []FieldChange) map[string]any {
	out := make(map[string]any, len(changes))
	for _, c := range changes {
		out[c.Field] = map[string]any{"old": c.Old, "new": c.New}
	}
	return out
}

// String implements fmt.Stringer for log lines.
func (c FieldChange) String() string {
	return fmt.Sprintf("%s: %v -> %v", c.Field, c.Old, c.New)
}
