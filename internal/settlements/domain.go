// Package settlements turns delivered loads into driver pay statements.
package settlements

import "time"

// Status enumerates settlement statuses. Transitions are one-directional;
// a paid settlement is never recomputed.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusPaid      Status = "paid"
	StatusVoid      Status = "void"
)

var statusTransitions = map[Status][]Status{
	StatusDraft:     {StatusPending, StatusVoid},
	StatusPending:   {StatusProcessed, StatusVoid},
	StatusProcessed: {StatusPaid, StatusVoid},
	StatusPaid:      {},
	StatusVoid:      {},
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

// Deductions holds the named deduction categories plus the catch-all bucket.
type Deductions struct {
	Fuel           float64
	Repairs        float64
	Insurance      float64
	OccInsurance   float64
	CargoInsurance float64
	Toll           float64
	Escrow         float64
	Advance        float64
	Parking        float64
	TrailerRent    float64
	TruckPayment   float64
	ELD            float64
	Scales         float64
	Permits        float64
	Claims         float64
	Other          float64
}

// Total sums every category.
func (d Deductions) Total() float64 {
	return d.Fuel + d.Repairs + d.Insurance + d.OccInsurance + d.CargoInsurance +
		d.Toll + d.Escrow + d.Advance + d.Parking + d.TrailerRent +
		d.TruckPayment + d.ELD + d.Scales + d.Permits + d.Claims + d.Other
}

// Add folds another set of deductions in, category by category.
func (d *Deductions) Add(other Deductions) {
	d.Fuel += other.Fuel
	d.Repairs += other.Repairs
	d.Insurance += other.Insurance
	d.OccInsurance += other.OccInsurance
	d.CargoInsurance += other.CargoInsurance
	d.Toll += other.Toll
	d.Escrow += other.Escrow
	d.Advance += other.Advance
	d.Parking += other.Parking
	d.TrailerRent += other.TrailerRent
	d.TruckPayment += other.TruckPayment
	d.ELD += other.ELD
	d.Scales += other.Scales
	d.Permits += other.Permits
	d.Claims += other.Claims
	d.Other += other.Other
}

// LoadPay is the per-load pay breakdown inside a settlement.
type LoadPay struct {
	LoadID    int64
	BasePay   float64
	Detention float64
	Layover   float64
	TONU      float64
}

// Total is the driver's pay for this load.
func (p LoadPay) Total() float64 {
	return p.BasePay + p.Detention + p.Layover + p.TONU
}

// OtherEarning is a non-load earning on a settlement (bonus, referral, ...).
type OtherEarning struct {
	Description string
	Amount      float64
}

// Settlement model. GrossPay, TotalDeductions and NetPay always reconcile:
// gross = Σ load pay, totalDeductions = Σ categories,
// net = gross + Σ other earnings − totalDeductions.
type Settlement struct {
	ID               int64
	Tenant           string
	SettlementNumber string
	DriverID         int64
	PeriodStart      time.Time
	PeriodEnd        time.Time

	Loads           []LoadPay
	GrossPay        float64
	Deductions      Deductions
	TotalDeductions float64
	OtherEarnings   []OtherEarning
	NetPay          float64

	TotalMiles    float64
	EffectiveRate float64

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
