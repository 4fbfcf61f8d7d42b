package settlements

import (
	"fmt"

	"github.com/haulmont-ops/haulage-ledger/internal/drivers"
	"github.com/haulmont-ops/haulage-ledger/internal/expenses"
	"github.com/haulmont-ops/haulage-ledger/internal/loads"
	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

// Calculation is the deterministic result of a settlement run. It performs no
// I/O; warnings carry conditions the caller should surface but that do not
// block the run.
type Calculation struct {
	Loads           []LoadPay
	GrossPay        float64
	Deductions      Deductions
	TotalDeductions float64
	OtherEarnings   []OtherEarning
	NetPay          float64
	TotalMiles      float64
	EffectiveRate   float64
	Warnings        []string
}

// Calculate computes a driver's settlement over the given loads. Pure:
// same inputs, same output.
func Calculate(driver drivers.Driver, batch []loads.Load, deductions Deductions, otherEarnings []OtherEarning, expenseList []expenses.Expense) (Calculation, error) {
	if err := validateRun(driver, batch); err != nil {
		return Calculation{}, err
	}

	calc := Calculation{
		Deductions:    deductions,
		OtherEarnings: otherEarnings,
	}

	rate, hasRate := driver.ResolvePayRate()
	for _, l := range batch {
		pay, warn := payForLoad(driver, rate, hasRate, l)
		calc.Loads = append(calc.Loads, pay)
		calc.GrossPay += pay.Total()
		calc.TotalMiles += l.Miles
		if warn != "" {
			calc.Warnings = append(calc.Warnings, warn)
		}
		if l.Status != loads.StatusDelivered && l.Status != loads.StatusCompleted {
			calc.Warnings = append(calc.Warnings, fmt.Sprintf("load %s is not delivered yet", l.LoadNumber))
		}
		if l.SettlementID != nil {
			calc.Warnings = append(calc.Warnings, fmt.Sprintf("load %s is already linked to settlement %d", l.LoadNumber, *l.SettlementID))
		}
	}

	calc.Deductions.Add(foldExpenses(expenseList))
	calc.TotalDeductions = calc.Deductions.Total()

	var otherTotal float64
	for _, e := range otherEarnings {
		otherTotal += e.Amount
	}
	calc.NetPay = calc.GrossPay + otherTotal - calc.TotalDeductions

	if calc.TotalMiles > 0 {
		calc.EffectiveRate = calc.GrossPay / calc.TotalMiles
	}

	return calc, nil
}

// payForLoad resolves per-load pay through the priority cascade:
// stored total gross, stored base pay, then the driver's payment profile.
// Accessorials pass through 100% on top of base pay in every tier.
func payForLoad(driver drivers.Driver, rate drivers.PayRate, hasRate bool, l loads.Load) (LoadPay, string) {
	pay := LoadPay{LoadID: l.ID, TONU: l.Accessorials.TONU}

	// Tier 1: a stored total gross is trusted verbatim, prior computation wins.
	if l.DriverTotalGross > 0 {
		pay.BasePay = l.DriverTotalGross
		return pay, ""
	}

	// Tier 2: stored base pay plus stored accessorial pay.
	if l.DriverBasePay > 0 {
		pay.BasePay = l.DriverBasePay
		pay.Detention = l.DriverDetentionPay
		pay.Layover = l.DriverLayoverPay
		return pay, ""
	}

	// Tier 3: derive from the payment profile. Detention/layover pass through
	// from the stored driver-pay overrides when present, else from the load's
	// accessorial amounts.
	pay.Detention = l.DriverDetentionPay
	if pay.Detention == 0 {
		pay.Detention = l.Accessorials.Detention
	}
	pay.Layover = l.DriverLayoverPay
	if pay.Layover == 0 {
		pay.Layover = l.Accessorials.Layover
	}
	if !hasRate {
		return pay, fmt.Sprintf("load %s: driver has no payment configuration, base pay computed as 0", l.LoadNumber)
	}
	switch rate.Method {
	case drivers.PayPercentage:
		pay.BasePay = l.Rate * rate.Fraction
	case drivers.PayPerMile:
		pay.BasePay = l.Miles * rate.PerMile
	case drivers.PayFlatRate:
		pay.BasePay = rate.Flat
	}
	if pay.BasePay == 0 {
		return pay, fmt.Sprintf("load %s: resolved base pay is 0", l.LoadNumber)
	}
	return pay, ""
}

// foldExpenses maps deductible expenses onto deduction categories.
func foldExpenses(list []expenses.Expense) Deductions {
	var d Deductions
	for _, e := range list {
		if !e.Deductible() {
			continue
		}
		switch e.Type {
		case expenses.TypeFuel:
			d.Fuel += e.Amount
		case expenses.TypeMaintenance:
			d.Repairs += e.Amount
		case expenses.TypeInsurance:
			d.Insurance += e.Amount
		case expenses.TypeToll:
			d.Toll += e.Amount
		default:
			d.Other += e.Amount
		}
	}
	return d
}

// validateRun checks preconditions, collecting every violation. Loads owned
// by another driver are a hard error; soft conditions become warnings during
// calculation instead.
func validateRun(driver drivers.Driver, batch []loads.Load) error {
	var violations []string
	if driver.ID == 0 {
		violations = append(violations, "driver required")
	}
	if len(batch) == 0 {
		violations = append(violations, "at least one load required")
	}
	for _, l := range batch {
		if l.DriverID != driver.ID {
			return fmt.Errorf("load %s assigned to driver %d, not %d: %w",
				l.LoadNumber, l.DriverID, driver.ID, shared.ErrCrossOwner)
		}
	}
	if len(violations) > 0 {
		return &shared.ValidationError{Violations: violations}
	}
	return nil
}
