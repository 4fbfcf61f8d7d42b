// Package drivers holds driver records and their payment profiles.
package drivers

import "time"

// Type enumerates driver employment types.
type Type string

const (
	TypeCompany       Type = "Company"
	TypeOwnerOperator Type = "OwnerOperator"
)

// PayMethod enumerates how a driver's base pay is derived.
type PayMethod string

const (
	PayPercentage PayMethod = "percentage"
	PayPerMile    PayMethod = "per_mile"
	PayFlatRate   PayMethod = "flat_rate"
)

// PaymentProfile is the stored payment configuration, including legacy
// fallback fields kept for records migrated from the old system.
type PaymentProfile struct {
	Method      PayMethod
	Percentage  float64
	PerMileRate float64
	FlatRate    float64

	// Legacy fallbacks, consulted only when the primary fields are unset.
	RateOrSplit   float64
	PayPercentage float64
}

// Driver model.
type Driver struct {
	ID        int64
	Tenant    string
	Name      string
	Type      Type
	Payment   PaymentProfile
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PayRate is the resolved, normalised pay configuration. Percentages are
// stored in the wild both as integers (88) and fractions (0.88); they are
// normalised exactly once here, never re-checked at call sites.
type PayRate struct {
	Method   PayMethod
	Fraction float64
	PerMile  float64
	Flat     float64
}

// NormalizeFraction maps an int-or-fraction percentage onto [0,1].
func NormalizeFraction(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// ResolvePayRate resolves the driver's effective pay rate, applying legacy
// fallbacks. The second return is false when the driver has no usable payment
// configuration at all; callers must treat that as zero pay plus a warning,
// never substitute a default percentage.
func (d Driver) ResolvePayRate() (PayRate, bool) {
	p := d.Payment

	method := p.Method
	if method == "" && d.Type == TypeOwnerOperator {
		method = PayPercentage
	}

	switch method {
	case PayPercentage:
		pct := p.Percentage
		if pct == 0 {
			pct = p.PayPercentage
		}
		if pct == 0 {
			pct = p.RateOrSplit
		}
		if pct == 0 {
			return PayRate{}, false
		}
		return PayRate{Method: PayPercentage, Fraction: NormalizeFraction(pct)}, true
	case PayPerMile:
		rate := p.PerMileRate
		if rate == 0 {
			rate = p.RateOrSplit
		}
		if rate == 0 {
			return PayRate{}, false
		}
		return PayRate{Method: PayPerMile, PerMile: rate}, true
	case PayFlatRate:
		if p.FlatRate == 0 {
			return PayRate{}, false
		}
		return PayRate{Method: PayFlatRate, Flat: p.FlatRate}, true
	}

	// No method configured; last-resort legacy split.
	if p.RateOrSplit > 0 {
		return PayRate{Method: PayPercentage, Fraction: NormalizeFraction(p.RateOrSplit)}, true
	}
	if p.PayPercentage > 0 {
		return PayRate{Method: PayPercentage, Fraction: NormalizeFraction(p.PayPercentage)}, true
	}
	return PayRate{}, false
}

// HasPaymentConfig reports whether the driver carries any payment
// configuration, resolved or not.
func (d Driver) HasPaymentConfig() bool {
	_, ok := d.ResolvePayRate()
	return ok
}
