// Package sequence issues unique, monotonically increasing, year-scoped
// document numbers for loads, invoices and settlements.
package sequence

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind enumerates the entity families that draw numbers from a counter.
type Kind string

const (
	KindLoad       Kind = "load"
	KindInvoice    Kind = "invoice"
	KindSettlement Kind = "settlement"
)

// DefaultSettlementPrefix is used when the tenant has not configured one.
const DefaultSettlementPrefix = "SET"

// StartValue returns the first number issued for a fresh (tenant, kind, year)
// counter. Loads start at 1; invoices and settlements start at 1000. The
// asymmetry is a fixed contract: downstream formatting assumes it.
func StartValue(kind Kind) int64 {
	if kind == KindLoad {
		return 1
	}
	return 1000
}

// Valid reports whether the kind is one of the known entity families.
func (k Kind) Valid() bool {
	switch k {
	case KindLoad, KindInvoice, KindSettlement:
		return true
	}
	return false
}

// Counter is a per-tenant, per-kind, per-year sequence row.
type Counter struct {
	Tenant string
	Kind   Kind
	Year   int
	Seq    int64
}

// FormatInvoiceNumber renders INV-{year}-{seq}.
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%d", year, seq)
}

// FormatLoadNumber renders LD-{year}-{seq}.
func FormatLoadNumber(year int, seq int64) string {
	return fmt.Sprintf("LD-%d-%d", year, seq)
}

// FormatSettlementNumber renders {PREFIX}-{year}-{seq}.
func FormatSettlementNumber(prefix string, year int, seq int64) string {
	if prefix == "" {
		prefix = DefaultSettlementPrefix
	}
	return fmt.Sprintf("%s-%d-%d", prefix, year, seq)
}

// ParseIssued extracts the sequence component from a formatted number
// matching PREFIX-YEAR-(\d+). Numbers for other prefixes or years do not match.
func ParseIssued(prefix string, year int, formatted string) (int64, bool) {
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-` + strconv.Itoa(year) + `-(\d+)$`)
	m := re.FindStringSubmatch(formatted)
	if m == nil {
		return 0, false
	}
	seq, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}
