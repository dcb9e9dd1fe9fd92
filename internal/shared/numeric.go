package shared

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Finite replaces NaN and infinities with zero.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SameAmount compares two nullable amounts at cent precision.
func SameAmount(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return decimal.NewFromFloat(*a).Round(2).Equal(decimal.NewFromFloat(*b).Round(2))
}

// WithinTolerance reports whether |a-b| < tol for nullable amounts.
func WithinTolerance(a, b *float64, tol float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < tol
}

// NormalizeSKU is the single SKU key used to match ledger rows, snapshots and catalog variants.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
