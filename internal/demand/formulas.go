package demand

import (
	"math"
	"time"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// PeriodAverages sums qtyOut per normalised SKU and divides by divisor.
// Rows without a SKU are counted as skipped.
func PeriodAverages(rows []inventory.MovementRow, divisor int) (map[string]float64, int) {
	divisor = max(divisor, 1)
	sums := make(map[string]float64)
	skipped := 0
	for _, row := range rows {
		sku := shared.NormalizeSKU(row.SKU)
		if sku == "" {
			skipped++
			continue
		}
		sums[sku] += shared.Finite(row.QtyOut)
	}
	averages := make(map[string]float64, len(sums))
	for sku, total := range sums {
		averages[sku] = shared.Round2(total / float64(divisor))
	}
	return averages, skipped
}

// StockOutFactor scales a period average for days lost to a stock-out. It
// applies only when both the stock-out date and the reference date fall in w;
// otherwise the factor is 1.
func StockOutFactor(w periods.Window, stockOutAt *time.Time, ref time.Time) float64 {
	if stockOutAt == nil || !w.Contains(*stockOutAt) || !w.Contains(ref) {
		return 1
	}
	loc := w.Start.Location()
	refDay := periods.DateOf(ref, loc).Day()
	stockOutDay := periods.DateOf(*stockOutAt, loc).Day()
	factor := shared.Round2(float64(refDay) / float64(stockOutDay))
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 1
	}
	return factor
}

// FinalDailyAverage blends both periods: (avgA*fA + avgB*fB) / 2. A missing
// average counts as zero; both missing is NoSignal and a negative blend is Invalid.
func FinalDailyAverage(avgA, avgB shared.Signal, factorA, factorB float64) shared.Signal {
	if !avgA.Ok() && !avgB.Ok() {
		return shared.NoSignal()
	}
	blended := (avgA.Or(0)*factorA + avgB.Or(0)*factorB) / 2
	if math.IsNaN(blended) || math.IsInf(blended, 0) {
		return shared.Invalid("non-finite final average")
	}
	if blended < 0 {
		return shared.Invalid("negative final average")
	}
	return shared.Value(shared.Round2(blended))
}

// ReorderPoint is leadTime times the final average when both are usable.
func ReorderPoint(leadTime *float64, final shared.Signal) shared.Signal {
	avg, ok := final.Float()
	if !ok || leadTime == nil {
		return shared.NoSignal()
	}
	lt := *leadTime
	if math.IsNaN(lt) || math.IsInf(lt, 0) || lt < 0 || avg < 0 {
		return shared.NoSignal()
	}
	return shared.Value(shared.Round2(lt * avg))
}
