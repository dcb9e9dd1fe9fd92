package demand

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

func dateUTC(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodAverages(t *testing.T) {
	rows := []inventory.MovementRow{
		{SKU: "a-1", QtyOut: 10},
		{SKU: "A-1 ", QtyOut: 5},
		{SKU: "b-2", QtyOut: 1},
		{SKU: "", QtyOut: 99},
	}
	avgs, skipped := PeriodAverages(rows, 6)

	require.Equal(t, 1, skipped)
	require.Equal(t, 2.5, avgs["A-1"])
	require.Equal(t, 0.17, avgs["B-2"])
}

func TestPeriodAveragesClampsDivisor(t *testing.T) {
	avgs, _ := PeriodAverages([]inventory.MovementRow{{SKU: "x", QtyOut: 3}}, 0)
	require.Equal(t, 3.0, avgs["X"])
}

func TestStockOutFactor(t *testing.T) {
	r := periods.NewResolver(time.UTC, nil)
	ref := time.Date(2026, time.October, 6, 15, 0, 0, 0, time.UTC)
	pair := r.Resolve(ref)

	stockOut := dateUTC(2026, time.October, 5)
	require.Equal(t, 1.2, StockOutFactor(pair.A, &stockOut, ref))

	outside := dateUTC(2026, time.September, 20)
	require.Equal(t, 1.0, StockOutFactor(pair.A, &outside, ref))
	require.Equal(t, 1.0, StockOutFactor(pair.A, nil, ref))

	// The reference date is not inside Period B (previous month).
	require.Equal(t, 1.0, StockOutFactor(pair.B, &outside, ref))
}

func TestStockOutFactorSameDay(t *testing.T) {
	r := periods.NewResolver(time.UTC, nil)
	ref := dateUTC(2026, time.October, 20)
	pair := r.Resolve(ref)
	stockOut := dateUTC(2026, time.October, 20)

	require.Equal(t, 1.0, StockOutFactor(pair.B, &stockOut, ref))
}

func TestFinalDailyAverage(t *testing.T) {
	final := FinalDailyAverage(shared.Value(2), shared.Value(3), 1.2, 1)
	require.Equal(t, 2.7, final.Or(-1))

	onlyB := FinalDailyAverage(shared.NoSignal(), shared.Value(3), 1.5, 1)
	require.Equal(t, 1.5, onlyB.Or(-1))

	none := FinalDailyAverage(shared.NoSignal(), shared.NoSignal(), 1, 1)
	require.Equal(t, shared.SignalNone, none.Kind())
	require.Nil(t, none.Ptr())

	negative := FinalDailyAverage(shared.Value(-4), shared.NoSignal(), 1, 1)
	require.Equal(t, shared.SignalInvalid, negative.Kind())
	require.Nil(t, negative.Ptr())
}

func TestReorderPoint(t *testing.T) {
	require.Equal(t, 16.8, ReorderPoint(shared.Float(7), shared.Value(2.4)).Or(-1))
	require.False(t, ReorderPoint(nil, shared.Value(2.4)).Ok())
	require.False(t, ReorderPoint(shared.Float(-1), shared.Value(2.4)).Ok())
	require.False(t, ReorderPoint(shared.Float(7), shared.NoSignal()).Ok())
}
