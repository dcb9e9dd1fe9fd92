package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/catalog"
	"github.com/odyssey-erp/replenishment/internal/catalog/catalogtest"
	"github.com/odyssey-erp/replenishment/internal/demand"
	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/inventory/inventorytest"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/procurement/plan"
	"github.com/odyssey-erp/replenishment/internal/procurement/procurementtest"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

type staticMovements struct {
	rows []inventory.MovementRow
}

func (s staticMovements) FetchMovements(context.Context, time.Time, time.Time, string) (inventory.Movement, error) {
	return inventory.Movement{Header: json.RawMessage(`{"company":"acme"}`), Rows: s.rows, WarehouseCount: 1}, nil
}

type staticOrders struct {
	orders []procurement.Order
}

func (s staticOrders) ListUnpaidOrders(context.Context) (procurement.FetchResult, error) {
	return procurement.FetchResult{Orders: s.orders, Pages: 1}, nil
}

type chainFixture struct {
	runner    *Runner
	store     *catalogtest.MemoryStore
	ledger    *procurementtest.MemoryLedger
	snapshots *inventorytest.MemorySnapshots
}

func newChainFixture() *chainFixture {
	now := time.Date(2026, time.October, 6, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	started := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	resolver := periods.NewResolver(time.UTC, nil)
	snapshots := inventorytest.NewMemorySnapshots()
	ledger := procurementtest.NewMemoryLedger()
	store := catalogtest.NewMemoryStore(
		catalog.Record{
			VariantID:             1,
			SellerSKU:             "SKU-1",
			Stock:                 shared.Float(5),
			LeadTime:              shared.Float(5),
			FifteenDayRequirement: shared.Float(40),
			StartDate:             &started,
		},
		catalog.Record{
			VariantID:             2,
			SellerSKU:             "sku-2",
			Stock:                 shared.Float(50),
			LeadTime:              shared.Float(10),
			FifteenDayRequirement: shared.Float(20),
			StartDate:             &started,
		},
	)

	moves := inventory.NewService(snapshots, staticMovements{rows: []inventory.MovementRow{
		{WarehouseName: "Bodega Principal", SKU: "SKU-1", QtyOut: 12, OpeningBalance: 17, ClosingBalance: 5},
		{WarehouseName: "Bodega Principal", SKU: "SKU-2", QtyOut: 3, OpeningBalance: 53, ClosingBalance: 50},
	}}, resolver, inventory.ServiceConfig{TargetWarehouse: "Bodega Principal"}, nil)
	moves.SetClock(clock)

	velocity := demand.NewService(store, snapshots, resolver, nil)
	velocity.SetClock(clock)

	transit := procurement.NewService(ledger, staticOrders{orders: []procurement.Order{{
		ExternalID:      "PO-1",
		Status:          procurement.StatusUnpaid,
		RemainingAmount: shared.Float(100),
		Items:           []procurement.Item{{SKU: "SKU-1", Quantity: 1}},
	}}}, store, nil)
	transit.SetClock(clock)

	quantities := plan.NewQuantityService(store, resolver, 30, nil)
	quantities.SetClock(clock)

	scheduler := plan.NewScheduler(store, resolver, 3, nil)
	scheduler.SetClock(clock)

	runner := NewRunner(Services{
		Movements:  moves,
		Demand:     velocity,
		InTransit:  transit,
		Quantities: quantities,
		Schedule:   scheduler,
	}, nil, nil, nil)
	runner.SetClock(clock)

	return &chainFixture{runner: runner, store: store, ledger: ledger, snapshots: snapshots}
}

func TestPipelineSecondRunWithoutUpstreamChangeWritesNothing(t *testing.T) {
	f := newChainFixture()

	first, err := f.runner.Run(context.Background(), StagePipeline, Options{})
	require.NoError(t, err)
	require.True(t, first.OK)
	require.Positive(t, first.Writes)

	rec, ok := f.store.Record(1)
	require.True(t, ok)
	require.NotNil(t, rec.ReorderPoint)
	require.Equal(t, 1.0, *rec.InTransitStock)
	require.NotNil(t, rec.NextProcurementDate)

	catalogWrites, ledgerWrites, upserts := f.store.Writes(), f.ledger.Writes(), f.snapshots.Upserts()

	second, err := f.runner.Run(context.Background(), StagePipeline, Options{})
	require.NoError(t, err)
	require.True(t, second.OK)
	require.Zero(t, second.Writes)
	for _, step := range second.Result.(ChainResult).Stages {
		require.Zero(t, step.Writes, step.Stage)
	}
	require.Equal(t, catalogWrites, f.store.Writes())
	require.Equal(t, ledgerWrites, f.ledger.Writes())
	require.Equal(t, upserts, f.snapshots.Upserts())
}
