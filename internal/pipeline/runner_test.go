package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/replenishment/internal/demand"
	"github.com/odyssey-erp/replenishment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/replenishment/internal/jobs"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/procurement/plan"
	"github.com/odyssey-erp/replenishment/internal/runlog"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

type calls struct {
	mu    sync.Mutex
	order []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = append(c.order, name)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

type fakeMovements struct {
	calls  *calls
	result inventory.CaptureResult
	err    error
}

func (f *fakeMovements) Capture(context.Context) (inventory.CaptureResult, error) {
	f.calls.add("capture")
	return f.result, f.err
}

func (f *fakeMovements) CaptureRange(_ context.Context, start, end string) (inventory.CaptureResult, error) {
	f.calls.add("range:" + start + ":" + end)
	return f.result, f.err
}

type fakeDemand struct {
	calls    *calls
	override *demand.ManualOverride
}

func (f *fakeDemand) Recompute(_ context.Context, override *demand.ManualOverride) (demand.Result, error) {
	f.calls.add("demand")
	f.override = override
	return demand.Result{VariantsUpdated: 2, SkippedRows: 1}, nil
}

type fakeInTransit struct {
	calls *calls
	err   error
}

func (f *fakeInTransit) Aggregate(context.Context) (procurement.AggregateResult, error) {
	f.calls.add("in-transit")
	return procurement.AggregateResult{OrdersWritten: 1, VariantsUpdated: 1}, f.err
}

type fakeQuantities struct {
	calls   *calls
	started chan struct{}
	release chan struct{}
	count   atomic.Int32
}

func (f *fakeQuantities) Recompute(context.Context) (plan.QuantityResult, error) {
	f.calls.add("quantities")
	f.count.Add(1)
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return plan.QuantityResult{VariantsUpdated: 4}, nil
}

type fakeSchedule struct{ calls *calls }

func (f *fakeSchedule) Run(context.Context) (plan.ScheduleResult, error) {
	f.calls.add("schedule")
	return plan.ScheduleResult{VariantsUpdated: 1, VariantsCleared: 1}, nil
}

type fixture struct {
	runner   *Runner
	calls    *calls
	moves    *fakeMovements
	demand   *fakeDemand
	transit  *fakeInTransit
	quantity *fakeQuantities
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &calls{}
	f := &fixture{
		calls:    c,
		moves:    &fakeMovements{calls: c, result: inventory.CaptureResult{OK: true, Periods: []inventory.PeriodResult{{OK: true, Changed: true}}}},
		demand:   &fakeDemand{calls: c},
		transit:  &fakeInTransit{calls: c},
		quantity: &fakeQuantities{calls: c},
		registry: prometheus.NewRegistry(),
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f.runner = NewRunner(Services{
		Movements:  f.moves,
		Demand:     f.demand,
		InTransit:  f.transit,
		Quantities: f.quantity,
		Schedule:   &fakeSchedule{calls: c},
	}, runlog.NewStore(client, time.Hour), jobmetrics.NewMetrics(f.registry), nil)
	var seq atomic.Int32
	f.runner.newID = func() string {
		return "trace-" + strconv.Itoa(int(seq.Add(1)))
	}
	return f
}

func TestParseStage(t *testing.T) {
	stage, err := ParseStage(" In-Transit ")
	require.NoError(t, err)
	require.Equal(t, StageInTransit, stage)

	_, err = ParseStage("reports")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Len(t, Stages(), 6)
}

func TestPipelineRunsChainInOrder(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.runner.Run(context.Background(), StagePipeline, Options{})
	require.NoError(t, err)
	require.True(t, outcome.OK)
	require.Equal(t, []string{"capture", "demand", "in-transit", "quantities", "schedule"}, f.calls.list())
	require.Equal(t, 1+2+2+4+1, outcome.Writes)
	require.Equal(t, 1, outcome.Skipped)

	chain := outcome.Result.(ChainResult)
	require.Len(t, chain.Stages, len(Chain))
	for _, step := range chain.Stages {
		require.Equal(t, outcome.TraceID, step.TraceID)
	}

	report, err := f.runner.LastReport(context.Background(), StageDemand)
	require.NoError(t, err)
	require.Equal(t, outcome.TraceID, report.TraceID)
	require.Equal(t, 2, report.Writes)

	series, err := testutil.GatherAndCount(f.registry, "replenish_jobs_total")
	require.NoError(t, err)
	require.Equal(t, len(Chain)+1, series)
}

func TestPipelineSkipsStagesDependingOnFailure(t *testing.T) {
	f := newFixture(t)
	f.transit.err = shared.NewUpstreamError("list purchase orders page 1", 502, nil, nil)

	outcome, err := f.runner.Run(context.Background(), StagePipeline, Options{})
	require.True(t, shared.IsUpstream(err))
	require.False(t, outcome.OK)
	require.Equal(t, []string{"capture", "demand", "in-transit"}, f.calls.list())

	chain := outcome.Result.(ChainResult)
	require.Equal(t, StageInTransit, chain.FailedStage)
	require.Len(t, chain.Stages, 3)
	require.Equal(t, []Stage{StageQuantities, StageSchedule}, chain.NotRun)
	require.NotEmpty(t, outcome.Error)

	report, err := f.runner.LastReport(context.Background(), StagePipeline)
	require.NoError(t, err)
	require.False(t, report.OK)
}

func TestPipelineMovementOutageStillAggregatesInTransit(t *testing.T) {
	f := newFixture(t)
	f.moves.result = inventory.CaptureResult{Periods: []inventory.PeriodResult{{Error: "down"}, {Error: "down"}}}
	f.moves.err = shared.NewUpstreamError("fetch movements", 503, nil, nil)

	outcome, err := f.runner.Run(context.Background(), StagePipeline, Options{})
	require.True(t, shared.IsUpstream(err))
	require.False(t, outcome.OK)
	require.Equal(t, []string{"capture", "in-transit"}, f.calls.list())

	chain := outcome.Result.(ChainResult)
	require.Equal(t, StageMovements, chain.FailedStage)
	require.Equal(t, []Stage{StageDemand, StageQuantities, StageSchedule}, chain.NotRun)
	require.Equal(t, 2, outcome.Writes)

	report, err := f.runner.LastReport(context.Background(), StageInTransit)
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Equal(t, outcome.TraceID, report.TraceID)
}

func TestMovementsRangeAndPartialSuccess(t *testing.T) {
	f := newFixture(t)
	f.moves.result = inventory.CaptureResult{Periods: []inventory.PeriodResult{{OK: true}, {Error: "boom"}}}

	outcome, err := f.runner.Run(context.Background(), StageMovements, Options{StartDate: "2026-09-01", EndDate: "2026-09-10"})
	require.NoError(t, err)
	require.False(t, outcome.OK)
	require.Equal(t, []string{"range:2026-09-01:2026-09-10"}, f.calls.list())
}

func TestDemandReceivesManualOverride(t *testing.T) {
	f := newFixture(t)
	override := &demand.ManualOverride{PeriodA: []demand.ManualLine{{SKU: "A", QtyOut: 3}}}

	_, err := f.runner.Run(context.Background(), StageDemand, Options{Manual: override})
	require.NoError(t, err)
	require.Same(t, override, f.demand.override)
}

func TestOutcomeJSONIsFlat(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.runner.Run(context.Background(), StageQuantities, Options{})
	require.NoError(t, err)

	raw, err := json.Marshal(outcome)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, outcome.TraceID, body["traceId"])
	require.EqualValues(t, 4, body["variantsUpdated"])
	require.NotContains(t, body, "error")
}

func TestConcurrentTriggersShareOneRun(t *testing.T) {
	f := newFixture(t)
	f.quantity.started = make(chan struct{})
	f.quantity.release = make(chan struct{})

	results := make(chan Outcome, 2)
	go func() {
		o, _ := f.runner.Run(context.Background(), StageQuantities, Options{})
		results <- o
	}()
	<-f.quantity.started
	go func() {
		o, _ := f.runner.Run(context.Background(), StageQuantities, Options{})
		results <- o
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.quantity.release)

	first, second := <-results, <-results
	require.Equal(t, first.TraceID, second.TraceID)
	require.EqualValues(t, 1, f.quantity.count.Load())
}

func TestLastReportMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.LastReport(context.Background(), StageSchedule)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.runner.LastReport(context.Background(), Stage("nope"))
	require.ErrorIs(t, err, shared.ErrValidation)
}
