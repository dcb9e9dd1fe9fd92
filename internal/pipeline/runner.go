package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/replenishment/internal/demand"
	"github.com/odyssey-erp/replenishment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/replenishment/internal/jobs"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/procurement/plan"
	"github.com/odyssey-erp/replenishment/internal/runlog"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// MovementCapturer captures movement snapshots.
type MovementCapturer interface {
	Capture(ctx context.Context) (inventory.CaptureResult, error)
	CaptureRange(ctx context.Context, startDate, endDate string) (inventory.CaptureResult, error)
}

// DemandRecomputer recomputes velocity and reorder points.
type DemandRecomputer interface {
	Recompute(ctx context.Context, override *demand.ManualOverride) (demand.Result, error)
}

// InTransitAggregator converges the purchase order ledger.
type InTransitAggregator interface {
	Aggregate(ctx context.Context) (procurement.AggregateResult, error)
}

// QuantityRecomputer recomputes next procurement quantities.
type QuantityRecomputer interface {
	Recompute(ctx context.Context) (plan.QuantityResult, error)
}

// ProcurementScheduler projects procurement dates.
type ProcurementScheduler interface {
	Run(ctx context.Context) (plan.ScheduleResult, error)
}

// ReportStore persists run reports.
type ReportStore interface {
	Save(ctx context.Context, report runlog.Report) error
	Last(ctx context.Context, stage string) (runlog.Report, error)
}

// Services bundles the stage implementations.
type Services struct {
	Movements  MovementCapturer
	Demand     DemandRecomputer
	InTransit  InTransitAggregator
	Quantities QuantityRecomputer
	Schedule   ProcurementScheduler
}

// Options carries per-run inputs. Only the stage they belong to reads them.
type Options struct {
	StartDate string
	EndDate   string
	Manual    *demand.ManualOverride
}

func (o Options) key() (string, bool) {
	if o.Manual != nil {
		return "", false
	}
	return o.StartDate + "|" + o.EndDate, true
}

// Runner executes stages with tracing, metrics and run reports.
type Runner struct {
	services Services
	reports  ReportStore
	metrics  *jobmetrics.Metrics
	logger   *zap.Logger
	group    singleflight.Group
	clock    func() time.Time
	newID    func() string
}

// NewRunner constructs Runner. reports and metrics may be nil.
func NewRunner(services Services, reports ReportStore, metrics *jobmetrics.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		services: services,
		reports:  reports,
		metrics:  metrics,
		logger:   logger,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// SetClock overrides the time source.
func (r *Runner) SetClock(clock func() time.Time) {
	if clock != nil {
		r.clock = clock
	}
}

// Run executes stage. Identical concurrent calls share one execution.
func (r *Runner) Run(ctx context.Context, stage Stage, opts Options) (Outcome, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return Outcome{Stage: stage, TraceID: r.newID(), Error: err.Error()}, err
	}
	key, shareable := opts.key()
	if !shareable {
		return r.run(ctx, stage, opts)
	}
	v, err, joined := r.group.Do(string(stage)+"|"+key, func() (any, error) {
		return r.run(context.WithoutCancel(ctx), stage, opts)
	})
	outcome := v.(Outcome)
	if joined {
		r.logger.Debug("joined in-flight run", zap.String("stage", string(stage)), zap.String("trace_id", outcome.TraceID))
	}
	return outcome, err
}

// LastReport returns the latest stored report of stage.
func (r *Runner) LastReport(ctx context.Context, stage Stage) (runlog.Report, error) {
	if _, err := ParseStage(string(stage)); err != nil {
		return runlog.Report{}, err
	}
	if r.reports == nil {
		return runlog.Report{}, shared.ErrNotFound
	}
	return r.reports.Last(ctx, string(stage))
}

func (r *Runner) run(ctx context.Context, stage Stage, opts Options) (Outcome, error) {
	traceID := r.newID()
	ctx = shared.ContextWithTraceID(ctx, traceID)
	logger := r.logger.With(zap.String("stage", string(stage)), zap.String("trace_id", traceID))

	if stage == StagePipeline {
		return r.chain(ctx, traceID, opts, logger)
	}
	return r.execute(ctx, stage, traceID, opts, logger)
}

// chain runs every stage in order. A failed stage blocks the stages that read
// its writes; independent stages still run. The first error is returned.
func (r *Runner) chain(ctx context.Context, traceID string, opts Options, logger *zap.Logger) (outcome Outcome, resultErr error) {
	outcome = Outcome{Stage: StagePipeline, TraceID: traceID, StartedAt: r.clock()}
	tracker := r.metrics.Track(string(StagePipeline))
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	result := ChainResult{Stages: make([]Outcome, 0, len(Chain))}
	blocked := make(map[Stage]bool)
	var firstErr error
	for _, stage := range Chain {
		if blockedBy(stage, blocked) {
			blocked[stage] = true
			result.NotRun = append(result.NotRun, stage)
			logger.Warn("stage not run", zap.String("step", string(stage)))
			continue
		}
		step, err := r.execute(ctx, stage, traceID, opts, logger.With(zap.String("step", string(stage))))
		result.Stages = append(result.Stages, step)
		outcome.Writes += step.Writes
		outcome.Skipped += step.Skipped
		outcome.partial = outcome.partial || !step.OK
		if err != nil {
			blocked[stage] = true
			if firstErr == nil {
				firstErr = err
				result.FailedStage = stage
			}
		}
	}
	outcome.Result = result
	r.finish(ctx, &outcome, firstErr, logger)
	return outcome, firstErr
}

// execute runs one stage and records its report.
func (r *Runner) execute(ctx context.Context, stage Stage, traceID string, opts Options, logger *zap.Logger) (outcome Outcome, resultErr error) {
	outcome = Outcome{Stage: stage, TraceID: traceID, StartedAt: r.clock()}
	tracker := r.metrics.Track(string(stage))
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger.Info("stage started")
	err := r.dispatch(ctx, stage, opts, &outcome)
	r.metrics.AddWrites(string(stage), outcome.Writes)
	r.metrics.AddSkipped(string(stage), outcome.Skipped)
	r.finish(ctx, &outcome, err, logger)
	return outcome, err
}

func (r *Runner) dispatch(ctx context.Context, stage Stage, opts Options, outcome *Outcome) error {
	switch stage {
	case StageMovements:
		if r.services.Movements == nil {
			return missingService(stage)
		}
		var (
			res inventory.CaptureResult
			err error
		)
		if opts.StartDate != "" || opts.EndDate != "" {
			res, err = r.services.Movements.CaptureRange(ctx, opts.StartDate, opts.EndDate)
		} else {
			res, err = r.services.Movements.Capture(ctx)
		}
		outcome.Result = res
		outcome.Writes = res.Writes()
		outcome.partial = !res.OK
		return err
	case StageDemand:
		if r.services.Demand == nil {
			return missingService(stage)
		}
		res, err := r.services.Demand.Recompute(ctx, opts.Manual)
		outcome.Result = res
		outcome.Writes = res.VariantsUpdated
		outcome.Skipped = res.SkippedRows
		return err
	case StageInTransit:
		if r.services.InTransit == nil {
			return missingService(stage)
		}
		res, err := r.services.InTransit.Aggregate(ctx)
		outcome.Result = res
		outcome.Writes = res.OrdersWritten + res.OrdersRemoved + res.AggregatesUpserted + res.AggregatesDeleted + res.VariantsUpdated
		outcome.Skipped = res.OrdersSkipped
		return err
	case StageQuantities:
		if r.services.Quantities == nil {
			return missingService(stage)
		}
		res, err := r.services.Quantities.Recompute(ctx)
		outcome.Result = res
		outcome.Writes = res.VariantsUpdated
		return err
	case StageSchedule:
		if r.services.Schedule == nil {
			return missingService(stage)
		}
		res, err := r.services.Schedule.Run(ctx)
		outcome.Result = res
		outcome.Writes = res.VariantsUpdated
		return err
	default:
		return fmt.Errorf("%w: stage %q is not runnable", shared.ErrValidation, stage)
	}
}

func (r *Runner) finish(ctx context.Context, outcome *Outcome, err error, logger *zap.Logger) {
	outcome.FinishedAt = r.clock()
	outcome.OK = err == nil && !outcome.partial
	fields := []zap.Field{
		zap.Int("writes", outcome.Writes),
		zap.Int("skipped", outcome.Skipped),
		zap.Duration("duration", outcome.FinishedAt.Sub(outcome.StartedAt)),
	}
	if err != nil {
		outcome.Error = err.Error()
		logger.Error("stage failed", append(fields, zap.Error(err))...)
	} else {
		logger.Info("stage finished", append(fields, zap.Bool("ok", outcome.OK))...)
	}
	if r.reports == nil {
		return
	}
	if saveErr := r.reports.Save(ctx, outcome.report()); saveErr != nil {
		logger.Warn("run report not saved", zap.Error(saveErr))
	}
}

func missingService(stage Stage) error {
	return fmt.Errorf("%w: stage %s not wired", shared.ErrConfiguration, stage)
}

// ChainResult is the result of a full pipeline run.
type ChainResult struct {
	Stages      []Outcome `json:"stages"`
	FailedStage Stage     `json:"failedStage,omitempty"`
	NotRun      []Stage   `json:"notRun,omitempty"`
}

// Outcome is the report of one run. It serialises flat: the stage counters sit
// next to ok, traceId and error.
type Outcome struct {
	Stage      Stage
	TraceID    string
	OK         bool
	Writes     int
	Skipped    int
	Error      string
	Result     any
	StartedAt  time.Time
	FinishedAt time.Time

	partial bool
}

// MarshalJSON flattens Result into the envelope.
func (o Outcome) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if o.Result != nil {
		raw, err := json.Marshal(o.Result)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			body = map[string]any{"result": json.RawMessage(raw)}
		}
	}
	body["ok"] = o.OK
	body["traceId"] = o.TraceID
	body["stage"] = o.Stage
	body["writes"] = o.Writes
	body["skipped"] = o.Skipped
	if o.Error != "" {
		body["error"] = o.Error
	} else {
		delete(body, "error")
	}
	return json.Marshal(body)
}

func (o Outcome) report() runlog.Report {
	report := runlog.Report{
		Stage:      string(o.Stage),
		TraceID:    o.TraceID,
		OK:         o.OK,
		StartedAt:  o.StartedAt.UTC(),
		FinishedAt: o.FinishedAt.UTC(),
		DurationMs: o.FinishedAt.Sub(o.StartedAt).Milliseconds(),
		Writes:     o.Writes,
		Skipped:    o.Skipped,
		Error:      o.Error,
	}
	if o.Result != nil {
		if raw, err := json.Marshal(o.Result); err == nil {
			report.Result = raw
		}
	}
	return report
}
