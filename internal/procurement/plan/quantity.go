// Package plan derives the next procurement quantity and date for each SKU.
package plan

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/catalog"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// DefaultWarmupDays is how long a new variant relies on its initial prediction.
const DefaultWarmupDays = 30

// quantityTolerance is the smallest change worth writing.
const quantityTolerance = 0.01

// VariantStore reads and writes Product Demand Records.
type VariantStore interface {
	Load(ctx context.Context) ([]catalog.Record, error)
	Apply(ctx context.Context, updates []catalog.Update) (int, error)
}

// NextProcurement computes the recommended quantity for rec as of today.
// During warm-up the initial stock prediction is used as is.
func NextProcurement(rec catalog.Record, today time.Time, warmupDays int) shared.Signal {
	if warmingUp(rec, today, warmupDays) {
		initial := shared.SignalFromPtr(rec.InitialStockPrediction)
		if v, ok := initial.Float(); ok {
			return shared.Value(shared.Round2(v))
		}
		return initial
	}
	if rec.FifteenDayRequirement == nil || rec.ReorderPoint == nil {
		return shared.NoSignal()
	}
	requirement := *rec.FifteenDayRequirement
	rop := *rec.ReorderPoint
	position := value(rec.Stock) + value(rec.InTransitStock)
	if position <= rop {
		return shared.Value(shared.Round2(requirement))
	}
	return shared.Value(shared.Round2(math.Max(requirement-(position-rop), 0)))
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return shared.Finite(*v)
}

// QuantityResult reports a quantity run.
type QuantityResult struct {
	VariantsEvaluated int `json:"variantsEvaluated"`
	VariantsUpdated   int `json:"variantsUpdated"`
	WarmingUp         int `json:"warmingUp"`
	NoSignal          int `json:"noSignal"`
}

// QuantityService recomputes nextProcurement.
type QuantityService struct {
	store      VariantStore
	resolver   *periods.Resolver
	warmupDays int
	logger     *zap.Logger
	clock      func() time.Time
}

// NewQuantityService constructs QuantityService. A negative warm-up falls back to the default.
func NewQuantityService(store VariantStore, resolver *periods.Resolver, warmupDays int, logger *zap.Logger) *QuantityService {
	if warmupDays < 0 {
		warmupDays = DefaultWarmupDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuantityService{store: store, resolver: resolver, warmupDays: warmupDays, logger: logger, clock: time.Now}
}

// SetClock overrides the time source.
func (s *QuantityService) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Recompute writes nextProcurement where it moved by at least a cent or was unset.
// A variant without a signal keeps its stored value.
func (s *QuantityService) Recompute(ctx context.Context) (QuantityResult, error) {
	records, err := s.store.Load(ctx)
	if err != nil {
		return QuantityResult{}, err
	}
	today := s.resolver.Today(s.clock())
	idx := catalog.NewIndex(records)
	result := QuantityResult{VariantsEvaluated: idx.Len()}

	var updates []catalog.Update
	for _, rec := range idx.Records() {
		if warmingUp(rec, today, s.warmupDays) {
			result.WarmingUp++
		}
		next := NextProcurement(rec, today, s.warmupDays)
		if !next.Ok() {
			result.NoSignal++
			continue
		}
		if shared.WithinTolerance(rec.NextProcurement, next.Ptr(), quantityTolerance) {
			continue
		}
		updates = append(updates, catalog.NewUpdate(rec.VariantID).SetFloat(catalog.FieldNextProcurement, next.Ptr()))
	}
	written, err := s.store.Apply(ctx, updates)
	result.VariantsUpdated = written
	if err != nil {
		return result, err
	}
	s.logger.Info("procurement quantities recomputed",
		zap.Int("variants", result.VariantsEvaluated),
		zap.Int("updated", result.VariantsUpdated),
		zap.Int("warming_up", result.WarmingUp),
	)
	return result, nil
}

// warmingUp reports whether fewer than warmupDays have passed since the
// variant's start date. A missing start date counts as today.
func warmingUp(rec catalog.Record, today time.Time, warmupDays int) bool {
	start := today
	if rec.StartDate != nil {
		start = periods.Civil(*rec.StartDate, today.Location())
	}
	return periods.DaysBetween(start, today) < warmupDays
}
