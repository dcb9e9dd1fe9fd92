// Package demand turns movement snapshots into stock-out corrected daily
// sales velocity and reorder points.
package demand

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/catalog"
	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Period sources reported in the result.
const (
	SourceSnapshot = "snapshot"
	SourceManual   = "manual"
	SourceMissing  = "missing"
)

// VariantStore reads and writes Product Demand Records.
type VariantStore interface {
	Load(ctx context.Context) ([]catalog.Record, error)
	Apply(ctx context.Context, updates []catalog.Update) (int, error)
}

// SnapshotReader loads movement snapshots.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, source, signature string) (inventory.Snapshot, error)
}

// ManualLine is one override row.
type ManualLine struct {
	SKU    string  `json:"sku" validate:"required"`
	QtyOut float64 `json:"qtyOut" validate:"gte=0"`
}

// ManualOverride replaces the snapshot rows of a period for one run. A nil
// list keeps the snapshot; an empty list means no movement.
type ManualOverride struct {
	PeriodA []ManualLine `json:"periodA" validate:"omitempty,dive"`
	PeriodB []ManualLine `json:"periodB" validate:"omitempty,dive"`
}

// PeriodSummary describes the data used for one period.
type PeriodSummary struct {
	Signature string `json:"signature"`
	Source    string `json:"source"`
	SKUs      int    `json:"skus"`
	Divisor   int    `json:"divisor"`
}

// Result reports a recompute run.
type Result struct {
	PeriodA           PeriodSummary `json:"periodA"`
	PeriodB           PeriodSummary `json:"periodB"`
	VariantsEvaluated int           `json:"variantsEvaluated"`
	VariantsUpdated   int           `json:"variantsUpdated"`
	NoSignal          int           `json:"noSignal"`
	Invalid           int           `json:"invalid"`
	SkippedRows       int           `json:"skippedRows"`
}

// Service recomputes velocity and reorder points.
type Service struct {
	store     VariantStore
	snapshots SnapshotReader
	resolver  *periods.Resolver
	validate  *validator.Validate
	logger    *zap.Logger
	clock     func() time.Time
}

// NewService constructs the demand service.
func NewService(store VariantStore, snapshots SnapshotReader, resolver *periods.Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		snapshots: snapshots,
		resolver:  resolver,
		validate:  validator.New(),
		logger:    logger,
		clock:     time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

type periodData struct {
	window   periods.Window
	averages map[string]float64
	summary  PeriodSummary
}

// Recompute derives daily averages, stock-out factors, final averages and
// reorder points and writes the records whose values changed.
func (s *Service) Recompute(ctx context.Context, override *ManualOverride) (Result, error) {
	if override != nil {
		if err := s.validate.Struct(override); err != nil {
			return Result{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
	}
	now := s.clock()
	today := s.resolver.Today(now)
	pair := s.resolver.Resolve(now)

	var manualA, manualB []ManualLine
	if override != nil {
		manualA, manualB = override.PeriodA, override.PeriodB
	}
	a, skippedA, err := s.loadPeriod(ctx, pair.A, manualA)
	if err != nil {
		return Result{}, err
	}
	b, skippedB, err := s.loadPeriod(ctx, pair.B, manualB)
	if err != nil {
		return Result{}, err
	}

	records, err := s.store.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	idx := catalog.NewIndex(records)

	result := Result{
		PeriodA:           a.summary,
		PeriodB:           b.summary,
		VariantsEvaluated: idx.Len(),
		SkippedRows:       skippedA + skippedB,
	}
	var updates []catalog.Update
	for _, rec := range idx.Records() {
		sku := shared.NormalizeSKU(rec.SellerSKU)
		avgA := lookup(a.averages, sku)
		avgB := lookup(b.averages, sku)
		factorA := StockOutFactor(a.window, rec.StockOutDatePeriodA, today)
		factorB := StockOutFactor(b.window, rec.StockOutDatePeriodB, today)
		final := FinalDailyAverage(avgA, avgB, factorA, factorB)
		switch final.Kind() {
		case shared.SignalNone:
			result.NoSignal++
		case shared.SignalInvalid:
			result.Invalid++
			s.logger.Warn("invalid final average", zap.String("sku", sku), zap.String("reason", final.Reason()))
		}
		rop := ReorderPoint(rec.LeadTime, final)

		if u, changed := diff(rec, avgA, avgB, factorA, factorB, final, rop); changed {
			updates = append(updates, u)
		}
	}

	written, err := s.store.Apply(ctx, updates)
	result.VariantsUpdated = written
	if err != nil {
		return result, err
	}
	s.logger.Info("demand recomputed",
		zap.Int("variants", result.VariantsEvaluated),
		zap.Int("updated", result.VariantsUpdated),
		zap.String("period_a", a.summary.Source),
		zap.String("period_b", b.summary.Source),
	)
	return result, nil
}

func (s *Service) loadPeriod(ctx context.Context, w periods.Window, manual []ManualLine) (periodData, int, error) {
	data := periodData{
		window:  w,
		summary: PeriodSummary{Signature: w.Signature, Divisor: w.Divisor()},
	}
	var rows []inventory.MovementRow
	switch {
	case manual != nil:
		data.summary.Source = SourceManual
		rows = make([]inventory.MovementRow, 0, len(manual))
		for _, line := range manual {
			rows = append(rows, inventory.MovementRow{SKU: line.SKU, QtyOut: line.QtyOut})
		}
	default:
		snap, err := s.snapshots.GetSnapshot(ctx, inventory.SourceAuto, w.Signature)
		if errors.Is(err, shared.ErrNotFound) {
			data.summary.Source = SourceMissing
			data.averages = map[string]float64{}
			return data, 0, nil
		}
		if err != nil {
			return periodData{}, 0, err
		}
		data.summary.Source = SourceSnapshot
		rows = snap.Rows
	}
	averages, skipped := PeriodAverages(rows, data.summary.Divisor)
	data.averages = averages
	data.summary.SKUs = len(averages)
	return data, skipped, nil
}

func lookup(averages map[string]float64, sku string) shared.Signal {
	if sku == "" {
		return shared.NoSignal()
	}
	v, ok := averages[sku]
	if !ok {
		return shared.NoSignal()
	}
	return shared.Value(v)
}

func diff(rec catalog.Record, avgA, avgB shared.Signal, factorA, factorB float64, final, rop shared.Signal) (catalog.Update, bool) {
	u := catalog.NewUpdate(rec.VariantID)
	setFloat := func(field catalog.Field, stored, next *float64) {
		if !shared.SameAmount(stored, next) {
			u.SetFloat(field, next)
		}
	}
	setFloat(catalog.FieldDailyAverageA, rec.DailyAverageSalesPeriodA, avgA.Ptr())
	setFloat(catalog.FieldDailyAverageB, rec.DailyAverageSalesPeriodB, avgB.Ptr())
	setFloat(catalog.FieldStockOutFactorA, rec.StockOutFactorPeriodA, shared.Float(factorA))
	setFloat(catalog.FieldStockOutFactorB, rec.StockOutFactorPeriodB, shared.Float(factorB))
	setFloat(catalog.FieldFinalAverage, rec.FinalDailyAveragePerDay, final.Ptr())
	if rop.Ok() {
		setFloat(catalog.FieldReorderPoint, rec.ReorderPoint, rop.Ptr())
	}
	return u, !u.Empty()
}
