// Package inventory captures per-window stock movement summaries from the ERP
// and keeps them as snapshots for the demand stage.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// SnapshotStore persists snapshots.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, source, signature string) (Snapshot, error)
}

// MovementSource fetches a normalised movement summary for one warehouse.
type MovementSource interface {
	FetchMovements(ctx context.Context, start, end time.Time, warehouse string) (Movement, error)
}

// ServiceConfig configures capture.
type ServiceConfig struct {
	TargetWarehouse string
}

// Service captures movement snapshots.
type Service struct {
	repo      SnapshotStore
	source    MovementSource
	resolver  *periods.Resolver
	warehouse string
	logger    *zap.Logger
	clock     func() time.Time
}

// NewService constructs the movement capture service.
func NewService(repo SnapshotStore, source MovementSource, resolver *periods.Resolver, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		source:    source,
		resolver:  resolver,
		warehouse: cfg.TargetWarehouse,
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

// Capture fetches and stores both resolver windows. Each window is processed
// independently; the returned error is set only when nothing was captured or
// when a configuration or persistence error stopped the run.
func (s *Service) Capture(ctx context.Context) (CaptureResult, error) {
	now := s.clock()
	pair := s.resolver.Resolve(now)
	return s.capture(ctx, SourceAuto, []periods.Window{pair.A, pair.B})
}

// CaptureRange captures an explicit YYYY-MM-DD range as a custom snapshot.
func (s *Service) CaptureRange(ctx context.Context, startDate, endDate string) (CaptureResult, error) {
	loc := s.resolver.Location()
	start, err := periods.ParseDate(startDate, loc)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("%w: start_date: %v", shared.ErrValidation, err)
	}
	end, err := periods.ParseDate(endDate, loc)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("%w: end_date: %v", shared.ErrValidation, err)
	}
	window, err := s.resolver.Custom(start, end, s.clock())
	if err != nil {
		return CaptureResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return s.capture(ctx, SourceCustom, []periods.Window{window})
}

func (s *Service) capture(ctx context.Context, source string, windows []periods.Window) (CaptureResult, error) {
	if s.warehouse == "" {
		return CaptureResult{}, fmt.Errorf("%w: target warehouse not set", shared.ErrConfiguration)
	}
	result := CaptureResult{Warehouse: s.warehouse, Periods: make([]PeriodResult, 0, len(windows))}
	var firstErr error
	for _, w := range windows {
		pr := PeriodResult{
			Key:       w.Key,
			Signature: w.Signature,
			Start:     w.Start.Format(periods.DateLayout),
			End:       w.End.Format(periods.DateLayout),
		}
		logger := s.logger.With(zap.String("signature", w.Signature))

		movement, err := s.source.FetchMovements(ctx, w.Start, w.End, s.warehouse)
		if err != nil {
			if errors.Is(err, shared.ErrConfiguration) {
				return result, err
			}
			logger.Warn("movement fetch failed", zap.Error(err))
			pr.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			result.Periods = append(result.Periods, pr)
			continue
		}

		snap := Snapshot{
			Source:          source,
			PeriodSignature: w.Signature,
			PeriodKey:       w.Key,
			PeriodStart:     w.Start,
			PeriodEnd:       w.End,
			Header:          movement.Header,
			Totals:          movement.Totals(),
			Rows:            movement.Rows,
			WarehouseCount:  movement.WarehouseCount,
			LastLoadedAt:    s.clock().UTC(),
		}
		changed, err := s.store(ctx, snap)
		if err != nil {
			return result, err
		}
		totals := snap.Totals
		pr.OK = true
		pr.Rows = len(snap.Rows)
		pr.Changed = changed
		pr.Totals = &totals
		logger.Info("movement snapshot captured",
			zap.Int("rows", pr.Rows),
			zap.Int("warehouses", snap.WarehouseCount),
			zap.Bool("changed", changed),
		)
		result.Periods = append(result.Periods, pr)
	}
	succeeded := result.Succeeded()
	result.OK = succeeded == len(windows)
	if succeeded == 0 && firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// store upserts snap unless the stored snapshot already holds the same content.
func (s *Service) store(ctx context.Context, snap Snapshot) (bool, error) {
	existing, err := s.repo.GetSnapshot(ctx, snap.Source, snap.PeriodSignature)
	switch {
	case err == nil:
		if sameContent(existing, snap) {
			return false, nil
		}
	case errors.Is(err, shared.ErrNotFound):
	default:
		return false, err
	}
	if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot returns the automatic snapshot of window w.
func (s *Service) Snapshot(ctx context.Context, w periods.Window) (Snapshot, error) {
	return s.repo.GetSnapshot(ctx, SourceAuto, w.Signature)
}

func sameContent(a, b Snapshot) bool {
	if a.WarehouseCount != b.WarehouseCount || len(a.Rows) != len(b.Rows) {
		return false
	}
	if len(a.Rows) > 0 && !reflect.DeepEqual(a.Rows, b.Rows) {
		return false
	}
	return sameJSON(a.Header, b.Header)
}

func sameJSON(a, b json.RawMessage) bool {
	var av, bv any
	if len(a) > 0 {
		if err := json.Unmarshal(a, &av); err != nil {
			return false
		}
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &bv); err != nil {
			return false
		}
	}
	return reflect.DeepEqual(av, bv)
}
