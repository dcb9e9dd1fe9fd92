// Package procurement mirrors unpaid ERP purchase orders into a local ledger
// and derives the per-SKU in-transit quantity from it.
package procurement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/catalog"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LoadOrders(ctx context.Context, externalIDs []string) (map[string]StoredOrder, error)
	UnpaidTotals(ctx context.Context) (map[string]float64, error)
	Aggregates(ctx context.Context) (map[string]float64, error)
}

// OrderSource lists the orders the ERP reports as unpaid.
type OrderSource interface {
	ListUnpaidOrders(ctx context.Context) (FetchResult, error)
}

// VariantStore reads and writes Product Demand Records.
type VariantStore interface {
	Load(ctx context.Context) ([]catalog.Record, error)
	Apply(ctx context.Context, updates []catalog.Update) (int, error)
}

// Service aggregates in-transit stock.
type Service struct {
	repo   RepositoryPort
	source OrderSource
	store  VariantStore
	logger *zap.Logger
	clock  func() time.Time
}

// NewService constructs the in-transit service.
func NewService(repo RepositoryPort, source OrderSource, store VariantStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, source: source, store: store, logger: logger, clock: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Aggregate syncs the ledger with the ERP, converges in_transit_aggregates and
// pushes the per-SKU totals to the catalog. An ERP error aborts before any write.
func (s *Service) Aggregate(ctx context.Context) (AggregateResult, error) {
	fetched, err := s.source.ListUnpaidOrders(ctx)
	if err != nil {
		return AggregateResult{}, err
	}
	orders, duplicates := dedupe(fetched.Orders)
	result := AggregateResult{
		Pages:           fetched.Pages,
		OrdersFetched:   len(orders),
		OrdersSkipped:   fetched.Skipped,
		DuplicateOrders: duplicates,
		Truncated:       fetched.Truncated,
	}
	now := s.clock().UTC()
	if fetched.Truncated {
		s.logger.Warn("purchase order listing truncated; keeping unfetched unpaid orders",
			zap.Int("pages", fetched.Pages),
			zap.Int("orders", len(orders)),
		)
	}

	if err := s.syncLedger(ctx, orders, !fetched.Truncated, now, &result); err != nil {
		return result, err
	}
	totals, err := s.converge(ctx, now, &result)
	if err != nil {
		return result, err
	}
	updated, err := s.pushToCatalog(ctx, totals)
	result.VariantsUpdated = updated
	if err != nil {
		return result, err
	}

	s.logger.Info("in-transit aggregated",
		zap.Int("pages", result.Pages),
		zap.Int("orders", result.OrdersFetched),
		zap.Int("skipped", result.OrdersSkipped),
		zap.Int("orders_written", result.OrdersWritten),
		zap.Int("orders_removed", result.OrdersRemoved),
		zap.Int("skus", result.SKUsInTransit),
		zap.Int("variants_updated", result.VariantsUpdated),
	)
	return result, nil
}

// syncLedger upserts changed orders. Stored unpaid orders missing from the fetch
// are marked removed only when the fetch is complete.
func (s *Service) syncLedger(ctx context.Context, orders []Order, complete bool, now time.Time, result *AggregateResult) error {
	ids := make([]string, 0, len(orders))
	fetchedIDs := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ExternalID)
		fetchedIDs[o.ExternalID] = struct{}{}
	}
	stored, err := s.repo.LoadOrders(ctx, ids)
	if err != nil {
		return err
	}

	var changed []Order
	for _, o := range orders {
		prev, ok := stored[o.ExternalID]
		if ok && sameOrder(prev.Order, o) {
			continue
		}
		changed = append(changed, o)
	}
	var removed []string
	for ext, o := range stored {
		if !complete || o.Status != StatusUnpaid {
			continue
		}
		if _, ok := fetchedIDs[ext]; !ok {
			removed = append(removed, ext)
		}
	}
	if len(changed) == 0 && len(removed) == 0 {
		return nil
	}

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, o := range changed {
			id, err := tx.UpsertOrder(ctx, o, now)
			if err != nil {
				return err
			}
			if err := tx.ReplaceItems(ctx, id, o.Items); err != nil {
				return err
			}
			result.OrdersWritten++
		}
		n, err := tx.MarkRemoved(ctx, removed, now)
		if err != nil {
			return err
		}
		result.OrdersRemoved = n
		return nil
	})
}

func (s *Service) converge(ctx context.Context, now time.Time, result *AggregateResult) (map[string]float64, error) {
	totals, err := s.repo.UnpaidTotals(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.Aggregates(ctx)
	if err != nil {
		return nil, err
	}
	result.SKUsInTransit = len(totals)
	for _, qty := range totals {
		result.TotalInTransit += qty
	}
	result.TotalInTransit = shared.Round2(result.TotalInTransit)

	var upserts, deletes []string
	for _, sku := range sortedKeys(totals) {
		prev, ok := current[sku]
		next := totals[sku]
		if ok && shared.SameAmount(&prev, &next) {
			continue
		}
		upserts = append(upserts, sku)
	}
	for _, sku := range sortedKeys(current) {
		if _, ok := totals[sku]; !ok {
			deletes = append(deletes, sku)
		}
	}
	if len(upserts) == 0 && len(deletes) == 0 {
		return totals, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, sku := range upserts {
			if err := tx.UpsertAggregate(ctx, sku, totals[sku], now); err != nil {
				return err
			}
		}
		n, err := tx.DeleteAggregates(ctx, deletes)
		if err != nil {
			return err
		}
		result.AggregatesUpserted = len(upserts)
		result.AggregatesDeleted = n
		return nil
	})
	return totals, err
}

func (s *Service) pushToCatalog(ctx context.Context, totals map[string]float64) (int, error) {
	records, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	idx := catalog.NewIndex(records)
	var updates []catalog.Update
	for _, rec := range idx.Records() {
		want := shared.Round2(totals[shared.NormalizeSKU(rec.SellerSKU)])
		if shared.SameAmount(rec.InTransitStock, &want) {
			continue
		}
		updates = append(updates, catalog.NewUpdate(rec.VariantID).SetFloat(catalog.FieldInTransitStock, &want))
	}
	return s.store.Apply(ctx, updates)
}
