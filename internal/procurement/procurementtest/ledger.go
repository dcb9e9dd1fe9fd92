// Package procurementtest provides an in-memory purchase order ledger for tests.
package procurementtest

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// MemoryLedger keeps orders and aggregates in memory and counts writes.
type MemoryLedger struct {
	mu         sync.Mutex
	orders     map[string]procurement.StoredOrder
	aggregates map[string]float64
	nextID     int64
	writes     int
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		orders:     make(map[string]procurement.StoredOrder),
		aggregates: make(map[string]float64),
	}
}

// WithTx runs fn against the ledger.
func (l *MemoryLedger) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return fn(ctx, ledgerTx{l})
}

// LoadOrders returns the requested orders plus every stored unpaid order.
func (l *MemoryLedger) LoadOrders(_ context.Context, externalIDs []string) (map[string]procurement.StoredOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wanted := make(map[string]bool, len(externalIDs))
	for _, id := range externalIDs {
		wanted[id] = true
	}
	out := make(map[string]procurement.StoredOrder)
	for ext, o := range l.orders {
		if wanted[ext] || o.Status == procurement.StatusUnpaid {
			o.Items = append([]procurement.Item(nil), o.Items...)
			out[ext] = o
		}
	}
	return out, nil
}

// UnpaidTotals sums unpaid item quantities by normalised SKU.
func (l *MemoryLedger) UnpaidTotals(context.Context) (map[string]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	totals := make(map[string]float64)
	for _, o := range l.orders {
		if o.Status != procurement.StatusUnpaid {
			continue
		}
		for _, item := range o.Items {
			if sku := shared.NormalizeSKU(item.SKU); sku != "" {
				totals[sku] += item.Quantity
			}
		}
	}
	return totals, nil
}

// Aggregates returns a copy of the stored aggregate.
func (l *MemoryLedger) Aggregates(context.Context) (map[string]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.aggregates))
	for k, v := range l.aggregates {
		out[k] = v
	}
	return out, nil
}

// Writes returns the number of ledger writes so far.
func (l *MemoryLedger) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// Order returns the stored order with external id ext.
func (l *MemoryLedger) Order(ext string) (procurement.StoredOrder, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[ext]
	return o, ok
}

type ledgerTx struct {
	l *MemoryLedger
}

func (tx ledgerTx) UpsertOrder(_ context.Context, order procurement.Order, _ time.Time) (int64, error) {
	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	prev, ok := l.orders[order.ExternalID]
	id := prev.ID
	if !ok {
		l.nextID++
		id = l.nextID
	}
	l.orders[order.ExternalID] = procurement.StoredOrder{ID: id, Order: order}
	return id, nil
}

func (tx ledgerTx) ReplaceItems(_ context.Context, orderID int64, items []procurement.Item) error {
	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	for ext, o := range l.orders {
		if o.ID == orderID {
			o.Items = append([]procurement.Item(nil), items...)
			l.orders[ext] = o
		}
	}
	return nil
}

func (tx ledgerTx) MarkRemoved(_ context.Context, externalIDs []string, _ time.Time) (int, error) {
	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ext := range externalIDs {
		o, ok := l.orders[ext]
		if !ok || o.Status != procurement.StatusUnpaid {
			continue
		}
		o.Status = procurement.StatusRemoved
		l.orders[ext] = o
		l.writes++
		n++
	}
	return n, nil
}

func (tx ledgerTx) UpsertAggregate(_ context.Context, sku string, total float64, _ time.Time) error {
	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	l.aggregates[sku] = total
	return nil
}

func (tx ledgerTx) DeleteAggregates(_ context.Context, skus []string) (int, error) {
	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sku := range skus {
		delete(l.aggregates, sku)
		l.writes++
	}
	return len(skus), nil
}
