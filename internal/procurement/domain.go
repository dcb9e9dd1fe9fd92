package procurement

import (
	"sort"
	"time"

	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Status is the normalised purchase order status.
type Status string

const (
	// StatusUnpaid orders are in transit.
	StatusUnpaid Status = "unpaid"
	// StatusPaid orders have been settled.
	StatusPaid Status = "paid"
	// StatusCancelled orders were voided upstream.
	StatusCancelled Status = "cancelled"
	// StatusRemoved is a local tombstone for unpaid orders the ERP stopped returning.
	StatusRemoved Status = "removed"
)

// Order is a normalised purchase order.
type Order struct {
	ExternalID      string
	Status          Status
	VendorName      string
	DueDate         *time.Time
	Currency        string
	TotalAmount     *float64
	RemainingAmount *float64
	Items           []Item
}

// Item is one SKU line of an order. SKUs are normalised and unique per order.
type Item struct {
	SKU         string
	Quantity    float64
	UnitPrice   *float64
	Description string
}

// StoredOrder is an order as persisted in the ledger.
type StoredOrder struct {
	ID int64
	Order
}

// FetchResult is what the ERP returned for the unpaid filter.
// Truncated is set when the listing stopped at the page ceiling with orders
// still pending upstream.
type FetchResult struct {
	Orders    []Order
	Skipped   int
	Pages     int
	Truncated bool
}

// AggregateResult reports an in-transit aggregation run.
type AggregateResult struct {
	Pages              int     `json:"pages"`
	OrdersFetched      int     `json:"ordersFetched"`
	OrdersSkipped      int     `json:"ordersSkipped"`
	DuplicateOrders    int     `json:"duplicateOrders"`
	OrdersWritten      int     `json:"ordersWritten"`
	OrdersRemoved      int     `json:"ordersRemoved"`
	AggregatesUpserted int     `json:"aggregatesUpserted"`
	AggregatesDeleted  int     `json:"aggregatesDeleted"`
	SKUsInTransit      int     `json:"skusInTransit"`
	TotalInTransit     float64 `json:"totalInTransit"`
	VariantsUpdated    int     `json:"variantsUpdated"`
	Truncated          bool    `json:"truncated"`
}

// dedupe keeps the first occurrence of each external id.
func dedupe(orders []Order) ([]Order, int) {
	seen := make(map[string]struct{}, len(orders))
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.ExternalID]; ok {
			continue
		}
		seen[o.ExternalID] = struct{}{}
		out = append(out, o)
	}
	return out, len(orders) - len(out)
}

// sameOrder reports whether persisting next over stored would change nothing.
func sameOrder(stored, next Order) bool {
	if stored.Status != next.Status || stored.VendorName != next.VendorName || stored.Currency != next.Currency {
		return false
	}
	if !periods.SameDate(stored.DueDate, next.DueDate) {
		return false
	}
	if !shared.SameAmount(stored.TotalAmount, next.TotalAmount) || !shared.SameAmount(stored.RemainingAmount, next.RemainingAmount) {
		return false
	}
	if len(stored.Items) != len(next.Items) {
		return false
	}
	byKey := make(map[string]Item, len(stored.Items))
	for _, item := range stored.Items {
		byKey[item.SKU] = item
	}
	for _, item := range next.Items {
		prev, ok := byKey[item.SKU]
		if !ok || prev.Description != item.Description {
			return false
		}
		if !shared.SameAmount(&prev.Quantity, &item.Quantity) || !shared.SameAmount(prev.UnitPrice, item.UnitPrice) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
