package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/replenishment/internal/platform/db"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Repository persists the purchase order ledger and the in-transit aggregate.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	UpsertOrder(ctx context.Context, order Order, seenAt time.Time) (int64, error)
	ReplaceItems(ctx context.Context, orderID int64, items []Item) error
	MarkRemoved(ctx context.Context, externalIDs []string, at time.Time) (int, error)
	UpsertAggregate(ctx context.Context, sku string, total float64, at time.Time) error
	DeleteAggregates(ctx context.Context, skus []string) (int, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("procurement repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return shared.Persistence("procurement: ledger tx", err)
}

const loadOrdersSQL = `
SELECT id, external_id, status, COALESCE(vendor_name, ''), due_date, COALESCE(currency, ''),
	total_amount, remaining_amount
FROM purchase_orders
WHERE external_id = ANY($1) OR status = 'unpaid'`

const loadItemsSQL = `
SELECT order_id, sku, quantity, unit_price, COALESCE(description, '')
FROM purchase_order_items
WHERE order_id = ANY($1)`

// LoadOrders returns orders matching externalIDs plus every unpaid order, keyed by external id.
func (r *Repository) LoadOrders(ctx context.Context, externalIDs []string) (map[string]StoredOrder, error) {
	rows, err := r.pool.Query(ctx, loadOrdersSQL, externalIDs)
	if err != nil {
		return nil, shared.Persistence("procurement: load orders", err)
	}
	orders := make(map[string]StoredOrder)
	byID := make(map[int64]string)
	for rows.Next() {
		var (
			o      StoredOrder
			status string
		)
		if err := rows.Scan(&o.ID, &o.ExternalID, &status, &o.VendorName, &o.DueDate, &o.Currency, &o.TotalAmount, &o.RemainingAmount); err != nil {
			rows.Close()
			return nil, shared.Persistence("procurement: scan order", err)
		}
		o.Status = Status(status)
		orders[o.ExternalID] = o
		byID[o.ID] = o.ExternalID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("procurement: iterate orders", err)
	}
	if len(byID) == 0 {
		return orders, nil
	}

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	itemRows, err := r.pool.Query(ctx, loadItemsSQL, ids)
	if err != nil {
		return nil, shared.Persistence("procurement: load items", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var (
			orderID int64
			item    Item
		)
		if err := itemRows.Scan(&orderID, &item.SKU, &item.Quantity, &item.UnitPrice, &item.Description); err != nil {
			return nil, shared.Persistence("procurement: scan item", err)
		}
		ext := byID[orderID]
		o := orders[ext]
		o.Items = append(o.Items, item)
		orders[ext] = o
	}
	if err := itemRows.Err(); err != nil {
		return nil, shared.Persistence("procurement: iterate items", err)
	}
	return orders, nil
}

const unpaidTotalsSQL = `
SELECT upper(trim(i.sku)), SUM(i.quantity)::float8
FROM purchase_order_items i
JOIN purchase_orders o ON o.id = i.order_id
WHERE o.status = 'unpaid' AND trim(i.sku) <> ''
GROUP BY 1`

// UnpaidTotals sums item quantities of unpaid orders by normalised SKU.
func (r *Repository) UnpaidTotals(ctx context.Context) (map[string]float64, error) {
	return r.sumBySKU(ctx, "procurement: unpaid totals", unpaidTotalsSQL)
}

// Aggregates returns the stored in-transit aggregate.
func (r *Repository) Aggregates(ctx context.Context) (map[string]float64, error) {
	return r.sumBySKU(ctx, "procurement: load aggregates", `SELECT sku, total_quantity::float8 FROM in_transit_aggregates`)
}

func (r *Repository) sumBySKU(ctx context.Context, op, sql string) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, shared.Persistence(op, err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var (
			sku   string
			total float64
		)
		if err := rows.Scan(&sku, &total); err != nil {
			return nil, shared.Persistence(op, err)
		}
		out[sku] = total
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence(op, err)
	}
	return out, nil
}

const upsertOrderSQL = `
INSERT INTO purchase_orders (
	external_id, status, vendor_name, due_date, currency, total_amount, remaining_amount, last_seen_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (external_id) DO UPDATE SET
	status = EXCLUDED.status,
	vendor_name = EXCLUDED.vendor_name,
	due_date = EXCLUDED.due_date,
	currency = EXCLUDED.currency,
	total_amount = EXCLUDED.total_amount,
	remaining_amount = EXCLUDED.remaining_amount,
	last_seen_at = EXCLUDED.last_seen_at,
	updated_at = EXCLUDED.updated_at
RETURNING id`

func (r *txRepository) UpsertOrder(ctx context.Context, order Order, seenAt time.Time) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, upsertOrderSQL,
		order.ExternalID, string(order.Status), nullString(order.VendorName), order.DueDate,
		nullString(order.Currency), order.TotalAmount, order.RemainingAmount, seenAt,
	).Scan(&id)
	return id, err
}

const upsertItemSQL = `
INSERT INTO purchase_order_items (order_id, sku, quantity, unit_price, description)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, sku) DO UPDATE SET
	quantity = EXCLUDED.quantity,
	unit_price = EXCLUDED.unit_price,
	description = EXCLUDED.description`

func (r *txRepository) ReplaceItems(ctx context.Context, orderID int64, items []Item) error {
	batch := &pgx.Batch{}
	skus := make([]string, 0, len(items))
	for _, item := range items {
		batch.Queue(upsertItemSQL, orderID, item.SKU, item.Quantity, item.UnitPrice, nullString(item.Description))
		skus = append(skus, item.SKU)
	}
	batch.Queue(`DELETE FROM purchase_order_items WHERE order_id = $1 AND NOT (sku = ANY($2))`, orderID, skus)
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) MarkRemoved(ctx context.Context, externalIDs []string, at time.Time) (int, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	tag, err := r.tx.Exec(ctx,
		`UPDATE purchase_orders SET status = 'removed', updated_at = $2 WHERE status = 'unpaid' AND external_id = ANY($1)`,
		externalIDs, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *txRepository) UpsertAggregate(ctx context.Context, sku string, total float64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
INSERT INTO in_transit_aggregates (sku, total_quantity, last_calculated_at)
VALUES ($1, $2, $3)
ON CONFLICT (sku) DO UPDATE SET
	total_quantity = EXCLUDED.total_quantity,
	last_calculated_at = EXCLUDED.last_calculated_at`, sku, total, at)
	return err
}

func (r *txRepository) DeleteAggregates(ctx context.Context, skus []string) (int, error) {
	if len(skus) == 0 {
		return 0, nil
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM in_transit_aggregates WHERE sku = ANY($1)`, skus)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
