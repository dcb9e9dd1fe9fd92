package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/platform/db"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// DefaultBatchSize bounds the updates sent per round trip.
const DefaultBatchSize = 200

// Store is the Postgres-backed Product Demand Record store.
type Store struct {
	pool      *pgxpool.Pool
	loc       *time.Location
	batchSize int
}

// NewStore constructs Store. Date columns are read as civil dates in loc.
func NewStore(pool *pgxpool.Pool, loc *time.Location, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{pool: pool, loc: loc, batchSize: batchSize}
}

const loadSQL = `
SELECT id, COALESCE(seller_sku, ''), stock, in_transit_stock,
	daily_average_sales_period_a, daily_average_sales_period_b,
	stock_out_date_period_a, stock_out_date_period_b,
	stock_out_factor_period_a, stock_out_factor_period_b,
	final_daily_average_per_day, lead_time, reorder_point,
	initial_stock_prediction, start_date, fifteen_day_requirement,
	next_procurement, next_procurement_date, next_procurement_period,
	next_procurement_signature
FROM product_variants
ORDER BY id`

// Load reads every variant.
func (s *Store) Load(ctx context.Context) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("catalog store not initialised")
	}
	rows, err := s.pool.Query(ctx, loadSQL)
	if err != nil {
		return nil, shared.Persistence("catalog: load variants", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.VariantID, &r.SellerSKU, &r.Stock, &r.InTransitStock,
			&r.DailyAverageSalesPeriodA, &r.DailyAverageSalesPeriodB,
			&r.StockOutDatePeriodA, &r.StockOutDatePeriodB,
			&r.StockOutFactorPeriodA, &r.StockOutFactorPeriodB,
			&r.FinalDailyAveragePerDay, &r.LeadTime, &r.ReorderPoint,
			&r.InitialStockPrediction, &r.StartDate, &r.FifteenDayRequirement,
			&r.NextProcurement, &r.NextProcurementDate, &r.NextProcurementPeriod,
			&r.NextProcurementSignature,
		); err != nil {
			return nil, shared.Persistence("catalog: scan variant", err)
		}
		r.StockOutDatePeriodA = s.civil(r.StockOutDatePeriodA)
		r.StockOutDatePeriodB = s.civil(r.StockOutDatePeriodB)
		r.StartDate = s.civil(r.StartDate)
		r.NextProcurementDate = s.civil(r.NextProcurementDate)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("catalog: iterate variants", err)
	}
	return records, nil
}

// Apply writes updates in chunks of the configured batch size. Each chunk
// commits on its own; an error leaves earlier chunks applied. It returns the
// number of updates written.
func (s *Store) Apply(ctx context.Context, updates []Update) (int, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("catalog store not initialised")
	}
	written := 0
	for start := 0; start < len(updates); start += s.batchSize {
		end := min(start+s.batchSize, len(updates))
		chunk := updates[start:end]
		n, err := s.applyChunk(ctx, chunk)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (s *Store) applyChunk(ctx context.Context, chunk []Update) (int, error) {
	batch := &pgx.Batch{}
	for _, u := range chunk {
		if u.Empty() {
			continue
		}
		sql, args := updateStatement(u)
		batch.Queue(sql, args...)
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, shared.Persistence("catalog: apply batch", err)
	}
	return batch.Len(), nil
}

func updateStatement(u Update) (string, []any) {
	fields := u.Fields()
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		v, _ := u.Value(f)
		sets = append(sets, fmt.Sprintf("%s = $%d", f, i+1))
		args = append(args, v)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, u.VariantID)
	return fmt.Sprintf("UPDATE product_variants SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args
}

func (s *Store) civil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := periods.Civil(*t, s.loc)
	return &d
}
