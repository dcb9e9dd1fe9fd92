package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Repository persists movement snapshots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const upsertSnapshotSQL = `
INSERT INTO movement_snapshots (
	source, period_signature, period_key, period_start, period_end,
	header, totals, rows, warehouse_count, last_loaded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (source, period_signature) DO UPDATE SET
	period_key = EXCLUDED.period_key,
	period_start = EXCLUDED.period_start,
	period_end = EXCLUDED.period_end,
	header = EXCLUDED.header,
	totals = EXCLUDED.totals,
	rows = EXCLUDED.rows,
	warehouse_count = EXCLUDED.warehouse_count,
	last_loaded_at = EXCLUDED.last_loaded_at`

// UpsertSnapshot replaces the snapshot identified by source and signature.
func (r *Repository) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	totals, err := json.Marshal(snap.Totals)
	if err != nil {
		return fmt.Errorf("inventory: encode totals: %w", err)
	}
	rows, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("inventory: encode rows: %w", err)
	}
	header := snap.Header
	if len(header) == 0 {
		header = json.RawMessage("null")
	}
	_, err = r.pool.Exec(ctx, upsertSnapshotSQL,
		snap.Source, snap.PeriodSignature, nullKey(snap.PeriodKey), snap.PeriodStart, snap.PeriodEnd,
		[]byte(header), totals, rows, snap.WarehouseCount, snap.LastLoadedAt,
	)
	return shared.Persistence("inventory: upsert snapshot", err)
}

const getSnapshotSQL = `
SELECT source, period_signature, COALESCE(period_key, ''), period_start, period_end,
	header, totals, rows, warehouse_count, last_loaded_at
FROM movement_snapshots
WHERE source = $1 AND period_signature = $2`

// GetSnapshot loads a snapshot; shared.ErrNotFound when absent.
func (r *Repository) GetSnapshot(ctx context.Context, source, signature string) (Snapshot, error) {
	if r == nil || r.pool == nil {
		return Snapshot{}, errors.New("inventory repository not initialised")
	}
	var (
		snap                      Snapshot
		key                       string
		header, totals, rowsBytes []byte
	)
	err := r.pool.QueryRow(ctx, getSnapshotSQL, source, signature).Scan(
		&snap.Source, &snap.PeriodSignature, &key, &snap.PeriodStart, &snap.PeriodEnd,
		&header, &totals, &rowsBytes, &snap.WarehouseCount, &snap.LastLoadedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("inventory: snapshot %s/%s: %w", source, signature, shared.ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, shared.Persistence("inventory: get snapshot", err)
	}
	snap.PeriodKey = periods.Key(key)
	snap.Header = json.RawMessage(header)
	if len(totals) > 0 {
		if err := json.Unmarshal(totals, &snap.Totals); err != nil {
			return Snapshot{}, fmt.Errorf("inventory: decode totals: %w", err)
		}
	}
	if len(rowsBytes) > 0 {
		if err := json.Unmarshal(rowsBytes, &snap.Rows); err != nil {
			return Snapshot{}, fmt.Errorf("inventory: decode rows: %w", err)
		}
	}
	return snap, nil
}

func nullKey(key periods.Key) any {
	if key == "" {
		return nil
	}
	return string(key)
}
