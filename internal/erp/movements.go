package erp

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

var (
	warehouseListPaths = []string{"warehouses", "data.warehouses", "bodegas", "data"}
	warehouseNamePaths = []string{"name", "warehouse", "warehouse_name", "nombre", "bodega"}
	productListPaths   = []string{"products", "items", "productos", "rows"}
)

var errNoWarehouses = errors.New("no warehouse list in movement payload")

// FetchMovements loads the movement summary for [start, end] and keeps the rows of warehouse.
func (c *Client) FetchMovements(ctx context.Context, start, end time.Time, warehouse string) (inventory.Movement, error) {
	creds, err := c.creds.Resolve(ctx)
	if err != nil {
		return inventory.Movement{}, err
	}
	const op = "fetch movements"
	query := url.Values{}
	query.Set("start_date", start.Format(periods.DateLayout))
	query.Set("end_date", end.Format(periods.DateLayout))
	payload, err := c.getJSON(ctx, op, creds, c.cfg.MovementPath, query)
	if err != nil {
		return inventory.Movement{}, err
	}
	movement, err := parseMovements(payload, warehouse)
	if err != nil {
		raw, _ := json.Marshal(payload)
		return inventory.Movement{}, shared.NewUpstreamError(op, 200, raw, err)
	}
	return movement, nil
}

// parseMovements locates the warehouse list, filters it to target and flattens product rows.
func parseMovements(payload any, target string) (inventory.Movement, error) {
	var (
		warehouses []any
		header     map[string]any
	)
	switch v := payload.(type) {
	case []any:
		warehouses = v
	case map[string]any:
		list, path, ok := findWarehouseList(v)
		if !ok {
			return inventory.Movement{}, errNoWarehouses
		}
		warehouses = list
		header = headerWithout(v, path)
	default:
		return inventory.Movement{}, errNoWarehouses
	}

	movement := inventory.Movement{
		Rows:           make([]inventory.MovementRow, 0),
		WarehouseCount: len(warehouses),
	}
	if header != nil {
		raw, err := json.Marshal(header)
		if err == nil {
			movement.Header = raw
		}
	}
	want := normalizeName(target)
	for _, entry := range warehouses {
		wh, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := pickString(wh, warehouseNamePaths...)
		if normalizeName(name) != want {
			continue
		}
		products, _ := pickList(wh, productListPaths...)
		for _, p := range products {
			product, ok := p.(map[string]any)
			if !ok {
				continue
			}
			movement.Rows = append(movement.Rows, inventory.MovementRow{
				WarehouseName:  name,
				ProductName:    pickString(product, "name", "product", "product_name", "nombre", "descripcion"),
				SKU:            pickString(product, "sku", "code", "codigo", "seller_sku"),
				Units:          pickString(product, "units", "unit", "unidad"),
				OpeningBalance: pickNumber(product, "opening_balance", "initial_balance", "saldo_inicial"),
				QtyIn:          pickNumber(product, "qty_in", "in", "entradas"),
				QtyOut:         pickNumber(product, "qty_out", "out", "salidas"),
				ClosingBalance: pickNumber(product, "closing_balance", "final_balance", "saldo_final"),
			})
		}
	}
	return movement, nil
}

func findWarehouseList(m map[string]any) ([]any, string, bool) {
	for _, path := range warehouseListPaths {
		if list, ok := pickList(m, path); ok {
			return list, path, true
		}
	}
	return nil, "", false
}

// headerWithout copies the top level of m minus the branch holding the warehouse list.
func headerWithout(m map[string]any, path string) map[string]any {
	top := strings.SplitN(path, ".", 2)[0]
	header := make(map[string]any, len(m))
	for k, v := range m {
		if k == top {
			continue
		}
		header[k] = v
	}
	return header
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
