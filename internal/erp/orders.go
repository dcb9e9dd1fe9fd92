package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

var (
	orderListPaths  = []string{"data", "purchase_orders", "orders", "results"}
	totalCountPaths = []string{"total", "meta.total", "pagination.total", "count", "total_count"}
)

var statusAliases = map[string]procurement.Status{
	"unpaid":       procurement.StatusUnpaid,
	"pending":      procurement.StatusUnpaid,
	"open":         procurement.StatusUnpaid,
	"por_pagar":    procurement.StatusUnpaid,
	"draft_unpaid": procurement.StatusUnpaid,
	"paid":         procurement.StatusPaid,
	"pagado":       procurement.StatusPaid,
	"closed":       procurement.StatusPaid,
	"cancelled":    procurement.StatusCancelled,
	"canceled":     procurement.StatusCancelled,
	"void":         procurement.StatusCancelled,
	"anulado":      procurement.StatusCancelled,
}

var errNoOrderList = errors.New("no order list in purchase order payload")

// ListUnpaidOrders pages through the purchase order listing. Pages are fetched
// one at a time and paced by the client limiter; any failure aborts the listing.
// Reaching MaxPages before a short page or the reported total marks the result
// truncated.
func (c *Client) ListUnpaidOrders(ctx context.Context) (procurement.FetchResult, error) {
	creds, err := c.creds.Resolve(ctx)
	if err != nil {
		return procurement.FetchResult{}, err
	}
	var (
		result   procurement.FetchResult
		seen     int
		complete bool
	)
	for page := 1; page <= c.cfg.MaxPages && !complete; page++ {
		op := fmt.Sprintf("list purchase orders page %d", page)
		payload, err := c.getJSON(ctx, op, creds, c.cfg.PurchaseOrderPath, c.orderQuery(page))
		if err != nil {
			return procurement.FetchResult{}, err
		}
		rawOrders, total, err := parseOrderPage(payload)
		if err != nil {
			raw, _ := json.Marshal(payload)
			return procurement.FetchResult{}, shared.NewUpstreamError(op, 200, raw, err)
		}
		result.Pages++
		seen += len(rawOrders)
		for _, raw := range rawOrders {
			obj, ok := raw.(map[string]any)
			if !ok {
				result.Skipped++
				continue
			}
			order, ok := normalizeOrder(obj, c.cfg.Location)
			if !ok {
				result.Skipped++
				continue
			}
			result.Orders = append(result.Orders, order)
		}
		complete = len(rawOrders) < c.cfg.PageSize || (total >= 0 && seen >= total)
	}
	result.Truncated = !complete
	return result, nil
}

func (c *Client) orderQuery(page int) url.Values {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(c.cfg.PageSize))
	if c.cfg.StatusKey != "" {
		query.Set(c.cfg.StatusKey, c.cfg.StatusValue)
	}
	for _, key := range c.cfg.ExtraStatusKeys {
		if key = strings.TrimSpace(key); key != "" {
			query.Set(key, c.cfg.StatusValue)
		}
	}
	if c.cfg.Include != "" {
		query.Set("include", c.cfg.Include)
	}
	return query
}

// parseOrderPage returns the raw orders of a page and the reported total, or -1 when absent.
func parseOrderPage(payload any) ([]any, int, error) {
	switch v := payload.(type) {
	case []any:
		return v, -1, nil
	case map[string]any:
		list, ok := pickList(v, orderListPaths...)
		if !ok {
			return nil, 0, errNoOrderList
		}
		total := -1
		if raw, ok := pick(v, totalCountPaths...); ok {
			if n, ok := number(raw); ok {
				total = int(n)
			}
		}
		return list, total, nil
	default:
		return nil, 0, errNoOrderList
	}
}

// normalizeOrder maps one raw order. ok is false when the order has no id or no resolvable status.
func normalizeOrder(obj map[string]any, loc *time.Location) (procurement.Order, bool) {
	externalID := pickString(obj, "id", "external_id", "uuid", "number")
	if externalID == "" {
		return procurement.Order{}, false
	}
	order := procurement.Order{
		ExternalID:      externalID,
		VendorName:      pickString(obj, "vendor.name", "vendor_name", "supplier.name", "supplier_name", "proveedor"),
		DueDate:         pickDate(obj, loc, "due_date", "dueDate", "fecha_vencimiento"),
		Currency:        strings.ToUpper(pickString(obj, "currency.code", "currency", "moneda")),
		TotalAmount:     pickOptionalNumber(obj, "total", "total_amount", "amount"),
		RemainingAmount: pickOptionalNumber(obj, "balance", "remaining", "remaining_amount", "amount_due", "saldo"),
	}
	status, ok := resolveStatus(pickString(obj, "status", "payment_status", "estado"), order.TotalAmount, order.RemainingAmount)
	if !ok {
		return procurement.Order{}, false
	}
	order.Status = status
	order.Items = normalizeItems(obj)
	return order, true
}

// resolveStatus prefers the explicit status and falls back to the remaining balance.
func resolveStatus(raw string, total, remaining *float64) (procurement.Status, bool) {
	if status, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status, true
	}
	if remaining == nil {
		return "", false
	}
	if *remaining > 0 {
		return procurement.StatusUnpaid, true
	}
	if *remaining == 0 && total != nil && *total > 0 {
		return procurement.StatusPaid, true
	}
	return "", false
}

// normalizeItems drops lines without SKU or quantity and sums duplicate SKUs.
func normalizeItems(obj map[string]any) []procurement.Item {
	lines, _ := pickList(obj, "items", "lines", "products", "detalle")
	items := make([]procurement.Item, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, raw := range lines {
		line, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		sku := shared.NormalizeSKU(pickString(line, "sku", "code", "product.sku", "codigo"))
		if sku == "" {
			continue
		}
		qtyRaw, ok := pick(line, "quantity", "qty", "cantidad")
		if !ok {
			continue
		}
		qty, ok := number(qtyRaw)
		if !ok {
			continue
		}
		if pos, dup := index[sku]; dup {
			items[pos].Quantity += qty
			continue
		}
		index[sku] = len(items)
		items = append(items, procurement.Item{
			SKU:         sku,
			Quantity:    qty,
			UnitPrice:   pickOptionalNumber(line, "unit_price", "price", "precio"),
			Description: pickString(line, "description", "name", "product.name", "descripcion"),
		})
	}
	return items
}
