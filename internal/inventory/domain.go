package inventory

import (
	"encoding/json"
	"time"

	"github.com/odyssey-erp/replenishment/internal/periods"
)

// Snapshot sources.
const (
	SourceAuto   = "auto"
	SourceCustom = "custom"
)

// MovementRow is one product line of the target warehouse.
type MovementRow struct {
	WarehouseName  string  `json:"warehouseName"`
	ProductName    string  `json:"productName"`
	SKU            string  `json:"sku"`
	Units          string  `json:"units"`
	OpeningBalance float64 `json:"openingBalance"`
	QtyIn          float64 `json:"qtyIn"`
	QtyOut         float64 `json:"qtyOut"`
	ClosingBalance float64 `json:"closingBalance"`
}

// Totals sums the numeric columns of the retained rows.
type Totals struct {
	Opening float64 `json:"opening"`
	QtyIn   float64 `json:"qtyIn"`
	QtyOut  float64 `json:"qtyOut"`
	Closing float64 `json:"closing"`
}

// Movement is a normalised movement summary as returned by the ERP adapter.
type Movement struct {
	Header         json.RawMessage
	Rows           []MovementRow
	WarehouseCount int
}

// Totals computes the column sums of m.Rows.
func (m Movement) Totals() Totals {
	var t Totals
	for _, row := range m.Rows {
		t.Opening += row.OpeningBalance
		t.QtyIn += row.QtyIn
		t.QtyOut += row.QtyOut
		t.Closing += row.ClosingBalance
	}
	return t
}

// Snapshot is the stored movement summary of one window. Re-fetching replaces it whole.
type Snapshot struct {
	Source          string
	PeriodSignature string
	PeriodKey       periods.Key
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Header          json.RawMessage
	Totals          Totals
	Rows            []MovementRow
	WarehouseCount  int
	LastLoadedAt    time.Time
}

// PeriodResult reports the capture of one window.
type PeriodResult struct {
	Key       periods.Key `json:"key,omitempty"`
	Signature string      `json:"signature"`
	Start     string      `json:"start"`
	End       string      `json:"end"`
	OK        bool        `json:"ok"`
	Rows      int         `json:"rows"`
	Changed   bool        `json:"changed"`
	Totals    *Totals     `json:"totals,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// CaptureResult is the outcome of a capture run.
type CaptureResult struct {
	OK        bool           `json:"ok"`
	Warehouse string         `json:"warehouse"`
	Periods   []PeriodResult `json:"periods"`
}

// Succeeded counts windows captured without error.
func (r CaptureResult) Succeeded() int {
	n := 0
	for _, p := range r.Periods {
		if p.OK {
			n++
		}
	}
	return n
}

// Writes counts windows whose snapshot was stored.
func (r CaptureResult) Writes() int {
	n := 0
	for _, p := range r.Periods {
		if p.Changed {
			n++
		}
	}
	return n
}
