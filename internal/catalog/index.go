package catalog

import (
	"sort"

	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Index is an immutable per-run view of the catalog keyed by normalised SKU.
type Index struct {
	records []Record
	bySKU   map[string][]int
	skus    []string
}

// NewIndex builds the index. Records without a SKU are kept in Records but
// are unreachable by SKU.
func NewIndex(records []Record) *Index {
	idx := &Index{
		records: make([]Record, len(records)),
		bySKU:   make(map[string][]int),
	}
	copy(idx.records, records)
	for i, rec := range idx.records {
		sku := shared.NormalizeSKU(rec.SellerSKU)
		if sku == "" {
			continue
		}
		if _, seen := idx.bySKU[sku]; !seen {
			idx.skus = append(idx.skus, sku)
		}
		idx.bySKU[sku] = append(idx.bySKU[sku], i)
	}
	sort.Strings(idx.skus)
	return idx
}

// Len returns the number of records.
func (i *Index) Len() int {
	return len(i.records)
}

// Records returns a copy of every record.
func (i *Index) Records() []Record {
	out := make([]Record, len(i.records))
	copy(out, i.records)
	return out
}

// BySKU returns the records sharing a normalised SKU.
func (i *Index) BySKU(sku string) []Record {
	positions := i.bySKU[shared.NormalizeSKU(sku)]
	out := make([]Record, 0, len(positions))
	for _, pos := range positions {
		out = append(out, i.records[pos])
	}
	return out
}

// Has reports whether any record carries sku.
func (i *Index) Has(sku string) bool {
	_, ok := i.bySKU[shared.NormalizeSKU(sku)]
	return ok
}

// SKUs lists the distinct normalised SKUs in ascending order.
func (i *Index) SKUs() []string {
	out := make([]string, len(i.skus))
	copy(out, i.skus)
	return out
}
