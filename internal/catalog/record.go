// Package catalog reads and writes the demand fields of product variants.
// The variants themselves belong to the external catalog; nothing here
// creates or deletes them.
package catalog

import (
	"sort"
	"time"
)

// Record is the demand view of one product variant.
type Record struct {
	VariantID                int64
	SellerSKU                string
	Stock                    *float64
	InTransitStock           *float64
	DailyAverageSalesPeriodA *float64
	DailyAverageSalesPeriodB *float64
	StockOutDatePeriodA      *time.Time
	StockOutDatePeriodB      *time.Time
	StockOutFactorPeriodA    *float64
	StockOutFactorPeriodB    *float64
	FinalDailyAveragePerDay  *float64
	LeadTime                 *float64
	ReorderPoint             *float64
	InitialStockPrediction   *float64
	StartDate                *time.Time
	FifteenDayRequirement    *float64
	NextProcurement          *float64
	NextProcurementDate      *time.Time
	NextProcurementPeriod    *string
	NextProcurementSignature *string
}

// Field names a writable column of product_variants.
type Field string

// Writable fields, grouped by the stage that owns them.
const (
	FieldDailyAverageA   Field = "daily_average_sales_period_a"
	FieldDailyAverageB   Field = "daily_average_sales_period_b"
	FieldStockOutFactorA Field = "stock_out_factor_period_a"
	FieldStockOutFactorB Field = "stock_out_factor_period_b"
	FieldFinalAverage    Field = "final_daily_average_per_day"
	FieldReorderPoint    Field = "reorder_point"

	FieldInTransitStock Field = "in_transit_stock"

	FieldNextProcurement Field = "next_procurement"

	FieldNextProcurementDate      Field = "next_procurement_date"
	FieldNextProcurementPeriod    Field = "next_procurement_period"
	FieldNextProcurementSignature Field = "next_procurement_signature"
)

// Update assigns new values to some fields of one variant.
type Update struct {
	VariantID int64
	values    map[Field]any
}

// NewUpdate starts an empty update for variantID.
func NewUpdate(variantID int64) Update {
	return Update{VariantID: variantID, values: make(map[Field]any)}
}

// SetFloat assigns a nullable number.
func (u Update) SetFloat(field Field, v *float64) Update {
	u.values[field] = copyFloat(v)
	return u
}

// SetDate assigns a nullable date.
func (u Update) SetDate(field Field, v *time.Time) Update {
	if v == nil {
		u.values[field] = (*time.Time)(nil)
		return u
	}
	d := *v
	u.values[field] = &d
	return u
}

// SetText assigns a nullable string.
func (u Update) SetText(field Field, v *string) Update {
	if v == nil {
		u.values[field] = (*string)(nil)
		return u
	}
	s := *v
	u.values[field] = &s
	return u
}

// Empty reports whether the update assigns nothing.
func (u Update) Empty() bool {
	return len(u.values) == 0
}

// Fields returns the assigned fields in a stable order.
func (u Update) Fields() []Field {
	fields := make([]Field, 0, len(u.values))
	for f := range u.values {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Value returns the value assigned to field.
func (u Update) Value(field Field) (any, bool) {
	v, ok := u.values[field]
	return v, ok
}

// ApplyTo copies the update into r.
func (u Update) ApplyTo(r *Record) {
	for field, v := range u.values {
		switch field {
		case FieldDailyAverageA:
			r.DailyAverageSalesPeriodA = v.(*float64)
		case FieldDailyAverageB:
			r.DailyAverageSalesPeriodB = v.(*float64)
		case FieldStockOutFactorA:
			r.StockOutFactorPeriodA = v.(*float64)
		case FieldStockOutFactorB:
			r.StockOutFactorPeriodB = v.(*float64)
		case FieldFinalAverage:
			r.FinalDailyAveragePerDay = v.(*float64)
		case FieldReorderPoint:
			r.ReorderPoint = v.(*float64)
		case FieldInTransitStock:
			r.InTransitStock = v.(*float64)
		case FieldNextProcurement:
			r.NextProcurement = v.(*float64)
		case FieldNextProcurementDate:
			r.NextProcurementDate = v.(*time.Time)
		case FieldNextProcurementPeriod:
			r.NextProcurementPeriod = v.(*string)
		case FieldNextProcurementSignature:
			r.NextProcurementSignature = v.(*string)
		}
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
