package plan

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/catalog"
	"github.com/odyssey-erp/replenishment/internal/periods"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

// Plan is a scheduled procurement for one SKU.
type Plan struct {
	SKU       string
	Date      time.Time
	Window    periods.Window
	Quantity  float64
	LeadTime  int
	VariantID int64
}

// PlanView is the wire form of a Plan.
type PlanView struct {
	SKU       string  `json:"sku"`
	Date      string  `json:"date"`
	Period    string  `json:"period"`
	Signature string  `json:"signature"`
	Quantity  float64 `json:"quantity"`
	LeadTime  int     `json:"leadTime"`
}

func (p Plan) view() PlanView {
	return PlanView{
		SKU:       p.SKU,
		Date:      p.Date.Format(periods.DateLayout),
		Period:    p.Window.Label,
		Signature: p.Window.Signature,
		Quantity:  p.Quantity,
		LeadTime:  p.LeadTime,
	}
}

// Schedule returns the earliest plan per SKU, sorted by date then SKU. A plan
// date is the window start minus the whole lead-time days and is never before today.
func Schedule(records []catalog.Record, windows []periods.Window, today time.Time) []Plan {
	var candidates []Plan
	for _, rec := range records {
		sku := shared.NormalizeSKU(rec.SellerSKU)
		if sku == "" || rec.NextProcurement == nil || *rec.NextProcurement <= 0 {
			continue
		}
		lead := leadDays(rec.LeadTime)
		for _, w := range windows {
			date := w.Start.AddDate(0, 0, -lead)
			if date.Before(today) {
				continue
			}
			candidates = append(candidates, Plan{
				SKU:       sku,
				Date:      date,
				Window:    w,
				Quantity:  *rec.NextProcurement,
				LeadTime:  lead,
				VariantID: rec.VariantID,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].Date.Equal(candidates[j].Date) {
			return candidates[i].Date.Before(candidates[j].Date)
		}
		return candidates[i].SKU < candidates[j].SKU
	})
	seen := make(map[string]struct{})
	plans := make([]Plan, 0)
	for _, p := range candidates {
		if _, ok := seen[p.SKU]; ok {
			continue
		}
		seen[p.SKU] = struct{}{}
		plans = append(plans, p)
	}
	return plans
}

func leadDays(leadTime *float64) int {
	if leadTime == nil {
		return 0
	}
	lt := *leadTime
	if math.IsNaN(lt) || math.IsInf(lt, 0) || lt < 0 {
		return 0
	}
	return int(math.Floor(lt))
}

// ScheduleResult reports a scheduler run.
type ScheduleResult struct {
	Horizon         int        `json:"horizonWindows"`
	Plans           []PlanView `json:"plans"`
	DueToday        []PlanView `json:"dueToday"`
	VariantsUpdated int        `json:"variantsUpdated"`
	VariantsCleared int        `json:"variantsCleared"`
}

// Scheduler projects procurement dates over the horizon.
type Scheduler struct {
	store    VariantStore
	resolver *periods.Resolver
	months   int
	logger   *zap.Logger
	clock    func() time.Time
}

// NewScheduler constructs Scheduler.
func NewScheduler(store VariantStore, resolver *periods.Resolver, horizonMonths int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{store: store, resolver: resolver, months: horizonMonths, logger: logger, clock: time.Now}
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// Run schedules every SKU and writes date, period label and signature to the
// variants whose values changed. Variants without a plan are cleared.
func (s *Scheduler) Run(ctx context.Context) (ScheduleResult, error) {
	now := s.clock()
	today := s.resolver.Today(now)
	windows := s.resolver.Horizon(now, s.months)

	records, err := s.store.Load(ctx)
	if err != nil {
		return ScheduleResult{}, err
	}
	idx := catalog.NewIndex(records)
	plans := Schedule(idx.Records(), windows, today)

	result := ScheduleResult{
		Horizon:  len(windows),
		Plans:    make([]PlanView, 0, len(plans)),
		DueToday: make([]PlanView, 0),
	}
	bySKU := make(map[string]Plan, len(plans))
	for _, p := range plans {
		bySKU[p.SKU] = p
		result.Plans = append(result.Plans, p.view())
		if !p.Date.After(today) {
			result.DueToday = append(result.DueToday, p.view())
		}
	}

	var updates []catalog.Update
	cleared := 0
	for _, rec := range idx.Records() {
		var (
			date             *time.Time
			label, signature *string
		)
		if p, ok := bySKU[shared.NormalizeSKU(rec.SellerSKU)]; ok {
			d, l, sig := p.Date, p.Window.Label, p.Window.Signature
			date, label, signature = &d, &l, &sig
		}
		u := catalog.NewUpdate(rec.VariantID)
		if !periods.SameDate(rec.NextProcurementDate, date) {
			u.SetDate(catalog.FieldNextProcurementDate, date)
		}
		if !sameText(rec.NextProcurementPeriod, label) {
			u.SetText(catalog.FieldNextProcurementPeriod, label)
		}
		if !sameText(rec.NextProcurementSignature, signature) {
			u.SetText(catalog.FieldNextProcurementSignature, signature)
		}
		if u.Empty() {
			continue
		}
		if date == nil {
			cleared++
		}
		updates = append(updates, u)
	}
	written, err := s.store.Apply(ctx, updates)
	result.VariantsUpdated = written
	result.VariantsCleared = cleared
	if err != nil {
		return result, err
	}
	s.logger.Info("procurement schedule projected",
		zap.Int("plans", len(result.Plans)),
		zap.Int("due_today", len(result.DueToday)),
		zap.Int("updated", result.VariantsUpdated),
		zap.Int("cleared", result.VariantsCleared),
	)
	return result, nil
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
