// Package periods resolves the semi-monthly accounting windows used by the
// replenishment stages. All day arithmetic happens on civil dates in the
// business timezone.
package periods

import (
	"fmt"
	"sort"
	"time"
)

// Key identifies the half of the month a window covers.
type Key string

const (
	// KeyA is day 1 through day 15.
	KeyA Key = "A"
	// KeyB is day 16 through the last day of the month.
	KeyB Key = "B"
)

// Signature kinds.
const (
	KindMovement    = "movement"
	KindProcurement = "procurement"
)

// DefaultHorizonMonths is the forward horizon used by the scheduler.
const DefaultHorizonMonths = 14

const firstHalfLastDay = 15

// Window is one semi-monthly period.
type Window struct {
	Key         Key       `json:"key"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Signature   string    `json:"signature"`
	Days        int       `json:"days"`
	ElapsedDays int       `json:"elapsedDays"`
	Label       string    `json:"label,omitempty"`
}

// Pair holds the two windows velocity is computed from.
type Pair struct {
	A Window `json:"periodA"`
	B Window `json:"periodB"`
}

// Resolver computes windows in a fixed civil timezone.
type Resolver struct {
	loc    *time.Location
	labels *Labeler
}

// NewResolver constructs a Resolver. A nil location means UTC.
func NewResolver(loc *time.Location, labels *Labeler) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc, labels: labels}
}

// Location returns the business timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Today returns the civil date of now in the business timezone.
func (r *Resolver) Today(now time.Time) time.Time {
	return DateOf(now, r.loc)
}

// Resolve returns Period A and Period B for the period containing or most
// recently preceding now. When day <= 15, B is the previous month's second half.
func (r *Resolver) Resolve(now time.Time) Pair {
	today := r.Today(now)
	year, month, day := today.Date()
	a := r.window(KindMovement, KeyA, year, month, today)
	var b Window
	if day <= firstHalfLastDay {
		prev := time.Date(year, month, 1, 0, 0, 0, 0, r.loc).AddDate(0, -1, 0)
		b = r.window(KindMovement, KeyB, prev.Year(), prev.Month(), today)
	} else {
		b = r.window(KindMovement, KeyB, year, month, today)
	}
	return Pair{A: a, B: b}
}

// ForKey returns the window of the pair matching key.
func (p Pair) ForKey(key Key) Window {
	if key == KeyB {
		return p.B
	}
	return p.A
}

// Horizon produces A/B windows for months starting at the reference month,
// dropping windows that ended before today, sorted by start.
func (r *Resolver) Horizon(now time.Time, months int) []Window {
	if months <= 0 {
		months = DefaultHorizonMonths
	}
	today := r.Today(now)
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, r.loc)
	windows := make([]Window, 0, months*2)
	for i := 0; i < months; i++ {
		m := first.AddDate(0, i, 0)
		for _, key := range []Key{KeyA, KeyB} {
			w := r.window(KindProcurement, key, m.Year(), m.Month(), today)
			if w.End.Before(today) {
				continue
			}
			w.Label = r.labels.Label(w)
			windows = append(windows, w)
		}
	}
	sort.SliceStable(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})
	return windows
}

// Custom builds an ad-hoc window for an explicit date range.
func (r *Resolver) Custom(start, end, now time.Time) (Window, error) {
	start = DateOf(start, r.loc)
	end = DateOf(end, r.loc)
	if end.Before(start) {
		return Window{}, fmt.Errorf("periods: end %s before start %s", end.Format(DateLayout), start.Format(DateLayout))
	}
	w := Window{
		Start:     start,
		End:       end,
		Signature: fmt.Sprintf("%s-custom-%s-%s", KindMovement, start.Format(DateLayout), end.Format(DateLayout)),
		Days:      DaysBetween(start, end) + 1,
	}
	w.ElapsedDays = elapsed(w, r.Today(now))
	return w, nil
}

func (r *Resolver) window(kind string, key Key, year int, month time.Month, today time.Time) Window {
	dim := DaysInMonth(year, month)
	startDay, endDay := 1, min(firstHalfLastDay, dim)
	suffix := "a"
	if key == KeyB {
		startDay, endDay = firstHalfLastDay+1, dim
		suffix = "b"
	}
	w := Window{
		Key:       key,
		Start:     time.Date(year, month, startDay, 0, 0, 0, 0, r.loc),
		End:       time.Date(year, month, endDay, 0, 0, 0, 0, r.loc),
		Signature: fmt.Sprintf("%s-%04d-%02d-%s", kind, year, int(month), suffix),
		Days:      endDay - startDay + 1,
	}
	w.ElapsedDays = elapsed(w, today)
	return w
}

// elapsed counts days from start through today inclusive, clamped to the window.
func elapsed(w Window, today time.Time) int {
	if today.Before(w.Start) {
		return 0
	}
	if today.After(w.End) {
		return w.Days
	}
	return DaysBetween(w.Start, today) + 1
}

// Divisor is the averaging divisor: elapsed days, else total days, else 30; never below 1.
func (w Window) Divisor() int {
	d := w.ElapsedDays
	if d <= 0 {
		d = w.Days
	}
	if d <= 0 {
		d = 30
	}
	return max(d, 1)
}

// Contains reports whether the civil date of t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	d := DateOf(t, w.Start.Location())
	return !d.Before(w.Start) && !d.After(w.End)
}
