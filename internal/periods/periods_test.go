package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	return loc
}

func TestResolveFirstHalfUsesPreviousMonthB(t *testing.T) {
	loc := mustLocation(t)
	r := NewResolver(loc, nil)

	pair := r.Resolve(time.Date(2024, time.March, 6, 10, 0, 0, 0, loc))

	require.Equal(t, KeyA, pair.A.Key)
	require.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, loc), pair.A.Start)
	require.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, loc), pair.A.End)
	require.Equal(t, 15, pair.A.Days)
	require.Equal(t, 6, pair.A.ElapsedDays)
	require.Equal(t, "movement-2024-03-a", pair.A.Signature)

	require.Equal(t, KeyB, pair.B.Key)
	require.Equal(t, time.Date(2024, time.February, 16, 0, 0, 0, 0, loc), pair.B.Start)
	require.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, loc), pair.B.End)
	require.Equal(t, 14, pair.B.Days)
	require.Equal(t, 14, pair.B.ElapsedDays)
	require.Equal(t, "movement-2024-02-b", pair.B.Signature)
}

func TestResolveSecondHalfUsesCurrentMonth(t *testing.T) {
	loc := mustLocation(t)
	r := NewResolver(loc, nil)

	pair := r.Resolve(time.Date(2026, time.April, 20, 8, 0, 0, 0, loc))

	require.Equal(t, 15, pair.A.ElapsedDays)
	require.Equal(t, time.Date(2026, time.April, 16, 0, 0, 0, 0, loc), pair.B.Start)
	require.Equal(t, time.Date(2026, time.April, 30, 0, 0, 0, 0, loc), pair.B.End)
	require.Equal(t, 15, pair.B.Days)
	require.Equal(t, 5, pair.B.ElapsedDays)
}

func TestResolveJanuaryRollsBackYear(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	pair := r.Resolve(time.Date(2025, time.January, 15, 23, 0, 0, 0, time.UTC))

	require.Equal(t, "movement-2024-12-b", pair.B.Signature)
	require.Equal(t, 31, pair.B.End.Day())
	require.Equal(t, 16, pair.B.Days)
}

func TestResolveConvertsToBusinessTimezone(t *testing.T) {
	loc := mustLocation(t)
	r := NewResolver(loc, nil)

	// 03:00 UTC on the 16th is still the 15th in Mexico City.
	pair := r.Resolve(time.Date(2026, time.October, 16, 3, 0, 0, 0, time.UTC))

	require.Equal(t, "movement-2026-09-b", pair.B.Signature)
	require.Equal(t, 15, pair.A.ElapsedDays)
}

func TestDaysInMonth(t *testing.T) {
	require.Equal(t, 29, DaysInMonth(2024, time.February))
	require.Equal(t, 28, DaysInMonth(2025, time.February))
	require.Equal(t, 30, DaysInMonth(2025, time.September))
	require.Equal(t, 31, DaysInMonth(2025, time.December))
}

func TestDivisorFallbacks(t *testing.T) {
	require.Equal(t, 6, Window{ElapsedDays: 6, Days: 15}.Divisor())
	require.Equal(t, 15, Window{Days: 15}.Divisor())
	require.Equal(t, 30, Window{}.Divisor())
}

func TestWindowContains(t *testing.T) {
	loc := mustLocation(t)
	r := NewResolver(loc, nil)
	pair := r.Resolve(time.Date(2026, time.October, 10, 12, 0, 0, 0, loc))

	require.True(t, pair.A.Contains(time.Date(2026, time.October, 1, 0, 0, 0, 0, loc)))
	require.True(t, pair.A.Contains(time.Date(2026, time.October, 15, 23, 59, 0, 0, loc)))
	require.False(t, pair.A.Contains(time.Date(2026, time.October, 16, 0, 0, 0, 0, loc)))
}

func TestHorizonDropsEndedWindowsAndSorts(t *testing.T) {
	loc := mustLocation(t)
	r := NewResolver(loc, NewLabeler("es"))

	windows := r.Horizon(time.Date(2026, time.October, 20, 9, 0, 0, 0, loc), 2)

	require.Len(t, windows, 3)
	require.Equal(t, "procurement-2026-10-b", windows[0].Signature)
	require.Equal(t, "procurement-2026-11-a", windows[1].Signature)
	require.Equal(t, "procurement-2026-11-b", windows[2].Signature)
	require.Equal(t, "16–31 oct 2026", windows[0].Label)
	require.Equal(t, "1–15 nov 2026", windows[1].Label)
	for i := 1; i < len(windows); i++ {
		require.True(t, windows[i-1].Start.Before(windows[i].Start))
	}
}

func TestHorizonDefaultMonths(t *testing.T) {
	r := NewResolver(time.UTC, nil)

	windows := r.Horizon(time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC), 0)

	require.Len(t, windows, DefaultHorizonMonths*2)
	require.Equal(t, "procurement-2027-11-b", windows[len(windows)-1].Signature)
}

func TestCustomWindow(t *testing.T) {
	r := NewResolver(time.UTC, nil)
	start := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)

	w, err := r.Custom(start, end, time.Date(2026, time.September, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "movement-custom-2026-09-01-2026-09-10", w.Signature)
	require.Equal(t, 10, w.Days)
	require.Equal(t, 5, w.ElapsedDays)

	_, err = r.Custom(end, start, end)
	require.Error(t, err)
}

func TestLabelerLocales(t *testing.T) {
	w := Window{
		Start: time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC),
	}
	require.Equal(t, "1–15 ene 2027", NewLabeler("es-MX").Label(w))
	require.Equal(t, "1–15 jan 2027", NewLabeler("en").Label(w))
	require.Equal(t, "1–15 ene 2027", NewLabeler("not a locale").Label(w))
}

func TestParseDate(t *testing.T) {
	loc := mustLocation(t)
	d, err := ParseDate("2026-02-28", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, loc), d)

	_, err = ParseDate("28/02/2026", loc)
	require.Error(t, err)
}

func TestCivilKeepsCalendarDay(t *testing.T) {
	loc := mustLocation(t)
	scanned := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

	d := Civil(scanned, loc)
	require.Equal(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, loc), d)
	require.Equal(t, 9, DateOf(d, loc).Day())
}

func TestSameDate(t *testing.T) {
	a := time.Date(2026, time.May, 2, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, time.May, 2, 18, 30, 0, 0, time.UTC)
	c := a.AddDate(0, 0, 1)

	require.True(t, SameDate(nil, nil))
	require.True(t, SameDate(&a, &b))
	require.False(t, SameDate(&a, &c))
	require.False(t, SameDate(&a, nil))
}

func TestLabelerPortugueseMonths(t *testing.T) {
	w := Window{
		Start: time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.October, 31, 0, 0, 0, 0, time.UTC),
	}
	require.Equal(t, "16–31 out 2026", NewLabeler("pt-BR").Label(w))
	require.Equal(t, "pt", NewLabeler("pt-BR").Locale().String())
}
