package erp

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/odyssey-erp/replenishment/internal/shared"
)

// pick returns the first present value among dotted paths.
func pick(m map[string]any, paths ...string) (any, bool) {
	for _, path := range paths {
		var cur any = m
		found := true
		for _, part := range strings.Split(path, ".") {
			obj, ok := cur.(map[string]any)
			if !ok {
				found = false
				break
			}
			cur, ok = obj[part]
			if !ok {
				found = false
				break
			}
		}
		if found && cur != nil {
			return cur, true
		}
	}
	return nil, false
}

func pickString(m map[string]any, paths ...string) string {
	v, ok := pick(m, paths...)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// number coerces v to a finite float. Strings may carry thousands separators.
func number(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		v = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	f = shared.Finite(f)
	return f, true
}

// pickNumber returns 0 when the value is absent or unparseable.
func pickNumber(m map[string]any, paths ...string) float64 {
	v, ok := pick(m, paths...)
	if !ok {
		return 0
	}
	f, _ := number(v)
	return f
}

func pickOptionalNumber(m map[string]any, paths ...string) *float64 {
	v, ok := pick(m, paths...)
	if !ok {
		return nil
	}
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

func pickList(m map[string]any, paths ...string) ([]any, bool) {
	for _, path := range paths {
		v, ok := pick(m, path)
		if !ok {
			continue
		}
		if list, ok := v.([]any); ok {
			return list, true
		}
	}
	return nil, false
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"}

func pickDate(m map[string]any, loc *time.Location, paths ...string) *time.Time {
	raw := pickString(m, paths...)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err != nil {
			continue
		}
		if layout == time.RFC3339 {
			t = t.In(loc)
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		return &d
	}
	return nil
}
