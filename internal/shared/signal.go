package shared

import (
	"encoding/json"
	"math"
)

// SignalKind tags the variant held by a Signal.
type SignalKind uint8

const (
	// SignalNone means there is no data to compute from.
	SignalNone SignalKind = iota
	// SignalValue means a usable number was computed.
	SignalValue
	// SignalInvalid means inputs existed but produced an unusable number.
	SignalInvalid
)

// Signal is the result of a replenishment formula: Value(x), NoSignal or Invalid(reason).
type Signal struct {
	kind   SignalKind
	value  float64
	reason string
}

// Value wraps a computed number. Non-finite numbers become Invalid.
func Value(v float64) Signal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Invalid("non-finite result")
	}
	return Signal{kind: SignalValue, value: v}
}

// NoSignal reports the absence of data.
func NoSignal() Signal {
	return Signal{kind: SignalNone}
}

// Invalid reports unusable inputs.
func Invalid(reason string) Signal {
	return Signal{kind: SignalInvalid, reason: reason}
}

// SignalFromPtr converts a nullable stored number.
func SignalFromPtr(v *float64) Signal {
	if v == nil {
		return NoSignal()
	}
	return Value(*v)
}

func (s Signal) Kind() SignalKind { return s.kind }

// Ok reports whether the signal carries a value.
func (s Signal) Ok() bool { return s.kind == SignalValue }

// Float returns the value and whether it is present.
func (s Signal) Float() (float64, bool) {
	return s.value, s.kind == SignalValue
}

// Or returns the value or fallback.
func (s Signal) Or(fallback float64) float64 {
	if s.kind == SignalValue {
		return s.value
	}
	return fallback
}

// Reason explains an Invalid signal.
func (s Signal) Reason() string { return s.reason }

// Ptr returns a pointer to the value; nil for NoSignal and Invalid, which are both stored as null.
func (s Signal) Ptr() *float64 {
	if s.kind != SignalValue {
		return nil
	}
	v := s.value
	return &v
}

// MarshalJSON renders values as numbers and everything else as null.
func (s Signal) MarshalJSON() ([]byte, error) {
	if s.kind != SignalValue {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}
