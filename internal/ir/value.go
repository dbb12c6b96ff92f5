package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a typed property value held in a component column.
// The zero Value has no type and is only used as "absent".
type Value struct {
	typ PropertyType
	num float64
	str string
	b   bool
	ref uint64
}

// Number creates a number value.
func Number(f float64) Value { return Value{typ: TypeNumber, num: f} }

// String creates a string value.
func String(s string) Value { return Value{typ: TypeString, str: s} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{typ: TypeBoolean, b: b} }

// Ref creates an entity-reference value. 0 is the "no entity" reference.
func Ref(id uint64) Value { return Value{typ: TypeEntity, ref: id} }

// Zero returns the zero value for a property type.
func Zero(t PropertyType) Value {
	return Value{typ: t}
}

// Type returns the value's property type ("" for the zero Value).
func (v Value) Type() PropertyType { return v.typ }

// Float returns the numeric payload.
func (v Value) Float() float64 { return v.num }

// Text returns the string payload.
func (v Value) Text() string { return v.str }

// Truth returns the boolean payload.
func (v Value) Truth() bool { return v.b }

// Entity returns the entity-reference payload.
func (v Value) Entity() uint64 { return v.ref }

// Interface returns the value as a plain Go scalar.
func (v Value) Interface() any {
	switch v.typ {
	case TypeNumber:
		return v.num
	case TypeString:
		return v.str
	case TypeBoolean:
		return v.b
	case TypeEntity:
		return v.ref
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.typ {
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case TypeString:
		return strconv.Quote(v.str)
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	case TypeEntity:
		return "#" + strconv.FormatUint(v.ref, 10)
	default:
		return "<absent>"
	}
}

// MarshalJSON encodes the value as its plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Coerce converts a raw Go value into a Value of type t.
// Integers are accepted for numbers; entity references accept non-negative
// whole numbers. Any other mismatch is an error naming both types.
func Coerce(t PropertyType, raw any) (Value, error) {
	if v, ok := raw.(Value); ok {
		if v.typ == t {
			return v, nil
		}
		return Value{}, fmt.Errorf("expected %s, got %s", t, v.typ)
	}

	switch t {
	case TypeNumber:
		f, ok := toFloat(raw)
		if !ok {
			return Value{}, fmt.Errorf("expected number, got %s", describe(raw))
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("number must be finite, got %v", f)
		}
		return Number(f), nil
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected string, got %s", describe(raw))
		}
		return String(s), nil
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("expected boolean, got %s", describe(raw))
		}
		return Bool(b), nil
	case TypeEntity:
		if u, ok := raw.(uint64); ok {
			return Ref(u), nil
		}
		f, ok := toFloat(raw)
		if !ok || f < 0 || f != math.Trunc(f) || f >= float64(math.MaxUint64) {
			return Value{}, fmt.Errorf("expected entity reference, got %s", describe(raw))
		}
		return Ref(uint64(f)), nil
	default:
		return Value{}, fmt.Errorf("unknown property type %q", t)
	}
}

// DefaultFor returns the default value declared on p, or the type's zero value.
func DefaultFor(p Property) (Value, error) {
	if p.Default == nil {
		return Zero(p.Type), nil
	}
	return Coerce(p.Type, p.Default)
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func describe(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		if _, ok := toFloat(raw); ok {
			return "number"
		}
		return fmt.Sprintf("%T", raw)
	}
}
