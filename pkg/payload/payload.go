// Package payload defines the tagged value variant carried by audit
// events and checkpoint fields. Callers supply arbitrary structured data
// (maps, lists, strings, integers, booleans, null); the core never trusts
// a raw interface{} beyond this boundary.
package payload

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindList
	KindMap
)

// Value is a tagged union over the value universe the core canonicalizes:
// map, list, string, int64, bool, and null. It deliberately excludes
// floating point — the core never canonicalizes floats; timestamps and
// sequence numbers are integers or strings.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value           { return Value{kind: KindNull} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func List(v []Value) Value  { return Value{kind: KindList, list: v} }
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind             { return v.kind }
func (v Value) Bool() bool             { return v.b }
func (v Value) Int() int64             { return v.i }
func (v Value) String() string         { return v.s }
func (v Value) List() []Value          { return v.list }
func (v Value) Map() map[string]Value  { return v.m }
func (v Value) IsNull() bool           { return v.kind == KindNull }

// From converts an arbitrary Go value (as produced by encoding/json
// unmarshaling into interface{}, or hand-built maps/slices/scalars) into
// a Value. Floats that are not integral, NaN, or Inf are rejected as
// canonicalization errors.
func From(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("payload: uint64 %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case float64:
		return intFromFloat(t)
	case json.Number:
		i, err := t.Int64()
		if err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("payload: invalid number %q: %w", t.String(), err)
		}
		return intFromFloat(f)
	case []any:
		out := make([]Value, len(t))
		for i, elem := range t {
			ev, err := From(elem)
			if err != nil {
				return Value{}, err
			}
			out[i] = ev
		}
		return List(out), nil
	case []Value:
		return List(t), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, elem := range t {
			ev, err := From(elem)
			if err != nil {
				return Value{}, err
			}
			out[k] = ev
		}
		return Map(out), nil
	case map[string]Value:
		return Map(t), nil
	case Value:
		return t, nil
	default:
		return Value{}, fmt.Errorf("payload: unsupported value type %T has no canonical form", v)
	}
}

func intFromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("payload: non-finite number %v has no canonical form", f)
	}
	if f != math.Trunc(f) {
		return Value{}, fmt.Errorf("payload: fractional number %v has no canonical form (core does not canonicalize floats)", f)
	}
	const maxSafe = 1 << 62
	if f > maxSafe || f < -maxSafe {
		return Value{}, fmt.Errorf("payload: integer %v outside representable range", f)
	}
	return Int(int64(f)), nil
}

// MustFrom is From, panicking on error. Intended for tests and literal
// construction of known-good payloads.
func MustFrom(v any) Value {
	val, err := From(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Native converts a Value back into a plain Go value (map[string]any,
// []any, string, int64, bool, nil) suitable for json.Marshal or for
// round-tripping through canonicalize.JCS.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}
