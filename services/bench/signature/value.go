// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signature

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/AleutianAI/AleutianBench/services/bench"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// String returns the tag used in canonical output.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a step parameter: a scalar, a string, an ordered list, or a
// nested parameter set. The zero Value is null.
//
// Value is immutable once built; the constructors copy their inputs.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    Params
}

// Params maps parameter names to values. Iteration order never affects the
// canonical form; keys are sorted on serialization.
type Params map[string]Value

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float. NaN is accepted here but rejected on canonicalization.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps an ordered list of values.
func List(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindList, list: cp}
}

// Map wraps a nested parameter set.
func Map(p Params) Value {
	cp := make(Params, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer and whether v is an int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns v as a float. Ints are widened.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns a copy of the list and whether v is a list.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// AsMap returns the nested parameters and whether v is a map.
func (v Value) AsMap() (Params, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Interface converts v back to plain Go values (nil, bool, int64, float64,
// string, []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		return v.m.Interface()
	default:
		return nil
	}
}

// String returns the canonical text of v, or a placeholder if it has none.
func (v Value) String() string {
	buf, err := appendValue(nil, v)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return string(buf)
}

// Equal reports whether two values have identical canonical forms.
func (v Value) Equal(o Value) bool {
	a, errA := appendValue(nil, v)
	b, errB := appendValue(nil, o)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// Keys returns the parameter names in canonical (sorted) order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Interface converts p to a plain map.
func (p Params) Interface() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

// ValueOf converts a plain Go value into a Value.
//
// Description:
//
//	Accepts nil, bool, signed and unsigned integers, floats, strings,
//	slices/arrays of accepted values, and maps with string keys. Value and
//	Params pass through unchanged.
//
// Outputs:
//
//	Value - The converted value.
//	error - Wraps bench.ErrUnserializableParameter for anything else
//	        (pointers, structs, funcs, channels, non-string map keys,
//	        uint64 values above MaxInt64).
func ValueOf(x any) (Value, error) {
	return valueOf(reflect.ValueOf(x), "$")
}

// ParamsOf converts a plain map into Params.
func ParamsOf(m map[string]any) (Params, error) {
	p := make(Params, len(m))
	for k, x := range m {
		v, err := valueOf(reflect.ValueOf(x), "$."+k)
		if err != nil {
			return nil, err
		}
		p[k] = v
	}
	return p, nil
}

func valueOf(rv reflect.Value, path string) (Value, error) {
	if !rv.IsValid() {
		return Null(), nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Null(), nil
		}
		return valueOf(rv.Elem(), path)
	}
	switch x := rv.Interface().(type) {
	case Value:
		return x, nil
	case Params:
		return Map(x), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %s: integer %d overflows int64", bench.ErrUnserializableParameter, path, u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return List(), nil
		}
		items := make([]Value, rv.Len())
		for i := range items {
			item, err := valueOf(rv.Index(i), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Value{kind: KindList, list: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("%w: %s: map key type %s", bench.ErrUnserializableParameter, path, rv.Type().Key())
		}
		p := make(Params, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			item, err := valueOf(iter.Value(), path+"."+k)
			if err != nil {
				return Value{}, err
			}
			p[k] = item
		}
		return Value{kind: KindMap, m: p}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s: unsupported type %s", bench.ErrUnserializableParameter, path, rv.Type())
	}
}
