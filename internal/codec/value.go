// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import "fmt"

// ValueKind tags the variant carried by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindMap
)

func (k ValueKind) String() string {
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
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MapEntry preserves insertion order for Value's Map variant, per §9's
// "Map/set containers with insertion-order-sensitive semantics" guidance:
// iteration order must never be left to an unordered map.
type MapEntry struct {
	Key   string
	Value Value
}

// Value is a tagged union over the five scalar kinds plus Array and Map.
// Numeric widening between Int and Float is never automatic (spec.md §3):
// callers pick the intended kind explicitly via the constructors below.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	by   []byte
	arr  []Value
	m    []MapEntry
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(v bool) Value          { return Value{kind: KindBool, b: v} }
func Int(v int64) Value          { return Value{kind: KindInt, i: v} }
func Float(v float64) Value      { return Value{kind: KindFloat, f: v} }
func String(v string) Value      { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value       { return Value{kind: KindBytes, by: append([]byte(nil), v...)} }
func Array(v ...Value) Value     { return Value{kind: KindArray, arr: append([]Value(nil), v...)} }
func Map(entries ...MapEntry) Value {
	return Value{kind: KindMap, m: append([]MapEntry(nil), entries...)}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)    { return v.by, v.kind == KindBytes }
func (v Value) AsArray() ([]Value, bool)   { return v.arr, v.kind == KindArray }
func (v Value) AsMap() ([]MapEntry, bool)  { return v.m, v.kind == KindMap }

// MapGet looks up a key in a Map value, preserving the "first match wins"
// rule for duplicate keys inserted earlier.
func (v Value) MapGet(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, e := range v.m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Equal reports deep equality, used by epsilon-free dedup checks and tests.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBytes:
		if len(v.by) != len(o.by) {
			return false
		}
		for i := range v.by {
			if v.by[i] != o.by[i] {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for i := range v.m {
			if v.m[i].Key != o.m[i].Key || !v.m[i].Value.Equal(o.m[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// NumericDelta returns |v - o| for two numeric (Int or Float) values, for
// use by the subscription manager's epsilon dead-band filter. ok is false
// if either value is non-numeric.
func NumericDelta(v, o Value) (delta float64, ok bool) {
	vf, vok := numeric(v)
	of, ook := numeric(o)
	if !vok || !ook {
		return 0, false
	}
	d := vf - of
	if d < 0 {
		d = -d
	}
	return d, true
}

func numeric(v Value) (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Compare orders two numeric values for the Max/Min conflict strategies.
// ok is false if either side is non-numeric.
func Compare(a, b Value) (cmp int, ok bool) {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}
