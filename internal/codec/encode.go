// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

func (w *writer) value(v Value) {
	w.byte(byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindBool:
		b := byte(0)
		if v.b {
			b = 1
		}
		w.byte(b)
	case KindInt:
		w.varInt(v.i)
	case KindFloat:
		w.float64(v.f)
	case KindString:
		w.str(v.s)
	case KindBytes:
		w.rawBytes(v.by)
	case KindArray:
		w.varUint(uint64(len(v.arr)))
		for _, e := range v.arr {
			w.value(e)
		}
	case KindMap:
		w.varUint(uint64(len(v.m)))
		for _, e := range v.m {
			w.str(e.Key)
			w.value(e.Value)
		}
	}
}

func (r *reader) value() (Value, error) {
	kb, err := r.byte()
	if err != nil {
		return Value{}, err
	}
	kind := ValueKind(kb)
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.byte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt:
		i, err := r.varInt()
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindFloat:
		f, err := r.float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case KindString:
		s, err := r.str()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case KindBytes:
		b, err := r.rawBytes()
		if err != nil {
			return Value{}, err
		}
		return Bytes(b), nil
	case KindArray:
		n, err := r.varUint()
		if err != nil {
			return Value{}, err
		}
		if n > uint64(MaxFrameSize) {
			return Value{}, decodeErrf("bad length: array of %d elements exceeds frame cap", n)
		}
		elems := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			e, err := r.value()
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		return Array(elems...), nil
	case KindMap:
		n, err := r.varUint()
		if err != nil {
			return Value{}, err
		}
		if n > uint64(MaxFrameSize) {
			return Value{}, decodeErrf("bad length: map of %d entries exceeds frame cap", n)
		}
		entries := make([]MapEntry, 0, n)
		for i := uint64(0); i < n; i++ {
			k, err := r.str()
			if err != nil {
				return Value{}, err
			}
			v, err := r.value()
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, MapEntry{Key: k, Value: v})
		}
		return Map(entries...), nil
	default:
		return Value{}, decodeErrf("unknown value kind %d", kb)
	}
}

func (w *writer) signalType(t SignalType) { w.byte(byte(t)) }

func (r *reader) signalType() (SignalType, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	if b > byte(SignalTimeline) {
		return 0, decodeErrf("unknown signal type %d", b)
	}
	return SignalType(b), nil
}

func (w *writer) optUint64(v *uint64) {
	if v == nil {
		w.byte(0)
		return
	}
	w.byte(1)
	w.varUint(*v)
}

func (r *reader) optUint64() (*uint64, error) {
	present, err := r.byte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := r.varUint()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (w *writer) strings(ss []string) {
	w.varUint(uint64(len(ss)))
	for _, s := range ss {
		w.str(s)
	}
}

func (r *reader) strings() ([]string, error) {
	n, err := r.varUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(MaxFrameSize) {
		return nil, decodeErrf("bad length: %d strings exceeds frame cap", n)
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
