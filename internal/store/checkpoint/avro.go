// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package checkpoint periodically dumps the full Store into an Avro Object
// Container File, grounded on the teacher's internal/memorystore/avroCheckpoint.go
// (goavro.NewOCFWriter/NewOCFReader, a deflate-compressed record stream).
// The teacher schemas one field per metric name; clasp's Store holds one
// ParamState per address instead, so the record here is address-keyed with
// the Value serialized through codec.Value's tagged-union accessors rather
// than a flat float column.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/linkedin/goavro/v2"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/lumencanvas/clasp/internal/store"
)

const recordSchema = `{
	"type": "record",
	"name": "ParamState",
	"fields": [
		{"name": "address", "type": "string"},
		{"name": "value_json", "type": "string"},
		{"name": "revision", "type": "long"},
		{"name": "writer", "type": "string"},
		{"name": "timestamp", "type": "long"},
		{"name": "origin", "type": "string"},
		{"name": "signal_type", "type": "int"}
	]
}`

// jsonValue mirrors codec.Value's tagged union so a ParamState's Value can
// round-trip through a single Avro string field without reaching into
// codec.Value's private fields (it exposes none; only the As*/Kind
// accessors below are used).
type jsonValue struct {
	Kind   string         `json:"kind"`
	Bool   *bool          `json:"bool,omitempty"`
	Int    *int64         `json:"int,omitempty"`
	Float  *float64       `json:"float,omitempty"`
	String *string        `json:"string,omitempty"`
	Bytes  []byte         `json:"bytes,omitempty"`
	Array  []jsonValue    `json:"array,omitempty"`
	Map    []jsonMapEntry `json:"map,omitempty"`
}

type jsonMapEntry struct {
	Key   string    `json:"key"`
	Value jsonValue `json:"value"`
}

func marshalValue(v codec.Value) (string, error) {
	b, err := json.Marshal(toJSONValue(v))
	if err != nil {
		return "", fmt.Errorf("checkpoint: marshal value: %w", err)
	}
	return string(b), nil
}

func unmarshalValue(raw string) (codec.Value, error) {
	var jv jsonValue
	if err := json.Unmarshal([]byte(raw), &jv); err != nil {
		return codec.Value{}, fmt.Errorf("checkpoint: unmarshal value: %w", err)
	}
	return fromJSONValue(jv), nil
}

func toJSONValue(v codec.Value) jsonValue {
	switch v.Kind() {
	case codec.KindBool:
		b, _ := v.AsBool()
		return jsonValue{Kind: "bool", Bool: &b}
	case codec.KindInt:
		i, _ := v.AsInt()
		return jsonValue{Kind: "int", Int: &i}
	case codec.KindFloat:
		f, _ := v.AsFloat()
		return jsonValue{Kind: "float", Float: &f}
	case codec.KindString:
		s, _ := v.AsString()
		return jsonValue{Kind: "string", String: &s}
	case codec.KindBytes:
		by, _ := v.AsBytes()
		return jsonValue{Kind: "bytes", Bytes: by}
	case codec.KindArray:
		arr, _ := v.AsArray()
		out := make([]jsonValue, len(arr))
		for i, e := range arr {
			out[i] = toJSONValue(e)
		}
		return jsonValue{Kind: "array", Array: out}
	case codec.KindMap:
		m, _ := v.AsMap()
		out := make([]jsonMapEntry, len(m))
		for i, e := range m {
			out[i] = jsonMapEntry{Key: e.Key, Value: toJSONValue(e.Value)}
		}
		return jsonValue{Kind: "map", Map: out}
	default:
		return jsonValue{Kind: "null"}
	}
}

func fromJSONValue(jv jsonValue) codec.Value {
	switch jv.Kind {
	case "bool":
		return codec.Bool(jv.Bool != nil && *jv.Bool)
	case "int":
		if jv.Int != nil {
			return codec.Int(*jv.Int)
		}
		return codec.Int(0)
	case "float":
		if jv.Float != nil {
			return codec.Float(*jv.Float)
		}
		return codec.Float(0)
	case "string":
		if jv.String != nil {
			return codec.String(*jv.String)
		}
		return codec.String("")
	case "bytes":
		return codec.Bytes(jv.Bytes)
	case "array":
		vals := make([]codec.Value, len(jv.Array))
		for i, e := range jv.Array {
			vals[i] = fromJSONValue(e)
		}
		return codec.Array(vals...)
	case "map":
		entries := make([]codec.MapEntry, len(jv.Map))
		for i, e := range jv.Map {
			entries[i] = codec.MapEntry{Key: e.Key, Value: fromJSONValue(e.Value)}
		}
		return codec.Map(entries...)
	default:
		return codec.Null()
	}
}

// WriteSnapshot encodes states as a deflate-compressed Avro OCF stream.
func WriteSnapshot(w io.Writer, states []store.ParamState) error {
	avroCodec, err := goavro.NewCodec(recordSchema)
	if err != nil {
		return fmt.Errorf("checkpoint: building avro codec: %w", err)
	}

	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           avroCodec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return fmt.Errorf("checkpoint: building OCF writer: %w", err)
	}

	records := make([]interface{}, 0, len(states))
	for _, st := range states {
		vj, err := marshalValue(st.Value)
		if err != nil {
			return err
		}
		records = append(records, map[string]interface{}{
			"address":     st.Address,
			"value_json":  vj,
			"revision":    int64(st.Revision),
			"writer":      st.Writer,
			"timestamp":   int64(st.Timestamp),
			"origin":      st.Origin,
			"signal_type": int32(st.SignalType),
		})
	}
	if err := ocfw.Append(records); err != nil {
		return fmt.Errorf("checkpoint: writing records: %w", err)
	}
	return nil
}

// ReadSnapshot decodes an Avro OCF stream written by WriteSnapshot. Locks
// are never part of a checkpoint: a restored ParamState starts unlocked.
func ReadSnapshot(r io.Reader) ([]store.ParamState, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: building OCF reader: %w", err)
	}

	var out []store.ParamState
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, fmt.Errorf("checkpoint: reading record: %w", err)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("checkpoint: unexpected record shape %T", datum)
		}

		val, err := unmarshalValue(rec["value_json"].(string))
		if err != nil {
			return nil, err
		}

		out = append(out, store.ParamState{
			Address:    rec["address"].(string),
			Value:      val,
			Revision:   uint64(rec["revision"].(int64)),
			Writer:     rec["writer"].(string),
			Timestamp:  uint64(rec["timestamp"].(int64)),
			Origin:     rec["origin"].(string),
			SignalType: codec.SignalType(rec["signal_type"].(int32)),
		})
	}
	if err := ocfr.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: scanning OCF stream: %w", err)
	}
	return out, nil
}
