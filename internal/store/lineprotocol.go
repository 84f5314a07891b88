// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/codec"
)

// ParseLineProtocolBatch decodes a batch of InfluxDB line-protocol lines
// into WriteRequests for bulk ingest (e.g. a DMX universe or OSC bridge
// draining many addresses per tick), grounded on the teacher's
// pkg/nats/influxDecoder.go (per-line Measurement/NextTag/NextField/Time
// walk) and internal/memorystore/lineprotocol.go (batch-decode loop over
// one *lineprotocol.Decoder). Each line's measurement becomes the address
// leaf under addressPrefix unless an "addr" tag supplies a full address;
// an "origin" tag overrides defaultWriter as the stored Origin. Exactly
// one field, "value", is accepted per line.
func ParseLineProtocolBatch(data []byte, addressPrefix string, signalType codec.SignalType, defaultWriter string) ([]WriteRequest, error) {
	dec := lineprotocol.NewDecoderWithBytes(data)
	now := time.Now()

	var out []WriteRequest
	for dec.Next() {
		measurement, err := dec.Measurement()
		if err != nil {
			return nil, fmt.Errorf("line protocol: measurement: %w", err)
		}

		addrStr := addressPrefix + "/" + string(measurement)
		origin := defaultWriter

		for {
			key, val, err := dec.NextTag()
			if err != nil {
				return nil, fmt.Errorf("line protocol: tag: %w", err)
			}
			if key == nil {
				break
			}
			switch string(key) {
			case "addr":
				addrStr = string(val)
			case "origin":
				origin = string(val)
			}
		}

		var value codec.Value
		sawValue := false
		for {
			key, val, err := dec.NextField()
			if err != nil {
				return nil, fmt.Errorf("line protocol: field: %w", err)
			}
			if key == nil {
				break
			}
			if string(key) != "value" {
				return nil, fmt.Errorf("line protocol: unsupported field %q, only \"value\" is accepted", string(key))
			}
			value, err = fieldToValue(val)
			if err != nil {
				return nil, err
			}
			sawValue = true
		}
		if !sawValue {
			return nil, fmt.Errorf("line protocol: measurement %q has no value field", string(measurement))
		}

		ts, err := decodeTimestamp(dec, now)
		if err != nil {
			return nil, fmt.Errorf("line protocol: timestamp: %w", err)
		}

		addr, err := address.Parse(addrStr)
		if err != nil {
			return nil, fmt.Errorf("line protocol: address %q: %w", addrStr, err)
		}

		out = append(out, WriteRequest{
			Address:    addr,
			Value:      value,
			SignalType: signalType,
			Writer:     defaultWriter,
			Timestamp:  uint64(ts.UnixMicro()),
			Origin:     origin,
			Now:        now,
		})
	}
	return out, nil
}

func fieldToValue(val lineprotocol.Value) (codec.Value, error) {
	switch val.Kind() {
	case lineprotocol.Float:
		return codec.Float(val.FloatV()), nil
	case lineprotocol.Int:
		return codec.Int(val.IntV()), nil
	case lineprotocol.Uint:
		return codec.Int(int64(val.UintV())), nil
	case lineprotocol.Bool:
		return codec.Bool(val.BoolV()), nil
	case lineprotocol.String:
		return codec.String(val.StringV()), nil
	default:
		return codec.Value{}, fmt.Errorf("line protocol: unsupported value kind %s", val.Kind())
	}
}

// decodeTimestamp cascades through decreasing precision the same way the
// teacher's DecodeLine does: a line with no explicit timestamp still needs
// one precision to try first, and Second is InfluxDB's common default.
func decodeTimestamp(dec *lineprotocol.Decoder, fallback time.Time) (time.Time, error) {
	precisions := []lineprotocol.Precision{
		lineprotocol.Second,
		lineprotocol.Millisecond,
		lineprotocol.Microsecond,
		lineprotocol.Nanosecond,
	}
	var lastErr error
	for _, p := range precisions {
		t, err := dec.Time(p, fallback)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
