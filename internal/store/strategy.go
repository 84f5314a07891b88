// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import "github.com/lumencanvas/clasp/internal/codec"

// Decision is what a Strategy returns for one incoming write: whether to
// accept it, and (if accepted) the Value to store — which for Merge may
// differ from the literal incoming value.
type Decision struct {
	Accept bool
	Value  codec.Value
	Reason RejectReason
}

// Strategy is the closed set of conflict-resolution variants named in
// spec.md §4.2 (§9: "represent as a closed set of tagged variants where
// exhaustiveness helps"). current is nil on the first write to an address.
type Strategy interface {
	Decide(current *ParamState, req WriteRequest) Decision
}

// LWW accepts a write only if its timestamp strictly exceeds the stored
// entry's timestamp. It is the store-wide default.
type LWW struct{}

func (LWW) Decide(current *ParamState, req WriteRequest) Decision {
	if current == nil {
		return Decision{Accept: true, Value: req.Value}
	}
	if req.Timestamp > current.Timestamp {
		return Decision{Accept: true, Value: req.Value}
	}
	return Decision{Accept: false, Reason: RejectStaleTimestamp}
}

// Max accepts a write only if its numeric value strictly exceeds the
// stored value.
type Max struct{}

func (Max) Decide(current *ParamState, req WriteRequest) Decision {
	if current == nil {
		return Decision{Accept: true, Value: req.Value}
	}
	cmp, ok := codec.Compare(req.Value, current.Value)
	if !ok {
		return Decision{Accept: false, Reason: RejectStrategyReject}
	}
	if cmp > 0 {
		return Decision{Accept: true, Value: req.Value}
	}
	return Decision{Accept: false, Reason: RejectStrategyReject}
}

// Min accepts a write only if its numeric value is strictly less than the
// stored value.
type Min struct{}

func (Min) Decide(current *ParamState, req WriteRequest) Decision {
	if current == nil {
		return Decision{Accept: true, Value: req.Value}
	}
	cmp, ok := codec.Compare(req.Value, current.Value)
	if !ok {
		return Decision{Accept: false, Reason: RejectStrategyReject}
	}
	if cmp < 0 {
		return Decision{Accept: true, Value: req.Value}
	}
	return Decision{Accept: false, Reason: RejectStrategyReject}
}

// LockStrategy always accepts the value itself; exclusivity is enforced
// upstream in Store.ApplySet by inspecting the entry's current Lock before
// any Strategy is consulted, per spec.md §4.2: "First successful writer
// with lock=true becomes holder; subsequent writes by others fail with
// Locked until the holder releases or its TTL elapses."
type LockStrategy struct{}

func (LockStrategy) Decide(current *ParamState, req WriteRequest) Decision {
	return Decision{Accept: true, Value: req.Value}
}

// Merge delegates to an application-supplied MergeFunc over typed Map
// values only; the first write to an address establishes a baseline with
// no merge needed.
type Merge struct{}

func (Merge) Decide(current *ParamState, req WriteRequest) Decision {
	if current == nil {
		return Decision{Accept: true, Value: req.Value}
	}
	if req.Merge == nil {
		return Decision{Accept: false, Reason: RejectStrategyReject}
	}
	if current.Value.Kind() != codec.KindMap || req.Value.Kind() != codec.KindMap {
		return Decision{Accept: false, Reason: RejectStrategyReject}
	}
	merged, err := req.Merge(current.Value, req.Value)
	if err != nil {
		return Decision{Accept: false, Reason: RejectStrategyReject}
	}
	return Decision{Accept: true, Value: merged}
}

// StrategyByName resolves the wire-level strategy name carried on codec.Set
// ("" selects the store default).
func StrategyByName(name string) Strategy {
	switch name {
	case "max":
		return Max{}
	case "min":
		return Min{}
	case "lock":
		return LockStrategy{}
	case "merge":
		return Merge{}
	case "lww", "":
		return LWW{}
	default:
		return nil
	}
}
