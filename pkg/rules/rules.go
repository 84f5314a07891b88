// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rules implements the optional server-side rules engine (spec.md
// §6): invoked after a Set/Publish is accepted, it may produce derived
// actions the router dispatches with origin "rule" to prevent loops. The
// origin is the same literal for every rule and carries no rule id.
//
// ExprEngine is grounded on the teacher's internal/tagger.JobClassTagger,
// which compiles expr-lang/expr predicates once via expr.Compile and caches
// the resulting *vm.Program, then calls expr.Run against a per-evaluation
// environment map built from the current event.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/lumencanvas/clasp/internal/codec"
)

// Event is the read-only environment one rule evaluation sees: the
// address/value/signal_type/origin of the Set or Publish that was just
// accepted (spec.md §6: "{address, value, signal_type, origin}").
type Event struct {
	Address    string
	Value      codec.Value
	SignalType codec.SignalType
	Origin     string
}

// Action is one derived write a matching rule produces. The router
// dispatches it as a Set with Origin set to "rule"; which rule produced it
// is not recorded.
type Action struct {
	Address    string
	Value      codec.Value
	SignalType codec.SignalType
}

// Engine is the consumed-optional collaborator. A nil Engine on the Router
// disables rule evaluation entirely.
type Engine interface {
	Evaluate(ctx context.Context, ev Event) ([]Action, error)
}

// Rule is one predicate/action pair in source form, loaded from
// configuration.
type Rule struct {
	ID         string
	Predicate  string // expr-lang boolean expression over the event env
	ActionAddr string // address the action writes, used as written; "" disables it
	ActionExpr string // expr-lang expression producing the action's value
	SignalType codec.SignalType
}

type compiledRule struct {
	id         string
	predicate  *vm.Program
	actionAddr string
	actionExpr *vm.Program
	signalType codec.SignalType
}

// ExprEngine evaluates a fixed set of compiled expr-lang rules against each
// event, in registration order, analogous to Match's per-job rule loop.
type ExprEngine struct {
	mu    sync.RWMutex
	rules []compiledRule
}

// NewExprEngine compiles every rule up front; a rule that fails to compile
// is reported as an error and the engine is not constructed, so a bad rules
// file never silently disables enforcement.
func NewExprEngine(rules []Rule) (*ExprEngine, error) {
	e := &ExprEngine{}
	for _, r := range rules {
		if err := e.addRule(r); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return e, nil
}

func (e *ExprEngine) addRule(r Rule) error {
	pred, err := expr.Compile(r.Predicate, expr.AsBool())
	if err != nil {
		return fmt.Errorf("compiling predicate: %w", err)
	}
	cr := compiledRule{id: r.ID, predicate: pred, actionAddr: r.ActionAddr, signalType: r.SignalType}
	if r.ActionExpr != "" {
		actionProg, err := expr.Compile(r.ActionExpr)
		if err != nil {
			return fmt.Errorf("compiling action expression: %w", err)
		}
		cr.actionExpr = actionProg
	}
	e.mu.Lock()
	e.rules = append(e.rules, cr)
	e.mu.Unlock()
	return nil
}

func eventEnv(ev Event) map[string]any {
	env := map[string]any{
		"address":     ev.Address,
		"signal_type": ev.SignalType.String(),
		"origin":      ev.Origin,
	}
	switch ev.Value.Kind() {
	case codec.KindBool:
		v, _ := ev.Value.AsBool()
		env["value"] = v
	case codec.KindInt:
		v, _ := ev.Value.AsInt()
		env["value"] = v
	case codec.KindFloat:
		v, _ := ev.Value.AsFloat()
		env["value"] = v
	case codec.KindString:
		v, _ := ev.Value.AsString()
		env["value"] = v
	default:
		env["value"] = nil
	}
	return env
}

// Evaluate runs every compiled rule's predicate against ev and, for each
// match with an action expression, produces a derived Action. A predicate
// or action runtime error is reported back to the caller but does not
// abort evaluation of the remaining rules, matching the teacher's
// one-rule-failure-does-not-block-the-rest posture.
func (e *ExprEngine) Evaluate(ctx context.Context, ev Event) ([]Action, error) {
	e.mu.RLock()
	rules := append([]compiledRule(nil), e.rules...)
	e.mu.RUnlock()

	env := eventEnv(ev)
	var actions []Action
	var firstErr error
	for _, r := range rules {
		matched, err := expr.Run(r.predicate, env)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %s predicate: %w", r.id, err)
			}
			continue
		}
		if ok, _ := matched.(bool); !ok {
			continue
		}
		if r.actionExpr == nil || r.actionAddr == "" {
			continue
		}
		result, err := expr.Run(r.actionExpr, env)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %s action: %w", r.id, err)
			}
			continue
		}
		actions = append(actions, Action{
			Address:    r.actionAddr,
			Value:      valueFromAny(result),
			SignalType: r.signalType,
		})
	}
	return actions, firstErr
}

func valueFromAny(v any) codec.Value {
	switch t := v.(type) {
	case bool:
		return codec.Bool(t)
	case int:
		return codec.Int(int64(t))
	case int64:
		return codec.Int(t)
	case float64:
		return codec.Float(t)
	case string:
		return codec.String(t)
	case nil:
		return codec.Null()
	default:
		return codec.String(fmt.Sprint(t))
	}
}
