// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlstore

import (
	"context"
	"time"

	"github.com/lumencanvas/clasp/pkg/log"
)

// timingKey scopes the context value Hooks uses to carry a query's start
// time from Before to After; an unexported type avoids collision with any
// other package stashing values on the same request context.
type timingKey struct{}

// hooks satisfies sqlhooks.Hooks, logging every query's text and latency
// at debug level, grounded on the teacher's internal/repository/hooks.go.
type hooks struct{}

func (hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sqlstore: query %s %q", query, args)
	return context.WithValue(ctx, timingKey{}, time.Now()), nil
}

func (hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(timingKey{}).(time.Time); ok {
		log.Debugf("sqlstore: query took %s", time.Since(begin))
	}
	return ctx, nil
}
