// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"sync/atomic"
	"time"
)

// atomicTime stores a time.Time behind atomic.Value so Touch/LastSeen can
// be called concurrently from the reader goroutine and the idle-sweep
// housekeeping loop without a mutex.
type atomicTime struct {
	v atomic.Value
}

func (a *atomicTime) Store(t time.Time) { a.v.Store(t) }

func (a *atomicTime) Load() time.Time {
	v := a.v.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}
