// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlstore

import "time"

func nowMicros() int64 {
	return time.Now().UnixMicro()
}

func microsToTime(us int64) time.Time {
	return time.UnixMicro(us)
}
