// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lumencanvas/clasp/internal/address"
	"github.com/lumencanvas/clasp/internal/store"
	"github.com/lumencanvas/clasp/pkg/log"
)

// catchAll enumerates every live address in the Store; Query requires a
// Pattern rather than offering an unconditional walk, so a lone "**"
// segment (legal only in tail position per address.ParsePattern) stands in
// for "dump everything".
var catchAll = mustParsePattern("/**")

func mustParsePattern(p string) address.Pattern {
	pat, err := address.ParsePattern(p)
	if err != nil {
		panic(fmt.Sprintf("checkpoint: invalid built-in catch-all pattern %q: %v", p, err))
	}
	return pat
}

// Remote is the optional off-box backend a Checkpointer uploads to after
// each local write (e.g. the S3Backend in this package).
type Remote interface {
	Upload(ctx context.Context, key string, path string) error
}

// Checkpointer periodically dumps the full Store to an Avro OCF file on a
// fixed interval, grounded on the teacher's memorystore.Checkpointing
// goroutine-plus-ticker loop.
type Checkpointer struct {
	Store    *store.Store
	Dir      string
	Interval time.Duration
	Remote   Remote // nil disables off-box upload
}

// Run ticks every c.Interval until ctx is cancelled, writing one snapshot
// file per tick. It never returns an error: a failed tick is logged and
// the loop continues, matching the teacher's "log and keep ticking" policy.
func (c *Checkpointer) Run(ctx context.Context) {
	if c.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			name := fmt.Sprintf("%d.avro", now.Unix())
			path := filepath.Join(c.Dir, name)
			if err := c.WriteLocal(path); err != nil {
				log.Errorf("checkpoint: tick failed: %v", err)
				continue
			}
			log.Infof("checkpoint: wrote %s", path)
			if c.Remote != nil {
				if err := c.Remote.Upload(ctx, name, path); err != nil {
					log.Warnf("checkpoint: remote upload of %s failed: %v", name, err)
				}
			}
		}
	}
}

// WriteLocal enumerates the entire Store and writes one Avro OCF snapshot
// to path, creating c.Dir if necessary.
func (c *Checkpointer) WriteLocal(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: creating %s: %w", path, err)
	}
	defer f.Close()

	states := c.Store.Query(catchAll)
	return WriteSnapshot(f, states)
}

// restoreStrategy unconditionally accepts the incoming value, used only by
// LoadLocal: a checkpoint restore must not be subject to the store's normal
// conflict-resolution policy (LWW/Max/Min/Lock/Merge), since it is seeding
// state rather than resolving a live write race.
type restoreStrategy struct{}

func (restoreStrategy) Decide(_ *store.ParamState, req store.WriteRequest) store.Decision {
	return store.Decision{Accept: true, Value: req.Value}
}

// LoadLocal restores every entry in the Avro OCF file at path into dst via
// ApplySet, bypassing dst's configured conflict strategy.
func LoadLocal(dst *store.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: opening %s: %w", path, err)
	}
	defer f.Close()

	states, err := ReadSnapshot(f)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	for _, st := range states {
		addr, err := address.Parse(st.Address)
		if err != nil {
			log.Warnf("checkpoint: skipping malformed address %q on restore: %v", st.Address, err)
			continue
		}
		dst.ApplySet(store.WriteRequest{
			Address:    addr,
			Value:      st.Value,
			SignalType: st.SignalType,
			Writer:     st.Writer,
			Timestamp:  st.Timestamp,
			Strategy:   restoreStrategy{},
			Origin:     st.Origin,
			Now:        now,
		})
	}
	return len(states), nil
}
