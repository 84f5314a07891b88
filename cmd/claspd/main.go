// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// claspd is the reference server binary: it wires the state store,
// subscription index, session manager, scheduler, and token validation
// chain into a Router and waits for a bridge/transport adapter to hand it
// connections, grounded on the teacher's cmd/cc-backend/main.go (flag
// parsing, config loading, signal-driven graceful shutdown).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/lumencanvas/clasp/internal/adminhttp"
	"github.com/lumencanvas/clasp/internal/authchain"
	"github.com/lumencanvas/clasp/internal/authchain/psk"
	"github.com/lumencanvas/clasp/internal/config"
	"github.com/lumencanvas/clasp/internal/metrics"
	"github.com/lumencanvas/clasp/internal/router"
	"github.com/lumencanvas/clasp/internal/scheduler"
	"github.com/lumencanvas/clasp/internal/session"
	"github.com/lumencanvas/clasp/internal/store"
	"github.com/lumencanvas/clasp/internal/store/checkpoint"
	"github.com/lumencanvas/clasp/internal/store/sqlstore"
	"github.com/lumencanvas/clasp/internal/subscription"
	"github.com/lumencanvas/clasp/pkg/journal"
	"github.com/lumencanvas/clasp/pkg/log"
	"github.com/lumencanvas/clasp/pkg/runtimeEnv"
)

func main() {
	var flagConfigFile string
	var flagEnvFile string
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default config with the options in `config.json`")
	flag.StringVar(&flagEnvFile, "env", "./.env", "Load environment variables from `file`")
	flag.Parse()

	if err := runtimeEnv.LoadEnv(flagEnvFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing env file: %s", err.Error())
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("loading config: %s", err.Error())
	}

	chain, err := buildAuthChain(config.Keys)
	if err != nil {
		log.Fatalf("building auth chain: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New()

	jrnl := buildJournal(config.Keys)
	if sqlJrnl, ok := jrnl.(*sqlstore.Store); ok {
		defer sqlJrnl.Close()
	}

	sched := scheduler.New(nil)
	sched.SetMaxHorizon(config.Keys.ScheduleHorizonDuration())

	rtr := router.New(
		routerConfigFrom(config.Keys),
		st,
		subscription.NewManager(),
		session.NewManager(),
		sched,
		chain,
		jrnl,
		nil, // rules: plug in a pkg/rules.Engine (e.g. rules.NewExprEngine) to enable derived actions
	)
	_ = rtr // bound to bridge/transport adapters once one is registered; see pkg/transport

	log.Infof("claspd configured, listening at %s (transport adapters not wired in this build)", config.Keys.Addr)

	var wg sync.WaitGroup

	if cp, err := buildCheckpointer(ctx, config.Keys, st); err != nil {
		log.Errorf("checkpoint: disabled: %s", err.Error())
	} else if cp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp.Run(ctx)
		}()
	}

	reg := metrics.New()
	sampler := &metrics.Sampler{
		Registry: reg,
		Store:    st,
		Sessions: rtr.Sessions,
		Subs:     rtr.Subs,
		Interval: 5 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sampler.Run(ctx)
	}()

	var adminSrv *http.Server
	if config.Keys.AdminAddr != "" {
		admin := adminhttp.New(rtr, reg)
		adminSrv = &http.Server{Addr: config.Keys.AdminAddr, Handler: admin.Handler()}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infof("admin http listening at %s", config.Keys.AdminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("admin http: %s", err.Error())
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sigs
		runtimeEnv.SystemdNotifiy(false, "shutting down")
		if adminSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = adminSrv.Shutdown(shutdownCtx)
		}
		cancel()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")
	wg.Wait()
	log.Info("graceful shutdown completed")
}

// buildJournal constructs the durable journal backend named by
// config.Keys.Journal.Kind; "none" (the default) leaves Replay and Q2
// writes disabled, matching router.New's nil-journal behavior.
func buildJournal(keys config.ProgramConfig) journal.Journal {
	if keys.Journal == nil || keys.Journal.Kind != "sqlite" {
		return nil
	}
	st, err := sqlstore.Open(keys.Journal.Path)
	if err != nil {
		log.Errorf("journal: opening sqlite store at %s: %s", keys.Journal.Path, err.Error())
		return nil
	}
	log.Infof("journal: sqlite backend at %s", keys.Journal.Path)
	return st
}

// buildCheckpointer constructs the periodic snapshot writer named by
// config.Keys.Checkpoint; a nil Checkpoint or empty Dir disables it. If a
// local snapshot already exists under Dir it is not auto-loaded here —
// restore is an explicit operational step, not an implicit startup side
// effect.
func buildCheckpointer(ctx context.Context, keys config.ProgramConfig, st *store.Store) (*checkpoint.Checkpointer, error) {
	cfg := keys.Checkpoint
	if cfg == nil || cfg.Dir == "" {
		return nil, nil
	}

	interval := 60 * time.Second
	if cfg.Interval != "" {
		if d, err := time.ParseDuration(cfg.Interval); err == nil {
			interval = d
		}
	}

	cp := &checkpoint.Checkpointer{
		Store:    st,
		Dir:      filepath.Clean(cfg.Dir),
		Interval: interval,
	}

	if cfg.S3Bucket != "" {
		remote, err := checkpoint.NewS3Backend(ctx, checkpoint.S3Config{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		cp.Remote = remote
	}

	log.Infof("checkpoint: writing snapshots to %s every %s", cp.Dir, interval)
	return cp, nil
}

func routerConfigFrom(keys config.ProgramConfig) router.Config {
	cfg := router.DefaultConfig()
	cfg.MaxSubscriptions = keys.MaxSubscriptions
	cfg.AuthFailureWindow = keys.AuthFailureWindowDuration()
	cfg.AuthFailureThreshold = keys.AuthFailureThreshold
	cfg.MaxQ1DedupWindow = keys.Q1DedupWindowDuration()
	return cfg
}

// buildAuthChain wires the pre-shared-key validators configured through
// pskTokens and pskTokensHashed. A deployment with neither gets a chain of
// zero validators, so every token is rejected with UnknownTokenType rather
// than silently authorizing everything.
func buildAuthChain(keys config.ProgramConfig) (*authchain.Chain, error) {
	var validators []authchain.Validator

	if len(keys.PSKTokens) > 0 {
		records := psk.MapStore{}
		for token, rec := range keys.PSKTokens {
			scopes := make([]session.Scope, 0, len(rec.Scopes))
			for _, s := range rec.Scopes {
				scopes = append(scopes, session.Scope{Action: s.Action, Pattern: s.Pattern})
			}
			records[token] = psk.Record{Subject: rec.Subject, Scopes: scopes}
		}
		validators = append(validators, psk.Validator{Store: records})
	}

	if len(keys.PSKTokensHashed) > 0 {
		hashed := make(psk.HashedStore, 0, len(keys.PSKTokensHashed))
		for _, rec := range keys.PSKTokensHashed {
			scopes := make([]session.Scope, 0, len(rec.Scopes))
			for _, s := range rec.Scopes {
				scopes = append(scopes, session.Scope{Action: s.Action, Pattern: s.Pattern})
			}
			hashed = append(hashed, psk.HashedRecord{TokenHash: rec.TokenHash, Subject: rec.Subject, Scopes: scopes})
		}
		validators = append(validators, psk.Validator{Store: hashed})
	}

	// capability.Validator and entity.Validator are not added here:
	// capabilityIssuerKey and entityDirectory are not read, so cap_ and
	// ent_ tokens are rejected with UnknownTokenType by this binary.

	return authchain.NewChain(validators...), nil
}
