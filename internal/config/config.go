// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates claspd's process configuration,
// grounded on the teacher's internal/config: a package-level Keys value
// seeded with defaults, overwritten by Init from a JSON file validated
// against an embedded jsonschema.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PSKRecord mirrors authchain/psk.Record in source-config form.
type PSKRecord struct {
	Subject string      `json:"subject"`
	Scopes  []ScopeSpec `json:"scopes"`
}

// ScopeSpec mirrors session.Scope in source-config form.
type ScopeSpec struct {
	Action  string `json:"action"`
	Pattern string `json:"pattern"`
}

// PSKHashedRecord mirrors authchain/psk.HashedRecord in source-config
// form, for deployments that would rather store a bcrypt hash than a raw
// token in config.json.
type PSKHashedRecord struct {
	TokenHash string      `json:"tokenHash"`
	Subject   string      `json:"subject"`
	Scopes    []ScopeSpec `json:"scopes"`
}

// EntityDirectory describes the backing directory the ent_ validator
// authenticates device/user records against.
type EntityDirectory struct {
	Kind string `json:"kind"` // "ldap" or "oidc"
	URL  string `json:"url"`
}

// JournalConfig selects the optional durable journal backend.
type JournalConfig struct {
	Kind string `json:"kind"` // "sqlite" or "none"
	Path string `json:"path"`
}

// CheckpointConfig configures the periodic Avro snapshot of the state
// store; an empty Dir disables checkpointing entirely.
type CheckpointConfig struct {
	Dir      string `json:"dir"`
	Interval string `json:"interval"` // Go duration string, e.g. "60s"

	S3Bucket string `json:"s3Bucket"` // optional off-box mirror
	S3Prefix string `json:"s3Prefix"`
}

// ProgramConfig is claspd's full process configuration, analogous to the
// teacher's schema.ProgramConfig.
type ProgramConfig struct {
	Addr      string `json:"addr"`
	AdminAddr string `json:"adminAddr"`

	MaxSubscriptions      int    `json:"maxSubscriptions"`
	AuthFailureWindow     string `json:"authFailureWindow"`
	AuthFailureThreshold  int    `json:"authFailureThreshold"`
	Q1DedupWindow         string `json:"q1DedupWindow"`
	ScheduleHorizon       string `json:"scheduleHorizon"`
	MaxPendingScheduled   int    `json:"maxPendingScheduled"`

	PSKTokens           map[string]PSKRecord `json:"pskTokens"`
	PSKTokensHashed     []PSKHashedRecord    `json:"pskTokensHashed"`
	CapabilityIssuerKey string               `json:"capabilityIssuerKey"`
	EntityDirectory     *EntityDirectory     `json:"entityDirectory"`
	Journal             *JournalConfig       `json:"journal"`
	RulesFile           string               `json:"rulesFile"`
	Checkpoint          *CheckpointConfig    `json:"checkpoint"`
}

// Keys holds the active configuration; Init overwrites it in place so
// packages that captured a pointer to it before Init see the final
// values, matching the teacher's package-level Keys convention.
var Keys = ProgramConfig{
	Addr:                 ":7780",
	AdminAddr:            ":7781",
	MaxSubscriptions:     1024,
	AuthFailureWindow:    "30s",
	AuthFailureThreshold: 5,
	Q1DedupWindow:        "5s",
	ScheduleHorizon:      "24h",
	MaxPendingScheduled:  4096,
	Journal:              &JournalConfig{Kind: "none"},
}

// Init reads flagConfigFile, validates it against configSchema, and
// merges it onto the defaults in Keys. A missing file is not an error —
// claspd runs on its built-in defaults, same as the teacher's Init.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	if err := Validate(configSchema, raw); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	return nil
}

// AuthFailureWindowDuration parses AuthFailureWindow, falling back to 30s
// on a malformed value.
func (c ProgramConfig) AuthFailureWindowDuration() time.Duration {
	return parseDurationOr(c.AuthFailureWindow, 30*time.Second)
}

// Q1DedupWindowDuration parses Q1DedupWindow, falling back to 5s.
func (c ProgramConfig) Q1DedupWindowDuration() time.Duration {
	return parseDurationOr(c.Q1DedupWindow, 5*time.Second)
}

// ScheduleHorizonDuration parses ScheduleHorizon, falling back to 24h.
func (c ProgramConfig) ScheduleHorizonDuration() time.Duration {
	return parseDurationOr(c.ScheduleHorizon, 24*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
