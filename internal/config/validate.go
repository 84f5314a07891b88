// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks instance against schema, grounded on the teacher's
// internal/config.Validate (same compile-then-validate shape, minus the
// teacher's cclog.Fatal-on-error posture: config loading is expected to
// handle a bad file gracefully rather than abort the whole process).
func Validate(schema string, instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("clasp-config.json", schema)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}
