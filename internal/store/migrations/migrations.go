// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package migrations embeds and applies sqlstore's sqlite3 schema,
// grounded on the teacher's internal/repository/migration.go: the same
// golang-migrate/v4 + embed.FS + source/iofs combination, pared down to
// the single sqlite3 backend clasp's journal actually uses (the teacher
// also supports mysql; clasp has no mysql collaborator to migrate).
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/lumencanvas/clasp/pkg/log"
)

//go:embed sqlite3/*.sql
var files embed.FS

// Apply brings db's schema up to the latest migration, a no-op if it is
// already current.
func Apply(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migrations: sqlite3 driver instance: %w", err)
	}

	src, err := iofs.New(files, "sqlite3")
	if err != nil {
		return fmt.Errorf("migrations: opening embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrations: building migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: applying: %w", err)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrations: reading version: %w", err)
	}
	log.Infof("migrations: journal schema at version %d (dirty=%v)", v, dirty)
	return nil
}
