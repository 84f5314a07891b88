// Copyright (C) 2024 lumencanvas.
// All rights reserved. This file is part of clasp.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sqlstore is a concrete pkg/journal.Journal backed by sqlite3,
// grounded on the teacher's internal/repository package: sqlx.Open over a
// sqlhooks-wrapped mattn/go-sqlite3 driver, one process-wide connection
// (SetMaxOpenConns(1), since sqlite3 serializes writers anyway), and a
// golang-migrate-managed schema applied at Open. Where the teacher's
// repository.DBConnection stores job records, a Journal here stores
// already-framed codec.Message bytes: Append/Since round-trip through
// codec.Encode/Decode rather than reinventing a row format per message
// type.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/lumencanvas/clasp/internal/codec"
	"github.com/lumencanvas/clasp/internal/store/migrations"
	"github.com/lumencanvas/clasp/pkg/journal"
)

const driverName = "sqlite3-clasp-hooked"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, hooks{}))
	})
}

// Store is a sqlite3-backed journal.Journal. A single connection is kept
// open (sqlite3 does not benefit from concurrent writers; see the
// teacher's dbConnection.go comment on the same choice).
type Store struct {
	db *sqlx.DB
}

// Open connects to (creating if absent) the sqlite3 database at path,
// applies pending migrations, and returns a ready Store.
func Open(path string) (*Store, error) {
	registerDriver()

	db, err := sqlx.Open(driverName, fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrations.Apply(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append encodes msg via codec.Encode and inserts it as the next row;
// sqlite3's AUTOINCREMENT rowid supplies the monotonic sequence number
// journal.Journal promises.
func (s *Store) Append(ctx context.Context, addr string, msg codec.Message) (uint64, error) {
	body, err := codec.Encode(msg)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: encoding entry for %s: %w", addr, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_entries (address, payload, ts_unix_micro) VALUES (?, ?, ?)`,
		addr, body, nowMicros())
	if err != nil {
		return 0, fmt.Errorf("sqlstore: appending entry for %s: %w", addr, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: reading assigned seq: %w", err)
	}
	return uint64(id), nil
}

type row struct {
	Seq         int64  `db:"seq"`
	Address     string `db:"address"`
	Payload     []byte `db:"payload"`
	TSUnixMicro int64  `db:"ts_unix_micro"`
}

// Since returns, in seq order, every entry with Seq > since, up to limit
// entries (limit <= 0 means unbounded).
func (s *Store) Since(ctx context.Context, since uint64, limit int) ([]journal.Entry, error) {
	query := `SELECT seq, address, payload, ts_unix_micro FROM journal_entries WHERE seq > ? ORDER BY seq ASC`
	args := []interface{}{since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: reading entries since %d: %w", since, err)
	}

	out := make([]journal.Entry, 0, len(rows))
	for _, r := range rows {
		msg, _, err := codec.Decode(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: decoding entry seq %d: %w", r.Seq, err)
		}
		out = append(out, journal.Entry{
			Seq:       uint64(r.Seq),
			Address:   r.Address,
			Message:   msg,
			Timestamp: microsToTime(r.TSUnixMicro),
		})
	}
	return out, nil
}

// LatestSeq reports the highest sequence number ever assigned, or 0 if the
// journal is empty.
func (s *Store) LatestSeq(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	if err := s.db.GetContext(ctx, &max, `SELECT MAX(seq) FROM journal_entries`); err != nil {
		return 0, fmt.Errorf("sqlstore: reading latest seq: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// Compact discards every entry with Seq <= beforeSeq.
func (s *Store) Compact(ctx context.Context, beforeSeq uint64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE seq <= ?`, beforeSeq); err != nil {
		return fmt.Errorf("sqlstore: compacting before seq %d: %w", beforeSeq, err)
	}
	return nil
}

var _ journal.Journal = (*Store)(nil)
