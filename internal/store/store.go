// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package store is a relational implementation of the engine's external
// collaborators: the journal row source, the database clock and the
// projection offset store.
//
// Timestamps are stored as integer microseconds since the epoch and are
// assigned by the database clock at insert time, never by the writer's
// process clock. Read horizons are evaluated server-side against the
// same clock, so writer/reader clock skew cannot reorder the stream.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	_ "modernc.org/sqlite"
)

// dbNowMicros is the database transaction-time clock, in microseconds
// since the Unix epoch.
const dbNowMicros = "CAST((julianday('now') - 2440587.5) * 86400000000.0 AS INTEGER)"

const schema = `
CREATE TABLE IF NOT EXISTS event_journal (
    slice          INTEGER NOT NULL,
    entity_type    TEXT    NOT NULL,
    persistence_id TEXT    NOT NULL,
    seq_nr         INTEGER NOT NULL,
    db_timestamp   INTEGER NOT NULL,
    deleted        INTEGER NOT NULL DEFAULT 0,
    ser_id         INTEGER NOT NULL DEFAULT 0,
    ser_manifest   TEXT    NOT NULL DEFAULT '',
    event_payload  BLOB,
    PRIMARY KEY (persistence_id, seq_nr)
);

CREATE INDEX IF NOT EXISTS idx_event_journal_slice
    ON event_journal (entity_type, slice, db_timestamp, seq_nr);

CREATE TABLE IF NOT EXISTS projection_offset (
    projection_name   TEXT    NOT NULL PRIMARY KEY,
    timestamp_us      INTEGER NOT NULL,
    read_timestamp_us INTEGER NOT NULL DEFAULT 0,
    seen              TEXT    NOT NULL DEFAULT '{}'
);
`

// Journal provides access to the event journal tables.
type Journal struct {
	sqlDB *sql.DB
	db    *sqlair.DB
}

// Open opens (creating if necessary) the journal database at the given
// path. Use ":memory:" for an in-memory database.
func Open(path string) (*Journal, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Annotate(err, "opening journal database")
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Annotate(err, "pinging journal database")
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Annotate(err, "creating journal schema")
	}
	return &Journal{
		sqlDB: sqlDB,
		db:    sqlair.NewDB(sqlDB),
	}, nil
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	return j.sqlDB.Close()
}

// CurrentDBTimestamp returns the database's transaction-time clock.
func (j *Journal) CurrentDBTimestamp(ctx context.Context) (time.Time, error) {
	var now int64
	row := j.sqlDB.QueryRowContext(ctx, "SELECT "+dbNowMicros)
	if err := row.Scan(&now); err != nil {
		return time.Time{}, errors.Annotate(err, "reading database clock")
	}
	return fromMicros(now), nil
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
