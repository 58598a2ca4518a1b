// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package store

import (
	"context"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/collections/transform"
	"github.com/juju/errors"

	"github.com/slicestream/slicestream/core/journal"
)

// journalRow is the DTO for event_journal reads. The read timestamp is
// computed by the query from the database clock.
type journalRow struct {
	Slice           int    `db:"slice"`
	EntityType      string `db:"entity_type"`
	PersistenceID   string `db:"persistence_id"`
	SeqNr           int64  `db:"seq_nr"`
	DBTimestampUs   int64  `db:"db_timestamp"`
	ReadTimestampUs int64  `db:"read_db_timestamp"`
	SerID           int    `db:"ser_id"`
	SerManifest     string `db:"ser_manifest"`
	Payload         []byte `db:"event_payload"`
}

// appendArgs are the inputs for journal inserts.
type appendArgs struct {
	Slice         int    `db:"slice"`
	EntityType    string `db:"entity_type"`
	PersistenceID string `db:"persistence_id"`
	SeqNr         int64  `db:"seq_nr"`
	SerID         int    `db:"ser_id"`
	SerManifest   string `db:"ser_manifest"`
	Payload       []byte `db:"event_payload"`
}

// rowsArgs are the inputs for RowsBySlices.
type rowsArgs struct {
	EntityType string `db:"entity_type"`
	MinSlice   int    `db:"min_slice"`
	MaxSlice   int    `db:"max_slice"`
	FromUs     int64  `db:"from_us"`
	ToUs       int64  `db:"to_us"`
	BehindUs   int64  `db:"behind_us"`
	RowLimit   int    `db:"row_limit"`
}

// Append writes one event for the given persistence id. The commit
// timestamp and the slice are assigned here: the timestamp from the
// database clock, the slice from the persistence id hash.
func (j *Journal) Append(
	ctx context.Context,
	entityType, persistenceID string,
	seqNr int64,
	serID int, serManifest string,
	payload []byte,
) error {
	stmt, err := sqlair.Prepare(`
INSERT INTO event_journal (slice, entity_type, persistence_id, seq_nr, db_timestamp, ser_id, ser_manifest, event_payload)
VALUES ($appendArgs.slice, $appendArgs.entity_type, $appendArgs.persistence_id, $appendArgs.seq_nr, `+dbNowMicros+`, $appendArgs.ser_id, $appendArgs.ser_manifest, $appendArgs.event_payload)
`, appendArgs{})
	if err != nil {
		return errors.Trace(err)
	}
	args := appendArgs{
		Slice:         journal.SliceForPersistenceID(persistenceID),
		EntityType:    entityType,
		PersistenceID: persistenceID,
		SeqNr:         seqNr,
		SerID:         serID,
		SerManifest:   serManifest,
		Payload:       payload,
	}
	err = j.db.Query(ctx, stmt, args).Run()
	return errors.Annotatef(err, "appending event %q seq_nr %d", persistenceID, seqNr)
}

// RowsBySlices implements the engine's row source contract: rows for
// the entity type within the slice range, at or after fromTimestamp,
// before toTimestamp when present, and older than the database clock
// minus behindCurrentTime when that is positive. Rows are ordered by
// (db_timestamp, seq_nr) and limited to bufferSize. Backtracking reads
// elide the payload column.
func (j *Journal) RowsBySlices(
	ctx context.Context,
	entityType string,
	minSlice, maxSlice int,
	fromTimestamp time.Time,
	toTimestamp *time.Time,
	behindCurrentTime time.Duration,
	backtracking bool,
	bufferSize int,
) ([]journal.Row, error) {
	q := `
SELECT (slice, entity_type, persistence_id, seq_nr, db_timestamp, ser_id, ser_manifest`
	if !backtracking {
		q += `, event_payload`
	}
	q += `) AS (&journalRow.*),
       ` + dbNowMicros + ` AS &journalRow.read_db_timestamp
FROM   event_journal
WHERE  entity_type = $rowsArgs.entity_type
AND    slice >= $rowsArgs.min_slice
AND    slice <= $rowsArgs.max_slice
AND    deleted = 0
AND    db_timestamp >= $rowsArgs.from_us`
	if toTimestamp != nil {
		q += `
AND    db_timestamp < $rowsArgs.to_us`
	}
	if behindCurrentTime > 0 {
		q += `
AND    db_timestamp < ` + dbNowMicros + ` - $rowsArgs.behind_us`
	}
	q += `
ORDER BY db_timestamp, seq_nr
LIMIT  $rowsArgs.row_limit`

	stmt, err := sqlair.Prepare(q, journalRow{}, rowsArgs{})
	if err != nil {
		return nil, errors.Trace(err)
	}

	args := rowsArgs{
		EntityType: entityType,
		MinSlice:   minSlice,
		MaxSlice:   maxSlice,
		FromUs:     toMicros(fromTimestamp),
		BehindUs:   behindCurrentTime.Microseconds(),
		RowLimit:   bufferSize,
	}
	if toTimestamp != nil {
		args.ToUs = toMicros(*toTimestamp)
	}

	var rows []journalRow
	if err := j.db.Query(ctx, stmt, args).GetAll(&rows); err != nil {
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Annotate(err, "querying journal rows")
	}

	return transform.Slice(rows, func(r journalRow) journal.Row {
		return journal.Row{
			EntityType:      r.EntityType,
			PersistenceID:   r.PersistenceID,
			SeqNr:           r.SeqNr,
			Slice:           r.Slice,
			DBTimestamp:     fromMicros(r.DBTimestampUs),
			ReadDBTimestamp: fromMicros(r.ReadTimestampUs),
			Payload:         r.Payload,
			SerID:           r.SerID,
			SerManifest:     r.SerManifest,
		}
	}), nil
}
