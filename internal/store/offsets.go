// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package store

import (
	"context"
	"encoding/json"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	"github.com/slicestream/slicestream/core/offset"
)

// offsetRow is the DTO for projection_offset.
type offsetRow struct {
	ProjectionName  string `db:"projection_name"`
	TimestampUs     int64  `db:"timestamp_us"`
	ReadTimestampUs int64  `db:"read_timestamp_us"`
	Seen            string `db:"seen"`
}

// SaveOffset upserts the named projection's cursor. The seen set is
// stored as JSON; it is small by construction, bounded by the number of
// writers committing within one clock microsecond.
func (j *Journal) SaveOffset(ctx context.Context, projectionName string, o offset.TimestampOffset) error {
	seen, err := json.Marshal(o.Seen)
	if err != nil {
		return errors.Trace(err)
	}
	stmt, err := sqlair.Prepare(`
INSERT INTO projection_offset (projection_name, timestamp_us, read_timestamp_us, seen)
VALUES ($offsetRow.projection_name, $offsetRow.timestamp_us, $offsetRow.read_timestamp_us, $offsetRow.seen)
ON CONFLICT (projection_name) DO UPDATE SET
    timestamp_us = excluded.timestamp_us,
    read_timestamp_us = excluded.read_timestamp_us,
    seen = excluded.seen
`, offsetRow{})
	if err != nil {
		return errors.Trace(err)
	}
	row := offsetRow{
		ProjectionName:  projectionName,
		TimestampUs:     toMicros(o.Timestamp),
		ReadTimestampUs: toMicros(o.ReadTimestamp),
		Seen:            string(seen),
	}
	err = j.db.Query(ctx, stmt, row).Run()
	return errors.Annotatef(err, "saving offset for projection %q", projectionName)
}

// LoadOffset returns the named projection's cursor, or the zero offset
// if none has been saved.
func (j *Journal) LoadOffset(ctx context.Context, projectionName string) (offset.TimestampOffset, error) {
	stmt, err := sqlair.Prepare(`
SELECT &offsetRow.*
FROM   projection_offset
WHERE  projection_name = $offsetRow.projection_name
`, offsetRow{})
	if err != nil {
		return offset.Zero, errors.Trace(err)
	}
	var row offsetRow
	err = j.db.Query(ctx, stmt, offsetRow{ProjectionName: projectionName}).Get(&row)
	if errors.Is(err, sqlair.ErrNoRows) {
		return offset.Zero, nil
	}
	if err != nil {
		return offset.Zero, errors.Annotatef(err, "loading offset for projection %q", projectionName)
	}

	var seen map[string]int64
	if row.Seen != "" {
		if err := json.Unmarshal([]byte(row.Seen), &seen); err != nil {
			return offset.Zero, errors.Annotatef(err, "decoding seen set for projection %q", projectionName)
		}
	}
	return offset.New(fromMicros(row.TimestampUs), fromMicros(row.ReadTimestampUs), seen), nil
}
