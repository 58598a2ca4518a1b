// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"context"
	"time"

	"github.com/slicestream/slicestream/core/journal"
)

// RowSource fetches pages of journal rows. Implementations are expected
// to be backed by a relational database; internal/store provides one.
type RowSource interface {
	// RowsBySlices returns rows where the entity type matches, the slice
	// falls within [minSlice, maxSlice], dbTimestamp >= fromTimestamp,
	// dbTimestamp < toTimestamp when present, and dbTimestamp is older
	// than the database clock minus behindCurrentTime when that is
	// positive. Rows are ordered by (dbTimestamp, seqNr) ascending and
	// at most Settings.BufferSize rows are returned. When backtracking
	// is set the source may elide payload fields; the engine will not
	// read them.
	RowsBySlices(
		ctx context.Context,
		entityType string,
		minSlice, maxSlice int,
		fromTimestamp time.Time,
		toTimestamp *time.Time,
		behindCurrentTime time.Duration,
		backtracking bool,
	) ([]journal.Row, error)
}

// DatabaseClock exposes the database's transaction-time clock. The
// engine never substitutes a local clock for it, since read horizons are
// evaluated server-side against the same clock.
type DatabaseClock interface {
	// CurrentDBTimestamp returns the database's current transaction
	// timestamp.
	CurrentDBTimestamp(ctx context.Context) (time.Time, error)
}
