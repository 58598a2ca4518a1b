// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"time"

	"github.com/slicestream/slicestream/core/offset"
)

// queryState is the driver state machine shared by the current and live
// modes. It is only ever mutated on the stream's own goroutine: once per
// emitted envelope and between sub-queries.
type queryState struct {
	// latest is the cursor of the primary (live tail) pipeline.
	latest offset.TimestampOffset

	// latestBacktracking is the cursor of the backtracking pipeline. It
	// trails latest; the first backtracking query starts it
	// firstBacktrackingQueryWindow behind latest.
	latestBacktracking offset.TimestampOffset

	// rowCount is the number of envelopes emitted by the sub-query in
	// progress.
	rowCount int

	// queryCount is the number of sub-queries issued so far.
	queryCount int64

	// idleCount is the number of consecutive sub-queries that emitted no
	// rows.
	idleCount int64

	// backtracking selects which cursor the next sub-query reads from.
	backtracking bool
}

func newQueryState(initial offset.TimestampOffset) queryState {
	return queryState{latest: initial}
}

// currentOffset is the cursor of the mode the state is in.
func (s queryState) currentOffset() offset.TimestampOffset {
	if s.backtracking {
		return s.latestBacktracking
	}
	return s.latest
}

// nextQueryFromTimestamp is the inclusive lower bound of the next
// sub-query.
func (s queryState) nextQueryFromTimestamp() time.Time {
	return s.currentOffset().Timestamp
}

// nextQueryToTimestamp is the exclusive upper bound of the next
// sub-query. Backtracking never looks past the primary cursor; primary
// queries are unbounded.
func (s queryState) nextQueryToTimestamp() *time.Time {
	if !s.backtracking {
		return nil
	}
	to := s.latest.Timestamp
	return &to
}

// nextSubQuery moves the state to the start of a new sub-query.
func (s queryState) nextSubQuery(backtracking bool, idleCount int64) queryState {
	s.backtracking = backtracking
	s.idleCount = idleCount
	s.rowCount = 0
	s.queryCount++
	return s
}
