// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package store

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/slicestream/slicestream/core/journal"
)

// RowSource binds a journal to a page size, satisfying the engine's row
// source contract.
type RowSource struct {
	journal    *Journal
	bufferSize int
}

// NewRowSource returns a row source reading pages of at most bufferSize
// rows from the journal.
func NewRowSource(j *Journal, bufferSize int) (*RowSource, error) {
	if bufferSize <= 0 {
		return nil, errors.NotValidf("non-positive bufferSize")
	}
	return &RowSource{journal: j, bufferSize: bufferSize}, nil
}

// RowsBySlices fetches one page of journal rows.
func (s *RowSource) RowsBySlices(
	ctx context.Context,
	entityType string,
	minSlice, maxSlice int,
	fromTimestamp time.Time,
	toTimestamp *time.Time,
	behindCurrentTime time.Duration,
	backtracking bool,
) ([]journal.Row, error) {
	rows, err := s.journal.RowsBySlices(
		ctx, entityType, minSlice, maxSlice,
		fromTimestamp, toTimestamp, behindCurrentTime, backtracking, s.bufferSize)
	return rows, errors.Trace(err)
}
