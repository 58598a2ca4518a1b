// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"time"

	"github.com/juju/errors"

	"github.com/slicestream/slicestream/core/journal"
	"github.com/slicestream/slicestream/core/offset"
)

// envelopeStage converts rows to envelopes, dropping rows already
// represented in the offset the sub-query was issued from and attaching
// the cumulative offset to each emitted envelope.
//
// A stage lives for exactly one sub-query. It is seeded from the
// driver's cursor and owns its state exclusively; the driver learns the
// advanced cursor back through the offsets on the envelopes it emits.
type envelopeStage struct {
	createEnvelope journal.CreateEnvelopeFunc

	currentTimestamp time.Time
	currentSeen      map[string]int64
}

func newEnvelopeStage(create journal.CreateEnvelopeFunc, from offset.TimestampOffset) *envelopeStage {
	seen := make(map[string]int64, len(from.Seen))
	for id, seqNr := range from.Seen {
		seen[id] = seqNr
	}
	return &envelopeStage{
		createEnvelope:   create,
		currentTimestamp: from.Timestamp,
		currentSeen:      seen,
	}
}

// apply processes one row. It returns the envelope to emit, or false if
// the row is a duplicate of one already emitted at the current
// timestamp.
//
// Rows arrive ordered by (dbTimestamp, seqNr), so a timestamp differing
// from the current one has necessarily advanced, and the seen set is
// restarted with just the triggering row. Rows at the current timestamp
// are duplicates exactly when the seen set already holds an equal or
// later sequence number for their persistence id; a re-query with an
// inclusive lower bound re-fetches exactly those rows.
func (s *envelopeStage) apply(row journal.Row) (journal.Envelope, bool, error) {
	if row.DBTimestamp.Equal(s.currentTimestamp) {
		if seqNr, ok := s.currentSeen[row.PersistenceID]; ok && seqNr >= row.SeqNr {
			return nil, false, nil
		}
		s.currentSeen[row.PersistenceID] = row.SeqNr
	} else {
		s.currentTimestamp = row.DBTimestamp
		s.currentSeen = map[string]int64{row.PersistenceID: row.SeqNr}
	}

	env, err := s.createEnvelope(
		offset.New(row.DBTimestamp, row.ReadDBTimestamp, s.currentSeen), row)
	if err != nil {
		return nil, false, errors.Annotatef(err, "creating envelope for %q seq_nr %d", row.PersistenceID, row.SeqNr)
	}
	return env, true, nil
}
