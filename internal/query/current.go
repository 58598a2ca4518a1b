// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/slicestream/slicestream/core/journal"
	corelogger "github.com/slicestream/slicestream/core/logger"
	"github.com/slicestream/slicestream/core/offset"
)

// CurrentBySlices returns a finite stream of every row with a commit
// timestamp between the initial offset and a snapshot of the database
// clock taken before the first sub-query. The initial offset may be nil,
// a TimestampOffset or a *TimestampOffset; nil and empty coerce to zero.
func (e *Engine) CurrentBySlices(
	logPrefix, entityType string,
	minSlice, maxSlice int,
	initialOffset any,
) (*Stream, error) {
	initial, err := offset.Coerce(initialOffset)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger := e.cfg.Logger.Child(logPrefix)

	return newStream(func(ctx context.Context, emit func(journal.Envelope) error) error {
		snapshotNow, err := e.cfg.DatabaseClock.CurrentDBTimestamp(ctx)
		if err != nil {
			return errors.Annotate(err, "reading database clock")
		}
		if snapshotNow.IsZero() {
			return errors.Errorf("database clock returned no timestamp")
		}
		logger.Debugf(ctx, "current query for slices [%d, %d] from %v until %v",
			minSlice, maxSlice, initial.Timestamp, snapshotNow)

		q := continuousQuery[queryState]{
			updateState: func(s queryState, env journal.Envelope) (queryState, error) {
				s.latest = env.Offset()
				s.rowCount++
				e.cfg.Metrics.rowEmitted(modeCurrent)
				return s, nil
			},
			delayNextQuery: func(queryState) (time.Duration, bool) {
				return 0, false
			},
			nextQuery: e.currentNextQuery(snapshotNow, entityType, minSlice, maxSlice, logger),
		}
		return q.run(ctx, e.cfg.Clock, newQueryState(initial), emit)
	}), nil
}

// currentNextQuery pages through [initial, snapshotNow], re-querying
// from the previous page's last timestamp until a page comes back
// empty. The boundary row of each page is re-fetched by the next one,
// inclusive lower bound, and dropped again through the seen set; a page
// of bufferSize-1 emitted rows is therefore still a "full" page.
func (e *Engine) currentNextQuery(
	snapshotNow time.Time,
	entityType string,
	minSlice, maxSlice int,
	logger corelogger.Logger,
) func(queryState) (queryState, *subQuery, error) {
	return func(s queryState) (queryState, *subQuery, error) {
		if s.queryCount != 0 && s.rowCount == 0 {
			logger.Debugf(context.Background(), "current query complete after %d sub-queries", s.queryCount)
			return s, nil, nil
		}
		next := s.nextSubQuery(false, 0)
		from := next.nextQueryFromTimestamp()
		e.cfg.Metrics.subQueryIssued(modeCurrent)
		return next, &subQuery{
			fetch: func(ctx context.Context) ([]journal.Row, error) {
				rows, err := e.cfg.RowSource.RowsBySlices(
					ctx, entityType, minSlice, maxSlice, from, &snapshotNow, 0, false)
				return rows, errors.Trace(err)
			},
			stage: newEnvelopeStage(e.cfg.CreateEnvelope, next.latest),
		}, nil
	}
}
