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

// switchToBacktrackingIdleCount is the number of consecutive empty
// primary polls after which the tail is considered quiet enough to
// revalidate the older window.
// TODO (slicestream): make this and the half-window trigger settings
// once there is field evidence the defaults need tuning.
const switchToBacktrackingIdleCount = 5

// LiveBySlices returns an unbounded stream that tails new rows as they
// are committed. When backtracking is enabled the stream periodically
// re-reads an older window to pick up rows whose commit timestamps fell
// below the primary cursor, caused by transactions that obtained their
// timestamp before a concurrent writer committed a later one.
//
// Envelopes produced by a backtracking scan carry offsets older than the
// primary cursor. Consumers persisting offsets must retain the latest
// primary and latest backtracking offsets independently if they want to
// resume both pipelines precisely. Persisting every offset into a single
// slot keeps only the most recent one, which may be a backtracking offset.
func (e *Engine) LiveBySlices(
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
		logger.Debugf(ctx, "live query for slices [%d, %d] from %v",
			minSlice, maxSlice, initial.Timestamp)

		q := continuousQuery[queryState]{
			updateState:    e.liveUpdateState,
			delayNextQuery: e.liveDelayNextQuery,
			nextQuery:      e.liveNextQuery(entityType, minSlice, maxSlice, logger),
		}
		return q.run(ctx, e.cfg.Clock, newQueryState(initial), emit)
	}), nil
}

// liveUpdateState folds an envelope into whichever cursor the state is
// reading with. A row behind the cursor can only be produced by a
// defective row source, and continuing would break the monotonic offset
// guarantee, so it is fatal.
func (e *Engine) liveUpdateState(s queryState, env journal.Envelope) (queryState, error) {
	o := env.Offset()
	if s.backtracking {
		if o.Timestamp.Before(s.latestBacktracking.Timestamp) {
			return s, errors.Errorf(
				"backtracking query observed offset %v before stream offset %v",
				o, s.latestBacktracking)
		}
		s.latestBacktracking = o
	} else {
		if o.Timestamp.Before(s.latest.Timestamp) {
			return s, errors.Errorf(
				"query observed offset %v before stream offset %v",
				o, s.latest)
		}
		s.latest = o
	}
	s.rowCount++
	e.cfg.Metrics.rowEmitted(liveMode(s.backtracking))
	return s, nil
}

func (e *Engine) liveDelayNextQuery(s queryState) (time.Duration, bool) {
	return adjustNextDelay(s.rowCount, e.cfg.Settings.BufferSize, e.cfg.Settings.RefreshInterval)
}

// liveNextQuery is the mode-switching state machine. Primary switches to
// backtracking when the tail has been idle for a while, or when the
// primary cursor has outrun the backtracking cursor by more than half
// the backtracking window. Backtracking hands back to primary as soon as
// one of its pages under-fills, meaning the older window is caught up.
func (e *Engine) liveNextQuery(
	entityType string,
	minSlice, maxSlice int,
	logger corelogger.Logger,
) func(queryState) (queryState, *subQuery, error) {
	settings := e.cfg.Settings
	return func(s queryState) (queryState, *subQuery, error) {
		// Only polls that actually ran count towards idleness.
		var idleCount int64
		if s.rowCount == 0 && s.queryCount > 0 {
			idleCount = s.idleCount + 1
		}

		// The backtracking cursor only constrains the primary cursor
		// once backtracking has run; before that the first backtracking
		// query window applies instead.
		backtrackingBehind := !s.latestBacktracking.IsZero() &&
			s.latest.Timestamp.Sub(s.latestBacktracking.Timestamp) > settings.halfBacktrackingWindow()

		var next queryState
		switch {
		case !s.backtracking && settings.BacktrackingEnabled &&
			s.queryCount > 0 && !s.latest.IsZero() &&
			(idleCount >= switchToBacktrackingIdleCount || backtrackingBehind):
			next = s.nextSubQuery(true, idleCount)
			if next.latestBacktracking.IsZero() {
				// The first backtracking query covers the whole window
				// plus the backtracking read horizon.
				next.latestBacktracking = offset.TimestampOffset{
					Timestamp: next.latest.Timestamp.Add(-settings.firstBacktrackingQueryWindow()),
				}
			}
			e.cfg.Metrics.backtrackingSwitch()
			if logger.IsLevelEnabled(corelogger.TRACE) {
				logger.Tracef(context.Background(), "switching to backtracking from %v",
					next.latestBacktracking.Timestamp)
			}

		case s.backtracking && s.rowCount < settings.BufferSize-1:
			next = s.nextSubQuery(false, idleCount)

		default:
			next = s.nextSubQuery(s.backtracking, idleCount)
		}

		if s.queryCount > 0 && s.rowCount == 0 {
			e.cfg.Metrics.idlePoll()
		}

		from := next.nextQueryFromTimestamp()
		to := next.nextQueryToTimestamp()
		backtracking := next.backtracking
		behind := settings.BehindCurrentTime
		if backtracking {
			behind = settings.BacktrackingBehindCurrentTime
		}
		e.cfg.Metrics.subQueryIssued(liveMode(backtracking))

		return next, &subQuery{
			fetch: func(ctx context.Context) ([]journal.Row, error) {
				rows, err := e.cfg.RowSource.RowsBySlices(
					ctx, entityType, minSlice, maxSlice, from, to, behind, backtracking)
				return rows, errors.Trace(err)
			},
			stage: newEnvelopeStage(e.cfg.CreateEnvelope, next.currentOffset()),
		}, nil
	}
}

func liveMode(backtracking bool) string {
	if backtracking {
		return modeBacktracking
	}
	return modeLive
}
