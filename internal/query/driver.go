// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/slicestream/slicestream/core/journal"
)

// subQuery is one bounded page of the stream: a fetch against the row
// source plus a fresh envelope stage seeded from the driver's cursor.
type subQuery struct {
	fetch func(ctx context.Context) ([]journal.Row, error)
	stage *envelopeStage
}

// continuousQuery splices successive sub-queries into one stream. It is
// parameterized over the driver state and three closures; the modes in
// current.go and live.go supply them.
type continuousQuery[S any] struct {
	// updateState folds an emitted envelope into the state.
	updateState func(S, journal.Envelope) (S, error)

	// delayNextQuery returns the pause to apply before the next
	// sub-query, or false for none.
	delayNextQuery func(S) (time.Duration, bool)

	// nextQuery returns the state advanced to the next sub-query and the
	// sub-query itself, or nil to complete the stream.
	nextQuery func(S) (S, *subQuery, error)
}

// run drives the loop until nextQuery returns nil, an error occurs, or
// the context is cancelled. Every envelope is handed to emit, which
// blocks until the downstream consumer accepts it.
func (q continuousQuery[S]) run(
	ctx context.Context,
	clk clock.Clock,
	initial S,
	emit func(journal.Envelope) error,
) error {
	state := initial
	for {
		if delay, ok := q.delayNextQuery(state); ok {
			select {
			case <-clk.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		next, sub, err := q.nextQuery(state)
		if err != nil {
			return errors.Trace(err)
		}
		if sub == nil {
			return nil
		}
		state = next

		rows, err := sub.fetch(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		for _, row := range rows {
			env, emitted, err := sub.stage.apply(row)
			if err != nil {
				return errors.Trace(err)
			}
			if !emitted {
				continue
			}
			if err := emit(env); err != nil {
				return err
			}
			if state, err = q.updateState(state, env); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

// adjustNextDelay paces polling by the yield of the previous sub-query:
// a full page means more rows are likely waiting, so poll immediately;
// an empty page backs off for the whole refresh interval; a partial
// page polls at half the interval.
func adjustNextDelay(rowCount, bufferSize int, refreshInterval time.Duration) (time.Duration, bool) {
	switch {
	case rowCount >= bufferSize:
		return 0, false
	case rowCount == 0:
		return refreshInterval, true
	default:
		return refreshInterval / 2, true
	}
}
