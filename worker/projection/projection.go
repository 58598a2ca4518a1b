// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package projection runs a materialized-view projection over a live
// envelope stream. The worker loads the projection's persisted offset,
// opens a live by-slice stream from it, hands every envelope to the
// handler and persists the envelope's offset once handled. Offsets are
// persisted after handling, so delivery is at least once and the
// handler must be idempotent.
package projection

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"github.com/juju/worker/v4/catacomb"

	"github.com/slicestream/slicestream/core/journal"
	corelogger "github.com/slicestream/slicestream/core/logger"
	"github.com/slicestream/slicestream/core/offset"
)

const (
	// handlerRetryAttempts bounds retries of a failing handler before
	// the worker gives up and dies.
	handlerRetryAttempts = 5

	// handlerRetryDelay is the initial delay between handler retries,
	// doubled on each attempt.
	handlerRetryDelay = 100 * time.Millisecond
)

// EnvelopeStream is the part of an engine stream the worker consumes.
type EnvelopeStream interface {
	// Kill and Wait are the worker.Worker lifecycle methods.
	Kill()
	Wait() error

	// Envelopes delivers the stream's envelopes. It is closed when the
	// stream stops.
	Envelopes() <-chan journal.Envelope
}

// Handler applies one envelope to the materialized view.
type Handler interface {
	// HandleEnvelope processes the envelope. It is retried on error, so
	// it must be idempotent.
	HandleEnvelope(ctx context.Context, env journal.Envelope) error
}

// OffsetStore persists the projection's cursor.
type OffsetStore interface {
	// LoadOffset returns the projection's saved cursor, or the zero
	// offset when none exists.
	LoadOffset(ctx context.Context, projectionName string) (offset.TimestampOffset, error)

	// SaveOffset records the projection's cursor.
	SaveOffset(ctx context.Context, projectionName string, o offset.TimestampOffset) error
}

// NewStreamFunc opens a live stream from the given offset.
type NewStreamFunc func(initialOffset offset.TimestampOffset) (EnvelopeStream, error)

// Config encapsulates the projection worker's dependencies.
type Config struct {
	// Name identifies the projection; it keys the persisted offset.
	Name string

	// NewStream opens the envelope stream the projection consumes.
	NewStream NewStreamFunc

	// Offsets persists the projection's cursor.
	Offsets OffsetStore

	// Handler applies envelopes to the view.
	Handler Handler

	Clock  clock.Clock
	Logger corelogger.Logger
}

// Validate ensures the config values are usable.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.NotValidf("empty Name")
	}
	if c.NewStream == nil {
		return errors.NotValidf("missing NewStream")
	}
	if c.Offsets == nil {
		return errors.NotValidf("missing Offsets")
	}
	if c.Handler == nil {
		return errors.NotValidf("missing Handler")
	}
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("missing Logger")
	}
	return nil
}

// Worker drives one projection.
type Worker struct {
	catacomb catacomb.Catacomb
	cfg      Config
}

// NewWorker starts a projection worker. The caller is responsible for
// killing it and handling the error from Wait.
func NewWorker(cfg Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{cfg: cfg}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

func (w *Worker) loop() error {
	ctx, cancel := w.scopedContext()
	defer cancel()

	initial, err := w.cfg.Offsets.LoadOffset(ctx, w.cfg.Name)
	if err != nil {
		return errors.Trace(err)
	}
	w.cfg.Logger.Infof(ctx, "projection %q resuming from %v", w.cfg.Name, initial.Timestamp)

	stream, err := w.cfg.NewStream(initial)
	if err != nil {
		return errors.Trace(err)
	}
	if err := w.catacomb.Add(stream); err != nil {
		return errors.Trace(err)
	}

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()

		case env, ok := <-stream.Envelopes():
			if !ok {
				// The stream has either failed or been killed alongside
				// the catacomb; a live stream never completes on its own.
				if err := stream.Wait(); err != nil {
					return errors.Annotatef(err, "projection %q stream", w.cfg.Name)
				}
				select {
				case <-w.catacomb.Dying():
					return w.catacomb.ErrDying()
				default:
					return errors.Errorf("projection %q stream completed unexpectedly", w.cfg.Name)
				}
			}
			if err := w.handle(ctx, env); err != nil {
				return errors.Trace(err)
			}
			if err := w.cfg.Offsets.SaveOffset(ctx, w.cfg.Name, env.Offset()); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

// handle applies the envelope, retrying transient handler failures with
// exponential backoff.
func (w *Worker) handle(ctx context.Context, env journal.Envelope) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return w.cfg.Handler.HandleEnvelope(ctx, env)
		},
		NotifyFunc: func(lastError error, attempt int) {
			w.cfg.Logger.Warningf(ctx, "projection %q handler attempt %d failed: %v",
				w.cfg.Name, attempt, lastError)
		},
		Attempts:    handlerRetryAttempts,
		Delay:       handlerRetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       w.cfg.Clock,
		Stop:        w.catacomb.Dying(),
	})
	return errors.Annotatef(err, "projection %q handler", w.cfg.Name)
}

func (w *Worker) scopedContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(w.catacomb.Context(context.Background()))
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}
