// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"context"
	"errors"

	"gopkg.in/tomb.v2"

	"github.com/slicestream/slicestream/core/journal"
)

// Stream delivers envelopes to a single consumer. It implements
// worker.Worker: Kill stops the stream and Wait reports how it ended. A
// finite stream closes its channel and Wait returns nil; a failed
// stream's error is available from Wait after the channel closes.
//
// The envelope channel is unbuffered, so a slow consumer exerts
// backpressure all the way down to the row source: no sub-query is
// issued while an envelope is waiting to be accepted.
type Stream struct {
	tomb tomb.Tomb
	out  chan journal.Envelope
}

// newStream runs the given loop on the stream's goroutine. The loop's
// context is cancelled when the stream is killed.
func newStream(run func(ctx context.Context, emit func(journal.Envelope) error) error) *Stream {
	s := &Stream{
		out: make(chan journal.Envelope),
	}
	s.tomb.Go(func() error {
		defer close(s.out)

		ctx := s.tomb.Context(context.Background())
		err := run(ctx, s.emit)
		if err != nil && !s.tomb.Alive() && errors.Is(err, context.Canceled) {
			// Downstream cancellation is a quiet completion.
			return tomb.ErrDying
		}
		return err
	})
	return s
}

func (s *Stream) emit(env journal.Envelope) error {
	select {
	case s.out <- env:
		return nil
	case <-s.tomb.Dying():
		return tomb.ErrDying
	}
}

// Envelopes returns the channel envelopes are delivered on. It is closed
// when the stream stops for any reason.
func (s *Stream) Envelopes() <-chan journal.Envelope {
	return s.out
}

// Kill is part of the worker.Worker interface.
func (s *Stream) Kill() {
	s.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (s *Stream) Wait() error {
	return s.tomb.Wait()
}
