// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package projection

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/slicestream/slicestream/core/journal"
	"github.com/slicestream/slicestream/core/offset"
	loggertesting "github.com/slicestream/slicestream/internal/logger/testing"
	"github.com/slicestream/slicestream/internal/testhelpers"
)

type projectionSuite struct {
	testing.IsolationSuite

	clock   *testclock.Clock
	stream  *stubStream
	offsets *stubOffsets
	handler *stubHandler

	streamedFrom chan offset.TimestampOffset
}

var _ = gc.Suite(&projectionSuite{})

func (s *projectionSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Now())
	s.stream = newStubStream()
	s.offsets = newStubOffsets()
	s.handler = newStubHandler()
	s.streamedFrom = make(chan offset.TimestampOffset, 1)
}

func (s *projectionSuite) config(c *gc.C) Config {
	return Config{
		Name: "daily-totals",
		NewStream: func(initial offset.TimestampOffset) (EnvelopeStream, error) {
			s.streamedFrom <- initial
			return s.stream, nil
		},
		Offsets: s.offsets,
		Handler: s.handler,
		Clock:   s.clock,
		Logger:  loggertesting.WrapCheckLog(c),
	}
}

func (s *projectionSuite) newWorker(c *gc.C) *Worker {
	w, err := NewWorker(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	return w
}

func env(c *gc.C, persistenceID string, seqNr int64, ts time.Time) journal.Envelope {
	e, err := journal.NewEventEnvelope(
		offset.New(ts, ts, map[string]int64{persistenceID: seqNr}),
		journal.Row{
			EntityType:    "Order",
			PersistenceID: persistenceID,
			SeqNr:         seqNr,
			DBTimestamp:   ts,
		})
	c.Assert(err, jc.ErrorIsNil)
	return e
}

func (s *projectionSuite) TestConfigValidation(c *gc.C) {
	tests := []struct {
		corrupt  func(*Config)
		expected string
	}{{
		corrupt:  func(cfg *Config) { cfg.Name = "" },
		expected: "empty Name not valid",
	}, {
		corrupt:  func(cfg *Config) { cfg.NewStream = nil },
		expected: "missing NewStream not valid",
	}, {
		corrupt:  func(cfg *Config) { cfg.Offsets = nil },
		expected: "missing Offsets not valid",
	}, {
		corrupt:  func(cfg *Config) { cfg.Handler = nil },
		expected: "missing Handler not valid",
	}, {
		corrupt:  func(cfg *Config) { cfg.Clock = nil },
		expected: "missing Clock not valid",
	}, {
		corrupt:  func(cfg *Config) { cfg.Logger = nil },
		expected: "missing Logger not valid",
	}}
	for i, test := range tests {
		cfg := s.config(c)
		test.corrupt(&cfg)
		_, err := NewWorker(cfg)
		c.Check(err, gc.ErrorMatches, test.expected, gc.Commentf("test %d", i))
	}
}

func (s *projectionSuite) TestResumesFromSavedOffset(c *gc.C) {
	saved := offset.New(time.Unix(500, 0).UTC(), time.Unix(500, 0).UTC(), map[string]int64{"order|1": 3})
	s.offsets.setLoaded(saved)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	select {
	case initial := <-s.streamedFrom:
		c.Check(initial, jc.DeepEquals, saved)
	case <-time.After(testhelpers.LongWait):
		c.Fatal("timed out waiting for the stream to open")
	}
}

func (s *projectionSuite) TestHandlesAndPersistsOffsets(c *gc.C) {
	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	e1 := env(c, "order|1", 1, time.Unix(100, 0).UTC())
	e2 := env(c, "order|1", 2, time.Unix(200, 0).UTC())
	s.stream.send(c, e1)
	s.stream.send(c, e2)

	s.handler.waitHandled(c, 2)
	got := s.offsets.waitSaved(c, 2)
	c.Check(got[0], jc.DeepEquals, e1.Offset())
	c.Check(got[1], jc.DeepEquals, e2.Offset())
}

func (s *projectionSuite) TestTransientHandlerFailureIsRetried(c *gc.C) {
	s.handler.failTimes(2)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	e1 := env(c, "order|1", 1, time.Unix(100, 0).UTC())
	s.stream.send(c, e1)

	// Two failures mean two backoff sleeps before the third attempt
	// succeeds.
	c.Assert(s.clock.WaitAdvance(100*time.Millisecond, testhelpers.LongWait, 1), jc.ErrorIsNil)
	c.Assert(s.clock.WaitAdvance(200*time.Millisecond, testhelpers.LongWait, 1), jc.ErrorIsNil)

	s.handler.waitHandled(c, 1)
	got := s.offsets.waitSaved(c, 1)
	c.Check(got[0], jc.DeepEquals, e1.Offset())
}

func (s *projectionSuite) TestPersistentHandlerFailureKillsWorker(c *gc.C) {
	s.handler.failTimes(1000)

	w := s.newWorker(c)
	defer workertest.DirtyKill(c, w)

	s.stream.send(c, env(c, "order|1", 1, time.Unix(100, 0).UTC()))

	delay := 100 * time.Millisecond
	for i := 0; i < handlerRetryAttempts-1; i++ {
		c.Assert(s.clock.WaitAdvance(delay, testhelpers.LongWait, 1), jc.ErrorIsNil)
		delay *= 2
	}

	err := workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, `projection "daily-totals" handler: attempt count exceeded: transient`)
	c.Check(s.offsets.savedCount(), gc.Equals, 0)
}

func (s *projectionSuite) TestStreamFailureKillsWorker(c *gc.C) {
	w := s.newWorker(c)
	defer workertest.DirtyKill(c, w)

	s.stream.fail(errors.New("journal unavailable"))

	// The loop and the catacomb both observe the stream's death; either
	// report carries the cause.
	err := workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, `(projection "daily-totals" stream: )?journal unavailable`)
}

func (s *projectionSuite) TestLoadOffsetFailureKillsWorker(c *gc.C) {
	s.offsets.loadErr = errors.New("table missing")

	w, err := NewWorker(s.config(c))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.DirtyKill(c, w)

	err = workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "table missing")
}

func (s *projectionSuite) TestKillStopsStream(c *gc.C) {
	w := s.newWorker(c)

	// Wait for the stream to be opened before killing.
	select {
	case <-s.streamedFrom:
	case <-time.After(testhelpers.LongWait):
		c.Fatal("timed out waiting for the stream to open")
	}
	workertest.CleanKill(c, w)

	select {
	case <-s.stream.done:
	case <-time.After(testhelpers.LongWait):
		c.Fatal("timed out waiting for the stream to be killed")
	}
}

type stubStream struct {
	out  chan journal.Envelope
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func newStubStream() *stubStream {
	return &stubStream{
		out:  make(chan journal.Envelope),
		done: make(chan struct{}),
	}
}

func (s *stubStream) send(c *gc.C, env journal.Envelope) {
	select {
	case s.out <- env:
	case <-time.After(testhelpers.LongWait):
		c.Fatal("timed out sending envelope")
	}
}

func (s *stubStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() {
		close(s.done)
		close(s.out)
	})
}

func (s *stubStream) Envelopes() <-chan journal.Envelope {
	return s.out
}

func (s *stubStream) Kill() {
	s.once.Do(func() {
		close(s.done)
		close(s.out)
	})
}

func (s *stubStream) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type stubOffsets struct {
	mu      sync.Mutex
	loaded  offset.TimestampOffset
	loadErr error
	saved   []offset.TimestampOffset
	saves   chan offset.TimestampOffset
}

func newStubOffsets() *stubOffsets {
	return &stubOffsets{
		saves: make(chan offset.TimestampOffset, 100),
	}
}

func (s *stubOffsets) setLoaded(o offset.TimestampOffset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = o
}

func (s *stubOffsets) LoadOffset(ctx context.Context, name string) (offset.TimestampOffset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded, s.loadErr
}

func (s *stubOffsets) SaveOffset(ctx context.Context, name string, o offset.TimestampOffset) error {
	s.mu.Lock()
	s.saved = append(s.saved, o)
	s.mu.Unlock()
	s.saves <- o
	return nil
}

func (s *stubOffsets) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *stubOffsets) waitSaved(c *gc.C, n int) []offset.TimestampOffset {
	var out []offset.TimestampOffset
	timeout := time.After(testhelpers.LongWait)
	for len(out) < n {
		select {
		case o := <-s.saves:
			out = append(out, o)
		case <-timeout:
			c.Fatalf("timed out after %d saved offsets, want %d", len(out), n)
		}
	}
	return out
}

type stubHandler struct {
	mu       sync.Mutex
	failures int
	handled  []journal.Envelope
	handles  chan journal.Envelope
}

func newStubHandler() *stubHandler {
	return &stubHandler{
		handles: make(chan journal.Envelope, 100),
	}
}

func (s *stubHandler) failTimes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

func (s *stubHandler) HandleEnvelope(ctx context.Context, env journal.Envelope) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("transient")
	}
	s.handled = append(s.handled, env)
	s.mu.Unlock()
	s.handles <- env
	return nil
}

func (s *stubHandler) waitHandled(c *gc.C, n int) {
	timeout := time.After(testhelpers.LongWait)
	for i := 0; i < n; i++ {
		select {
		case <-s.handles:
		case <-timeout:
			c.Fatalf("timed out after %d handled envelopes, want %d", i, n)
		}
	}
}
