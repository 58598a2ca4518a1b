// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/slicestream/slicestream/core/journal"
	"github.com/slicestream/slicestream/core/offset"
)

type deserializeSuite struct{}

var _ = gc.Suite(&deserializeSuite{})

func (s *deserializeSuite) TestDropsRowAlreadySeenAtSameTimestamp(c *gc.C) {
	// Resuming at t with seen {A->1} must drop A's row and emit B's,
	// with B folded into the seen set.
	initial := offset.New(at(100), at(100), map[string]int64{"A": 1})
	stage := newEnvelopeStage(journal.NewEventEnvelope, initial)

	_, emitted, err := stage.apply(row("A", 1, at(100)))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(emitted, jc.IsFalse)

	env, emitted, err := stage.apply(row("B", 1, at(100)))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(emitted, jc.IsTrue)

	o := env.Offset()
	c.Check(o.Timestamp.Equal(at(100)), jc.IsTrue)
	c.Check(o.Seen, jc.DeepEquals, map[string]int64{"A": 1, "B": 1})
}

func (s *deserializeSuite) TestTimestampAdvanceResetsSeen(c *gc.C) {
	stage := newEnvelopeStage(journal.NewEventEnvelope, offset.Zero)

	env, emitted, err := stage.apply(row("A", 1, at(100)))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(emitted, jc.IsTrue)
	c.Check(env.Offset().Timestamp.Equal(at(100)), jc.IsTrue)
	c.Check(env.Offset().Seen, jc.DeepEquals, map[string]int64{"A": 1})

	env, emitted, err = stage.apply(row("A", 2, at(101)))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(emitted, jc.IsTrue)
	c.Check(env.Offset().Timestamp.Equal(at(101)), jc.IsTrue)
	c.Check(env.Offset().Seen, jc.DeepEquals, map[string]int64{"A": 2})
}

func (s *deserializeSuite) TestDropsEarlierSeqNrAtSameTimestamp(c *gc.C) {
	initial := offset.New(at(100), at(100), map[string]int64{"A": 5})
	stage := newEnvelopeStage(journal.NewEventEnvelope, initial)

	_, emitted, err := stage.apply(row("A", 4, at(100)))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(emitted, jc.IsFalse)

	env, emitted, err := stage.apply(row("A", 6, at(100)))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(emitted, jc.IsTrue)
	c.Check(env.Offset().Seen, jc.DeepEquals, map[string]int64{"A": 6})
}

func (s *deserializeSuite) TestEmittedOffsetIsSnapshot(c *gc.C) {
	// The seen map attached to an envelope must not alias the stage's
	// working map.
	stage := newEnvelopeStage(journal.NewEventEnvelope, offset.Zero)

	env1, _, err := stage.apply(row("A", 1, at(100)))
	c.Assert(err, jc.ErrorIsNil)
	_, _, err = stage.apply(row("B", 1, at(100)))
	c.Assert(err, jc.ErrorIsNil)

	c.Check(env1.Offset().Seen, jc.DeepEquals, map[string]int64{"A": 1})
}

func (s *deserializeSuite) TestTiesBrokenBySeqNrAreAllEmitted(c *gc.C) {
	stage := newEnvelopeStage(journal.NewEventEnvelope, offset.Zero)

	for i, r := range []journal.Row{
		row("A", 1, at(100)),
		row("A", 2, at(100)),
		row("A", 3, at(100)),
	} {
		env, emitted, err := stage.apply(r)
		c.Assert(err, jc.ErrorIsNil)
		c.Assert(emitted, jc.IsTrue, gc.Commentf("row %d", i))
		c.Check(env.Offset().Seen["A"], gc.Equals, int64(i+1))
	}
}
