// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package offset holds the resumable cursor type emitted by the by-slice
// query engine. The cursor is a database timestamp plus the set of
// (persistence id, sequence number) pairs already emitted at exactly that
// timestamp, which is the minimal history needed to filter duplicates
// when a stream is resumed with an inclusive timestamp predicate.
package offset

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
)

// epoch is the canonical timestamp of the zero offset.
var epoch = time.Unix(0, 0).UTC()

// TimestampOffset is the cumulative cursor of an envelope stream.
type TimestampOffset struct {
	// Timestamp is the largest database commit timestamp observed so far
	// on the stream.
	Timestamp time.Time `json:"timestamp"`

	// ReadTimestamp is the read-side database clock at the moment the row
	// carrying Timestamp was fetched.
	ReadTimestamp time.Time `json:"read_timestamp"`

	// Seen maps persistence id to the largest sequence number emitted for
	// it at exactly Timestamp. Entries for earlier timestamps are never
	// retained.
	Seen map[string]int64 `json:"seen,omitempty"`
}

// Zero is the offset from which a stream reads the full journal.
var Zero = TimestampOffset{Timestamp: epoch}

// New returns an offset for the given timestamps and seen set. The seen
// map is copied.
func New(timestamp, readTimestamp time.Time, seen map[string]int64) TimestampOffset {
	return TimestampOffset{
		Timestamp:     timestamp,
		ReadTimestamp: readTimestamp,
		Seen:          copySeen(seen),
	}
}

// IsZero reports whether the offset is the canonical zero value, or a
// default-constructed equivalent.
func (o TimestampOffset) IsZero() bool {
	return (o.Timestamp.IsZero() || o.Timestamp.Equal(epoch)) && len(o.Seen) == 0
}

// String renders the offset with a stable ordering of the seen set.
func (o TimestampOffset) String() string {
	ids := make([]string, 0, len(o.Seen))
	for id := range o.Seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s->%d", id, o.Seen[id])
	}
	return fmt.Sprintf("TimestampOffset(%s, seen=[%s])", o.Timestamp.UTC().Format(time.RFC3339Nano), b.String())
}

// Coerce converts a caller-supplied opaque offset to a TimestampOffset.
// Nil and empty values coerce to Zero.
func Coerce(v any) (TimestampOffset, error) {
	switch o := v.(type) {
	case nil:
		return Zero, nil
	case TimestampOffset:
		if o.IsZero() {
			return Zero, nil
		}
		return o, nil
	case *TimestampOffset:
		if o == nil || o.IsZero() {
			return Zero, nil
		}
		return *o, nil
	default:
		return Zero, errors.NotValidf("offset of type %T", v)
	}
}

func copySeen(seen map[string]int64) map[string]int64 {
	if len(seen) == 0 {
		return nil
	}
	out := make(map[string]int64, len(seen))
	for id, seqNr := range seen {
		out[id] = seqNr
	}
	return out
}
