// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package journal holds the row and envelope types that flow between the
// journal tables, the by-slice query engine and its consumers.
package journal

import (
	"time"

	"github.com/slicestream/slicestream/core/offset"
)

// Row is a single persisted journal row as produced by a row source.
// For durable-state tables the sequence number is a revision.
type Row struct {
	// EntityType identifies the family of entities sharing a table.
	EntityType string

	// PersistenceID is the stable identifier of a single entity.
	PersistenceID string

	// SeqNr increases monotonically per persistence id.
	SeqNr int64

	// Slice is the partition key derived from PersistenceID.
	Slice int

	// DBTimestamp is the commit time assigned by the database. It is the
	// source-of-truth ordering key.
	DBTimestamp time.Time

	// ReadDBTimestamp is the database clock at the moment the row was
	// fetched.
	ReadDBTimestamp time.Time

	// Payload and the serializer fields are opaque to the engine. The
	// payload may be absent on rows fetched by a backtracking query.
	Payload     []byte
	SerID       int
	SerManifest string
}

// Envelope is the caller-facing record wrapping a row plus the cumulative
// offset at which it was emitted.
type Envelope interface {
	// Offset returns the cumulative stream offset attached to the
	// envelope. Resuming a stream from this offset does not deliver the
	// rows emitted up to it again, except through the backtracking
	// queries of a live stream, which re-read an older window.
	Offset() offset.TimestampOffset
}

// CreateEnvelopeFunc builds a caller-defined envelope from a row and the
// offset it is emitted at. The returned envelope must round-trip the
// offset through Envelope.Offset.
type CreateEnvelopeFunc func(offset.TimestampOffset, Row) (Envelope, error)

// EventEnvelope is the default envelope implementation.
type EventEnvelope struct {
	EntityType    string
	PersistenceID string
	SeqNr         int64
	Slice         int
	DBTimestamp   time.Time
	Payload       []byte
	SerID         int
	SerManifest   string

	offset offset.TimestampOffset
}

// NewEventEnvelope is a CreateEnvelopeFunc producing EventEnvelopes.
func NewEventEnvelope(o offset.TimestampOffset, row Row) (Envelope, error) {
	return EventEnvelope{
		EntityType:    row.EntityType,
		PersistenceID: row.PersistenceID,
		SeqNr:         row.SeqNr,
		Slice:         row.Slice,
		DBTimestamp:   row.DBTimestamp,
		Payload:       row.Payload,
		SerID:         row.SerID,
		SerManifest:   row.SerManifest,
		offset:        o,
	}, nil
}

// Offset is part of the Envelope interface.
func (e EventEnvelope) Offset() offset.TimestampOffset {
	return e.offset
}
