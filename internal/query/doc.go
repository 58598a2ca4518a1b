// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package query implements the by-slice streaming query engine. It turns
// a time-ordered journal table into an ordered, deduplicated, resumable
// stream of envelopes.
//
// The engine issues bounded sub-queries against a row source and splices
// the resulting pages into one logical stream. Two modes exist:
//
//   - CurrentBySlices walks from an initial offset up to a frozen
//     snapshot of the database clock and completes.
//   - LiveBySlices tails the journal forever, interleaving primary
//     queries near current time with backtracking queries over an older
//     window to recover rows whose commit timestamps landed below the
//     primary cursor due to in-flight transactions or clock skew.
//
// Rows sharing a commit timestamp are disambiguated by the offset's seen
// set, so the primary scan of a stream resumed from a persisted offset
// re-delivers nothing, provided the consumer stores the offsets it is
// handed. Backtracking queries of a live stream re-read an older window
// and may deliver rows again.
package query
