// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/slicestream/slicestream/core/journal"
	corelogger "github.com/slicestream/slicestream/core/logger"
)

// EngineConfig collects the engine's collaborators and tuning.
type EngineConfig struct {
	// RowSource fetches journal pages.
	RowSource RowSource

	// DatabaseClock supplies the database transaction-time clock.
	DatabaseClock DatabaseClock

	// CreateEnvelope builds caller-defined envelopes. Defaults to
	// journal.NewEventEnvelope.
	CreateEnvelope journal.CreateEnvelopeFunc

	// Clock paces polling delays.
	Clock clock.Clock

	// Logger receives engine diagnostics.
	Logger corelogger.Logger

	// Metrics is optional; when nil no metrics are recorded.
	Metrics *Metrics

	// Settings tunes the engine. DefaultSettings is a good start.
	Settings Settings
}

// Validate ensures the configuration is usable.
func (c EngineConfig) Validate() error {
	if c.RowSource == nil {
		return errors.NotValidf("missing RowSource")
	}
	if c.DatabaseClock == nil {
		return errors.NotValidf("missing DatabaseClock")
	}
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("missing Logger")
	}
	if err := c.Settings.Validate(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Engine builds envelope streams over a journal. An Engine is immutable
// and safe for concurrent use; each stream it returns is a single
// logical consumer with its own state.
type Engine struct {
	cfg EngineConfig
}

// NewEngine returns an engine for the given configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.CreateEnvelope == nil {
		cfg.CreateEnvelope = journal.NewEventEnvelope
	}
	return &Engine{cfg: cfg}, nil
}
