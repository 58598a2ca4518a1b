// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package query

import (
	"time"

	"github.com/juju/errors"
)

// Settings are the tuning knobs of the engine. The zero value is not
// usable; start from DefaultSettings.
type Settings struct {
	// BufferSize is the maximum number of rows fetched by one sub-query.
	BufferSize int

	// RefreshInterval is the base poll interval when a sub-query returned
	// no rows. A partially filled sub-query polls at half this interval.
	RefreshInterval time.Duration

	// BehindCurrentTime excludes rows newer than the database clock minus
	// this duration from primary queries, tolerating transactions that
	// have obtained their commit timestamp but not yet committed.
	BehindCurrentTime time.Duration

	// BacktrackingEnabled turns the secondary scan over an older window
	// on or off.
	BacktrackingEnabled bool

	// BacktrackingBehindCurrentTime is the read horizon of backtracking
	// queries, larger than BehindCurrentTime.
	BacktrackingBehindCurrentTime time.Duration

	// BacktrackingWindow is the rolling temporal span revisited by
	// backtracking queries.
	BacktrackingWindow time.Duration
}

// DefaultSettings returns the settings used in production deployments.
func DefaultSettings() Settings {
	return Settings{
		BufferSize:                    1000,
		RefreshInterval:               3 * time.Second,
		BehindCurrentTime:             100 * time.Millisecond,
		BacktrackingEnabled:           true,
		BacktrackingBehindCurrentTime: 10 * time.Second,
		BacktrackingWindow:            2 * time.Minute,
	}
}

// Validate ensures the settings are usable.
func (s Settings) Validate() error {
	if s.BufferSize <= 0 {
		return errors.NotValidf("non-positive BufferSize")
	}
	if s.RefreshInterval < 0 {
		return errors.NotValidf("negative RefreshInterval")
	}
	if s.BehindCurrentTime < 0 {
		return errors.NotValidf("negative BehindCurrentTime")
	}
	if s.BacktrackingEnabled {
		if s.BacktrackingBehindCurrentTime < 0 {
			return errors.NotValidf("negative BacktrackingBehindCurrentTime")
		}
		if s.BacktrackingWindow <= 0 {
			return errors.NotValidf("non-positive BacktrackingWindow")
		}
	}
	return nil
}

// halfBacktrackingWindow is the distance the primary cursor may advance
// past the backtracking cursor before a backtracking query is forced.
func (s Settings) halfBacktrackingWindow() time.Duration {
	return s.BacktrackingWindow / 2
}

// firstBacktrackingQueryWindow is the span of the first backtracking
// query: the backtracking window plus the backtracking read horizon.
func (s Settings) firstBacktrackingQueryWindow() time.Duration {
	return s.BacktrackingWindow + s.BacktrackingBehindCurrentTime
}
