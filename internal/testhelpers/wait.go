// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package testhelpers holds constants and helpers shared by the test
// suites.
package testhelpers

import (
	"time"
)

const (
	// LongWait is used when something should have already happened, and
	// waiting any longer would indicate a hang or deadlock.
	LongWait = 10 * time.Second

	// ShortWait is used when verifying that something does not happen.
	ShortWait = 50 * time.Millisecond
)
