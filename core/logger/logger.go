// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package logger

import (
	"context"
)

// Level represents the log level.
type Level int

// The severity levels, in ascending order.
const (
	UNSPECIFIED Level = iota
	TRACE
	DEBUG
	INFO
	WARNING
	ERROR
	CRITICAL
)

// Logger is an interface that provides logging methods. Messages are
// formatted fmt.Sprintf style. The context is threaded through so that
// implementations can attach trace information to the record.
type Logger interface {
	// Criticalf logs a message at the critical level.
	Criticalf(ctx context.Context, msg string, args ...any)

	// Errorf logs a message at the error level.
	Errorf(ctx context.Context, msg string, args ...any)

	// Warningf logs a message at the warning level.
	Warningf(ctx context.Context, msg string, args ...any)

	// Infof logs a message at the info level.
	Infof(ctx context.Context, msg string, args ...any)

	// Debugf logs a message at the debug level.
	Debugf(ctx context.Context, msg string, args ...any)

	// Tracef logs a message at the trace level.
	Tracef(ctx context.Context, msg string, args ...any)

	// IsLevelEnabled reports whether the given level will be emitted by
	// this logger. Use it to guard expensive message construction.
	IsLevelEnabled(Level) bool

	// Child returns a logger whose name is the receiver's name with the
	// given name appended, separated by a period.
	Child(name string) Logger
}
