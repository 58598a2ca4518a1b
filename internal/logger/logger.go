// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package logger implements core/logger.Logger on top of loggo. The
// context passed to the logging methods is currently unused, but is part
// of the interface so call sites do not need to change when trace
// propagation is added.
package logger

import (
	"context"

	"github.com/juju/loggo/v2"

	corelogger "github.com/slicestream/slicestream/core/logger"
)

// GetLogger returns a Logger with the given name, backed by the default
// loggo context.
func GetLogger(name string) corelogger.Logger {
	return WrapLoggo(loggo.GetLogger(name))
}

// WrapLoggo adapts a loggo.Logger to the core Logger interface.
func WrapLoggo(logger loggo.Logger) corelogger.Logger {
	return loggoLogger{logger: logger}
}

type loggoLogger struct {
	logger loggo.Logger
}

// Criticalf logs a message at the critical level.
func (c loggoLogger) Criticalf(ctx context.Context, msg string, args ...any) {
	c.logger.Criticalf(msg, args...)
}

// Errorf logs a message at the error level.
func (c loggoLogger) Errorf(ctx context.Context, msg string, args ...any) {
	c.logger.Errorf(msg, args...)
}

// Warningf logs a message at the warning level.
func (c loggoLogger) Warningf(ctx context.Context, msg string, args ...any) {
	c.logger.Warningf(msg, args...)
}

// Infof logs a message at the info level.
func (c loggoLogger) Infof(ctx context.Context, msg string, args ...any) {
	c.logger.Infof(msg, args...)
}

// Debugf logs a message at the debug level.
func (c loggoLogger) Debugf(ctx context.Context, msg string, args ...any) {
	c.logger.Debugf(msg, args...)
}

// Tracef logs a message at the trace level.
func (c loggoLogger) Tracef(ctx context.Context, msg string, args ...any) {
	c.logger.Tracef(msg, args...)
}

// IsLevelEnabled reports whether the given level is enabled.
func (c loggoLogger) IsLevelEnabled(level corelogger.Level) bool {
	return c.logger.IsLevelEnabled(loggo.Level(level))
}

// Child returns a logger with the given name appended to the receiver's
// name.
func (c loggoLogger) Child(name string) corelogger.Logger {
	return loggoLogger{logger: c.logger.Child(name)}
}
