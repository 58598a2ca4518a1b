// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"context"

	corelogger "github.com/slicestream/slicestream/core/logger"
)

// CheckLogger is implemented by *gc.C and *testing.T.
type CheckLogger interface {
	Logf(format string, args ...any)
}

// WrapCheckLog returns a Logger that writes all messages to the given
// checker's log, so test failures show the component's output.
func WrapCheckLog(log CheckLogger) corelogger.Logger {
	return checkLogger{log: log}
}

type checkLogger struct {
	log  CheckLogger
	name string
}

func (c checkLogger) logf(level string, msg string, args ...any) {
	prefix := level
	if c.name != "" {
		prefix = c.name + " " + level
	}
	c.log.Logf(prefix+": "+msg, args...)
}

func (c checkLogger) Criticalf(ctx context.Context, msg string, args ...any) {
	c.logf("CRITICAL", msg, args...)
}

func (c checkLogger) Errorf(ctx context.Context, msg string, args ...any) {
	c.logf("ERROR", msg, args...)
}

func (c checkLogger) Warningf(ctx context.Context, msg string, args ...any) {
	c.logf("WARNING", msg, args...)
}

func (c checkLogger) Infof(ctx context.Context, msg string, args ...any) {
	c.logf("INFO", msg, args...)
}

func (c checkLogger) Debugf(ctx context.Context, msg string, args ...any) {
	c.logf("DEBUG", msg, args...)
}

func (c checkLogger) Tracef(ctx context.Context, msg string, args ...any) {
	c.logf("TRACE", msg, args...)
}

func (c checkLogger) IsLevelEnabled(corelogger.Level) bool { return true }

func (c checkLogger) Child(name string) corelogger.Logger {
	child := c.name
	if child == "" {
		child = name
	} else {
		child = child + "." + name
	}
	return checkLogger{log: c.log, name: child}
}
