// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package log provides helpers to log messages through a logger carried by
// the context.
package log

import (
	"context"

	"infra/cros/repair/logger"
)

// loggerKeyType is a unique type for a context key.
type loggerKeyType string

const (
	loggerKey loggerKeyType = "repair_logger"
)

// WithLogger sets logger to the context.
// If logger is not provided process will be finished with panic.
func WithLogger(ctx context.Context, log logger.Logger) context.Context {
	if log == nil {
		panic("logger is not provided")
	}
	return context.WithValue(ctx, loggerKey, log)
}

// Get logger from the context. If logger is not set then default logger
// will be used.
func get(ctx context.Context) logger.Logger {
	if log, ok := ctx.Value(loggerKey).(logger.Logger); ok {
		return log
	}
	return logger.NewLogger()
}

// Debugf logs message at Debug level.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	get(ctx).Debugf(format, args...)
}

// Infof logs message at Info level.
func Infof(ctx context.Context, format string, args ...interface{}) {
	get(ctx).Infof(format, args...)
}

// Warningf logs message at Warning level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	get(ctx).Warningf(format, args...)
}

// Errorf logs message at Error level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	get(ctx).Errorf(format, args...)
}

// IndentLogging increments indentation for the logger in the context.
func IndentLogging(ctx context.Context) {
	get(ctx).IndentLogging()
}

// DedentLogging decrements indentation for the logger in the context.
func DedentLogging(ctx context.Context) {
	get(ctx).DedentLogging()
}
