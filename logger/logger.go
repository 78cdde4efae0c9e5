// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package logger provides an abstract representation of logging interfaces
// used by the repair library.
package logger

import (
	"log"
	"strings"
)

// Logger represents a simple interface for logging data.
type Logger interface {
	// Debugf log message at Debug level.
	Debugf(format string, args ...interface{})
	// Infof is like Debugf, but logs at Info level.
	Infof(format string, args ...interface{})
	// Warningf is like Debugf, but logs at Warning level.
	Warningf(format string, args ...interface{})
	// Errorf is like Debugf, but logs at Error level.
	Errorf(format string, args ...interface{})
	// IndentLogging increments indentation for the logger.
	IndentLogging()
	// DedentLogging decrements indentation for the logger.
	DedentLogging()
}

// NewLogger creates a default logger backed by the standard log package.
func NewLogger() Logger {
	return &stdLogger{}
}

// stdLogger provides default implementation of Logger interface.
type stdLogger struct {
	indentation int
}

// Debugf log message at Debug level.
func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.print(format, args...)
}

// Infof is like Debugf, but logs at Info level.
func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.print(format, args...)
}

// Warningf is like Debugf, but logs at Warning level.
func (l *stdLogger) Warningf(format string, args ...interface{}) {
	l.print(format, args...)
}

// Errorf is like Debugf, but logs at Error level.
func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.print(format, args...)
}

// IndentLogging increments indentation for the logger.
func (l *stdLogger) IndentLogging() {
	l.indentation++
}

// DedentLogging decrements indentation for the logger.
func (l *stdLogger) DedentLogging() {
	if l.indentation > 0 {
		l.indentation--
	}
}

// Default logging logic for all levels.
func (l *stdLogger) print(format string, args ...interface{}) {
	log.Printf(strings.Repeat("\t", l.indentation)+format, args...)
}
