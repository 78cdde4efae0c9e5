// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package components provides shared types used to interact with the devices
// from verifiers and repair actions.
package components

import (
	"context"
	"time"

	"go.chromium.org/chromiumos/config/go/api/test/xmlrpc"
	"go.chromium.org/luci/common/errors"
)

// Runner defines the type for a function that will execute a command on a
// host and return the resulting stdout with whitespace trimmed.
type Runner func(ctx context.Context, timeout time.Duration, cmd string, args ...string) (string, error)

// Pinger defines the type for a function that will ping a host with the
// requested count of packets.
type Pinger func(ctx context.Context, count int) error

// Servod defines the interface to communicate with the servod daemon.
type Servod interface {
	// Get reads the value of the requested control.
	Get(ctx context.Context, control string) (*xmlrpc.Value, error)
	// Set sets the value for the requested control.
	Set(ctx context.Context, control string, val *xmlrpc.Value) error
	// Has checks whether the control is known by the daemon.
	// Returns an error tagged with tlw.ServodControlUnknownTag when not.
	Has(ctx context.Context, control string) error
	// Port provides the port used for running the servod daemon.
	Port() int
}

// Error tags applied to command execution failures based on exit codes.
var (
	// 127: linux command line error of command not found.
	SSHErrorCLINotFound = errors.BoolTag{Key: errors.NewTagKey("ssh_error_cli_not_found")}
	// Other linux error tag.
	GeneralError = errors.BoolTag{Key: errors.NewTagKey("general_error")}
	// Internal error tag.
	SSHErrorInternal = errors.BoolTag{Key: errors.NewTagKey("ssh_error_internal")}
	// -1: fail to create ssh session.
	FailToCreateSSHErrorInternal = errors.BoolTag{Key: errors.NewTagKey("fail_to_create_ssh_error_internal")}
	// -2: session is down, but the server sends no confirmation of the exit status.
	NoExitStatusErrorInternal = errors.BoolTag{Key: errors.NewTagKey("no_exit_status_error_internal")}
)
