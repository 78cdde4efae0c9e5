// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package engine

import (
	"context"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/components/servo"
	"infra/cros/repair/internal/log"
	"infra/cros/repair/tlw"
)

// Scope holds the data shared by all verifiers and repair actions of one
// strategy run against one device.
type Scope struct {
	// Access to the lab layer.
	Access tlw.Access
	// Resource name of the device under repair.
	ResourceName string
	// Device info read from the inventory at the start of the run. Nodes
	// mutate it in place; the caller persists it at the end of the run.
	DUT *tlw.Dut
	// Whether repair actions are allowed to run. When false the run is
	// verify-only.
	EnableRepair bool
	// Set when the device was booted in recovery mode from the USB-drive
	// during this run. Consumed by the post-install actions which only make
	// sense after such a boot.
	BootedFromRecovery bool
}

// NewRunner returns a runner for executing commands on the named resource
// over SSH.
//
// Shell operators are allowed inside the command string: the command and
// arguments are joined and interpreted by the remote shell. The error is
// tagged based on the exit code so callers can tell a missing binary from a
// dead session.
func (s *Scope) NewRunner(resource string) components.Runner {
	return func(ctx context.Context, timeout time.Duration, cmd string, args ...string) (string, error) {
		fullCmd := cmd
		if len(args) > 0 {
			fullCmd += " " + strings.Join(args, " ")
		}
		log.Debugf(ctx, "Run command %q on %q with timeout %s.", fullCmd, resource, timeout)
		r := s.Access.Run(ctx, resource, timeout, cmd, args...)
		log.Debugf(ctx, "Run command %q: exit code %d.", fullCmd, r.ExitCode)
		out := strings.TrimSpace(r.Stdout)
		if r.ExitCode == 0 {
			return out, nil
		}
		errAnnotator := errors.Reason("runner: command %q completed with exit code %d: %s", fullCmd, r.ExitCode, strings.TrimSpace(r.Stderr))
		switch r.ExitCode {
		case 124:
			errAnnotator.Tag(TimeoutTag)
		case 127:
			errAnnotator.Tag(components.SSHErrorCLINotFound)
		case -1:
			errAnnotator.Tag(components.FailToCreateSSHErrorInternal)
		case -2:
			errAnnotator.Tag(components.NoExitStatusErrorInternal)
		default:
			errAnnotator.Tag(components.GeneralError)
		}
		return out, errAnnotator.Err()
	}
}

// DUTRunner returns a runner for executing commands on the device under
// repair.
func (s *Scope) DUTRunner() components.Runner {
	return s.NewRunner(s.ResourceName)
}

// ServoHostRunner returns a runner for executing commands on the servo-host
// of the device, or nil when the device has no servo.
func (s *Scope) ServoHostRunner() components.Runner {
	if s.DUT == nil || s.DUT.ServoHost == nil {
		return nil
	}
	return s.NewRunner(s.DUT.ServoHost.Name)
}

// DUTPinger returns a pinger which pings the device under repair.
func (s *Scope) DUTPinger() components.Pinger {
	return func(ctx context.Context, count int) error {
		err := s.Access.Ping(ctx, s.ResourceName, count)
		return errors.Annotate(err, "pinger for %q", s.ResourceName).Err()
	}
}

// Servod returns the servod handle of the device, or nil when the device has
// no servo.
func (s *Scope) Servod() components.Servod {
	if s.DUT == nil || s.DUT.ServoHost == nil {
		return nil
	}
	return servo.NewServod(s.Access, s.ResourceName, s.DUT.ServoHost.ServodPort)
}

// HasServo tells whether the device has a servo attached per inventory.
func (s *Scope) HasServo() bool {
	return s.DUT != nil && s.DUT.ServoHost != nil && s.DUT.ServoHost.Name != ""
}

// ServoType provides the servo type string, empty when no servo is attached.
func (s *Scope) ServoType() string {
	if !s.HasServo() {
		return ""
	}
	return s.DUT.ServoHost.ServoType
}
