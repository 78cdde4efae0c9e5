// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package repairaction provides the concrete corrective procedures used by
// the repair strategies.
//
// Each constructor takes the node name plus its dependency and trigger
// verifier names, mirroring the (implementation, name, dependencies,
// triggers) rows of the strategy tables, and attaches the behavior of the
// fix.
package repairaction

import (
	"context"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// Wall-clock ceilings for the device to come back after the different fixes.
const (
	// A healthy device boots well within this after a normal reboot.
	normalBootTimeout = 150 * time.Second
	// Powerwash wipes the stateful partition on the way up.
	powerwashBootTimeout = 4 * time.Minute
	// First boot after a recovery install rebuilds the stateful partition.
	usbBootTimeout = 5 * time.Minute
	// Full OS install from the USB-drive in recovery mode.
	installTimeout = 30 * time.Minute
)

// waitForBootAfter waits for the device to come back over SSH after a fix.
//
// SSH is the only gate: not every lab network routes ICMP to the device
// (moblab hosts in particular are not pingable from the drone), so the fix
// is judged by the same channel every strategy verifies.
//
// The failure carries the stable failed_to_boot_after_<name> tag, keyed by
// the action name, so that downstream metrics can tell which fix left the
// device unbootable.
func waitForBootAfter(ctx context.Context, s *engine.Scope, name string, timeout time.Duration) error {
	run := s.DUTRunner()
	if err := cros.WaitUntilSSHable(ctx, timeout, cros.SSHRetryInterval, run); err != nil {
		return errors.Annotate(err, "wait for boot after %s", name).
			Tag(engine.FailureTag("failed_to_boot_after_" + name)).Err()
	}
	// Grab crash dumps while the reason for the fix is still fresh. Best
	// effort only, the repair result does not depend on it.
	if out, err := run(ctx, time.Minute, "ls /var/spool/crash 2>/dev/null | head -20"); err == nil && out != "" {
		log.Debugf(ctx, "Crash dumps present after %s:\n%s", name, out)
	}
	return nil
}

// Pools with this prefix are dedicated to firmware testing. Their devices
// manage firmware through the FAFT repair path instead of the stable-version
// update.
const firmwarePoolPrefix = "faft-"

// isFirmwareTestingDevice tells whether the device is assigned to a
// firmware-testing pool.
func isFirmwareTestingDevice(s *engine.Scope) bool {
	if s.DUT == nil {
		return false
	}
	for _, pool := range s.DUT.Pools {
		if strings.HasPrefix(pool, firmwarePoolPrefix) {
			return true
		}
	}
	return false
}

// applicableWithServo limits the action to devices with a servo attached.
func applicableWithServo(ctx context.Context, s *engine.Scope) bool {
	return s.HasServo()
}
