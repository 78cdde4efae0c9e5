// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cros

import (
	"context"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/components/servo"
	"infra/cros/repair/internal/log"
)

// BootInRecoveryRequest holds info to boot a device in recovery mode.
type BootInRecoveryRequest struct {
	// Booting time values to verify when the device has booted and is
	// available for SSH.
	BootTimeout  time.Duration
	BootInterval time.Duration
	// Callback to run when the device has booted in recovery mode.
	Callback func(context.Context) error
	// Timeout to halt the device at the end.
	HaltTimeout time.Duration
	// Do not fail when the closing reboot sequence fails.
	IgnoreRebootFailure bool
}

// RecoveryModeRequiredPDOff tells whether booting in recovery mode requires
// the servo to stop delivering power first.
//
// For servo v4/v4p1 working through type-c the power delivery has to be
// switched to sink, otherwise the DUT treats the servo as AC and refuses to
// enter recovery.
func RecoveryModeRequiredPDOff(ctx context.Context, servod components.Servod, servoType string) (bool, error) {
	if !strings.Contains(servoType, "servo_v4") {
		return false, nil
	}
	connType, err := servo.GetString(ctx, servod, "root.dut_connection_type")
	if err != nil {
		if servo.IsControlUnknown(err) {
			return false, nil
		}
		return false, errors.Annotate(err, "recovery mode required pd off").Err()
	}
	return connType == "type-c", nil
}

// BootInRecoveryMode boots the device in recovery mode from the USB-drive
// attached to the servo.
//
// Boot in recovery mode is performed by RO firmware and in some cases
// requires stopping PD negotiation. Specify a callback to perform the needed
// actions when the device has booted in recovery mode.
func BootInRecoveryMode(ctx context.Context, req *BootInRecoveryRequest, dutRun components.Runner, dutPing components.Pinger, servod components.Servod, servoType string) error {
	needSink, err := RecoveryModeRequiredPDOff(ctx, servod, servoType)
	if err != nil {
		return errors.Annotate(err, "boot in recovery mode").Err()
	}
	log.Debugf(ctx, "Boot in recovery mode: need to switch PD to sink: %t", needSink)
	// Turn power off.
	if err := servo.SetPowerState(ctx, servod, servo.PowerStateValueOFF); err != nil {
		return errors.Annotate(err, "boot in recovery mode").Err()
	}
	// Switch the USB to the DUT on the servo multiplexer.
	if err := servo.UpdateUSBVisibility(ctx, servod, servo.USBVisibleDUT); err != nil {
		return errors.Annotate(err, "boot in recovery mode").Err()
	}
	// For servo v4, switch power delivery to sink mode.
	if needSink {
		if err := servo.SetPDRole(ctx, servod, servo.PDRoleSnk); err != nil {
			return errors.Annotate(err, "boot in recovery mode").Err()
		}
	}
	closing := func() error {
		// Return the setup to the normal state.
		// All steps have to run even when the DUT is left unbootable.
		if _, err := dutRun(ctx, req.HaltTimeout, "halt"); err != nil {
			log.Debugf(ctx, "Boot in recovery mode: halt failed: %s", err)
		}
		if err := servo.SetPowerState(ctx, servod, servo.PowerStateValueOFF); err != nil {
			return errors.Annotate(err, "boot in recovery mode: closing").Err()
		}
		if err := servo.UpdateUSBVisibility(ctx, servod, servo.USBVisibleOff); err != nil {
			return errors.Annotate(err, "boot in recovery mode: closing").Err()
		}
		if needSink {
			if err := servo.SetPDRole(ctx, servod, servo.PDRoleSrc); err != nil {
				return errors.Annotate(err, "boot in recovery mode: closing").Err()
			}
		}
		if err := servo.SetPowerState(ctx, servod, servo.PowerStateValueON); err != nil {
			return errors.Annotate(err, "boot in recovery mode: closing").Err()
		}
		return nil
	}
	if req.IgnoreRebootFailure {
		defer func() {
			if err := closing(); err != nil {
				log.Debugf(ctx, "Boot in recovery mode: %s", err)
			}
		}()
	}
	// Request recovery boot and wait for the device to come up from the
	// USB-drive.
	if err := servo.SetPowerState(ctx, servod, servo.PowerStateValueRecoveryMode); err != nil {
		return errors.Annotate(err, "boot in recovery mode").Err()
	}
	if err := WaitUntilSSHable(ctx, req.BootTimeout, req.BootInterval, dutRun); err != nil {
		return errors.Annotate(err, "boot in recovery mode").Err()
	}
	if err := IsBootedFromExternalStorage(ctx, dutRun); err != nil {
		return errors.Annotate(err, "boot in recovery mode").Err()
	}
	log.Debugf(ctx, "Device successfully booted in recovery mode from USB-drive.")
	if req.Callback != nil {
		log.Debugf(ctx, "Boot in recovery mode: passing control to callback.")
		if err := req.Callback(ctx); err != nil {
			return errors.Annotate(err, "boot in recovery mode: callback").Err()
		}
	}
	if !req.IgnoreRebootFailure {
		return closing()
	}
	return nil
}
