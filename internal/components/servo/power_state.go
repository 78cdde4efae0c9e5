// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/log"
)

// PowerStateValue specifies value to set for power_state.
type PowerStateValue string

const (
	powerStateControl = "power_state"
	// Power on the device.
	PowerStateValueON PowerStateValue = "on"
	// Power off the device.
	PowerStateValueOFF PowerStateValue = "off"
	// Cold reset the device.
	PowerStateValueReset PowerStateValue = "reset"
	// Request boot of the device in recovery mode.
	PowerStateValueRecoveryMode PowerStateValue = "rec"
)

// SetPowerState changes the state of the power_state control on servod.
//
// The control is implemented as a function call on the servod side, for this
// reason it does not have a getter and cannot be confirmed by re-read.
func SetPowerState(ctx context.Context, servod components.Servod, val PowerStateValue) error {
	if err := SetString(ctx, servod, powerStateControl, string(val)); err != nil {
		return errors.Annotate(err, "power state %q", val).Err()
	}
	return nil
}

const (
	cr50RebootControl = "cr50_reboot"
	// Time for the GSC to come back and re-open CCD after reboot.
	cr50RebootSettleTimeout = 10 * time.Second
)

// RebootCr50 reboots the GSC (Cr50) chip of the DUT through its servo
// console and waits for the chip to settle.
func RebootCr50(ctx context.Context, servod components.Servod) error {
	if err := servod.Has(ctx, cr50RebootControl); err != nil {
		return errors.Annotate(err, "reboot cr50").Err()
	}
	if err := SetString(ctx, servod, cr50RebootControl, "on"); err != nil {
		return errors.Annotate(err, "reboot cr50").Err()
	}
	log.Debugf(ctx, "Waiting %s for GSC to settle after reboot.", cr50RebootSettleTimeout)
	time.Sleep(cr50RebootSettleTimeout)
	return nil
}

// PDRoleValue specifies a value of the PD role control of servo v4.
type PDRoleValue string

const (
	pdRoleControl = "servo_pd_role"
	// Deliver power to the DUT.
	PDRoleSrc PDRoleValue = "src"
	// Act as a sink, the DUT runs on its own power.
	PDRoleSnk PDRoleValue = "snk"
)

// GetPDRole reads the current PD role of the servo.
func GetPDRole(ctx context.Context, servod components.Servod) (PDRoleValue, error) {
	v, err := GetString(ctx, servod, pdRoleControl)
	if err != nil {
		return "", errors.Annotate(err, "get pd role").Err()
	}
	return PDRoleValue(v), nil
}

// SetPDRole switches the PD role of the servo and confirms the switch took
// effect.
func SetPDRole(ctx context.Context, servod components.Servod, role PDRoleValue) error {
	if err := SetStringAndConfirm(ctx, servod, pdRoleControl, string(role)); err != nil {
		return errors.Annotate(err, "set pd role %q", role).Err()
	}
	return nil
}

const (
	// Sysrq-x press resets the kernel even when userland is wedged, as long
	// as input still reaches the kernel.
	sysrqControl = "sysrq_x"
	// How many presses we attempt before giving up.
	sysrqPressAttempts = 3
	// Pause between presses.
	sysrqPressInterval = 2 * time.Second
)

// PressSysRqX emulates the magic SysRq + x key combination on the DUT
// keyboard through servo, repeating the press a few times.
func PressSysRqX(ctx context.Context, servod components.Servod) error {
	if err := servod.Has(ctx, sysrqControl); err != nil {
		return errors.Annotate(err, "press sysrq-x").Err()
	}
	for i := 0; i < sysrqPressAttempts; i++ {
		if err := SetString(ctx, servod, sysrqControl, "tab"); err != nil {
			return errors.Annotate(err, "press sysrq-x").Err()
		}
		time.Sleep(sysrqPressInterval)
	}
	return nil
}
