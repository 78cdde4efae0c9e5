// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repairaction

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/servo"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/tlw"
)

// RPMCycle power-cycles the device through its remote power management
// outlet. The cheapest fix on the list: no servo involved and no state on
// the device is touched.
func RPMCycle(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Power cycle the device through the RPM outlet",
		Timeout:  5 * time.Minute,
		ApplicableFunc: func(ctx context.Context, s *engine.Scope) bool {
			return s.DUT.RPMOutlet != nil && !s.DUT.RPMOutlet.MissingConfig
		},
		Repair: func(ctx context.Context, s *engine.Scope) error {
			res := s.Access.SetPowerSupply(ctx, &tlw.SetPowerSupplyRequest{
				Resource: s.ResourceName,
				State:    tlw.PowerSupplyActionCycle,
			})
			if res.Status != tlw.PowerSupplyResponseStatusOK {
				return errors.Reason("rpm cycle: %s: %s", res.Status, res.Reason).Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// ServoReset cold-resets the device through the servo power_state control.
func ServoReset(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:           name,
		Deps:           deps,
		Triggers:       triggers,
		Doc:            "Cold reset the device through servo",
		Timeout:        5 * time.Minute,
		ApplicableFunc: applicableWithServo,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			if err := servo.SetPowerState(ctx, s.Servod(), servo.PowerStateValueReset); err != nil {
				return errors.Annotate(err, "servo reset").Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// Cr50Reboot reboots the security chip of the device through its servo
// console. Recovers devices whose GSC wedged in a state where the AP will
// not come up.
func Cr50Reboot(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:           name,
		Deps:           deps,
		Triggers:       triggers,
		Doc:            "Reboot the security chip through the servo console",
		Timeout:        5 * time.Minute,
		ApplicableFunc: applicableWithServo,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			if err := servo.RebootCr50(ctx, s.Servod()); err != nil {
				if servo.IsConsoleCommandError(err) {
					return errors.Annotate(err, "cr50 reboot: the security chip console rejected the reboot").Err()
				}
				return errors.Annotate(err, "cr50 reboot").Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// SysRq forces a kernel panic-reboot by pressing SysRq-x through the servo
// keyboard emulator. Works when userland is wedged but the kernel still
// reads input.
func SysRq(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:           name,
		Deps:           deps,
		Triggers:       triggers,
		Doc:            "Reset the kernel with SysRq-x through servo",
		Timeout:        5 * time.Minute,
		ApplicableFunc: applicableWithServo,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			if err := servo.PressSysRqX(ctx, s.Servod()); err != nil {
				if servo.IsConsoleUnresponsive(err) {
					err = errors.Annotate(err, "servo console is not responding").Err()
				}
				return errors.Annotate(err, "sysrq reset").
					Tag(engine.FailureTag("cannot_press_sysrq_x")).Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// Time for PD negotiation to settle after a role switch.
const pdSettleInterval = 15 * time.Second

// How many role-switch cycles we attempt before giving up.
const pdRecoverAttempts = 2

// RecoverACPower re-triggers USB-C power negotiation by cycling the servo
// PD role, for devices that lost AC after a power glitch.
func RecoverACPower(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Re-negotiate AC power delivery through the servo",
		Timeout:  5 * time.Minute,
		ApplicableFunc: func(ctx context.Context, s *engine.Scope) bool {
			return s.HasServo() && s.DUT.Battery != nil
		},
		Repair: func(ctx context.Context, s *engine.Scope) error {
			servod := s.Servod()
			role, err := servo.GetPDRole(ctx, servod)
			if err != nil {
				return errors.Annotate(err, "recover ac power").Err()
			}
			if role != servo.PDRoleSrc {
				// The servo stopped sourcing power entirely; restore that
				// before cycling the negotiation.
				if err := servo.SetPDRole(ctx, servod, servo.PDRoleSrc); err != nil {
					return errors.Annotate(err, "recover ac power").Err()
				}
				time.Sleep(pdSettleInterval)
			}
			var charging bool
			for i := 0; i < pdRecoverAttempts; i++ {
				if err := servo.SetPDRole(ctx, servod, servo.PDRoleSnk); err != nil {
					return errors.Annotate(err, "recover ac power").Err()
				}
				time.Sleep(pdSettleInterval)
				if err := servo.SetPDRole(ctx, servod, servo.PDRoleSrc); err != nil {
					return errors.Annotate(err, "recover ac power").Err()
				}
				time.Sleep(pdSettleInterval)
				c, err := servo.GetBool(ctx, servod, "battery_is_charging")
				if err != nil {
					return errors.Annotate(err, "recover ac power").Err()
				}
				if c {
					charging = true
					break
				}
			}
			if !charging {
				return errors.Reason("recover ac power: battery is still not charging").Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}
