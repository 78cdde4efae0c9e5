// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros/battery"
	"infra/cros/repair/internal/components/cros/power"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
	"infra/cros/repair/tlw"
)

const (
	// A battery discharging above this level is still treated as healthy:
	// a test may have legitimately drained it a little with AC attached.
	batteryDischargeFloor = 90.0
	// Pause for the EC to react to the charge control change.
	chargeControlSettleInterval = 3 * time.Second
)

// ACPower confirms the device is on AC power and the battery is not
// draining.
//
// Tests can leave charge control disabled, which looks exactly like a
// missing charger. The check therefore attempts the one-shot self-heal
// (restore normal charge control) and re-reads state before declaring a
// failure.
func ACPower(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The device is plugged in to AC power",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			info, err := power.ReadPowerInfo(ctx, run)
			if err != nil {
				return errors.Annotate(err, "ac power").Err()
			}
			if healthy, err := powerStateHealthy(info); err != nil {
				return errors.Annotate(err, "ac power").Err()
			} else if healthy {
				return nil
			}
			log.Infof(ctx, "Power state is unhealthy, restoring normal charge control before re-check.")
			if _, err := run(ctx, time.Minute, "ectool chargecontrol normal"); err != nil {
				log.Debugf(ctx, "AC power: fail to restore charge control: %s", err)
			}
			time.Sleep(chargeControlSettleInterval)
			info, err = power.ReadPowerInfo(ctx, run)
			if err != nil {
				return errors.Annotate(err, "ac power").Err()
			}
			if healthy, err := powerStateHealthy(info); err != nil {
				return errors.Annotate(err, "ac power").Err()
			} else if !healthy {
				return errors.Reason("ac power: ac is offline or battery is discharging below %.0f%%", batteryDischargeFloor).Err()
			}
			return nil
		},
	}
}

// powerStateHealthy tells whether AC is attached and the battery, when
// present, is not draining below the floor.
func powerStateHealthy(info *power.SupplyInfo) (bool, error) {
	online, err := info.IsACOnline()
	if err != nil {
		return false, errors.Annotate(err, "power state").Err()
	}
	if !online {
		return false, nil
	}
	if !info.HasBattery() {
		return true, nil
	}
	discharging, err := info.IsBatteryDischarging()
	if err != nil {
		return false, errors.Annotate(err, "power state").Err()
	}
	if !discharging {
		return true, nil
	}
	level, err := info.BatteryLevel()
	if err != nil {
		return false, errors.Annotate(err, "power state").Err()
	}
	return level >= batteryDischargeFloor, nil
}

// AuditBattery measures the battery wear and records the hardware state in
// the inventory. Only applicable to devices with a battery on record.
func AuditBattery(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The battery still holds enough of its designed capacity",
		Timeout: 2 * time.Minute,
		ApplicableFunc: func(ctx context.Context, s *engine.Scope) bool {
			return s.DUT != nil && s.DUT.Battery != nil
		},
		Verify: func(ctx context.Context, s *engine.Scope) error {
			info, err := battery.ReadBatteryInfo(ctx, s.DUTRunner())
			if err != nil {
				s.DUT.Battery.State = tlw.HardwareStateNotDetected
				return errors.Annotate(err, "audit battery").Err()
			}
			state := battery.DetermineHardwareState(ctx, info.FullChargeCapacity, info.FullChargeCapacityDesigned)
			if state != tlw.HardwareStateUnspecified {
				s.DUT.Battery.State = state
			}
			if state == tlw.HardwareStateNeedReplacement {
				return errors.Reason("audit battery: battery needs replacement").Err()
			}
			return nil
		},
	}
}
