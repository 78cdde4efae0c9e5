// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package power provides helpers to read the power state of the DUT.
package power

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
)

// SupplyInfo holds info parsed from power_supply_info output.
type SupplyInfo struct {
	// The map of power_supply_info, e.g.,
	// {
	// 'Line Power':
	//  {
	//	 'online': 'yes',
	//	 'type': 'main'
	//  },
	// 'Battery':
	//  {
	// 	 'vendor': 'xyz',
	//	 'percentage': '100'
	//  }
	// }
	powerInfo map[string]map[string]string
}

// ReadPowerInfo initializes and returns a new SupplyInfo struct.
//
// Output of power_supply_info shows two devices, Line Power and Battery,
// with details of each device listed. This function parses the output into a
// map keyed by the device name.
//     Device: Line Power
//       online:                  no
//       type:                    Mains
//     Device: Battery
//       state:                   Discharging
//       percentage:              95.9276
func ReadPowerInfo(ctx context.Context, r components.Runner) (*SupplyInfo, error) {
	output, err := r(ctx, time.Minute, "power_supply_info")
	if err != nil {
		return nil, errors.Annotate(err, "read power information").Err()
	}
	return &SupplyInfo{
		powerInfo: parseSupplyInfo(output),
	}, nil
}

// IsACOnline confirms the DUT is powered by AC.
func (p *SupplyInfo) IsACOnline() (bool, error) {
	if linePower, ok := p.powerInfo["Line Power"]; ok {
		if isOnline, ok := linePower["online"]; ok {
			return strings.ToLower(isOnline) == "yes", nil
		}
		return false, errors.Reason("ac online: no ac's online info found").Err()
	}
	return false, errors.Reason("ac online: no ac info found").Err()
}

// HasBattery confirms the DUT has a battery.
func (p *SupplyInfo) HasBattery() bool {
	_, ok := p.powerInfo["Battery"]
	return ok
}

// IsBatteryDischarging confirms the DUT's battery is discharging.
func (p *SupplyInfo) IsBatteryDischarging() (bool, error) {
	if battery, ok := p.powerInfo["Battery"]; ok {
		if chargingState, ok := battery["state"]; ok {
			return chargingState == "Discharging", nil
		}
		return false, errors.Reason("battery discharging: no battery's state info found").Err()
	}
	return false, errors.Reason("battery discharging: no battery info found").Err()
}

// BatteryLevel returns the DUT's battery charge level in percent.
func (p *SupplyInfo) BatteryLevel() (float64, error) {
	if battery, ok := p.powerInfo["Battery"]; ok {
		if percentage, ok := battery["percentage"]; ok {
			batteryLevel, err := strconv.ParseFloat(percentage, 64)
			if err != nil {
				return -1, errors.Annotate(err, "battery level").Err()
			}
			return batteryLevel, nil
		}
		return -1, errors.Reason("battery level: no battery's percentage info found").Err()
	}
	return -1, errors.Reason("battery level: no battery").Err()
}

// BatteryPath returns path to the battery properties on the DUT.
func (p *SupplyInfo) BatteryPath() (string, error) {
	if battery, ok := p.powerInfo["Battery"]; ok {
		if batteryPath, ok := battery["path"]; ok {
			return batteryPath, nil
		}
		return "", errors.Reason("battery path: no battery's path info found").Err()
	}
	return "", errors.Reason("battery path: no battery").Err()
}

// parseSupplyInfo is a helper to turn raw power_supply_info output into a
// per-device map.
func parseSupplyInfo(rawOutput string) map[string]map[string]string {
	info := make(map[string]map[string]string)
	deviceName := ""
	var deviceInfo map[string]string
	for _, eachLine := range strings.Split(rawOutput, "\n") {
		pairs := strings.SplitN(eachLine, ":", 2)
		if len(pairs) != 2 {
			continue
		}
		key := strings.TrimSpace(pairs[0])
		val := strings.TrimSpace(pairs[1])
		if key == "Device" {
			if deviceName != "" {
				info[deviceName] = deviceInfo
			}
			deviceName = val
			deviceInfo = make(map[string]string)
		} else if deviceInfo != nil {
			deviceInfo[key] = val
		}
	}
	if _, ok := info[deviceName]; !ok && deviceName != "" {
		info[deviceName] = deviceInfo
	}
	return info
}
