// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package battery provides helpers to audit the battery of the DUT.
package battery

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/components/cros/power"
	"infra/cros/repair/internal/log"
	"infra/cros/repair/tlw"
)

// Info holds the capacity data of the DUT battery.
type Info struct {
	// Directory under /sys/class/power_supply with the battery properties.
	DeviceDirPath string
	// Full capacity of the battery now.
	FullChargeCapacity float64
	// Designed full capacity of the battery.
	FullChargeCapacityDesigned float64
	// Charge cycles the battery went through.
	ChargeCycleCount float64
}

const (
	fullChargeFileName         = "charge_full"
	fullChargeDesignedFileName = "charge_full_design"
	chargeCycleCountFileName   = "cycle_count"
)

// ReadBatteryInfo reads the battery capacity data from the sysfs directory
// reported by power_supply_info.
func ReadBatteryInfo(ctx context.Context, run components.Runner) (*Info, error) {
	supplyInfo, err := power.ReadPowerInfo(ctx, run)
	if err != nil {
		return nil, errors.Annotate(err, "read battery info").Err()
	}
	b := &Info{}
	if b.DeviceDirPath, err = supplyInfo.BatteryPath(); err != nil {
		return nil, errors.Annotate(err, "read battery info").Err()
	}
	log.Debugf(ctx, "Battery path: %s", b.DeviceDirPath)
	if b.FullChargeCapacity, err = b.readFile(ctx, run, fullChargeFileName); err != nil {
		return nil, errors.Annotate(err, "read battery info").Err()
	}
	if b.FullChargeCapacityDesigned, err = b.readFile(ctx, run, fullChargeDesignedFileName); err != nil {
		return nil, errors.Annotate(err, "read battery info").Err()
	}
	if b.ChargeCycleCount, err = b.readFile(ctx, run, chargeCycleCountFileName); err != nil {
		// Not all batteries expose the cycle count.
		log.Debugf(ctx, "Read battery info: %s", err)
	}
	return b, nil
}

// readFile reads a numeric battery property file.
func (b *Info) readFile(ctx context.Context, run components.Runner, fileName string) (float64, error) {
	out, err := run(ctx, time.Minute, fmt.Sprintf("cat %s", path.Join(b.DeviceDirPath, fileName)))
	if err != nil {
		return -1, errors.Annotate(err, "read file %s", fileName).Err()
	}
	v, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return -1, errors.Annotate(err, "read file %s", fileName).Err()
	}
	return v, nil
}

const (
	// Battery's minimum capacity, in percent of designed, to count as normal.
	auditCapacityNormalLevel = 70
	// Battery's minimum capacity, in percent of designed, to count as
	// acceptable.
	auditCapacityAcceptableLevel = 40
)

// DetermineHardwareState maps the measured battery capacity to a hardware
// state:
//   capacity >= 70% of designed: NORMAL
//   capacity >= 40% of designed: ACCEPTABLE
//   below that: NEED_REPLACEMENT
func DetermineHardwareState(ctx context.Context, fullChargeCapacity, fullChargeCapacityDesigned float64) tlw.HardwareState {
	if fullChargeCapacity == 0 || fullChargeCapacityDesigned == 0 {
		log.Debugf(ctx, "Battery capacity data incomplete, skipping state update.")
		return tlw.HardwareStateUnspecified
	}
	capacity := 100 * fullChargeCapacity / fullChargeCapacityDesigned
	log.Infof(ctx, "Battery capacity: %.2f%%", capacity)
	switch {
	case capacity >= auditCapacityNormalLevel:
		return tlw.HardwareStateNormal
	case capacity >= auditCapacityAcceptableLevel:
		return tlw.HardwareStateAcceptable
	default:
		return tlw.HardwareStateNeedReplacement
	}
}
