// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package verify provides the concrete diagnostic checks used by the repair
// strategies.
//
// Each constructor takes the node name and its prerequisite verifier names,
// mirroring the (implementation, name, dependencies) rows of the strategy
// tables, and attaches the behavior of the check.
package verify

import (
	"context"
	"strings"

	"infra/cros/repair/internal/engine"
)

// Pools with this prefix are dedicated to firmware testing. Their devices
// are allowed to run in dev mode and manage firmware through the FAFT
// repair path instead of the stable-version update.
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

// applicableToFirmwareTesting limits the node to firmware-testing devices.
func applicableToFirmwareTesting(ctx context.Context, s *engine.Scope) bool {
	return isFirmwareTestingDevice(s)
}

// applicableOutsideFirmwareTesting limits the node to regular devices.
func applicableOutsideFirmwareTesting(ctx context.Context, s *engine.Scope) bool {
	return !isFirmwareTestingDevice(s)
}

// applicableWithServo limits the node to devices with a servo attached.
func applicableWithServo(ctx context.Context, s *engine.Scope) bool {
	return s.HasServo()
}
