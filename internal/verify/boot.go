// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// DevDefaultBoot confirms the device boots from disk by default. A device
// left set to boot from USB or legacy payloads will not survive reboots in
// the lab.
func DevDefaultBoot(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The default boot target is disk",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			v, err := cros.ReadCrossystem(ctx, s.DUTRunner(), "dev_default_boot")
			if err != nil {
				return errors.Annotate(err, "dev default boot").Err()
			}
			if v != "disk" {
				return errors.Reason("dev default boot: unexpected value %q, expected \"disk\"", v).Err()
			}
			return nil
		},
	}
}

// DevMode confirms the device did not boot in developer mode. Devices in
// firmware-testing pools are exempt: dev mode is part of their job.
func DevMode(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:           name,
		Deps:           deps,
		Doc:            "The device is not in developer mode",
		Timeout:        time.Minute,
		ApplicableFunc: applicableOutsideFirmwareTesting,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			v, err := cros.ReadCrossystem(ctx, s.DUTRunner(), "devsw_boot")
			if err != nil {
				return errors.Annotate(err, "dev mode").Err()
			}
			if v != "0" {
				return errors.Reason("dev mode: device is booted in developer mode").Err()
			}
			return nil
		},
	}
}

// Paths holding enterprise enrollment residue. Enrollment survives a normal
// provision and renders the device unusable for most tests.
const enrollmentVPDKey = "check_enrollment"

// EnrollmentState confirms the device carries no enterprise enrollment.
func EnrollmentState(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The device is not enterprise enrolled",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			v, err := cros.ReadVPD(ctx, s.DUTRunner(), "RW_VPD", enrollmentVPDKey)
			if err != nil {
				// The key is absent on devices that were never enrolled.
				log.Debugf(ctx, "Enrollment state: %s", err)
				return nil
			}
			if v == "1" {
				return errors.Reason("enrollment state: the device is enrolled").Err()
			}
			return nil
		},
	}
}
