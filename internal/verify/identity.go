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
	"infra/cros/repair/tlw"
)

// HWID checks the device identity bookkeeping.
//
// A missing HWID or serial number in the inventory means the device was
// never properly deployed: the check flags it for redeploy. A mismatch
// between inventory and live values is only logged, because the live values
// can be temporarily wrong after a firmware repair.
func HWID(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The inventory knows the device HWID and serial number",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			if s.DUT.Hwid == "" || s.DUT.SerialNumber == "" {
				s.DUT.State = tlw.DutStateNeedsRedeploy
				return errors.Reason("hwid: inventory is missing hwid or serial number, the device needs redeploy").Err()
			}
			run := s.DUTRunner()
			if liveHwid, err := cros.ReadCrossystem(ctx, run, "hwid"); err != nil {
				log.Debugf(ctx, "HWID: fail to read live hwid: %s", err)
			} else if liveHwid != s.DUT.Hwid {
				log.Warningf(ctx, "HWID mismatch: inventory %q, device %q.", s.DUT.Hwid, liveHwid)
			}
			if liveSerial, err := cros.ReadVPD(ctx, run, "RO_VPD", "serial_number"); err != nil {
				log.Debugf(ctx, "HWID: fail to read live serial number: %s", err)
			} else if liveSerial != s.DUT.SerialNumber {
				log.Warningf(ctx, "Serial number mismatch: inventory %q, device %q.", s.DUT.SerialNumber, liveSerial)
			}
			return nil
		},
	}
}

// Flag file dropped at the start of every provision and removed with the
// stateful wipe when the update completes. Its presence means the last
// provision died in the middle.
const provisionFailedMarker = "/var/tmp/provision_failed"

// GoodProvision confirms the last provision of the device completed.
func GoodProvision(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The most recent provision of this device succeeded",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			if _, err := s.DUTRunner()(ctx, time.Minute, "test", "-f", provisionFailedMarker); err == nil {
				return errors.Reason("good provision: last provision on this device failed").Err()
			}
			return nil
		},
	}
}

// ProvisioningLabels confirms the OS build recorded by the inventory
// matches the build actually running, to catch devices that tests mutated
// without updating the bookkeeping.
func ProvisioningLabels(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The recorded OS build matches the running image",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			if s.DUT.ProvisionedBuild == "" {
				// Nothing on record to compare against.
				return nil
			}
			live, err := cros.ReleaseBuilderPath(ctx, s.DUTRunner())
			if err != nil {
				return errors.Annotate(err, "provisioning labels").Err()
			}
			if live != s.DUT.ProvisionedBuild {
				return errors.Reason("provisioning labels: recorded build %q does not match running build %q", s.DUT.ProvisionedBuild, live).Err()
			}
			return nil
		},
	}
}
