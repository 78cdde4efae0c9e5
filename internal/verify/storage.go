// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/components/servo"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/tlw"
)

// Writable confirms the stateful file systems are writable by creating a
// real file in each of them.
func Writable(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The stateful filesystems are writable",
		Timeout: 2 * time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			err := cros.IsFileSystemWritable(ctx, s.DUTRunner())
			return errors.Annotate(err, "writable").Err()
		},
	}
}

// EXT4Errors scans the kernel log for ext4 corruption signatures. The scan
// is advisory: corruption usually surfaces through other checks too.
func EXT4Errors(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:        name,
		Deps:        deps,
		Doc:         "The kernel log carries no ext4 corruption errors",
		NonCritical: true,
		Timeout:     time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			err := cros.HasEXT4FilesystemError(ctx, s.DUTRunner())
			return errors.Annotate(err, "ext4 errors").Err()
		},
	}
}

// StorageSMART audits the internal storage health via SMART and records a
// replacement request in the inventory when the self-assessment fails.
func StorageSMART(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:        name,
		Deps:        deps,
		Doc:         "The internal storage passes the SMART health self-assessment",
		NonCritical: true,
		Timeout:     3 * time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			if err := cros.AuditStorageSMART(ctx, s.DUTRunner()); err != nil {
				if s.DUT.Storage == nil {
					s.DUT.Storage = &tlw.DUTStorage{}
				}
				s.DUT.Storage.State = tlw.HardwareStateNeedReplacement
				return errors.Annotate(err, "storage smart").Err()
			}
			return nil
		},
	}
}

// USBDrive confirms the servo has a usable USB-drive attached. The drive is
// a prerequisite of the recovery-install repairs, so the check runs against
// the servo-host and does not depend on the device being reachable.
func USBDrive(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:           name,
		Deps:           deps,
		Doc:            "The servo has a USB-drive attached and readable",
		Timeout:        3 * time.Minute,
		ApplicableFunc: applicableWithServo,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			usbPath, err := servo.USBDrivePath(ctx, true, s.ServoHostRunner(), s.Servod())
			if err != nil {
				return errors.Annotate(err, "usb drive").Err()
			}
			s.DUT.ServoHost.UsbDrivePath = usbPath
			return nil
		},
	}
}
