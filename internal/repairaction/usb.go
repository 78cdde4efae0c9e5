// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repairaction

import (
	"context"
	"fmt"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/components/servo"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// Downloading and writing a full OS image to the USB-drive.
const usbDownloadTimeout = 40 * time.Minute

// ServoInstall reinstalls the OS from the USB-drive attached to the servo.
// The last resort for the device itself: works with any on-disk state as
// long as the RO firmware can still boot recovery.
func ServoInstall(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:           name,
		Deps:           deps,
		Triggers:       triggers,
		Doc:            "Reinstall the OS from the USB-drive in recovery mode",
		Timeout:        2 * time.Hour,
		ApplicableFunc: applicableWithServo,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			sv := s.DUT.StableVersion
			if sv == nil || sv.CrosImage == "" {
				return errors.Reason("servo install: no stable os image assigned to the device").Err()
			}
			hostRun := s.ServoHostRunner()
			servod := s.Servod()
			if err := servo.UpdateUSBVisibility(ctx, servod, servo.USBVisibleHost); err != nil {
				return errors.Annotate(err, "servo install").Err()
			}
			usbPath, err := servo.USBDrivePath(ctx, true, hostRun, servod)
			if err != nil {
				return errors.Annotate(err, "servo install").Err()
			}
			s.DUT.ServoHost.UsbDrivePath = usbPath
			if err := ensureImageOnUSBDrive(ctx, s, usbPath); err != nil {
				return errors.Annotate(err, "servo install").Err()
			}
			req := &cros.BootInRecoveryRequest{
				BootTimeout:  usbBootTimeout,
				BootInterval: cros.SSHRetryInterval,
				Callback: func(ctx context.Context) error {
					// The flag outlives the install attempt so the post-install
					// actions stay eligible even when the install itself fails.
					s.BootedFromRecovery = true
					if _, err := s.DUTRunner()(ctx, installTimeout, "chromeos-install --yes"); err != nil {
						return errors.Annotate(err, "chromeos-install").Err()
					}
					return nil
				},
				HaltTimeout: time.Minute,
			}
			if err := cros.BootInRecoveryMode(ctx, req, s.DUTRunner(), s.DUTPinger(), servod, s.ServoType()); err != nil {
				return errors.Annotate(err, "servo install").Err()
			}
			if err := waitForBootAfter(ctx, s, name, usbBootTimeout); err != nil {
				return err
			}
			if err := cros.IsTestImage(ctx, s.DUTRunner()); err != nil {
				return errors.Annotate(err, "servo install: device booted a non-test image").Err()
			}
			s.DUT.ProvisionedBuild = sv.CrosImage
			return nil
		},
	}
}

// ensureImageOnUSBDrive checks the image present on the USB-drive and
// rewrites the drive with the stable image when they differ. The check saves
// forty minutes of download on the common case of a reused drive.
func ensureImageOnUSBDrive(ctx context.Context, s *engine.Scope, usbPath string) error {
	stable := s.DUT.StableVersion.CrosImage
	hostRun := s.ServoHostRunner()
	servod := s.Servod()
	present, err := servo.ChromeOSImageNameFromUSBDrive(ctx, usbPath, hostRun, servod)
	if err != nil {
		log.Debugf(ctx, "Cannot read image name from the USB-drive: %s", err)
	} else if present == stable {
		log.Infof(ctx, "USB-drive already carries %q, skipping download.", stable)
		return nil
	}
	imageURL, err := s.Access.GetImageUrl(ctx, s.ResourceName, stable)
	if err != nil {
		return errors.Annotate(err, "ensure image on usb-drive").Err()
	}
	log.Infof(ctx, "Writing %q to the USB-drive.", stable)
	write := fmt.Sprintf("curl -S -s --retry 3 --retry-delay 60 %s"+
		" | gzip -d | dd of=%s bs=4M iflag=fullblock oflag=direct", imageURL, usbPath)
	if _, err := hostRun(ctx, usbDownloadTimeout, write); err != nil {
		return errors.Annotate(err, "ensure image on usb-drive").Err()
	}
	return nil
}

// ServoResetAfterUSB cold-resets a device that went through a recovery
// install and did not come back on its own.
func ServoResetAfterUSB(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Cold reset the device after a recovery install",
		Timeout:  5 * time.Minute,
		ApplicableFunc: func(ctx context.Context, s *engine.Scope) bool {
			return s.HasServo() && s.BootedFromRecovery
		},
		Repair: func(ctx context.Context, s *engine.Scope) error {
			if err := servo.SetPowerState(ctx, s.Servod(), servo.PowerStateValueReset); err != nil {
				return errors.Annotate(err, "servo reset after usb install").Err()
			}
			return waitForBootAfter(ctx, s, name, usbBootTimeout)
		},
	}
}
