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

// FaftFirmwareRepair reflashes the stable firmware on a firmware-testing
// device through its servo. These devices are expected to end up with broken
// firmware; the flash goes through the servo-host so a dead AP is fine.
func FaftFirmwareRepair(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Reflash the stable firmware through servo on a firmware-testing device",
		Timeout:  40 * time.Minute,
		ApplicableFunc: func(ctx context.Context, s *engine.Scope) bool {
			return s.HasServo() && isFirmwareTestingDevice(s)
		},
		Repair: func(ctx context.Context, s *engine.Scope) error {
			if err := flashStableFirmwareViaServo(ctx, s); err != nil {
				return errors.Annotate(err, "faft firmware repair").Err()
			}
			return waitForBootAfter(ctx, s, name, usbBootTimeout)
		},
	}
}

// GeneralFirmwareRepair reflashes the stable firmware on a regular device
// through its servo, for devices whose firmware is too broken for the
// on-device updater to run.
func GeneralFirmwareRepair(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Reflash the stable firmware through servo",
		Timeout:  40 * time.Minute,
		ApplicableFunc: func(ctx context.Context, s *engine.Scope) bool {
			return s.HasServo() && !isFirmwareTestingDevice(s)
		},
		Repair: func(ctx context.Context, s *engine.Scope) error {
			if err := flashStableFirmwareViaServo(ctx, s); err != nil {
				return errors.Annotate(err, "general firmware repair").Err()
			}
			return waitForBootAfter(ctx, s, name, usbBootTimeout)
		},
	}
}

// flashStableFirmwareViaServo downloads the stable firmware image to the
// servo-host and flashes it into the device AP over the servo connection,
// then cold-resets the device to boot the new firmware.
func flashStableFirmwareViaServo(ctx context.Context, s *engine.Scope) error {
	sv := s.DUT.StableVersion
	if sv == nil || sv.CrosFirmwareImage == "" {
		return errors.Reason("flash stable firmware: no stable firmware image assigned to the device").Err()
	}
	imageURL, err := s.Access.GetImageUrl(ctx, s.ResourceName, sv.CrosFirmwareImage)
	if err != nil {
		return errors.Annotate(err, "flash stable firmware").Err()
	}
	run := s.ServoHostRunner()
	servod := s.Servod()
	// Per-port working directory so parallel repairs on one servo-host do not
	// trample each other.
	dir := fmt.Sprintf("/tmp/firmware_%d", servod.Port())
	if _, err := run(ctx, time.Minute, "mkdir -p "+dir); err != nil {
		return errors.Annotate(err, "flash stable firmware").Err()
	}
	defer func() {
		if _, err := run(ctx, time.Minute, "rm -rf "+dir); err != nil {
			log.Debugf(ctx, "Flash stable firmware: cleanup failed: %s", err)
		}
	}()
	download := fmt.Sprintf("curl -S -s --retry 3 --retry-delay 60 -o %s/firmware.tar.bz2 %s", dir, imageURL)
	if _, err := run(ctx, 10*time.Minute, download); err != nil {
		return errors.Annotate(err, "flash stable firmware: download %q", imageURL).Err()
	}
	if _, err := run(ctx, 5*time.Minute, fmt.Sprintf("tar xf %s/firmware.tar.bz2 -C %s", dir, dir)); err != nil {
		return errors.Annotate(err, "flash stable firmware: unpack archive").Err()
	}
	// Firmware archives carry per-model images; fall back to the single
	// generic image for boards that ship one.
	imageFile := fmt.Sprintf("%s/image-%s.bin", dir, s.DUT.Model)
	if _, err := run(ctx, time.Minute, "test -f "+imageFile); err != nil {
		imageFile = dir + "/image.bin"
	}
	flash := fmt.Sprintf("futility update -i %s --mode=recovery --wp=0 --servo_port=%d", imageFile, servod.Port())
	if _, err := run(ctx, 20*time.Minute, flash); err != nil {
		return errors.Annotate(err, "flash stable firmware").Err()
	}
	if err := servo.SetPowerState(ctx, servod, servo.PowerStateValueReset); err != nil {
		return errors.Annotate(err, "flash stable firmware").Err()
	}
	return nil
}

// RecoverFwAfterUSB reflashes the firmware from the recovery image on the
// USB-drive, for devices that went through a recovery install and still do
// not boot from disk.
func RecoverFwAfterUSB(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Reflash the firmware from the recovery image on the USB-drive",
		Timeout:  40 * time.Minute,
		ApplicableFunc: func(ctx context.Context, s *engine.Scope) bool {
			return s.HasServo() && s.BootedFromRecovery
		},
		Repair: func(ctx context.Context, s *engine.Scope) error {
			req := &cros.BootInRecoveryRequest{
				BootTimeout:  usbBootTimeout,
				BootInterval: cros.SSHRetryInterval,
				Callback: func(ctx context.Context) error {
					_, err := s.DUTRunner()(ctx, 10*time.Minute, "chromeos-firmwareupdate --mode=recovery")
					return errors.Annotate(err, "firmware update").Err()
				},
				HaltTimeout: time.Minute,
			}
			if err := cros.BootInRecoveryMode(ctx, req, s.DUTRunner(), s.DUTPinger(), s.Servod(), s.ServoType()); err != nil {
				return errors.Annotate(err, "recover firmware after usb install").Err()
			}
			return waitForBootAfter(ctx, s, name, usbBootTimeout)
		},
	}
}
