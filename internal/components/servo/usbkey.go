// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/log"
)

// USBVisibleValue specifies who sees the USB-drive plugged into the servo.
type USBVisibleValue string

const (
	usbMuxControl = "image_usbkey_direction"
	// USB-drive visible from the DUT side.
	USBVisibleDUT USBVisibleValue = "dut_sees_usbkey"
	// USB-drive visible from the servo-host side.
	USBVisibleHost USBVisibleValue = "servo_sees_usbkey"
	// USB-drive not connected to either side.
	USBVisibleOff USBVisibleValue = "usbkey_off"
)

// UpdateUSBVisibility switches the USB-key multiplexer to the requested side.
func UpdateUSBVisibility(ctx context.Context, servod components.Servod, val USBVisibleValue) error {
	if err := SetStringAndConfirm(ctx, servod, usbMuxControl, string(val)); err != nil {
		return errors.Annotate(err, "update usb visibility to %q", val).Err()
	}
	return nil
}

// USBDrivePath reads the usb-path from servod and optionally checks
// readability of the USB by a real read of the partition table.
func USBDrivePath(ctx context.Context, fileCheck bool, run components.Runner, servod components.Servod) (string, error) {
	v, err := GetString(ctx, servod, "image_usbkey_dev")
	if err != nil {
		return "", errors.Annotate(err, "usb-drive path").Err()
	}
	if v == "" {
		return "", errors.Reason("usb-drive path: usb-path is empty").Err()
	}
	if fileCheck {
		if out, err := run(ctx, time.Minute, "fdisk", "-l", v); err != nil {
			return "", errors.Annotate(err, "usb-drive path: file check by fdisk").Err()
		} else {
			log.Debugf(ctx, "USB-key fdisk check results:\n%s", out)
		}
	}
	return v, nil
}

const (
	// Path where the USB-key will be mounted on the servo-host.
	usbMountPathGlob    = "/media/servo_usb/port_%d"
	releaseInfoFilename = "etc/lsb-release"
)

var (
	// Check if the image build is a test image.
	crosTestImageTrack = regexp.MustCompile(`RELEASE_TRACK=.*test`)
	// Read image version and target-board from etc/lsb-release.
	crosTestImageName = regexp.MustCompile(`CHROMEOS_RELEASE_BUILDER_PATH=([\w\W]*)`)
)

// ChromeOSImageNameFromUSBDrive reads the image name from the USB-drive
// plugged into the servo.
//
// The version is read from partition 3 of the ChromeOS image.
func ChromeOSImageNameFromUSBDrive(ctx context.Context, usbPath string, run components.Runner, servod components.Servod) (string, error) {
	mountDst := fmt.Sprintf(usbMountPathGlob, servod.Port())
	unmount := func() {
		if _, err := run(ctx, time.Minute, "umount", mountDst); err != nil {
			log.Debugf(ctx, "ChromeOS image name from USB drive (not critical): %s", err)
		}
	}
	// Unmount if there is an existing stale mount.
	unmount()
	// Unmount the device in any case at the end to leave the place clean.
	defer unmount()
	// ChromeOS root fs is in /dev/sdx3.
	mountSrc := usbPath + "3"
	if _, err := run(ctx, time.Minute, "mkdir", "-p", mountDst); err != nil {
		return "", errors.Annotate(err, "cros image name from usb drive").Err()
	}
	if _, err := run(ctx, time.Minute, "mount", "-o", "ro", mountSrc, mountDst); err != nil {
		return "", errors.Annotate(err, "cros image name from usb drive").Err()
	}
	releaseInfoPath := fmt.Sprintf("%s/%s", mountDst, releaseInfoFilename)
	out, err := run(ctx, time.Minute, "cat", releaseInfoPath)
	if err != nil {
		return "", errors.Annotate(err, "cros image name from usb drive").Err()
	}
	imageName, err := parseReleaseInfo(out)
	return imageName, errors.Annotate(err, "cros image name from usb drive").Err()
}

// parseReleaseInfo extracts the image name from lsb-release content and
// confirms that it describes a test image.
func parseReleaseInfo(out string) (string, error) {
	var isTestImage bool
	var imageName string
	for _, l := range strings.Split(out, "\n") {
		if imageName != "" && isTestImage {
			break
		}
		if !isTestImage && crosTestImageTrack.MatchString(l) {
			isTestImage = true
			continue
		}
		if re := crosTestImageName.FindStringSubmatch(l); len(re) > 1 {
			imageName = strings.TrimSpace(re[1])
			continue
		}
	}
	if !isTestImage {
		return "", errors.Reason("parse release info: is not test image").Err()
	}
	if imageName == "" {
		return "", errors.Reason("parse release info: image name not found").Err()
	}
	return imageName, nil
}
