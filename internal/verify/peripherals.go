// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/servo"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// GscTool confirms the device can talk to its Google security chip over the
// gsctool interface.
func GscTool(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:        name,
		Deps:        deps,
		Doc:         "The security chip responds over gsctool",
		NonCritical: true,
		Timeout:     time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			if _, err := s.DUTRunner()(ctx, time.Minute, "gsctool -a -f"); err != nil {
				return errors.Annotate(err, "gsc tool: cannot communicate with the security chip").Err()
			}
			return nil
		},
	}
}

// USB vendor:product of the Atmel chip emulating the keyboard on servo.
const servoKeyboardUSBID = "03eb:2042"

// ServoKeyboard confirms the device sees the keyboard emulated by the servo
// on its USB bus.
func ServoKeyboard(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:           name,
		Deps:           deps,
		Doc:            "The servo keyboard emulator is visible to the device",
		NonCritical:    true,
		Timeout:        time.Minute,
		ApplicableFunc: applicableWithServo,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			out, err := s.DUTRunner()(ctx, time.Minute, "lsusb -vv -d "+servoKeyboardUSBID)
			if err != nil {
				return errors.Annotate(err, "servo keyboard: keyboard emulator not detected on the usb bus").Err()
			}
			if !strings.Contains(out, "LUFA Keyboard") {
				return errors.Reason("servo keyboard: usb device %s present but does not identify as a keyboard", servoKeyboardUSBID).Err()
			}
			return nil
		},
	}
}

// ServoMacAddress confirms the servo caches a MAC address for the device's
// ethernet, so the address survives recovery installs done over USB.
func ServoMacAddress(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:           name,
		Deps:           deps,
		Doc:            "The servo caches the device MAC address",
		NonCritical:    true,
		Timeout:        time.Minute,
		ApplicableFunc: applicableWithServo,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			mac, err := servo.GetString(ctx, s.Servod(), "macaddr")
			if err != nil {
				if servo.IsControlUnknown(err) {
					// Only servo_v4 with ethernet carries this control.
					log.Debugf(ctx, "Servo mac address: control not present on this servo, skipping.")
					return nil
				}
				return errors.Annotate(err, "servo mac address").Err()
			}
			if mac == "" {
				return errors.Reason("servo mac address: servo has not cached a mac address").Err()
			}
			return nil
		},
	}
}
