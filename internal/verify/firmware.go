// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// FirmwareStatus confirms the AP firmware of a firmware-testing device is
// not corrupted, by dumping and verifying both firmware slots.
func FirmwareStatus(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:           name,
		Deps:           deps,
		Doc:            "Firmware on this device is clean",
		Timeout:        6 * time.Minute,
		ApplicableFunc: applicableToFirmwareTesting,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			defer func() {
				if _, err := run(ctx, time.Minute, "rm -rf /tmp/verify_firmware"); err != nil {
					log.Debugf(ctx, "Firmware status: cleanup failed: %s", err)
				}
			}()
			// Read the AP firmware and dump the sections of interest.
			dump := "mkdir /tmp/verify_firmware; " +
				"cd /tmp/verify_firmware; " +
				"for section in VBLOCK_A VBLOCK_B FW_MAIN_A FW_MAIN_B; " +
				"do flashrom -p host -r -i $section:$section; " +
				"done"
			if _, err := run(ctx, 5*time.Minute, dump); err != nil {
				return errors.Annotate(err, "firmware status: fail to dump firmware sections").Err()
			}
			for _, slot := range []string{"A", "B"} {
				verify := fmt.Sprintf("vbutil_firmware --verify /tmp/verify_firmware/VBLOCK_%s"+
					" --signpubkey /usr/share/vboot/devkeys/root_key.vbpubk"+
					" --fv /tmp/verify_firmware/FW_MAIN_%s", slot, slot)
				if _, err := run(ctx, time.Minute, verify); err != nil {
					return errors.Reason("firmware status: firmware %s is in a bad state", slot).Err()
				}
			}
			return nil
		},
	}
}

// FirmwareVersion confirms the RW firmware is the assigned stable version,
// applying the update from the running OS build when it carries the right
// one.
//
// The check deliberately updates during the success path: a stale firmware
// version hits every device of a model at once, so deferring to repair
// would just serialize the same work later.
func FirmwareVersion(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:           name,
		Deps:           deps,
		Doc:            "The firmware on this device is up-to-date",
		NonCritical:    true,
		Timeout:        20 * time.Minute,
		ApplicableFunc: applicableOutsideFirmwareTesting,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			sv := s.DUT.StableVersion
			if sv == nil || sv.CrosFirmwareVersion == "" {
				// No firmware update target assigned for this device.
				return nil
			}
			if s.DUT.Model == "" {
				return errors.Reason("firmware version: no model value to look up firmware for").Err()
			}
			stable := sv.CrosFirmwareVersion
			run := s.DUTRunner()
			current, err := cros.ReadCrossystem(ctx, run, "fwid")
			if err != nil {
				log.Errorf(ctx, "Firmware version: cannot determine the running firmware: %s", err)
				return nil
			}
			if current == stable {
				return nil
			}
			available, err := availableRWFirmware(ctx, run, s.DUT.Model)
			if err != nil {
				log.Errorf(ctx, "Firmware version: cannot determine the firmware supplied in the OS: %s", err)
				return nil
			}
			if available != stable {
				return errors.Reason("firmware version: device requires update from %q to %q and the running OS does not supply it", current, stable).Err()
			}
			if err := checkFirmwareHardwareMatch(current, stable); err != nil {
				return errors.Annotate(err, "firmware version").Err()
			}
			log.Infof(ctx, "Updating firmware from %q to %q.", current, stable)
			if _, err := run(ctx, 10*time.Minute, "chromeos-firmwareupdate --mode=autoupdate"); err != nil {
				return errors.Annotate(err, "firmware version: firmware update from %q to %q failed", current, stable).Err()
			}
			if err := cros.Reboot(ctx, run, 2*time.Minute); err != nil {
				return errors.Annotate(err, "firmware version").Err()
			}
			if err := cros.WaitUntilSSHable(ctx, 150*time.Second, cros.SSHRetryInterval, run); err != nil {
				return errors.Annotate(err, "firmware version: device is offline after firmware update").Err()
			}
			final, err := cros.ReadCrossystem(ctx, run, "fwid")
			if err != nil {
				return errors.Annotate(err, "firmware version").Err()
			}
			if final != stable {
				return errors.Reason("firmware version: tried upgrade to %q, now running %q instead", stable, final).Err()
			}
			return nil
		},
	}
}

// availableRWFirmware reads the RW firmware version supplied by the running
// OS build from the firmware updater manifest.
func availableRWFirmware(ctx context.Context, run components.Runner, model string) (string, error) {
	out, err := run(ctx, 2*time.Minute, "chromeos-firmwareupdate --manifest")
	if err != nil {
		return "", errors.Annotate(err, "available rw firmware").Err()
	}
	var manifest map[string]struct {
		Host struct {
			Versions struct {
				RW string `json:"rw"`
			} `json:"versions"`
		} `json:"host"`
	}
	if err := json.Unmarshal([]byte(out), &manifest); err != nil {
		return "", errors.Annotate(err, "available rw firmware").Err()
	}
	key := model
	if len(manifest) == 1 {
		// Single-model manifests are keyed by whatever the updater chose.
		for k := range manifest {
			key = k
		}
	}
	entry, ok := manifest[key]
	if !ok || entry.Host.Versions.RW == "" {
		return "", errors.Reason("available rw firmware: no firmware for model %q in the manifest", model).Err()
	}
	return entry.Host.Versions.RW, nil
}

// checkFirmwareHardwareMatch confirms two firmware versions identify the
// same hardware, protecting against flashing the wrong firmware when a
// model label has gone astray. Versions look like Google_Gnawty.5216.239.34
// where the part before the numbers names the hardware.
func checkFirmwareHardwareMatch(versionA, versionB string) error {
	hardwareA := strings.SplitN(versionA, ".", 2)[0]
	hardwareB := strings.SplitN(versionB, ".", 2)[0]
	if hardwareA != hardwareB {
		return errors.Reason("hardware/firmware mismatch updating %q to %q", versionA, versionB).Err()
	}
	return nil
}
