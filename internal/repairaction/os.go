// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repairaction

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
	"infra/cros/repair/tlw"
)

// ProvisioningLabelsRepair re-reads the OS build running on the device and
// records it as the provisioned build, fixing bookkeeping that drifted after
// a test mutated the device.
func ProvisioningLabelsRepair(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Record the running OS build as the provisioned build",
		Timeout:  time.Minute,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			live, err := cros.ReleaseBuilderPath(ctx, s.DUTRunner())
			if err != nil {
				return errors.Annotate(err, "provisioning labels repair").Err()
			}
			log.Infof(ctx, "Updating recorded build from %q to %q.", s.DUT.ProvisionedBuild, live)
			s.DUT.ProvisionedBuild = live
			return nil
		},
	}
}

// SetDefaultBoot resets the default boot target to disk.
func SetDefaultBoot(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Set the default boot target to disk",
		Timeout:  time.Minute,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			err := cros.UpdateCrossystem(ctx, s.DUTRunner(), "dev_default_boot", "disk", true)
			return errors.Annotate(err, "set default boot").Err()
		},
	}
}

// CrosReboot clears the firmware switches that keep a device in developer
// mode and reboots it.
func CrosReboot(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Clear dev-mode switches and reboot the device",
		Timeout:  10 * time.Minute,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			// Both cleanups fail on write-protected firmware; the reboot alone
			// still fixes devices that only wedged in userland.
			if _, err := run(ctx, time.Minute, "/usr/share/vboot/bin/set_gbb_flags.sh 0"); err != nil {
				log.Debugf(ctx, "Reboot repair: fail to reset GBB flags: %s", err)
			}
			if _, err := run(ctx, time.Minute, "crossystem block_devmode=0"); err != nil {
				log.Debugf(ctx, "Reboot repair: fail to clear block_devmode: %s", err)
			}
			if err := cros.Reboot(ctx, run, 2*time.Minute); err != nil {
				return errors.Annotate(err, "reboot repair").Err()
			}
			// Confirm the device actually went down; a wedged init can eat the
			// reboot and leave the host up the whole time.
			if err := cros.WaitUntilNotPingable(ctx, time.Minute, cros.PingRetryInterval, 2, s.DUTPinger()); err != nil {
				log.Debugf(ctx, "Reboot repair: device did not go down, may have rebooted too fast: %s", err)
			}
			// Ping comes back well before sshd; advisory only, the SSH wait
			// below is the gate.
			if err := cros.WaitUntilPingable(ctx, normalBootTimeout, cros.PingRetryInterval, cros.DefaultPingCount, s.DUTPinger()); err != nil {
				log.Debugf(ctx, "Reboot repair: device is not answering ping yet: %s", err)
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// Files and directories holding enterprise enrollment residue on the device.
const enrollmentResidue = "'/home/chronos/Local State'" +
	" /var/cache/shill/default.profile" +
	" /home/.shadow/*" +
	" /var/lib/whitelist/*" +
	" /var/cache/app_pack"

// EnrollmentCleanup removes the enterprise enrollment from the device: the
// VPD flag, the on-disk residue and the TPM ownership which holds the
// enrollment keys.
func EnrollmentCleanup(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Remove the enterprise enrollment from the device",
		Timeout:  10 * time.Minute,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			if err := cros.UpdateVPD(ctx, run, "RW_VPD", "check_enrollment", "0"); err != nil {
				return errors.Annotate(err, "enrollment cleanup").Err()
			}
			// Residue files may be absent, so the removal is tolerated to fail.
			if _, err := run(ctx, time.Minute, "rm -rf "+enrollmentResidue); err != nil {
				log.Debugf(ctx, "Enrollment cleanup: fail to remove residue: %s", err)
			}
			if _, err := run(ctx, time.Minute, "crossystem clear_tpm_owner_request=1"); err != nil {
				return errors.Annotate(err, "enrollment cleanup").Err()
			}
			if err := cros.Reboot(ctx, run, 2*time.Minute); err != nil {
				return errors.Annotate(err, "enrollment cleanup").Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// GS bucket holding the stable OS images.
const stableImageBucket = "gs://chromeos-image-archive/"

// provisionStable provisions the device to its assigned stable OS image and
// updates the provisioned-build bookkeeping.
func provisionStable(ctx context.Context, s *engine.Scope) error {
	sv := s.DUT.StableVersion
	if sv == nil || sv.CrosImage == "" {
		return errors.Reason("provision: no stable os image assigned to the device").Err()
	}
	req := &tlw.ProvisionRequest{
		Resource:        s.ResourceName,
		SystemImagePath: stableImageBucket + sv.CrosImage,
	}
	log.Infof(ctx, "Provisioning %q to %q.", s.ResourceName, req.SystemImagePath)
	if err := s.Access.Provision(ctx, req); err != nil {
		return errors.Annotate(err, "provision to %q", sv.CrosImage).Err()
	}
	s.DUT.ProvisionedBuild = sv.CrosImage
	return nil
}

// Provision reinstalls the stable OS image through the regular update path.
func Provision(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Provision the stable OS image",
		Timeout:  time.Hour,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			if err := provisionStable(ctx, s); err != nil {
				return errors.Annotate(err, "provision repair").Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// Marker file consumed by clobber-state on the next boot.
const powerwashCommand = `echo "fast safe" > /mnt/stateful_partition/factory_install_reset`

// PowerWash wipes the stateful partition and then provisions the stable OS
// image on the clean state.
func PowerWash(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Wipe the stateful partition and provision the stable OS image",
		Timeout:  90 * time.Minute,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			if _, err := run(ctx, time.Minute, powerwashCommand); err != nil {
				return errors.Annotate(err, "powerwash").Err()
			}
			if err := cros.Reboot(ctx, run, 2*time.Minute); err != nil {
				return errors.Annotate(err, "powerwash").Err()
			}
			if err := waitForBootAfter(ctx, s, name, powerwashBootTimeout); err != nil {
				return err
			}
			return errors.Annotate(provisionStable(ctx, s), "powerwash").Err()
		},
	}
}
