// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repair

import (
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/repairaction"
	"infra/cros/repair/internal/verify"
)

// jetstreamStrategy assembles the verify graph and repair list for jetstream
// access points.
//
// Jetstream devices run a headless ChromeOS build: the UI, battery and
// peripheral checks of the regular graph do not apply, and the TPM backs the
// router attestation so it gets its own checks and repairs.
func jetstreamStrategy() *engine.Strategy {
	return &engine.Strategy{
		Name: StrategyJetstream,
		Verifiers: []*engine.Verifier{
			verify.Ping("ping"),
			verify.SSH("ssh", "ping"),
			verify.USBDrive("usb_drive"),
			verify.DevDefaultBoot("dev_default_boot", "ssh"),
			verify.DevMode("devmode", "ssh"),
			verify.EnrollmentState("enrollment_state", "ssh"),
			verify.HWID("hwid", "ssh"),
			verify.ACPower("power", "ssh"),
			verify.EXT4Errors("ext4", "ssh"),
			verify.Writable("writable", "ssh"),
			verify.TPMState("tpm", "ssh"),
			verify.GoodProvision("good_provision", "ssh"),
			verify.FirmwareTPM("faft_tpm", "ssh"),
			verify.FirmwareStatus("fwstatus", "ssh"),
			verify.FirmwareVersion("rwfw", "ssh"),
			verify.Python("python", "ssh"),
			verify.OSHealth("cros", "ssh"),
			verify.ProvisioningLabels("provisioning_labels", "ssh"),
			verify.JetstreamTPM("jetstream_tpm", "ssh"),
			verify.JetstreamAttestation("jetstream_attestation", "ssh"),
			verify.JetstreamServices("jetstream_services", "ssh"),
		},
		Actions: []*engine.RepairAction{
			repairaction.RPMCycle("rpm",
				nil,
				[]string{"ping", "ssh", "power"}),
			repairaction.ServoReset("servoreset",
				nil,
				[]string{"ping", "ssh"}),
			repairaction.Cr50Reboot("cr50_reset",
				nil,
				[]string{"ping", "ssh"}),
			repairaction.SysRq("sysrq",
				nil,
				[]string{"ping", "ssh"}),
			repairaction.ProvisioningLabelsRepair("provisioning_labels_repair",
				[]string{"ssh"},
				[]string{"provisioning_labels"}),
			repairaction.FaftFirmwareRepair("faft_firmware_repair",
				nil,
				[]string{"ping", "ssh", "fwstatus", "good_provision"}),
			repairaction.SetDefaultBoot("set_default_boot",
				[]string{"ssh"},
				[]string{"dev_default_boot"}),
			repairaction.CrosReboot("reboot",
				[]string{"ssh"},
				[]string{"devmode", "writable"}),
			repairaction.EnrollmentCleanup("cleanup_enrollment",
				[]string{"ssh"},
				[]string{"enrollment_state"}),
			repairaction.JetstreamTPMRepair("jetstream_tpm_repair",
				[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4"},
				[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
					"dev_default_boot", "jetstream_tpm", "jetstream_attestation"}),
			repairaction.JetstreamServiceRepair("jetstream_service_repair",
				[]string{"ping", "ssh", "writable", "tpm", "good_provision",
					"ext4", "jetstream_tpm", "jetstream_attestation"},
				[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
					"dev_default_boot", "jetstream_tpm", "jetstream_attestation",
					"jetstream_services"}),
			repairaction.Provision("provision",
				[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4"},
				[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
					"dev_default_boot", "jetstream_tpm", "jetstream_attestation",
					"jetstream_services"}),
			repairaction.PowerWash("powerwash",
				[]string{"ping", "ssh", "writable"},
				[]string{"tpm", "good_provision", "ext4", "power", "rwfw",
					"fwstatus", "python", "hwid", "cros", "dev_default_boot",
					"jetstream_tpm", "jetstream_attestation", "jetstream_services"}),
			repairaction.ServoInstall("usb",
				[]string{"usb_drive"},
				[]string{"ping", "ssh", "writable", "tpm", "good_provision",
					"ext4", "power", "rwfw", "fwstatus", "python", "hwid",
					"cros", "dev_default_boot", "jetstream_tpm",
					"jetstream_attestation", "jetstream_services", "faft_tpm"}),
		},
	}
}
