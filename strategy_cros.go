// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repair

import (
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/repairaction"
	"infra/cros/repair/internal/verify"
)

// crosStrategy assembles the verify graph and repair list for regular
// ChromeOS devices.
//
// Verifiers are listed in dependency order and actions in escalation order,
// cheapest and least destructive first. The node names are a stable
// contract: failure tags and metrics are keyed by them.
func crosStrategy() *engine.Strategy {
	return &engine.Strategy{
		Name: StrategyCros,
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
			verify.StopStartUI("stop_start_ui", "ssh"),
			verify.StorageSMART("storage", "ssh"),
			verify.AuditBattery("audit_battery"),
			verify.GscTool("dut_gsctool", "ssh"),
			verify.ServoKeyboard("dut_servo_keyboard", "ssh"),
			verify.ServoMacAddress("dut_servo_macaddr", "ssh"),
		},
		Actions: []*engine.RepairAction{
			repairaction.RPMCycle("rpm",
				nil,
				[]string{"ping", "ssh", "power"}),
			repairaction.ServoReset("servoreset",
				nil,
				[]string{"ping", "ssh", "stop_start_ui", "power"}),
			repairaction.Cr50Reboot("cr50_reset",
				nil,
				[]string{"ping", "ssh", "stop_start_ui", "power"}),
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
			repairaction.GeneralFirmwareRepair("general_firmware",
				[]string{"usb_drive"},
				[]string{"ping", "ssh"}),
			repairaction.RecoverACPower("ac_recover",
				nil,
				[]string{"ping", "power"}),
			repairaction.Provision("provision",
				[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4"},
				[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
					"dev_default_boot", "stop_start_ui", "dut_gsctool"}),
			repairaction.PowerWash("powerwash",
				[]string{"ping", "ssh", "writable"},
				[]string{"tpm", "good_provision", "ext4", "power", "rwfw",
					"fwstatus", "python", "hwid", "cros", "dev_default_boot",
					"stop_start_ui", "dut_gsctool"}),
			repairaction.ServoInstall("usb",
				[]string{"usb_drive"},
				[]string{"ping", "ssh", "writable", "tpm", "good_provision",
					"ext4", "power", "rwfw", "fwstatus", "python", "hwid",
					"cros", "dev_default_boot", "stop_start_ui", "dut_gsctool",
					"faft_tpm"}),
			repairaction.ServoResetAfterUSB("servo_reset_after_usb",
				[]string{"usb_drive"},
				[]string{"ping", "ssh"}),
			repairaction.RecoverFwAfterUSB("recover_fw_after_usb",
				[]string{"usb_drive"},
				[]string{"ping", "ssh"}),
		},
	}
}
