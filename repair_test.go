// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repair

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"infra/cros/repair/internal/engine"
)

// actionRow is one (name, dependencies, triggers) row of a repair list.
type actionRow struct {
	name     string
	deps     []string
	triggers []string
}

// The tables below are the stable contract of the strategies: node names,
// their order, and the dependency/trigger wiring of every repair action.
// Failure tags and metrics are keyed by these names, so any change here is
// an external behavior change.

var crosVerifierNames = []string{
	"ping",
	"ssh",
	"usb_drive",
	"dev_default_boot",
	"devmode",
	"enrollment_state",
	"hwid",
	"power",
	"ext4",
	"writable",
	"tpm",
	"good_provision",
	"faft_tpm",
	"fwstatus",
	"rwfw",
	"python",
	"cros",
	"provisioning_labels",
	"stop_start_ui",
	"storage",
	"audit_battery",
	"dut_gsctool",
	"dut_servo_keyboard",
	"dut_servo_macaddr",
}

var crosActionRows = []actionRow{
	{"rpm", nil, []string{"ping", "ssh", "power"}},
	{"servoreset", nil, []string{"ping", "ssh", "stop_start_ui", "power"}},
	{"cr50_reset", nil, []string{"ping", "ssh", "stop_start_ui", "power"}},
	{"sysrq", nil, []string{"ping", "ssh"}},
	{"provisioning_labels_repair", []string{"ssh"}, []string{"provisioning_labels"}},
	{"faft_firmware_repair", nil, []string{"ping", "ssh", "fwstatus", "good_provision"}},
	{"set_default_boot", []string{"ssh"}, []string{"dev_default_boot"}},
	{"reboot", []string{"ssh"}, []string{"devmode", "writable"}},
	{"cleanup_enrollment", []string{"ssh"}, []string{"enrollment_state"}},
	{"general_firmware", []string{"usb_drive"}, []string{"ping", "ssh"}},
	{"ac_recover", nil, []string{"ping", "power"}},
	{"provision",
		[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4"},
		[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
			"dev_default_boot", "stop_start_ui", "dut_gsctool"}},
	{"powerwash",
		[]string{"ping", "ssh", "writable"},
		[]string{"tpm", "good_provision", "ext4", "power", "rwfw", "fwstatus",
			"python", "hwid", "cros", "dev_default_boot", "stop_start_ui",
			"dut_gsctool"}},
	{"usb",
		[]string{"usb_drive"},
		[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4",
			"power", "rwfw", "fwstatus", "python", "hwid", "cros",
			"dev_default_boot", "stop_start_ui", "dut_gsctool", "faft_tpm"}},
	{"servo_reset_after_usb", []string{"usb_drive"}, []string{"ping", "ssh"}},
	{"recover_fw_after_usb", []string{"usb_drive"}, []string{"ping", "ssh"}},
}

var moblabVerifierNames = []string{"ssh", "power", "python", "cros"}

var moblabActionRows = []actionRow{
	{"rpm", nil, []string{"ssh", "power"}},
	{"provision", []string{"ssh"}, []string{"power", "python", "cros"}},
}

var jetstreamVerifierNames = []string{
	"ping",
	"ssh",
	"usb_drive",
	"dev_default_boot",
	"devmode",
	"enrollment_state",
	"hwid",
	"power",
	"ext4",
	"writable",
	"tpm",
	"good_provision",
	"faft_tpm",
	"fwstatus",
	"rwfw",
	"python",
	"cros",
	"provisioning_labels",
	"jetstream_tpm",
	"jetstream_attestation",
	"jetstream_services",
}

var jetstreamActionRows = []actionRow{
	{"rpm", nil, []string{"ping", "ssh", "power"}},
	{"servoreset", nil, []string{"ping", "ssh"}},
	{"cr50_reset", nil, []string{"ping", "ssh"}},
	{"sysrq", nil, []string{"ping", "ssh"}},
	{"provisioning_labels_repair", []string{"ssh"}, []string{"provisioning_labels"}},
	{"faft_firmware_repair", nil, []string{"ping", "ssh", "fwstatus", "good_provision"}},
	{"set_default_boot", []string{"ssh"}, []string{"dev_default_boot"}},
	{"reboot", []string{"ssh"}, []string{"devmode", "writable"}},
	{"cleanup_enrollment", []string{"ssh"}, []string{"enrollment_state"}},
	{"jetstream_tpm_repair",
		[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4"},
		[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
			"dev_default_boot", "jetstream_tpm", "jetstream_attestation"}},
	{"jetstream_service_repair",
		[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4",
			"jetstream_tpm", "jetstream_attestation"},
		[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
			"dev_default_boot", "jetstream_tpm", "jetstream_attestation",
			"jetstream_services"}},
	{"provision",
		[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4"},
		[]string{"power", "rwfw", "fwstatus", "python", "hwid", "cros",
			"dev_default_boot", "jetstream_tpm", "jetstream_attestation",
			"jetstream_services"}},
	{"powerwash",
		[]string{"ping", "ssh", "writable"},
		[]string{"tpm", "good_provision", "ext4", "power", "rwfw", "fwstatus",
			"python", "hwid", "cros", "dev_default_boot", "jetstream_tpm",
			"jetstream_attestation", "jetstream_services"}},
	{"usb",
		[]string{"usb_drive"},
		[]string{"ping", "ssh", "writable", "tpm", "good_provision", "ext4",
			"power", "rwfw", "fwstatus", "python", "hwid", "cros",
			"dev_default_boot", "jetstream_tpm", "jetstream_attestation",
			"jetstream_services", "faft_tpm"}},
}

func verifierNames(s *engine.Strategy) []string {
	names := make([]string, len(s.Verifiers))
	for i, v := range s.Verifiers {
		names[i] = v.Name
	}
	return names
}

func actionRows(s *engine.Strategy) []actionRow {
	rows := make([]actionRow, len(s.Actions))
	for i, a := range s.Actions {
		rows[i] = actionRow{name: a.Name, deps: a.Deps, triggers: a.Triggers}
	}
	return rows
}

func TestStrategiesAreValid(t *testing.T) {
	t.Parallel()
	for _, s := range []*engine.Strategy{crosStrategy(), moblabStrategy(), jetstreamStrategy()} {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			Convey("Strategy "+s.Name+" passes validation", t, func() {
				So(s.Validate(), ShouldBeNil)
			})
		})
	}
}

func TestCrosStrategyTables(t *testing.T) {
	t.Parallel()
	Convey("The cros strategy tables", t, func() {
		s := crosStrategy()
		Convey("list the verifiers in the expected order", func() {
			So(verifierNames(s), ShouldResemble, crosVerifierNames)
		})
		Convey("list the repair actions with the expected wiring", func() {
			So(actionRows(s), ShouldResemble, crosActionRows)
		})
		Convey("mark exactly the advisory checks non-critical", func() {
			nonCritical := map[string]bool{}
			for _, v := range s.Verifiers {
				if v.NonCritical {
					nonCritical[v.Name] = true
				}
			}
			So(nonCritical, ShouldResemble, map[string]bool{
				"ext4":               true,
				"rwfw":               true,
				"storage":            true,
				"dut_gsctool":        true,
				"dut_servo_keyboard": true,
				"dut_servo_macaddr":  true,
			})
		})
	})
}

func TestMoblabStrategyTables(t *testing.T) {
	t.Parallel()
	Convey("The moblab strategy tables", t, func() {
		s := moblabStrategy()
		So(verifierNames(s), ShouldResemble, moblabVerifierNames)
		So(actionRows(s), ShouldResemble, moblabActionRows)
	})
}

func TestJetstreamStrategyTables(t *testing.T) {
	t.Parallel()
	Convey("The jetstream strategy tables", t, func() {
		s := jetstreamStrategy()
		So(verifierNames(s), ShouldResemble, jetstreamVerifierNames)
		So(actionRows(s), ShouldResemble, jetstreamActionRows)
		Convey("retry the async TPM initialization checks", func() {
			for _, v := range s.Verifiers {
				switch v.Name {
				case "jetstream_tpm", "jetstream_attestation":
					So(v.RetryCount, ShouldEqual, 6)
				}
			}
		})
	})
}

func TestStrategyByName(t *testing.T) {
	t.Parallel()
	Convey("Strategy lookup", t, func() {
		Convey("defaults to cros", func() {
			s, err := strategyByName("")
			So(err, ShouldBeNil)
			So(s.Name, ShouldEqual, StrategyCros)
		})
		Convey("resolves each registered name", func() {
			for _, name := range []string{StrategyCros, StrategyMoblab, StrategyJetstream} {
				s, err := strategyByName(name)
				So(err, ShouldBeNil)
				So(s.Name, ShouldEqual, name)
			}
		})
		Convey("rejects unknown names", func() {
			_, err := strategyByName("android")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRunArgsVerify(t *testing.T) {
	t.Parallel()
	Convey("RunArgs validation", t, func() {
		Convey("rejects empty args", func() {
			var args *RunArgs
			So(args.verify(), ShouldNotBeNil)
		})
		Convey("rejects missing access", func() {
			args := &RunArgs{UnitName: "dut-1"}
			So(args.verify(), ShouldNotBeNil)
		})
		Convey("rejects missing unit name", func() {
			args := &RunArgs{Access: &fakeAccess{}}
			So(args.verify(), ShouldNotBeNil)
		})
	})
}
