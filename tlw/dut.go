// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package tlw

// Dut holds info about the DUT used for verification and repair.
type Dut struct {
	// Name is the resource name for the DUT.
	Name string
	// Board name of the DUT.
	Board string
	// Model name of the DUT.
	Model string
	// Hardware identifier.
	Hwid string
	// Serial number of the DUT.
	SerialNumber string
	// Lab pools the DUT is assigned to.
	Pools []string
	// State of the DUT.
	State DutState

	// Physical parts of DUT.
	// Internal storage info.
	Storage *DUTStorage
	// Battery info.
	Battery *DUTBattery

	// Peripheral devices.
	// ServoHost of the DUT setup.
	ServoHost *ServoHost
	// RPMOutlet of the DUT setup.
	RPMOutlet *RPMOutlet

	// StableVersion of the DUT.
	StableVersion *StableVersion

	// ProvisionedBuild is the OS build the inventory believes is installed,
	// recorded by the last successful provision.
	// Example: board-release/R90-13816.47.0
	ProvisionedBuild string

	// RepairFailures counts, per repair action name, how many consecutive
	// runs the action has failed. Persisted across runs via UpdateDut.
	RepairFailures map[string]int32
}

// DutState describes the lab state of the DUT.
type DutState string

const (
	DutStateUnspecified      DutState = "UNSPECIFIED"
	DutStateReady            DutState = "ready"
	DutStateNeedsRepair      DutState = "needs_repair"
	DutStateNeedsRedeploy    DutState = "needs_redeploy"
	DutStateRepairFailed     DutState = "repair_failed"
	DutStateNeedsReplacement DutState = "needs_replacement"
)

// StableVersion holds info about stable versions used to recover devices.
type StableVersion struct {
	// ChromeOS stable image in standard GS path format.
	// Example: board-release/R90-13816.47.0
	CrosImage string
	// ChromeOS firmware version in a format that aligns with crossystem or
	// chromeos-firmwareupdate output.
	// Example: Google_Board.13434.261.0
	CrosFirmwareVersion string
	// ChromeOS firmware image in standard GS path format.
	// Example: board-firmware/R87-13434.261.0
	CrosFirmwareImage string
}

// HardwareState describes the state of hardware components.
type HardwareState string

const (
	HardwareStateUnspecified HardwareState = "UNSPECIFIED"
	// Hardware is in good shape and pass all verifiers.
	HardwareStateNormal HardwareState = "NORMAL"
	// Hardware is still good but some of the verifiers did not pass.
	HardwareStateAcceptable HardwareState = "ACCEPTABLE"
	// Hardware is broken or reached the end of life.
	HardwareStateNeedReplacement HardwareState = "NEED_REPLACEMENT"
	// Hardware expected to present but not detected.
	HardwareStateNotDetected HardwareState = "NOT_DETECTED"
)

// DUTStorage holds info about the internal storage of the DUT.
type DUTStorage struct {
	// State of the component.
	State HardwareState
}

// DUTBattery holds info about the battery of the DUT.
type DUTBattery struct {
	// State of the component.
	State HardwareState
}

// ServoHost holds info about the host to manage the servod daemon.
type ServoHost struct {
	// Name is the resource name of the servo-host.
	Name string
	// Port assigned to the servod daemon.
	ServodPort int
	// Servo type as reported by servod.
	// Example: servo_v4_with_servo_micro
	ServoType string
	// Path of the USB-drive on the servo-host, if detected.
	UsbDrivePath string
}

// RPMOutlet holds info about the remote power management outlet of the DUT.
type RPMOutlet struct {
	// Unique name of the outlet in the RPM config.
	Name string
	// MissingConfig is set when the DUT has no known RPM wiring; RPM based
	// repairs are not applicable then.
	MissingConfig bool
}
