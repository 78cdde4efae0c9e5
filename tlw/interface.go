// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tlw provides an abstract representation of the lab wrapper API
// which is used by the repair library to reach devices.
package tlw

import (
	"context"
	"time"

	"go.chromium.org/chromiumos/config/go/api/test/xmlrpc"
	"go.chromium.org/luci/common/errors"
)

// Access represents the lab level access to the devices and inventory.
// Each device in the lab is represented as a resource with a name. For now
// the resource name matches the host-name but later can become different.
type Access interface {
	// Ping performs ping by resource name.
	Ping(ctx context.Context, resourceName string, count int) error
	// Run executes command on device by SSH related to resource name.
	// The result is always provided, a failure is reflected by the exit code.
	Run(ctx context.Context, resourceName string, timeout time.Duration, command string, args ...string) *RunResult
	// CallServod executes a command on servod related to the resource name.
	// Commands will be run against servod on the servo-host.
	CallServod(ctx context.Context, req *CallServodRequest) (*xmlrpc.Value, error)
	// SetPowerSupply manages the RPM power supply for the requested resource.
	SetPowerSupply(ctx context.Context, req *SetPowerSupplyRequest) *SetPowerSupplyResponse
	// GetDut provides DUT info per requested resource name from inventory.
	GetDut(ctx context.Context, resourceName string) (*Dut, error)
	// UpdateDut updates DUT info into inventory.
	UpdateDut(ctx context.Context, dut *Dut) error
	// Provision triggers provisioning of the device to the requested OS image.
	Provision(ctx context.Context, req *ProvisionRequest) error
	// GetImageUrl provides URL to the image requested to load.
	// URL will be used to download the image to the USB-drive.
	GetImageUrl(ctx context.Context, resourceName, imageName string) (string, error)
	// Close closes all used resources.
	Close() error
}

// RunResult represents result of executed command.
type RunResult struct {
	// Command executed on the resource.
	Command string
	// Exit code return.
	// Eg: 0 - everything is good
	// 	   1 - executed stop with error code `1`
	//     15 - timeout of execution
	ExitCode int
	// Standard output
	Stdout string
	// Standard error output
	Stderr string
}

// ServodMethod represents types of methods supported by servod daemon.
// Examples:
//   get: to read data need to pass method:`get`, command:`lid_open`.
//   set: to update state need to pass method:`set`, command:`lid_open`, value:`no`.
//   doc: to check that the control is known by the daemon.
type ServodMethod string

const (
	// Reading data from servod daemon.
	// Example: ec_board, lid_open.
	ServodMethodGet ServodMethod = "get"
	// Set methods used to set values or call methods with parameters.
	// Example: power_state:reset, lid_open:no.
	ServodMethodSet ServodMethod = "set"
	// Verify if control is known and present in servod daemon.
	// Example: ec_board, lid_open.
	ServodMethodDoc ServodMethod = "doc"
)

// CallServodRequest represents a request to run a method against servod.
type CallServodRequest struct {
	// Resource name of the DUT whose servod is addressed.
	Resource string
	Method   ServodMethod
	Args     []*xmlrpc.Value
	Timeout  time.Duration
}

// Error categories for servod calls. Implementations of Access must tag
// errors returned from CallServod with exactly one of these so that callers
// can decide whether to retry, skip or escalate.
var (
	// The requested control does not exist on this servo configuration.
	ServodControlUnknownTag = errors.BoolTag{Key: errors.NewTagKey("servod control unknown")}
	// The console/channel behind the control did not respond.
	ServodConsoleUnresponsiveTag = errors.BoolTag{Key: errors.NewTagKey("servod console unresponsive")}
	// The console responded but the command itself failed.
	ServodConsoleErrorTag = errors.BoolTag{Key: errors.NewTagKey("servod console command error")}
)

// PowerSupplyAction represents an action expected to be performed on the
// power supplier.
type PowerSupplyAction string

const (
	PowerSupplyActionUnspecified PowerSupplyAction = "UNSPECIFIED"
	// Switch state to ON.
	PowerSupplyActionOn PowerSupplyAction = "ON"
	// Switch state to OFF.
	PowerSupplyActionOff PowerSupplyAction = "OFF"
	// Switch state to OFF and then ON with delay 5 seconds.
	PowerSupplyActionCycle PowerSupplyAction = "CYCLE"
)

// SetPowerSupplyRequest represents data to perform state change for the
// power supplier.
type SetPowerSupplyRequest struct {
	// Resource name
	Resource string
	// Expected state to switch on.
	State PowerSupplyAction
}

// PowerSupplyResponseStatus represents response status from an attempt to
// change the state of the power supplier.
type PowerSupplyResponseStatus string

const (
	PowerSupplyResponseStatusUnspecified PowerSupplyResponseStatus = "UNSPECIFIED"
	PowerSupplyResponseStatusOK          PowerSupplyResponseStatus = "OK"
	// RPM config is not present or incorrect.
	PowerSupplyResponseStatusNoConfig PowerSupplyResponseStatus = "NO_CONFIG"
	// Request data incorrect or in unexpected state.
	PowerSupplyResponseStatusBadRequest PowerSupplyResponseStatus = "BAD_REQUEST"
	// Fail to switch to required state.
	PowerSupplyResponseStatusError PowerSupplyResponseStatus = "ERROR"
)

// SetPowerSupplyResponse represents the result of performing a state change
// for the power supplier.
type SetPowerSupplyResponse struct {
	// New state.
	Status PowerSupplyResponseStatus
	// Error details
	Reason string
}

// ProvisionRequest represents data to perform provisioning of the device.
type ProvisionRequest struct {
	// Resource name
	Resource string
	// Path to system image.
	// Example: gs://bucket/path_to_image
	SystemImagePath string
	// Prevent reboot during provision OS update.
	PreventReboot bool
}
