// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repair

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.chromium.org/chromiumos/config/go/api/test/xmlrpc"
	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/tlw"
)

const fakePowerInfo = `Device: Line Power
  online:                  yes
  type:                    Mains`

// fakeAccess simulates a healthy moblab host whose update-engine can be
// knocked down and comes back after a provision.
type fakeAccess struct {
	dut              *tlw.Dut
	updateEngineDown bool
	pingDown         bool
	provisionCalls   int
	updated          *tlw.Dut
}

func (f *fakeAccess) Ping(ctx context.Context, resourceName string, count int) error {
	if f.pingDown {
		return errors.Reason("no icmp route to the host").Err()
	}
	return nil
}

func (f *fakeAccess) Run(ctx context.Context, resourceName string, timeout time.Duration, command string, args ...string) *tlw.RunResult {
	cmd := command
	if len(args) > 0 {
		cmd += " " + strings.Join(args, " ")
	}
	result := func(exitCode int, out string) *tlw.RunResult {
		return &tlw.RunResult{Command: cmd, ExitCode: exitCode, Stdout: out}
	}
	switch {
	case cmd == "true":
		return result(0, "")
	case cmd == "power_supply_info":
		return result(0, fakePowerInfo)
	case strings.HasPrefix(cmd, "python"):
		return result(0, "")
	case strings.HasPrefix(cmd, "df "):
		return result(0, "1024")
	case strings.HasPrefix(cmd, "status update-engine"):
		if f.updateEngineDown {
			return result(1, "")
		}
		return result(0, "")
	default:
		return result(1, "")
	}
}

func (f *fakeAccess) CallServod(ctx context.Context, req *tlw.CallServodRequest) (*xmlrpc.Value, error) {
	return nil, errors.Reason("no servod in this setup").Err()
}

func (f *fakeAccess) SetPowerSupply(ctx context.Context, req *tlw.SetPowerSupplyRequest) *tlw.SetPowerSupplyResponse {
	return &tlw.SetPowerSupplyResponse{Status: tlw.PowerSupplyResponseStatusNoConfig}
}

func (f *fakeAccess) GetDut(ctx context.Context, resourceName string) (*tlw.Dut, error) {
	return f.dut, nil
}

func (f *fakeAccess) UpdateDut(ctx context.Context, dut *tlw.Dut) error {
	f.updated = dut
	return nil
}

func (f *fakeAccess) Provision(ctx context.Context, req *tlw.ProvisionRequest) error {
	f.provisionCalls++
	f.updateEngineDown = false
	return nil
}

func (f *fakeAccess) GetImageUrl(ctx context.Context, resourceName, imageName string) (string, error) {
	return "http://cache/" + imageName, nil
}

func (f *fakeAccess) Close() error {
	return nil
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{
		dut: &tlw.Dut{
			Name:  "moblab-host1",
			Board: "moblab",
			StableVersion: &tlw.StableVersion{
				CrosImage: "moblab-release/R90-13816.47.0",
			},
		},
	}
}

func TestRunHealthyDevice(t *testing.T) {
	t.Parallel()
	Convey("A healthy device passes verification and is marked ready", t, func() {
		access := newFakeAccess()
		err := Run(context.Background(), &RunArgs{
			Access:       access,
			UnitName:     "moblab-host1",
			StrategyName: StrategyMoblab,
			EnableRepair: true,
		})
		So(err, ShouldBeNil)
		So(access.updated, ShouldNotBeNil)
		So(access.updated.State, ShouldEqual, tlw.DutStateReady)
		So(access.provisionCalls, ShouldEqual, 0)
	})
}

func TestRunRepairsBrokenDevice(t *testing.T) {
	t.Parallel()
	Convey("A device with a broken OS is provisioned back to health", t, func() {
		access := newFakeAccess()
		access.updateEngineDown = true
		err := Run(context.Background(), &RunArgs{
			Access:       access,
			UnitName:     "moblab-host1",
			StrategyName: StrategyMoblab,
			EnableRepair: true,
		})
		So(err, ShouldBeNil)
		So(access.provisionCalls, ShouldEqual, 1)
		So(access.updated.State, ShouldEqual, tlw.DutStateReady)
		So(access.updated.ProvisionedBuild, ShouldEqual, "moblab-release/R90-13816.47.0")
	})
}

func TestRunRepairsHostWithoutPing(t *testing.T) {
	t.Parallel()
	Convey("A host that never answers ping is still repaired over SSH", t, func() {
		access := newFakeAccess()
		access.updateEngineDown = true
		access.pingDown = true
		err := Run(context.Background(), &RunArgs{
			Access:       access,
			UnitName:     "moblab-host1",
			StrategyName: StrategyMoblab,
			EnableRepair: true,
		})
		So(err, ShouldBeNil)
		So(access.provisionCalls, ShouldEqual, 1)
		So(access.updated.State, ShouldEqual, tlw.DutStateReady)
	})
}

func TestRunVerifyOnlyReportsFailure(t *testing.T) {
	t.Parallel()
	Convey("With repair disabled a broken device is reported, not touched", t, func() {
		access := newFakeAccess()
		access.updateEngineDown = true
		err := Run(context.Background(), &RunArgs{
			Access:       access,
			UnitName:     "moblab-host1",
			StrategyName: StrategyMoblab,
			EnableRepair: false,
		})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "cros")
		So(access.provisionCalls, ShouldEqual, 0)
		So(access.updated.State, ShouldEqual, tlw.DutStateRepairFailed)
	})
}

func TestRunRejectsUnknownStrategy(t *testing.T) {
	t.Parallel()
	Convey("An unknown strategy name fails before touching the device", t, func() {
		access := newFakeAccess()
		err := Run(context.Background(), &RunArgs{
			Access:       access,
			UnitName:     "moblab-host1",
			StrategyName: "android",
			EnableRepair: true,
		})
		So(err, ShouldNotBeNil)
		So(access.updated, ShouldBeNil)
	})
}
