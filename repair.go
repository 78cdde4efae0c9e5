// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package repair provides verification and repair of ChromeOS lab devices.
//
// The library reads the device info from the inventory, runs the verify
// graph of the strategy assigned to the device class, walks the ordered
// repair list until the device is healthy or the list is exhausted, and
// writes the resulting state back to the inventory.
package repair

import (
	"context"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
	"infra/cros/repair/logger"
	"infra/cros/repair/tlw"
)

// Names of the supported repair strategies.
const (
	// Regular ChromeOS devices.
	StrategyCros = "cros"
	// Moblab hosts.
	StrategyMoblab = "moblab"
	// Jetstream access points.
	StrategyJetstream = "jetstream"
)

// RunArgs holds info to run verification and repair of a device.
type RunArgs struct {
	// Access to the lab layer.
	Access tlw.Access
	// UnitName is the resource name of the device to verify and repair.
	UnitName string
	// StrategyName picks the strategy for the device class. Empty means
	// StrategyCros.
	StrategyName string
	// Logger to use. Nil means logging is dropped.
	Logger logger.Logger
	// EnableRepair allows repair actions to run. When false the run is
	// verify-only and a failing device is reported but not touched.
	EnableRepair bool
}

// verify checks that the arguments hold everything a run needs.
func (a *RunArgs) verify() error {
	switch {
	case a == nil:
		return errors.Reason("args are empty").Err()
	case a.Access == nil:
		return errors.Reason("access point is not provided").Err()
	case a.UnitName == "":
		return errors.Reason("unit name is not provided").Err()
	}
	return nil
}

// Run verifies the device and, when repair is enabled, walks the repair list
// of its strategy until the device is healthy or the list is exhausted.
//
// The device state in the inventory is updated in both outcomes: ready on
// success, repair_failed on failure unless a check recorded a more specific
// state such as needs_redeploy.
func Run(ctx context.Context, args *RunArgs) error {
	if err := args.verify(); err != nil {
		return errors.Annotate(err, "run repair").Err()
	}
	if args.Logger != nil {
		ctx = log.WithLogger(ctx, args.Logger)
	}
	strategy, err := strategyByName(args.StrategyName)
	if err != nil {
		return errors.Annotate(err, "run repair").Err()
	}
	dut, err := args.Access.GetDut(ctx, args.UnitName)
	if err != nil {
		return errors.Annotate(err, "run repair %q", args.UnitName).Err()
	}
	log.Infof(ctx, "Starting %q run for %q.", strategy.Name, dut.Name)
	scope := &engine.Scope{
		Access:       args.Access,
		ResourceName: dut.Name,
		DUT:          dut,
		EnableRepair: args.EnableRepair,
	}
	runErr := engine.Run(ctx, strategy, scope)
	switch {
	case runErr == nil:
		dut.State = tlw.DutStateReady
	case dut.State == tlw.DutStateNeedsRedeploy || dut.State == tlw.DutStateNeedsReplacement:
		// A check recorded a more specific verdict, keep it.
	default:
		dut.State = tlw.DutStateRepairFailed
	}
	log.Infof(ctx, "Finished %q run for %q: state %q.", strategy.Name, dut.Name, dut.State)
	if err := args.Access.UpdateDut(ctx, dut); err != nil {
		if runErr != nil {
			log.Errorf(ctx, "Fail to update %q in the inventory: %s", dut.Name, err)
		} else {
			return errors.Annotate(err, "run repair %q", args.UnitName).Err()
		}
	}
	return errors.Annotate(runErr, "run repair %q", args.UnitName).Err()
}

// strategyByName provides the strategy registered under the name.
func strategyByName(name string) (*engine.Strategy, error) {
	switch name {
	case "", StrategyCros:
		return crosStrategy(), nil
	case StrategyMoblab:
		return moblabStrategy(), nil
	case StrategyJetstream:
		return jetstreamStrategy(), nil
	default:
		return nil, errors.Reason("strategy by name: unknown strategy %q", name).Err()
	}
}
