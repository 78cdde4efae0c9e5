// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repair

import (
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/repairaction"
	"infra/cros/repair/internal/verify"
)

// moblabStrategy assembles the verify graph and repair list for moblab
// devices.
//
// Moblab hosts are not pingable from the drone network, so the graph starts
// at the SSH check, and destructive repairs past provisioning are not
// allowed on them.
func moblabStrategy() *engine.Strategy {
	return &engine.Strategy{
		Name: StrategyMoblab,
		Verifiers: []*engine.Verifier{
			verify.SSH("ssh"),
			verify.ACPower("power", "ssh"),
			verify.Python("python", "ssh"),
			verify.OSHealth("cros", "ssh"),
		},
		Actions: []*engine.RepairAction{
			repairaction.RPMCycle("rpm",
				nil,
				[]string{"ssh", "power"}),
			repairaction.Provision("provision",
				[]string{"ssh"},
				[]string{"power", "python", "cros"}),
		},
	}
}
