// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package power

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const acOnlyOutput = `
Device: Line Power
  online:                  yes
  type:                    Mains
  voltage (V):             0
  current (A):             0
`

const acWithBatteryOutput = `
Device: Line Power
  online:                  no
  type:                    Mains
Device: Battery
  state:                   Discharging
  percentage:              95.9276
  technology:              Li-ion
  path:                    /sys/class/power_supply/BAT0
`

func TestParseSupplyInfo(t *testing.T) {
	t.Parallel()
	got := parseSupplyInfo(acWithBatteryOutput)
	want := map[string]map[string]string{
		"Line Power": {
			"online": "no",
			"type":   "Mains",
		},
		"Battery": {
			"state":      "Discharging",
			"percentage": "95.9276",
			"technology": "Li-ion",
			"path":       "/sys/class/power_supply/BAT0",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected diff (-want +got): %s", diff)
	}
}

func TestSupplyInfoAccessors(t *testing.T) {
	t.Parallel()
	t.Run("AC only device", func(t *testing.T) {
		t.Parallel()
		p := &SupplyInfo{powerInfo: parseSupplyInfo(acOnlyOutput)}
		if online, err := p.IsACOnline(); err != nil {
			t.Errorf("Expected to read AC state: %s", err)
		} else if !online {
			t.Errorf("Expected AC to be online")
		}
		if p.HasBattery() {
			t.Errorf("Expected no battery")
		}
		if _, err := p.BatteryLevel(); err == nil {
			t.Errorf("Expected error reading battery level without battery")
		}
	})
	t.Run("Discharging battery", func(t *testing.T) {
		t.Parallel()
		p := &SupplyInfo{powerInfo: parseSupplyInfo(acWithBatteryOutput)}
		if online, err := p.IsACOnline(); err != nil {
			t.Errorf("Expected to read AC state: %s", err)
		} else if online {
			t.Errorf("Expected AC to be offline")
		}
		if !p.HasBattery() {
			t.Errorf("Expected battery to be present")
		}
		if discharging, err := p.IsBatteryDischarging(); err != nil {
			t.Errorf("Expected to read battery state: %s", err)
		} else if !discharging {
			t.Errorf("Expected battery to be discharging")
		}
		if level, err := p.BatteryLevel(); err != nil {
			t.Errorf("Expected to read battery level: %s", err)
		} else if level < 95.9 || level > 96 {
			t.Errorf("Unexpected battery level: %f", level)
		}
		if path, err := p.BatteryPath(); err != nil {
			t.Errorf("Expected to read battery path: %s", err)
		} else if path != "/sys/class/power_supply/BAT0" {
			t.Errorf("Unexpected battery path: %q", path)
		}
	})
}
