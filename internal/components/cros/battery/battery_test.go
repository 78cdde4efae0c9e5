// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package battery

import (
	"context"
	"testing"

	"infra/cros/repair/tlw"
)

func TestDetermineHardwareState(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		full     float64
		designed float64
		want     tlw.HardwareState
	}{
		{"as new", 5000, 5000, tlw.HardwareStateNormal},
		{"exactly at normal level", 3500, 5000, tlw.HardwareStateNormal},
		{"worn but acceptable", 2500, 5000, tlw.HardwareStateAcceptable},
		{"exactly at acceptable level", 2000, 5000, tlw.HardwareStateAcceptable},
		{"needs replacement", 1500, 5000, tlw.HardwareStateNeedReplacement},
		{"no capacity data", 0, 5000, tlw.HardwareStateUnspecified},
		{"no designed capacity data", 5000, 0, tlw.HardwareStateUnspecified},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			got := DetermineHardwareState(context.Background(), c.full, c.designed)
			if got != c.want {
				t.Errorf("DetermineHardwareState(%v, %v) = %q, want %q", c.full, c.designed, got, c.want)
			}
		})
	}
}
