// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package servo

import (
	"testing"
)

const testImageReleaseInfo = `CHROMEOS_RELEASE_APPID={01906EA2-3EB2-41F1-8F62-F0B7120EFD2E}
CHROMEOS_BOARD_APPID={01906EA2-3EB2-41F1-8F62-F0B7120EFD2E}
CHROMEOS_RELEASE_BOARD=eve
CHROMEOS_RELEASE_BUILDER_PATH=eve-release/R90-13816.47.0
CHROMEOS_RELEASE_TRACK=testimage-channel
CHROMEOS_RELEASE_VERSION=13816.47.0`

const baseImageReleaseInfo = `CHROMEOS_RELEASE_BOARD=eve
CHROMEOS_RELEASE_BUILDER_PATH=eve-release/R90-13816.47.0
CHROMEOS_RELEASE_TRACK=stable-channel
CHROMEOS_RELEASE_VERSION=13816.47.0`

const namelessReleaseInfo = `CHROMEOS_RELEASE_BOARD=eve
CHROMEOS_RELEASE_TRACK=testimage-channel
CHROMEOS_RELEASE_VERSION=13816.47.0`

func TestParseReleaseInfo(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"test image", testImageReleaseInfo, "eve-release/R90-13816.47.0", false},
		{"base image is rejected", baseImageReleaseInfo, "", true},
		{"missing builder path is rejected", namelessReleaseInfo, "", true},
		{"empty output is rejected", "", "", true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseReleaseInfo(c.in)
			if c.wantErr {
				if err == nil {
					t.Fatalf("parseReleaseInfo() = %q, expected error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseReleaseInfo() returned error: %s", err)
			}
			if got != c.want {
				t.Errorf("parseReleaseInfo() = %q, want %q", got, c.want)
			}
		})
	}
}
