// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cros

import (
	"context"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
)

const releaseInfoPath = "/etc/lsb-release"

// ReleaseBuilderPath reads the builder path of the OS image currently
// installed on the device.
//
// Example: board-release/R90-13816.47.0
func ReleaseBuilderPath(ctx context.Context, run components.Runner) (string, error) {
	out, err := run(ctx, time.Minute, "cat", releaseInfoPath)
	if err != nil {
		return "", errors.Annotate(err, "release builder path").Err()
	}
	for _, line := range strings.Split(out, "\n") {
		if v := strings.TrimPrefix(line, "CHROMEOS_RELEASE_BUILDER_PATH="); v != line {
			return strings.TrimSpace(v), nil
		}
	}
	return "", errors.Reason("release builder path: not found in %s", releaseInfoPath).Err()
}

// IsTestImage confirms the running OS build is a test image.
func IsTestImage(ctx context.Context, run components.Runner) error {
	out, err := run(ctx, time.Minute, "cat", releaseInfoPath)
	if err != nil {
		return errors.Annotate(err, "is test image").Err()
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "CHROMEOS_RELEASE_TRACK=") && strings.Contains(line, "test") {
			return nil
		}
	}
	return errors.Reason("is test image: release track is not a test channel").Err()
}
