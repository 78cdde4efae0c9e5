// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cros

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
)

// ReadCrossystem reads the value of the requested crossystem key.
func ReadCrossystem(ctx context.Context, run components.Runner, subcommand string) (string, error) {
	out, err := run(ctx, time.Minute, "crossystem", subcommand)
	if err != nil {
		return "", errors.Annotate(err, "read crossystem: fail read %s", subcommand).Err()
	}
	return strings.TrimSpace(out), nil
}

// MatchCrossystemValueToExpectation reads a value from crossystem and
// compares it to the expected value.
func MatchCrossystemValueToExpectation(ctx context.Context, run components.Runner, subcommand string, expectedValue string) error {
	actualValue, err := ReadCrossystem(ctx, run, subcommand)
	if err != nil {
		return errors.Annotate(err, "match crossystem value to expectation").Err()
	}
	if actualValue != expectedValue {
		return errors.Reason("match crossystem value to expectation: %q, found: %q", expectedValue, actualValue).Err()
	}
	return nil
}

// UpdateCrossystem sets the value of the subcommand to the value passed in.
//
// When check is set the update is confirmed by re-read.
func UpdateCrossystem(ctx context.Context, run components.Runner, cmd string, val string, check bool) error {
	if _, err := run(ctx, time.Minute, fmt.Sprintf("crossystem %s=%s", cmd, val)); err != nil {
		return errors.Annotate(err, "update crossystem value").Err()
	}
	if check {
		return errors.Annotate(MatchCrossystemValueToExpectation(ctx, run, cmd, val), "update crossystem value").Err()
	}
	return nil
}

// ReadVPD reads a key from the requested VPD partition.
func ReadVPD(ctx context.Context, run components.Runner, partition, key string) (string, error) {
	out, err := run(ctx, time.Minute, "vpd", "-i", partition, "-g", key)
	if err != nil {
		return "", errors.Annotate(err, "read vpd %s/%s", partition, key).Err()
	}
	return strings.TrimSpace(out), nil
}

// UpdateVPD sets a key in the requested VPD partition.
func UpdateVPD(ctx context.Context, run components.Runner, partition, key, value string) error {
	if _, err := run(ctx, time.Minute, "vpd", "-i", partition, "-s", fmt.Sprintf("%s=%s", key, value)); err != nil {
		return errors.Annotate(err, "update vpd %s/%s", partition, key).Err()
	}
	return nil
}
