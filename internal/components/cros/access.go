// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cros provides helpers to probe and control ChromeOS devices.
package cros

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/log"
	"infra/cros/repair/internal/retry"
)

const (
	// DefaultPingCount is a number of packets to send by default.
	DefaultPingCount = 3

	// PingRetryInterval is the pause between ping attempts while waiting.
	PingRetryInterval = 5 * time.Second
	// SSHRetryInterval is the pause between ssh attempts while waiting.
	SSHRetryInterval = 10 * time.Second
)

// IsPingable checks whether the resource is pingable.
func IsPingable(ctx context.Context, count int, ping components.Pinger) error {
	err := ping(ctx, count)
	return errors.Annotate(err, "is pingable").Err()
}

// IsSSHable checks whether the resource is reachable over SSH.
func IsSSHable(ctx context.Context, run components.Runner) error {
	_, err := run(ctx, time.Minute, "true")
	return errors.Annotate(err, "is sshable").Err()
}

// WaitUntilPingable waits for the resource to become pingable.
func WaitUntilPingable(ctx context.Context, waitTime, waitInterval time.Duration, countPerAttempt int, ping components.Pinger) error {
	log.Debugf(ctx, "Start ping for the next %s.", waitTime)
	return retry.WithTimeout(ctx, waitInterval, waitTime, func() error {
		return IsPingable(ctx, countPerAttempt, ping)
	}, "wait to ping")
}

// WaitUntilSSHable waits for the resource to be reachable over SSH.
func WaitUntilSSHable(ctx context.Context, waitTime, waitInterval time.Duration, run components.Runner) error {
	log.Debugf(ctx, "Start SSH check for the next %s.", waitTime)
	return retry.WithTimeout(ctx, waitInterval, waitTime, func() error {
		return IsSSHable(ctx, run)
	}, "wait to ssh access")
}

// WaitUntilNotPingable waits for the resource to stop being pingable.
func WaitUntilNotPingable(ctx context.Context, waitTime, waitInterval time.Duration, countPerAttempt int, ping components.Pinger) error {
	return retry.WithTimeout(ctx, waitInterval, waitTime, func() error {
		if err := ping(ctx, countPerAttempt); err != nil {
			return nil
		}
		return errors.Reason("not pingable: is pingable").Err()
	}, "wait to be not pingable")
}
