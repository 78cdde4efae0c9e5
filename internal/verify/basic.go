// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// Ping confirms the device responds to ping.
func Ping(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The device is reachable by ping",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			err := cros.IsPingable(ctx, cros.DefaultPingCount, s.DUTPinger())
			return errors.Annotate(err, "ping").Err()
		},
	}
}

// SSH confirms the device accepts SSH connections and executes commands.
func SSH(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The device is reachable over SSH",
		Timeout: 2 * time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			err := cros.IsSSHable(ctx, s.DUTRunner())
			return errors.Annotate(err, "ssh").Err()
		},
	}
}

// Python confirms the presence of a working python interpreter.
func Python(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "Python on the device is installed and working",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			if _, err := run(ctx, time.Minute, `python -c "import json"`); err != nil {
				if components.SSHErrorCLINotFound.In(err) {
					if _, werr := run(ctx, time.Minute, "which python"); werr != nil {
						// A missing interpreter is a known side effect of an
						// interrupted powerwash.
						return errors.Reason("python: python is missing; may be caused by powerwash").Err()
					}
				}
				return errors.Annotate(err, "python: the python interpreter is broken").Err()
			}
			return nil
		},
	}
}

const (
	// Minimum free space in the stateful partition, in MB. Tests and
	// provisioning both fail in obscure ways below this.
	minStatefulFreeSpaceMB = 100
	statefulMountPoint     = "/mnt/stateful_partition"
)

// OSHealth bundles the legacy base-level OS checks: the stateful partition
// has usable free space and the update engine is running.
func OSHealth(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The device OS passes basic health checks",
		Timeout: 2 * time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			out, err := run(ctx, time.Minute, fmt.Sprintf("df -PB 1M %s | tail -1 | awk '{print $4}'", statefulMountPoint))
			if err != nil {
				return errors.Annotate(err, "os health: fail to read free space of %s", statefulMountPoint).Err()
			}
			free, err := strconv.ParseFloat(out, 64)
			if err != nil {
				return errors.Annotate(err, "os health: unexpected df output %q", out).Err()
			}
			if free < minStatefulFreeSpaceMB {
				return errors.Reason("os health: only %.0fMB free in %s, need %dMB", free, statefulMountPoint, minStatefulFreeSpaceMB).Err()
			}
			if _, err := run(ctx, time.Minute, "status update-engine | grep -q running"); err != nil {
				return errors.Annotate(err, "os health: update-engine is not running").Err()
			}
			return nil
		},
	}
}

// StopStartUI confirms the ui job can be restarted. A device that hangs on
// this is usually crashing in a tight loop.
func StopStartUI(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The ui job can be stopped and started",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			if _, err := s.DUTRunner()(ctx, 45*time.Second, "stop ui && start ui"); err != nil {
				log.Debugf(ctx, "Stop start ui: %s", err)
				return errors.Reason("stop start ui: fail to restart ui, the device may be crashing").Err()
			}
			return nil
		},
	}
}
