// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repairaction

import (
	"context"
	"fmt"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// JetstreamTPMRepair resets the TPM ownership of a jetstream device. The
// device re-initializes the TPM on the next boot.
func JetstreamTPMRepair(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Reset the TPM ownership and reboot",
		Timeout:  10 * time.Minute,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			// The directory is already empty on devices that were never owned.
			if _, err := run(ctx, time.Minute, "rm -rf /var/lib/whitelist/*"); err != nil {
				log.Debugf(ctx, "Jetstream tpm repair: fail to remove ownership residue: %s", err)
			}
			if _, err := run(ctx, time.Minute, "crossystem clear_tpm_owner_request=1"); err != nil {
				return errors.Annotate(err, "jetstream tpm repair").Err()
			}
			if err := cros.Reboot(ctx, run, 2*time.Minute); err != nil {
				return errors.Annotate(err, "jetstream tpm repair").Err()
			}
			return waitForBootAfter(ctx, s, name, normalBootTimeout)
		},
	}
}

// Upstart jobs restarted by the jetstream service repair.
var jetstreamJobs = []string{"shill", "ap-controller"}

// JetstreamServiceRepair restarts the jetstream system services.
func JetstreamServiceRepair(name string, deps, triggers []string) *engine.RepairAction {
	return &engine.RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Doc:      "Restart the jetstream system services",
		Timeout:  5 * time.Minute,
		Repair: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			for _, job := range jetstreamJobs {
				cmd := fmt.Sprintf("restart %s || start %s", job, job)
				if _, err := run(ctx, time.Minute, cmd); err != nil {
					return errors.Annotate(err, "jetstream service repair: job %q", job).Err()
				}
			}
			return nil
		},
	}
}
