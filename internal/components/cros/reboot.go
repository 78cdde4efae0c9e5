// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cros

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/log"
)

const (
	// Reboot command for ChromeOS devices, escalating through progressively
	// more forcible paths. Each command set sleeps 1 second to wait for a
	// reaction of the command from the left part.
	rebootCommand = "(echo begin 1; sync; echo end 1 \"$?\")& sleep 1;" +
		"(echo begin 2; reboot; echo end 2 \"$?\")& sleep 1;" +
		// Force reboot is not calling shutdown.
		"(echo begin 3; reboot -f; echo end 3 \"$?\")& sleep 1;" +
		// Force reboot without sync.
		"(echo begin 4; reboot -nf; echo end 4 \"$?\")& sleep 1;" +
		// telinit 6 sets run level for process initialized, which is equivalent to reboot.
		"(echo begin 5; telinit 6; echo end 5 \"$?\")"
)

// Reboot executes the reboot command on the DUT.
//
// The connection dropping mid-command is expected and not reported as an
// error.
func Reboot(ctx context.Context, run components.Runner, timeout time.Duration) error {
	log.Debugf(ctx, "Reboot helper: %s", rebootCommand)
	out, err := run(ctx, timeout, rebootCommand)
	if components.NoExitStatusErrorInternal.In(err) {
		// Client closed connection as the device is rebooting.
		log.Debugf(ctx, "Client exited as device rebooted: %s", err)
	} else if err != nil {
		return errors.Annotate(err, "reboot helper").Err()
	}
	log.Debugf(ctx, "Stdout: %s", out)
	return nil
}
