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
	"infra/cros/repair/internal/log"
)

// Directories that have to be writable for critical operations like
// provisioning.
//
// N.B. Order matters here: encrypted stateful is loop-mounted from a file in
// unencrypted stateful, so we do not test for errors in encrypted stateful
// if unencrypted fails.
var writableTestDirectories = []string{
	"/mnt/stateful_partition",
	"/var/tmp",
}

// IsFileSystemWritable confirms the stateful file systems are writable.
//
// The standard linux response to certain unexpected file system errors
// (including hardware errors in block devices) is to change the file system
// status to read-only. The check is performed by a real file create, not by
// reading mount flags. It deliberately stops looking after the first error.
func IsFileSystemWritable(ctx context.Context, run components.Runner) error {
	for _, testDir := range writableTestDirectories {
		filename := fmt.Sprintf("%s/writable_test", testDir)
		if _, err := run(ctx, time.Minute, fmt.Sprintf("touch %s && rm %s", filename, filename)); err != nil {
			log.Debugf(ctx, "Cannot create a file in %s: %s", testDir, err)
			return errors.Annotate(err, "file system writable: cannot create a file in %s", testDir).Err()
		}
	}
	return nil
}

// Kernel log signatures of ext4 corruption.
var ext4ErrorSignatures = []string{
	"EXT4-fs error",
	"Remounting filesystem read-only",
}

// HasEXT4FilesystemError scans the kernel log for ext4 corruption
// signatures.
func HasEXT4FilesystemError(ctx context.Context, run components.Runner) error {
	for _, signature := range ext4ErrorSignatures {
		out, err := run(ctx, time.Minute, fmt.Sprintf("dmesg | grep '%s' || true", signature))
		if err != nil {
			return errors.Annotate(err, "ext4 filesystem error: fail to read kernel log").Err()
		}
		if strings.TrimSpace(out) != "" {
			return errors.Reason("ext4 filesystem error: found signature %q", signature).Err()
		}
	}
	return nil
}

// IsBootedFromExternalStorage verifies that the device is currently booted
// from removable media.
func IsBootedFromExternalStorage(ctx context.Context, run components.Runner) error {
	rootDev, err := run(ctx, time.Minute, "rootdev", "-s", "-d")
	if err != nil {
		return errors.Annotate(err, "booted from external storage").Err()
	}
	removablePath := fmt.Sprintf("/sys/block/%s/removable", strings.TrimPrefix(rootDev, "/dev/"))
	out, err := run(ctx, time.Minute, "cat", removablePath)
	if err != nil {
		return errors.Annotate(err, "booted from external storage").Err()
	}
	if strings.TrimSpace(out) != "1" {
		return errors.Reason("booted from external storage: booted from internal storage %q", rootDev).Err()
	}
	return nil
}

// AuditStorageSMART runs a SMART scan of the internal storage and reports
// whether the device should be marked for replacement.
func AuditStorageSMART(ctx context.Context, run components.Runner) error {
	rootDev, err := run(ctx, time.Minute, "rootdev", "-s", "-d")
	if err != nil {
		return errors.Annotate(err, "audit storage smart").Err()
	}
	out, err := run(ctx, 2*time.Minute, "smartctl", "-H", rootDev)
	if err != nil {
		// Not all storage devices in the lab expose SMART.
		log.Debugf(ctx, "Audit storage smart: scan not available: %s", err)
		return nil
	}
	if strings.Contains(out, "FAILED") {
		return errors.Reason("audit storage smart: health self-assessment failed").Err()
	}
	return nil
}
