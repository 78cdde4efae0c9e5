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

const (
	// Expected value of tpm dev-signed firmware version.
	devTPMFirmwareVersion = "0x00010001"
	// Expected value of tpm dev-signed kernel version.
	devTPMKernelVersion = "0x00010001"
	// Crossystem key of the tpm kernel version.
	tpmKernelVersionKey = "tpm_kernver"
	// Crossystem key of the tpm firmware version.
	tpmFirmwareVersionKey = "tpm_fwver"
)

// MatchDevTPMKernelVersion verifies the dev-signed tpm kernel version.
//
// For dev-signed firmware, tpm_kernver reported from crossystem should
// always be 0x10001. Firmware update on devices with incorrect tpm_kernver
// may fail due to firmware rollback protection.
func MatchDevTPMKernelVersion(ctx context.Context, run components.Runner) error {
	err := MatchCrossystemValueToExpectation(ctx, run, tpmKernelVersionKey, devTPMKernelVersion)
	return errors.Annotate(err, "match dev tpm kernel version").Err()
}

// MatchDevTPMFirmwareVersion verifies the dev-signed tpm firmware version.
//
// For dev-signed firmware, tpm_fwver reported from crossystem should
// always be 0x10001. Firmware update on devices with incorrect tpm_fwver
// may fail due to firmware rollback protection.
func MatchDevTPMFirmwareVersion(ctx context.Context, run components.Runner) error {
	err := MatchCrossystemValueToExpectation(ctx, run, tpmFirmwareVersionKey, devTPMFirmwareVersion)
	return errors.Annotate(err, "match dev tpm firmware version").Err()
}

// TPMStatus holds the fields of the non-sensitive tpm_manager status.
type TPMStatus struct {
	fields map[string]string
}

// ReadTPMStatus reads the TPM state from tpm_manager.
//
// The tpm_manager_client emits status in proto text format. It looks
// something like this:
//  Message Reply: [tpm_manager.GetTpmNonsensitiveStatusReply] {
//    status: STATUS_SUCCESS
//    is_enabled: true
//    is_owned: true
//    is_owner_password_present: true
//    has_reset_lock_permissions: true
//    is_srk_default_auth: true
//  }
func ReadTPMStatus(ctx context.Context, run components.Runner) (*TPMStatus, error) {
	output, err := run(ctx, time.Minute, "tpm_manager_client", "status", "--nonsensitive")
	if err != nil {
		return nil, errors.Annotate(err, "read tpm status").Err()
	}
	status := parseTPMStatus(output)
	if status.fields["status"] != "STATUS_SUCCESS" {
		return nil, errors.Reason("read tpm status: tpm_manager status is %q", status.fields["status"]).Err()
	}
	return status, nil
}

func parseTPMStatus(rawOutput string) *TPMStatus {
	fields := make(map[string]string)
	for _, eachLine := range strings.Split(rawOutput, "\n") {
		pairs := strings.SplitN(eachLine, ":", 2)
		if len(pairs) != 2 {
			continue
		}
		fields[strings.TrimSpace(pairs[0])] = strings.TrimSpace(pairs[1])
	}
	return &TPMStatus{fields: fields}
}

// IsEnabled tells whether the TPM hardware is enabled.
func (s *TPMStatus) IsEnabled() bool {
	return s.fields["is_enabled"] == "true"
}

// IsOwned tells whether the TPM has been initialized and owned.
func (s *TPMStatus) IsOwned() bool {
	return s.fields["is_owned"] == "true"
}

// CanLoadSRK tells whether the storage root key is loadable.
//
// An owned TPM whose SRK does not use the well-known auth cannot load the
// SRK or its public key and has to be reset before provisioning will pass.
func (s *TPMStatus) CanLoadSRK() bool {
	return s.IsOwned() && s.fields["is_srk_default_auth"] == "true"
}

// CanLoadSRKPubKey tells whether the storage root key public key is loadable.
func (s *TPMStatus) CanLoadSRKPubKey() bool {
	return s.CanLoadSRK()
}

// TPMReadiness holds the cryptohome view of the TPM initialization state.
type TPMReadiness struct {
	fields map[string]string
}

// ReadTPMReadiness reads the TPM readiness state from cryptohome.
//
// The output is a flat list of colon separated pairs:
//  TPM Enabled: true
//  TPM Owned: true
//  TPM Being Owned: false
//  TPM Ready: true
//  TPM Password: 9eaee4da8b4c
func ReadTPMReadiness(ctx context.Context, run components.Runner) (*TPMReadiness, error) {
	output, err := run(ctx, time.Minute, "cryptohome", "--action=tpm_status")
	if err != nil {
		return nil, errors.Annotate(err, "read tpm readiness").Err()
	}
	return &TPMReadiness{fields: parseTPMStatus(output).fields}, nil
}

// IsReady tells whether the TPM is fully initialized.
func (r *TPMReadiness) IsReady() bool {
	return r.fields["TPM Ready"] == "true"
}
