// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
	"infra/cros/repair/internal/log"
)

// TPMState confirms the TPM is enabled and its storage root key is usable.
//
// An undeterminable TPM state is tolerated: old builds in the lab do not
// always ship the status client, and flagging them would make such devices
// unrepairable.
func TPMState(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The TPM is available and in a good state",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			status, err := cros.ReadTPMStatus(ctx, s.DUTRunner())
			if err != nil {
				log.Infof(ctx, "Cannot determine the TPM state, skipping check: %s", err)
				return nil
			}
			if !status.IsEnabled() {
				return errors.Reason("tpm state: tpm is not enabled, hardware is not working").Err()
			}
			if status.IsOwned() && !status.CanLoadSRK() {
				return errors.Reason("tpm state: cannot load the tpm srk").Err()
			}
			if status.CanLoadSRK() && !status.CanLoadSRKPubKey() {
				return errors.Reason("tpm state: cannot load the tpm srk public key").Err()
			}
			return nil
		},
	}
}

// FirmwareTPM confirms the dev-signed TPM version counters of a
// firmware-testing device.
//
// Firmware updates on devices with rolled-forward counters fail due to
// rollback protection, so catching this early saves a doomed repair.
func FirmwareTPM(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:           name,
		Deps:           deps,
		Doc:            "The TPM version counters accept dev-signed firmware",
		Timeout:        time.Minute,
		ApplicableFunc: applicableToFirmwareTesting,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			if err := cros.MatchDevTPMKernelVersion(ctx, run); err != nil {
				return errors.Annotate(err, "firmware tpm").Err()
			}
			if err := cros.MatchDevTPMFirmwareVersion(ctx, run); err != nil {
				return errors.Annotate(err, "firmware tpm").Err()
			}
			return nil
		},
	}
}
