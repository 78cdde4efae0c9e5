// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package verify

import (
	"context"
	"fmt"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components/cros"
	"infra/cros/repair/internal/engine"
)

// Jetstream TPM initialization happens asynchronously after boot and can
// take close to a minute, so the checks retry instead of failing on the
// first read.
const (
	jetstreamTPMRetryCount    = 6
	jetstreamTPMRetryInterval = 10 * time.Second
)

// JetstreamTPM confirms the TPM of a jetstream device is enabled, owned and
// fully initialized.
func JetstreamTPM(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:          name,
		Deps:          deps,
		Doc:           "The TPM is enabled, owned and ready",
		Timeout:       2 * time.Minute,
		RetryCount:    jetstreamTPMRetryCount,
		RetryInterval: jetstreamTPMRetryInterval,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			status, err := cros.ReadTPMStatus(ctx, run)
			if err != nil {
				return errors.Annotate(err, "jetstream tpm").Err()
			}
			if !status.IsEnabled() {
				return errors.Reason("jetstream tpm: tpm is not enabled").Err()
			}
			if !status.IsOwned() {
				return errors.Reason("jetstream tpm: tpm is not owned").Err()
			}
			readiness, err := cros.ReadTPMReadiness(ctx, run)
			if err != nil {
				return errors.Annotate(err, "jetstream tpm").Err()
			}
			if !readiness.IsReady() {
				return errors.Reason("jetstream tpm: tpm is not ready").Err()
			}
			return nil
		},
	}
}

// JetstreamAttestation confirms the attestation enrollment of a jetstream
// device is prepared.
func JetstreamAttestation(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:          name,
		Deps:          deps,
		Doc:           "The attestation enrollment is prepared",
		Timeout:       2 * time.Minute,
		RetryCount:    jetstreamTPMRetryCount,
		RetryInterval: jetstreamTPMRetryInterval,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			cmd := "cryptohome --action=tpm_attestation_status" +
				" | grep -q \"Attestation Prepared: true\""
			if _, err := s.DUTRunner()(ctx, time.Minute, cmd); err != nil {
				return errors.Reason("jetstream attestation: attestation is not prepared").Err()
			}
			return nil
		},
	}
}

// Upstart jobs a jetstream device has to be running to serve tests.
var jetstreamJobs = []string{"shill", "ap-controller"}

// JetstreamServices confirms the jetstream system services are running.
func JetstreamServices(name string, deps ...string) *engine.Verifier {
	return &engine.Verifier{
		Name:    name,
		Deps:    deps,
		Doc:     "The jetstream system services are running",
		Timeout: time.Minute,
		Verify: func(ctx context.Context, s *engine.Scope) error {
			run := s.DUTRunner()
			for _, job := range jetstreamJobs {
				cmd := fmt.Sprintf("status %s | grep -q running", job)
				if _, err := run(ctx, time.Minute, cmd); err != nil {
					return errors.Reason("jetstream services: job %q is not running", job).Err()
				}
			}
			return nil
		},
	}
}
