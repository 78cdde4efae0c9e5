// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cros

import (
	"testing"
)

const tpmStatusOwned = `
Message Reply: [tpm_manager.GetTpmNonsensitiveStatusReply] {
  status: STATUS_SUCCESS
  is_enabled: true
  is_owned: true
  is_owner_password_present: true
  has_reset_lock_permissions: true
  is_srk_default_auth: true
}
`

const tpmStatusNotOwned = `
Message Reply: [tpm_manager.GetTpmNonsensitiveStatusReply] {
  status: STATUS_SUCCESS
  is_enabled: true
  is_owned: false
  is_owner_password_present: false
  has_reset_lock_permissions: false
  is_srk_default_auth: true
}
`

const tpmStatusCannotLoadSRK = `
Message Reply: [tpm_manager.GetTpmNonsensitiveStatusReply] {
  status: STATUS_SUCCESS
  is_enabled: true
  is_owned: true
  is_owner_password_present: false
  has_reset_lock_permissions: false
  is_srk_default_auth: false
}
`

const tpmReadinessReady = `
TPM Enabled: true
TPM Owned: true
TPM Being Owned: false
TPM Ready: true
TPM Password: 9eaee4da8b4c
`

const tpmReadinessNotReady = `
TPM Enabled: true
TPM Owned: false
TPM Being Owned: true
TPM Ready: false
TPM Password:
`

func TestTPMStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name             string
		output           string
		enabled          bool
		owned            bool
		canLoadSRK       bool
		canLoadSRKPubKey bool
	}{
		{"owned", tpmStatusOwned, true, true, true, true},
		{"not owned", tpmStatusNotOwned, true, false, false, false},
		{"cannot load srk", tpmStatusCannotLoadSRK, true, true, false, false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			s := parseTPMStatus(c.output)
			if got := s.IsEnabled(); got != c.enabled {
				t.Errorf("IsEnabled() = %t, want %t", got, c.enabled)
			}
			if got := s.IsOwned(); got != c.owned {
				t.Errorf("IsOwned() = %t, want %t", got, c.owned)
			}
			if got := s.CanLoadSRK(); got != c.canLoadSRK {
				t.Errorf("CanLoadSRK() = %t, want %t", got, c.canLoadSRK)
			}
			if got := s.CanLoadSRKPubKey(); got != c.canLoadSRKPubKey {
				t.Errorf("CanLoadSRKPubKey() = %t, want %t", got, c.canLoadSRKPubKey)
			}
		})
	}
}

func TestTPMReadiness(t *testing.T) {
	t.Parallel()
	ready := &TPMReadiness{fields: parseTPMStatus(tpmReadinessReady).fields}
	if !ready.IsReady() {
		t.Errorf("Expected TPM to be ready")
	}
	notReady := &TPMReadiness{fields: parseTPMStatus(tpmReadinessNotReady).fields}
	if notReady.IsReady() {
		t.Errorf("Expected TPM to not be ready")
	}
}
