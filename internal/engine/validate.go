// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package engine

import (
	"go.chromium.org/luci/common/errors"
)

// Validate checks the structural soundness of the strategy tables.
//
// Verifier dependencies have to reference verifiers declared earlier in the
// list, which both guarantees the graph is acyclic and that a single
// front-to-back pass evaluates parents before children. Action dependency
// and trigger sets have to reference declared verifier names.
func (s *Strategy) Validate() error {
	verifiers := make(map[string]bool, len(s.Verifiers))
	for _, v := range s.Verifiers {
		if v.Name == "" {
			return errors.Reason("validate strategy %q: verifier with empty name", s.Name).Err()
		}
		if v.Verify == nil {
			return errors.Reason("validate strategy %q: verifier %q has no verify function", s.Name, v.Name).Err()
		}
		if verifiers[v.Name] {
			return errors.Reason("validate strategy %q: duplicate verifier %q", s.Name, v.Name).Err()
		}
		for _, dep := range v.Deps {
			if !verifiers[dep] {
				return errors.Reason("validate strategy %q: verifier %q: dependency %q is not declared before it", s.Name, v.Name, dep).Err()
			}
		}
		verifiers[v.Name] = true
	}
	actions := make(map[string]bool, len(s.Actions))
	for _, a := range s.Actions {
		if a.Name == "" {
			return errors.Reason("validate strategy %q: action with empty name", s.Name).Err()
		}
		if a.Repair == nil {
			return errors.Reason("validate strategy %q: action %q has no repair function", s.Name, a.Name).Err()
		}
		if actions[a.Name] {
			return errors.Reason("validate strategy %q: duplicate action %q", s.Name, a.Name).Err()
		}
		actions[a.Name] = true
		if len(a.Triggers) == 0 {
			return errors.Reason("validate strategy %q: action %q has no triggers", s.Name, a.Name).Err()
		}
		for _, dep := range a.Deps {
			if !verifiers[dep] {
				return errors.Reason("validate strategy %q: action %q: unknown dependency %q", s.Name, a.Name, dep).Err()
			}
		}
		for _, trigger := range a.Triggers {
			if !verifiers[trigger] {
				return errors.Reason("validate strategy %q: action %q: unknown trigger %q", s.Name, a.Name, trigger).Err()
			}
		}
	}
	return nil
}
