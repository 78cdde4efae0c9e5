// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package engine provides the verify/repair execution engine.
//
// A strategy pairs a dependency-ordered list of verifiers with an
// escalation-ordered list of repair actions. The engine runs a full
// verification pass, then walks the repair list front-to-back, running each
// eligible action and re-verifying the checks it claims to fix, until no
// critical verifier remains failed or the list is exhausted.
package engine

import (
	"context"
	"time"
)

// Status represents the per-run state of a verifier.
type Status int

const (
	// The verifier has not been evaluated yet.
	StatusNotRun Status = iota
	// The check passed.
	StatusPassed
	// The check ran and found a fault.
	StatusFailed
	// A critical prerequisite failed so the check was never invoked.
	StatusBlocked
	// The check is not applicable to this device and counts as satisfied.
	StatusSkipped
)

// String provides the status name used in logs and aggregate errors.
func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	case StatusSkipped:
		return "skipped"
	default:
		return "not_run"
	}
}

// VerifyResult holds the outcome of one verifier in the current run.
type VerifyResult struct {
	Status Status
	// Failure cause when Status is failed or blocked.
	Err error
}

// Default ceilings applied when a node does not carry its own timeout.
const (
	DefaultVerifyTimeout = 2 * time.Minute
	DefaultRepairTimeout = 10 * time.Minute
)

// Verifier is a single named diagnostic check.
//
// The name is the stable wire format between strategy tables and the engine;
// repair actions reference verifiers by these names in their dependency and
// trigger sets.
type Verifier struct {
	// Unique name within the strategy.
	Name string
	// Human-readable description of the health property checked.
	Doc string
	// Names of verifiers that have to pass before this one is evaluated.
	Deps []string
	// A non-critical failure is recorded as a warning and does not block
	// dependents.
	NonCritical bool
	// Wall-clock ceiling for one Verify call. DefaultVerifyTimeout when zero.
	Timeout time.Duration
	// Retry policy executed by the engine. No retries when zero.
	RetryCount    int
	RetryInterval time.Duration
	// ApplicableFunc tells whether the check applies to this device.
	// Nil means always applicable.
	ApplicableFunc func(ctx context.Context, s *Scope) bool
	// Verify performs the check. An error means the property does not hold.
	Verify func(ctx context.Context, s *Scope) error
}

// timeout provides the effective ceiling for one Verify call.
func (v *Verifier) timeout() time.Duration {
	if v.Timeout > 0 {
		return v.Timeout
	}
	return DefaultVerifyTimeout
}

// RepairAction is a single named corrective procedure.
type RepairAction struct {
	// Unique name within the strategy.
	Name string
	// Human-readable description of the fix performed.
	Doc string
	// Names of verifiers that must currently be satisfied before the action
	// may be attempted. This keeps destructive actions from running before
	// cheaper prerequisites are known-good.
	Deps []string
	// Names of verifiers whose failure makes this action relevant. The
	// action is attempted only when at least one trigger is failing.
	Triggers []string
	// Wall-clock ceiling for one Repair call. DefaultRepairTimeout when zero.
	Timeout time.Duration
	// ApplicableFunc tells whether the action applies to this device.
	// Nil means always applicable.
	ApplicableFunc func(ctx context.Context, s *Scope) bool
	// Repair performs the fix. An error is recorded and the engine moves on
	// to the next eligible action.
	Repair func(ctx context.Context, s *Scope) error
}

// timeout provides the effective ceiling for one Repair call.
func (a *RepairAction) timeout() time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return DefaultRepairTimeout
}

// Strategy pairs one verify graph with one ordered repair list.
type Strategy struct {
	// Name of the device class the strategy serves, e.g. "cros".
	Name string
	// Verifiers in dependency order: every dependency precedes its
	// dependents in the slice.
	Verifiers []*Verifier
	// Actions in escalation order: cheapest and least destructive first.
	Actions []*RepairAction
}
