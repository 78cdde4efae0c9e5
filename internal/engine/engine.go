// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package engine

import (
	"context"
	"strings"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/log"
	"infra/cros/repair/internal/retry"
)

// run holds the mutable state of one strategy invocation.
type run struct {
	strategy *Strategy
	scope    *Scope
	// Per-verifier outcome of the current pass, keyed by name.
	results map[string]*VerifyResult
	// Verifier lookup by name.
	verifiers map[string]*Verifier
	// Direct dependents of each verifier, used to invalidate the affected
	// part of the graph after a repair.
	dependents map[string][]string
}

// Run executes the strategy against the device in scope.
//
// The run finishes successfully iff no critical verifier remains failed.
// Otherwise it returns an aggregate error enumerating the still-failing
// verifier names. A failing verifier or repair action never aborts the run
// by itself; only the outer deadline and repair-list exhaustion are fatal.
func Run(ctx context.Context, strategy *Strategy, scope *Scope) error {
	if err := strategy.Validate(); err != nil {
		return errors.Annotate(err, "run strategy").Err()
	}
	r := newRun(strategy, scope)
	log.Infof(ctx, "Strategy %q: started for %q.", strategy.Name, scope.ResourceName)
	r.verifyAll(ctx)
	if len(r.criticalFailures()) == 0 {
		log.Infof(ctx, "Strategy %q: all critical verifiers passed.", strategy.Name)
		return nil
	}
	if !scope.EnableRepair {
		return r.aggregateError("verification failed", "")
	}
	if err := r.repairAll(ctx); err != nil {
		return errors.Annotate(err, "run strategy %q", strategy.Name).Err()
	}
	if failing := r.criticalFailures(); len(failing) > 0 {
		return r.aggregateError("repair list exhausted", repairListExhaustedTag)
	}
	log.Infof(ctx, "Strategy %q: device repaired.", strategy.Name)
	return nil
}

// Verify runs a verification-only pass and provides the per-verifier
// outcomes keyed by name.
func Verify(ctx context.Context, strategy *Strategy, scope *Scope) (map[string]*VerifyResult, error) {
	if err := strategy.Validate(); err != nil {
		return nil, errors.Annotate(err, "verify strategy").Err()
	}
	r := newRun(strategy, scope)
	r.verifyAll(ctx)
	return r.results, nil
}

// newRun initializes the state of one strategy invocation.
func newRun(strategy *Strategy, scope *Scope) *run {
	r := &run{
		strategy:   strategy,
		scope:      scope,
		results:    make(map[string]*VerifyResult, len(strategy.Verifiers)),
		verifiers:  make(map[string]*Verifier, len(strategy.Verifiers)),
		dependents: make(map[string][]string),
	}
	for _, v := range strategy.Verifiers {
		r.results[v.Name] = &VerifyResult{Status: StatusNotRun}
		r.verifiers[v.Name] = v
		for _, dep := range v.Deps {
			r.dependents[dep] = append(r.dependents[dep], v.Name)
		}
	}
	return r
}

// verifyAll evaluates every verifier of the strategy in declared order.
// Declared order is a topological order per Validate, so parents are always
// evaluated strictly before children.
func (r *run) verifyAll(ctx context.Context) {
	for _, v := range r.strategy.Verifiers {
		r.runVerifier(ctx, v)
	}
}

// runVerifier evaluates a single verifier and records its result.
func (r *run) runVerifier(ctx context.Context, v *Verifier) {
	res := r.results[v.Name]
	if v.ApplicableFunc != nil && !v.ApplicableFunc(ctx, r.scope) {
		log.Infof(ctx, "Verifier %q: not applicable, skipping.", v.Name)
		res.Status = StatusSkipped
		res.Err = nil
		return
	}
	// A critical failure of a prerequisite blocks this check: we already
	// know the device is broken in a deeper way and running the child would
	// only produce cascading false failures.
	for _, dep := range v.Deps {
		depRes := r.results[dep]
		if depRes.Status != StatusFailed && depRes.Status != StatusBlocked {
			continue
		}
		if r.verifiers[dep].NonCritical {
			continue
		}
		log.Infof(ctx, "Verifier %q: blocked by %q.", v.Name, dep)
		res.Status = StatusBlocked
		res.Err = errors.Reason("verifier %q: blocked by %q", v.Name, dep).Err()
		return
	}
	verify := func() error {
		return runWithDeadline(ctx, v.timeout(), "verify "+v.Name, func(ctx context.Context) error {
			return v.Verify(ctx, r.scope)
		})
	}
	// Messages produced inside the node are indented under its own entry.
	log.IndentLogging(ctx)
	var err error
	if v.RetryCount > 1 {
		err = retry.LimitCount(ctx, v.RetryCount, v.RetryInterval, verify, "verify "+v.Name)
	} else {
		err = verify()
	}
	log.DedentLogging(ctx)
	if err != nil {
		if v.NonCritical {
			log.Warningf(ctx, "Verifier %q: failed (non-critical): %s", v.Name, err)
		} else {
			log.Errorf(ctx, "Verifier %q: failed: %s", v.Name, err)
		}
		res.Status = StatusFailed
		res.Err = errors.Annotate(err, "verifier %q", v.Name).Err()
		return
	}
	log.Debugf(ctx, "Verifier %q: passed.", v.Name)
	res.Status = StatusPassed
	res.Err = nil
}

// repairAll walks the repair list front-to-back, running every eligible
// action and re-verifying the checks it claims to fix.
//
// The escalation order of the list is the safety property: a later, more
// destructive action is reached only when every earlier action was either
// ineligible or already attempted and the failures remain.
func (r *run) repairAll(ctx context.Context) error {
	for _, a := range r.strategy.Actions {
		if len(r.criticalFailures()) == 0 {
			return nil
		}
		if err := checkOutOfTime(ctx); err != nil {
			return errors.Annotate(err, "repair").Err()
		}
		if a.ApplicableFunc != nil && !a.ApplicableFunc(ctx, r.scope) {
			log.Debugf(ctx, "Repair %q: not applicable, skipping.", a.Name)
			continue
		}
		if dep, ok := r.unsatisfiedDep(a); ok {
			log.Debugf(ctx, "Repair %q: dependency %q is not satisfied, skipping.", a.Name, dep)
			continue
		}
		if !r.triggered(a) {
			log.Debugf(ctx, "Repair %q: no failing triggers, nothing to fix.", a.Name)
			continue
		}
		log.Infof(ctx, "Repair %q: started.", a.Name)
		log.IndentLogging(ctx)
		err := runWithDeadline(ctx, a.timeout(), "repair "+a.Name, func(ctx context.Context) error {
			return a.Repair(ctx, r.scope)
		})
		log.DedentLogging(ctx)
		if err != nil {
			// Recorded per-action; the next eligible action is tried.
			log.Errorf(ctx, "Repair %q: failed: %s", a.Name, err)
			r.recordRepairFailure(a.Name)
			continue
		}
		log.Infof(ctx, "Repair %q: finished, re-verifying affected checks.", a.Name)
		r.reverify(ctx, a.Triggers)
	}
	return nil
}

// unsatisfiedDep reports the first dependency of the action that is not
// currently satisfied. Passed and skipped both satisfy: an inapplicable
// check must not hold back a repair.
func (r *run) unsatisfiedDep(a *RepairAction) (string, bool) {
	for _, dep := range a.Deps {
		switch r.results[dep].Status {
		case StatusPassed, StatusSkipped:
		default:
			return dep, true
		}
	}
	return "", false
}

// triggered tells whether at least one trigger of the action is currently
// failing. Blocked counts as failing: the block cause is upstream of the
// check, which is exactly what escalating repairs address.
func (r *run) triggered(a *RepairAction) bool {
	for _, trigger := range a.Triggers {
		switch r.results[trigger].Status {
		case StatusFailed, StatusBlocked:
			return true
		}
	}
	return false
}

// reverify re-evaluates the named verifiers and everything downstream of
// them, leaving unrelated already-passing verifiers untouched so their side
// effects do not run twice.
func (r *run) reverify(ctx context.Context, names []string) {
	affected := make(map[string]bool)
	var mark func(name string)
	mark = func(name string) {
		if affected[name] {
			return
		}
		affected[name] = true
		for _, dependent := range r.dependents[name] {
			mark(dependent)
		}
	}
	for _, name := range names {
		mark(name)
	}
	for name := range affected {
		r.results[name] = &VerifyResult{Status: StatusNotRun}
	}
	for _, v := range r.strategy.Verifiers {
		if affected[v.Name] {
			r.runVerifier(ctx, v)
		}
	}
}

// criticalFailures provides the names of critical verifiers currently failed
// or blocked, in declared order.
func (r *run) criticalFailures() []string {
	var failing []string
	for _, v := range r.strategy.Verifiers {
		if v.NonCritical {
			continue
		}
		switch r.results[v.Name].Status {
		case StatusFailed, StatusBlocked:
			failing = append(failing, v.Name)
		}
	}
	return failing
}

// recordRepairFailure bumps the persisted per-action failure counter of the
// device health profile.
func (r *run) recordRepairFailure(name string) {
	if r.scope.DUT == nil {
		return
	}
	if r.scope.DUT.RepairFailures == nil {
		r.scope.DUT.RepairFailures = make(map[string]int32)
	}
	r.scope.DUT.RepairFailures[name]++
}

// aggregateError builds the terminal error enumerating the still-failing
// critical verifiers with their causes.
func (r *run) aggregateError(reason, tag string) error {
	failing := r.criticalFailures()
	var merr errors.MultiError
	for _, name := range failing {
		merr = append(merr, r.results[name].Err)
	}
	ann := errors.Annotate(merr, "strategy %q: %s: still failing: %s",
		r.strategy.Name, reason, strings.Join(failing, ", "))
	if tag != "" {
		ann = ann.Tag(FailureTag(tag))
	}
	return ann.Err()
}
