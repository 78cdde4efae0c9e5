// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/log"
	"infra/cros/repair/tlw"
)

// fakeDevice simulates device health as named boolean properties that
// verifiers read and repair actions flip.
type fakeDevice struct {
	broken map[string]bool
	// Number of Verify calls per verifier.
	verifyCalls map[string]int
	// Names of repair actions in invocation order.
	repairLog []string
}

func newFakeDevice(broken ...string) *fakeDevice {
	d := &fakeDevice{
		broken:      make(map[string]bool),
		verifyCalls: make(map[string]int),
	}
	for _, name := range broken {
		d.broken[name] = true
	}
	return d
}

// check builds a critical verifier reading one property of the fake device.
func (d *fakeDevice) check(name string, deps ...string) *Verifier {
	return &Verifier{
		Name: name,
		Deps: deps,
		Verify: func(ctx context.Context, s *Scope) error {
			d.verifyCalls[name]++
			if d.broken[name] {
				return errors.Reason("%s is broken", name).Err()
			}
			return nil
		},
	}
}

// fix builds a repair action that clears the named properties.
func (d *fakeDevice) fix(name string, deps, triggers, fixes []string) *RepairAction {
	return &RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Repair: func(ctx context.Context, s *Scope) error {
			d.repairLog = append(d.repairLog, name)
			for _, f := range fixes {
				d.broken[f] = false
			}
			return nil
		},
	}
}

// brokenFix builds a repair action that always fails.
func (d *fakeDevice) brokenFix(name string, deps, triggers []string) *RepairAction {
	return &RepairAction{
		Name:     name,
		Deps:     deps,
		Triggers: triggers,
		Repair: func(ctx context.Context, s *Scope) error {
			d.repairLog = append(d.repairLog, name)
			return errors.Reason("%s did not help", name).Err()
		},
	}
}

func testScope() *Scope {
	return &Scope{
		ResourceName: "dut-1",
		DUT:          &tlw.Dut{Name: "dut-1"},
		EnableRepair: true,
	}
}

func TestVerifyBlocksDependentsOnCriticalFailure(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("ping")
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			d.check("ping"),
			d.check("ssh", "ping"),
			d.check("writable", "ssh"),
		},
	}
	results, err := Verify(context.Background(), s, testScope())
	if err != nil {
		t.Fatalf("Verify returned error: %s", err)
	}
	if results["ping"].Status != StatusFailed {
		t.Errorf("ping status = %s, want failed", results["ping"].Status)
	}
	if results["ssh"].Status != StatusBlocked {
		t.Errorf("ssh status = %s, want blocked", results["ssh"].Status)
	}
	if results["writable"].Status != StatusBlocked {
		t.Errorf("writable status = %s, want blocked", results["writable"].Status)
	}
	if d.verifyCalls["ssh"] != 0 || d.verifyCalls["writable"] != 0 {
		t.Errorf("blocked verifiers were invoked: ssh=%d writable=%d", d.verifyCalls["ssh"], d.verifyCalls["writable"])
	}
	if !strings.Contains(results["ssh"].Err.Error(), `blocked by "ping"`) {
		t.Errorf("ssh error %q does not name the blocking verifier", results["ssh"].Err)
	}
}

func TestNonCriticalFailureDoesNotBlockDependents(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("ext4")
	ext4 := d.check("ext4")
	ext4.NonCritical = true
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			ext4,
			d.check("storage", "ext4"),
		},
	}
	results, err := Verify(context.Background(), s, testScope())
	if err != nil {
		t.Fatalf("Verify returned error: %s", err)
	}
	if results["ext4"].Status != StatusFailed {
		t.Errorf("ext4 status = %s, want failed", results["ext4"].Status)
	}
	if results["storage"].Status != StatusPassed {
		t.Errorf("storage status = %s, want passed", results["storage"].Status)
	}
}

func TestSkippedVerifierCountsAsSatisfied(t *testing.T) {
	t.Parallel()
	d := newFakeDevice()
	battery := d.check("audit_battery")
	battery.ApplicableFunc = func(ctx context.Context, s *Scope) bool { return false }
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			battery,
			d.check("power", "audit_battery"),
		},
	}
	results, err := Verify(context.Background(), s, testScope())
	if err != nil {
		t.Fatalf("Verify returned error: %s", err)
	}
	if results["audit_battery"].Status != StatusSkipped {
		t.Errorf("audit_battery status = %s, want skipped", results["audit_battery"].Status)
	}
	if results["power"].Status != StatusPassed {
		t.Errorf("power status = %s, want passed", results["power"].Status)
	}
	if d.verifyCalls["audit_battery"] != 0 {
		t.Errorf("skipped verifier was invoked %d times", d.verifyCalls["audit_battery"])
	}
}

func TestCheapestEligibleRepairWins(t *testing.T) {
	t.Parallel()
	// The device only fails ping. The power-cycle fixes it; nothing past it
	// may run.
	d := newFakeDevice("ping")
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			d.check("ping"),
			d.check("ssh", "ping"),
		},
		Actions: []*RepairAction{
			d.fix("rpm", nil, []string{"ping", "ssh"}, []string{"ping"}),
			d.fix("servoreset", nil, []string{"ping", "ssh"}, []string{"ping", "ssh"}),
			d.fix("usb", nil, []string{"ping", "ssh"}, []string{"ping", "ssh"}),
		},
	}
	if err := Run(context.Background(), s, testScope()); err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
	if got, want := strings.Join(d.repairLog, ","), "rpm"; got != want {
		t.Errorf("repair log = %q, want %q", got, want)
	}
}

func TestRepairSkippedWithoutFailingTrigger(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("writable")
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			d.check("ping"),
			d.check("ssh", "ping"),
			d.check("writable", "ssh"),
		},
		Actions: []*RepairAction{
			// Triggers disjoint from the failure set: must not run.
			d.fix("rpm", nil, []string{"ping", "ssh"}, nil),
			d.fix("reboot", []string{"ping", "ssh"}, []string{"writable"}, []string{"writable"}),
		},
	}
	if err := Run(context.Background(), s, testScope()); err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
	if got, want := strings.Join(d.repairLog, ","), "reboot"; got != want {
		t.Errorf("repair log = %q, want %q", got, want)
	}
}

func TestRepairSkippedWithUnsatisfiedDependency(t *testing.T) {
	t.Parallel()
	// usb requires a validated usb_drive; the drive check fails, so the
	// reinstall cannot run and the run ends in the terminal aggregate error.
	d := newFakeDevice("ping", "usb_drive")
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			d.check("ping"),
			d.check("usb_drive"),
		},
		Actions: []*RepairAction{
			d.fix("usb", []string{"usb_drive"}, []string{"ping"}, []string{"ping"}),
		},
	}
	err := Run(context.Background(), s, testScope())
	if err == nil {
		t.Fatal("Run succeeded, want terminal error")
	}
	if len(d.repairLog) != 0 {
		t.Errorf("repair log = %v, want empty", d.repairLog)
	}
	if got := FailureTagOf(err); got != "repair_list_exhausted" {
		t.Errorf("failure tag = %q, want repair_list_exhausted", got)
	}
	for _, name := range []string{"ping", "usb_drive"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("terminal error %q does not name %q", err, name)
		}
	}
}

func TestEscalationContinuesPastFailedRepair(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("ping")
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			d.check("ping"),
		},
		Actions: []*RepairAction{
			d.brokenFix("rpm", nil, []string{"ping"}),
			d.fix("servoreset", nil, []string{"ping"}, []string{"ping"}),
		},
	}
	scope := testScope()
	if err := Run(context.Background(), s, scope); err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
	if got, want := strings.Join(d.repairLog, ","), "rpm,servoreset"; got != want {
		t.Errorf("repair log = %q, want %q", got, want)
	}
	if got := scope.DUT.RepairFailures["rpm"]; got != 1 {
		t.Errorf("rpm failure counter = %d, want 1", got)
	}
}

func TestReverifyTouchesOnlyAffectedVerifiers(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("writable")
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			d.check("ssh"),
			d.check("writable", "ssh"),
			d.check("tpm", "writable"),
			d.check("power", "ssh"),
		},
		Actions: []*RepairAction{
			d.fix("reboot", []string{"ssh"}, []string{"writable"}, []string{"writable"}),
		},
	}
	if err := Run(context.Background(), s, testScope()); err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
	// writable re-ran after the repair, and so did tpm downstream of it.
	if got := d.verifyCalls["writable"]; got != 2 {
		t.Errorf("writable ran %d times, want 2", got)
	}
	if got := d.verifyCalls["tpm"]; got != 1 {
		// Blocked on the first pass, evaluated on the second.
		t.Errorf("tpm ran %d times, want 1", got)
	}
	// Unrelated, already-passing verifiers must not run their side effects
	// twice.
	if got := d.verifyCalls["ssh"]; got != 1 {
		t.Errorf("ssh ran %d times, want 1", got)
	}
	if got := d.verifyCalls["power"]; got != 1 {
		t.Errorf("power ran %d times, want 1", got)
	}
}

func TestHungVerifierRecordedAsTimeout(t *testing.T) {
	t.Parallel()
	hang := &Verifier{
		Name:    "hang",
		Timeout: 20 * time.Millisecond,
		Verify: func(ctx context.Context, s *Scope) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s := &Strategy{Name: "test", Verifiers: []*Verifier{hang}}
	results, err := Verify(context.Background(), s, testScope())
	if err != nil {
		t.Fatalf("Verify returned error: %s", err)
	}
	if results["hang"].Status != StatusFailed {
		t.Errorf("hang status = %s, want failed", results["hang"].Status)
	}
	if !TimeoutTag.In(results["hang"].Err) {
		t.Errorf("hang error %q is not tagged as timeout", results["hang"].Err)
	}
}

func TestOutOfTimeAbortsBeforeNewRepair(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("ping")
	s := &Strategy{
		Name: "test",
		Verifiers: []*Verifier{
			d.check("ping"),
		},
		Actions: []*RepairAction{
			d.fix("rpm", nil, []string{"ping"}, []string{"ping"}),
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, s, testScope())
	if err == nil {
		t.Fatal("Run succeeded, want out of time error")
	}
	if got := FailureTagOf(err); got != "out_of_time" {
		t.Errorf("failure tag = %q, want out_of_time", got)
	}
	if len(d.repairLog) != 0 {
		t.Errorf("repair log = %v, want empty", d.repairLog)
	}
}

func TestVerifierRetryPolicy(t *testing.T) {
	t.Parallel()
	attempts := 0
	flaky := &Verifier{
		Name:          "flaky",
		RetryCount:    3,
		RetryInterval: time.Millisecond,
		Verify: func(ctx context.Context, s *Scope) error {
			attempts++
			if attempts < 3 {
				return errors.Reason("not yet").Err()
			}
			return nil
		},
	}
	s := &Strategy{Name: "test", Verifiers: []*Verifier{flaky}}
	results, err := Verify(context.Background(), s, testScope())
	if err != nil {
		t.Fatalf("Verify returned error: %s", err)
	}
	if results["flaky"].Status != StatusPassed {
		t.Errorf("flaky status = %s, want passed", results["flaky"].Status)
	}
	if attempts != 3 {
		t.Errorf("flaky ran %d times, want 3", attempts)
	}
}

func TestVerifyOnlyRunReportsFailures(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("ping")
	s := &Strategy{
		Name:      "test",
		Verifiers: []*Verifier{d.check("ping")},
		Actions: []*RepairAction{
			d.fix("rpm", nil, []string{"ping"}, []string{"ping"}),
		},
	}
	scope := testScope()
	scope.EnableRepair = false
	err := Run(context.Background(), s, scope)
	if err == nil {
		t.Fatal("Run succeeded, want verification error")
	}
	if len(d.repairLog) != 0 {
		t.Errorf("repair log = %v, want empty in verify-only mode", d.repairLog)
	}
}

// recordingLogger tracks the indentation depth of the log.
type recordingLogger struct {
	depth    int
	maxDepth int
}

func (l *recordingLogger) Debugf(format string, args ...interface{})   {}
func (l *recordingLogger) Infof(format string, args ...interface{})    {}
func (l *recordingLogger) Warningf(format string, args ...interface{}) {}
func (l *recordingLogger) Errorf(format string, args ...interface{})   {}

func (l *recordingLogger) IndentLogging() {
	l.depth++
	if l.depth > l.maxDepth {
		l.maxDepth = l.depth
	}
}

func (l *recordingLogger) DedentLogging() {
	l.depth--
}

func TestNodeExecutionIndentsLogging(t *testing.T) {
	t.Parallel()
	d := newFakeDevice("ping")
	s := &Strategy{
		Name:      "test",
		Verifiers: []*Verifier{d.check("ping")},
		Actions: []*RepairAction{
			d.fix("rpm", nil, []string{"ping"}, []string{"ping"}),
		},
	}
	rl := &recordingLogger{}
	ctx := log.WithLogger(context.Background(), rl)
	if err := Run(ctx, s, testScope()); err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
	if rl.maxDepth == 0 {
		t.Error("node execution never indented the log")
	}
	if rl.depth != 0 {
		t.Errorf("indentation left unbalanced: depth %d after the run", rl.depth)
	}
}

func TestValidateRejectsBadTables(t *testing.T) {
	t.Parallel()
	d := newFakeDevice()
	cases := []struct {
		name string
		s    *Strategy
	}{
		{
			"duplicate verifier",
			&Strategy{Name: "t", Verifiers: []*Verifier{d.check("a"), d.check("a")}},
		},
		{
			"dependency declared after dependent",
			&Strategy{Name: "t", Verifiers: []*Verifier{d.check("a", "b"), d.check("b")}},
		},
		{
			"action with unknown trigger",
			&Strategy{
				Name:      "t",
				Verifiers: []*Verifier{d.check("a")},
				Actions:   []*RepairAction{d.fix("r", nil, []string{"nope"}, nil)},
			},
		},
		{
			"action without triggers",
			&Strategy{
				Name:      "t",
				Verifiers: []*Verifier{d.check("a")},
				Actions:   []*RepairAction{d.fix("r", []string{"a"}, nil, nil)},
			},
		},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if err := c.s.Validate(); err == nil {
				t.Errorf("Validate accepted a %s", c.name)
			}
		})
	}
}
