// Package scenario implements the scenario engine (spec §4.I): it
// drives one run of a scenario from START through preflight, the test
// sequence, stop hooks, and coupon commit, broadcasting the record
// stream the rest of the system observes.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package scenario

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/library"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/proto"
	"github.com/agilira/exclave/internal/resolve"
	"github.com/agilira/exclave/internal/supervisor"
	"github.com/agilira/exclave/internal/unit"
)

// EngineState is one point in the scenario engine's own state machine
// (spec §4.I: "Idle → Starting → (PreflightFailed | Running) → Stopping
// → (Success | Fail | Aborted) → Idle").
type EngineState int

const (
	Idle EngineState = iota
	Starting
	PreflightFailed
	Running
	Stopping
	Success
	Fail
	Aborted
)

func (s EngineState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case PreflightFailed:
		return "preflight_failed"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Success:
		return "success"
	case Fail:
		return "fail"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// testOutcome is the per-test result used to evaluate hard-dependency
// skip cascades (spec §4.E: "a dynamic failure ... marks dependents as
// Skip(reason=upstream-failed)").
type testOutcome int

const (
	outcomeAssumedPassed testOutcome = iota
	outcomePassed
	outcomeFailed
	outcomeTimedOut
	outcomeSkipped
)

// Engine drives scenario runs one at a time. A single Engine instance is
// meant to be owned by one control-bus consumer task (spec §5: "the
// scenario engine is single-threaded over its own state; no two state
// transitions race").
type Engine struct {
	lib       *library.Library
	broadcast *bus.Broadcast
	configDir string

	mu      sync.Mutex
	state   atomic.Int32
	abortCh chan struct{}
}

// New creates an Engine wired to lib and broadcast.
func New(lib *library.Library, broadcast *bus.Broadcast) *Engine {
	e := &Engine{lib: lib, broadcast: broadcast}
	e.state.Store(int32(Idle))
	return e
}

// SetConfigDir records the config directory to fall back to when neither a
// test, its scenario, nor the active jig names a WorkingDirectory (spec
// open question 3's resolution order: per-test, then scenario-default,
// then jig-default, then the config directory itself).
func (e *Engine) SetConfigDir(dir string) { e.configDir = dir }

// resolveWorkingDir applies that precedence chain for one test of scn.
// test may be nil when resolving a scenario-level hook (ExecStart,
// ExecStopSuccess, ExecStopFail), which skips straight to the
// scenario-default step.
func (e *Engine) resolveWorkingDir(test *model.Test, scn *model.Scenario) string {
	if test != nil && test.WorkingDirectory != "" {
		return test.WorkingDirectory
	}
	if scn.WorkingDirectory != "" {
		return scn.WorkingDirectory
	}
	if jigName := e.lib.ActiveJig(); jigName != "" {
		if entry, ok := e.lib.Get(unit.ID{Kind: unit.KindJig, Name: jigName}); ok {
			if j, ok := entry.Unit.(*model.Jig); ok && j.DefaultWorkingDirectory != "" {
				return j.DefaultWorkingDirectory
			}
		}
	}
	return e.configDir
}

// State returns the engine's current state.
func (e *Engine) State() EngineState { return EngineState(e.state.Load()) }

// Abort requests that a running scenario stop as soon as possible (spec
// §4.I: "ABORT at any point transitions to Stopping immediately").
// A no-op when the engine is Idle (spec §4.F/G's "duplicate command
// acknowledged but discarded" policy, mirrored here for ABORT).
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.abortCh != nil {
		select {
		case <-e.abortCh:
		default:
			close(e.abortCh)
		}
	}
}

type lineSink struct {
	broadcast *bus.Broadcast
	id        unit.ID
}

func (s lineSink) Line(stderr bool, text string) {
	msg := text
	if stderr {
		msg = "[stderr] " + text
	}
	s.broadcast.Publish(bus.NewRecord(bus.MessageLog, s.id, msg))
}

// Run executes one full scenario START sequence (spec §4.I steps 1-7)
// and returns the FINISH code broadcast at the end. Run is not
// reentrant for the same Engine; its own compare-and-swap transitions
// Idle→Starting before any other Run can begin.
func (e *Engine) Run(ctx context.Context, scenarioID unit.ID) proto.FinishCode {
	if !e.state.CompareAndSwap(int32(Idle), int32(Starting)) {
		return proto.FinishTestFailure // duplicate START while Running: caller already discarded it
	}

	e.mu.Lock()
	e.abortCh = make(chan struct{})
	abortCh := e.abortCh
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-abortCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	defer func() {
		e.mu.Lock()
		e.abortCh = nil
		e.mu.Unlock()
		e.state.Store(int32(Idle))
	}()

	entry, ok := e.lib.Get(scenarioID)
	if !ok {
		e.finish(scenarioID, proto.FinishPlanError, "unknown scenario")
		return proto.FinishPlanError
	}
	scn, ok := entry.Unit.(*model.Scenario)
	if !ok {
		e.finish(scenarioID, proto.FinishPlanError, "not a scenario unit")
		return proto.FinishPlanError
	}

	e.broadcast.Publish(bus.NewRecord(bus.MessageLog, scenarioID, fmt.Sprintf("START %s", scenarioID.Name)))

	plan, err := resolve.Plan(e.lib, scenarioID, scn)
	if err != nil {
		e.finish(scenarioID, proto.FinishPlanError, err.Error())
		return proto.FinishPlanError
	}

	coupons := e.couponsFor(scenarioID.Name)

	for _, c := range coupons {
		if err := supervisor.RunExecHook(runCtx, "", c.ExecPreflight); err != nil {
			e.state.Store(int32(PreflightFailed))
			e.finish(scenarioID, proto.FinishPreflightError, err.Error())
			return proto.FinishPreflightError
		}
	}

	e.state.Store(int32(Running))

	scnWorkdir := e.resolveWorkingDir(nil, scn)

	if scn.ExecStart != "" {
		if err := supervisor.RunExecHook(runCtx, scnWorkdir, scn.ExecStart); err != nil {
			e.broadcast.Publish(bus.NewRecord(bus.MessageWarn, scenarioID, "scenario ExecStart failed: "+err.Error()))
		}
	}

	outcomes := map[unit.ID]testOutcome{}
	for _, a := range plan.Steps {
		if a.Kind == resolve.StepAssumed {
			outcomes[a.ID] = outcomeAssumedPassed
		}
	}

	type spawned struct {
		id      unit.ID
		test    *model.Test
		proc    *supervisor.Process
		workdir string
	}
	var spawnedInOrder []spawned

	aborted := false
	anyFail := false
	anyTimeout := false

	for _, step := range plan.Steps {
		if step.Kind != resolve.StepScheduled {
			continue
		}
		select {
		case <-abortCh:
			aborted = true
		default:
		}
		if aborted {
			outcomes[step.ID] = outcomeSkipped
			e.broadcast.Publish(bus.NewRecord(bus.MessageSkip, step.ID, "aborted"))
			continue
		}

		if upstream, failed := firstFailedDep(step.HardDeps, outcomes); failed {
			outcomes[step.ID] = outcomeSkipped
			e.broadcast.Publish(bus.NewRecord(bus.MessageSkip, step.ID, fmt.Sprintf("upstream-failed %s", upstream.Name)))
			continue
		}

		testEntry, ok := e.lib.Get(step.ID)
		if !ok {
			outcomes[step.ID] = outcomeSkipped
			e.broadcast.Publish(bus.NewRecord(bus.MessageSkip, step.ID, "unit disappeared"))
			continue
		}
		test, ok := testEntry.Unit.(*model.Test)
		if !ok {
			outcomes[step.ID] = outcomeSkipped
			continue
		}

		e.broadcast.Publish(bus.NewRecord(bus.MessageRunning, step.ID, ""))
		workdir := e.resolveWorkingDir(test, scn)
		proc, err := supervisor.Spawn(runCtx, test, workdir, lineSink{broadcast: e.broadcast, id: step.ID})
		if err != nil {
			outcomes[step.ID] = outcomeFailed
			anyFail = true
			e.broadcast.Publish(bus.NewRecord(bus.MessageFail, step.ID, err.Error()))
			continue
		}
		spawnedInOrder = append(spawnedInOrder, spawned{id: step.ID, test: test, proc: proc, workdir: workdir})

		if test.Type == model.TypeDaemon {
			outcomes[step.ID] = e.awaitDaemonReady(step.ID, test, proc, &anyFail, &anyTimeout)
			continue
		}

		inTime := proc.AwaitTimeout(test.Timeout)
		if !inTime {
			proc.Stop()
			outcomes[step.ID] = outcomeTimedOut
			anyTimeout = true
			e.broadcast.Publish(bus.NewRecord(bus.MessageFail, step.ID, "timeout"))
			continue
		}
		if proc.ExitErr() != nil {
			outcomes[step.ID] = outcomeFailed
			anyFail = true
			e.broadcast.Publish(bus.NewRecord(bus.MessageFail, step.ID, proc.ExitErr().Error()))
		} else {
			outcomes[step.ID] = outcomePassed
			e.broadcast.Publish(bus.NewRecord(bus.MessagePass, step.ID, ""))
		}
	}

	select {
	case <-abortCh:
		aborted = true
	default:
	}

	// A daemon that exits on its own at any point before the scenario
	// reaches its own stop phase is a Fail retroactively (spec §4.H),
	// even though awaitDaemonReady already reported it Passed once it
	// hit Ready. Catch that here, before we start tearing anything down
	// ourselves, so a daemon that died quietly while later tests ran
	// doesn't silently finish the scenario green.
	for _, s := range spawnedInOrder {
		if s.test.Type != model.TypeDaemon || outcomes[s.id] != outcomePassed {
			continue
		}
		select {
		case <-s.proc.Done():
			outcomes[s.id] = outcomeFailed
			anyFail = true
			e.broadcast.Publish(bus.NewRecord(bus.MessageFail, s.id, "daemon exited before scenario stop phase"))
		default:
		}
	}

	e.state.Store(int32(Stopping))

	for i := len(spawnedInOrder) - 1; i >= 0; i-- {
		s := spawnedInOrder[i]
		if s.proc.State() != supervisor.StateReaped && s.proc.State() != supervisor.StatePassed && s.proc.State() != supervisor.StateFailed {
			s.proc.Stop()
		}
		s.proc.Reaped()
		runStopHook(runCtx, s.test, outcomes[s.id], s.workdir)
	}

	scnPassed := !anyFail && !anyTimeout && !aborted
	if scnPassed {
		if scn.ExecStopSuccess != "" {
			_ = supervisor.RunExecHook(runCtx, scnWorkdir, scn.ExecStopSuccess)
		}
	} else if scn.ExecStopFail != "" {
		_ = supervisor.RunExecHook(runCtx, scnWorkdir, scn.ExecStopFail)
	}

	couponFailed := false
	for _, c := range coupons {
		if scnPassed {
			if c.ExecStopSuccess != "" {
				if err := supervisor.RunExecHook(runCtx, "", c.ExecStopSuccess); err != nil {
					couponFailed = true
					e.broadcast.Publish(bus.NewRecord(bus.MessageWarn, scenarioID, "coupon commit failed: "+err.Error()))
				}
			}
		} else if c.ExecStopFail != "" {
			_ = supervisor.RunExecHook(runCtx, "", c.ExecStopFail)
		}
	}

	switch {
	case aborted:
		e.state.Store(int32(Aborted))
		e.finish(scenarioID, proto.FinishAborted, "aborted")
		return proto.FinishAborted
	case anyTimeout:
		e.state.Store(int32(Fail))
		e.finish(scenarioID, proto.FinishTimeout, "test timeout")
		return proto.FinishTimeout
	case anyFail || couponFailed:
		e.state.Store(int32(Fail))
		e.finish(scenarioID, proto.FinishTestFailure, "test failure")
		return proto.FinishTestFailure
	default:
		e.state.Store(int32(Success))
		e.finish(scenarioID, proto.FinishSuccess, "ok")
		return proto.FinishSuccess
	}
}

// awaitDaemonReady waits for a daemon test to reach Ready (bounded by
// its Timeout, which "bounds the readiness wait only", spec §4.H), then
// leaves it running for the rest of the scenario.
func (e *Engine) awaitDaemonReady(id unit.ID, test *model.Test, proc *supervisor.Process, anyFail, anyTimeout *bool) testOutcome {
	deadline := test.Timeout
	if deadline <= 0 {
		deadline = 0
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	var timer <-chan time.Time
	if deadline > 0 {
		t := time.NewTimer(deadline)
		defer t.Stop()
		timer = t.C
	}
	for {
		select {
		case <-proc.Done():
			*anyFail = true
			e.broadcast.Publish(bus.NewRecord(bus.MessageFail, id, "daemon exited before ready"))
			return outcomeFailed
		case <-timer:
			proc.Stop()
			*anyTimeout = true
			e.broadcast.Publish(bus.NewRecord(bus.MessageFail, id, "timeout waiting for readiness"))
			return outcomeTimedOut
		case <-ticker.C:
			if proc.State() == supervisor.StateReady {
				e.broadcast.Publish(bus.NewRecord(bus.MessageDaemonized, id, ""))
				return outcomePassed
			}
		}
	}
}

// runStopHook invokes the per-test stop hook selected by outcome (spec
// §4.H: "ExecStopSuccess or ExecStopFail ... if neither is set,
// ExecStop is invoked"). A failing stop hook is logged but never
// retroactively fails the test (spec: "except for coupons").
func runStopHook(ctx context.Context, test *model.Test, outcome testOutcome, workdir string) {
	var hook string
	switch outcome {
	case outcomePassed, outcomeAssumedPassed:
		hook = test.ExecStopSuccess
	default:
		hook = test.ExecStopFail
	}
	if hook == "" {
		hook = test.ExecStop
	}
	if hook == "" {
		return
	}
	_ = supervisor.RunExecHook(ctx, workdir, hook)
}

// firstFailedDep reports the first hard dependency of deps that did not
// pass, if any.
func firstFailedDep(deps []unit.ID, outcomes map[unit.ID]testOutcome) (unit.ID, bool) {
	for _, d := range deps {
		switch outcomes[d] {
		case outcomePassed, outcomeAssumedPassed:
			continue
		default:
			return d, true
		}
	}
	return unit.ID{}, false
}

// couponsFor returns every coupon unit whose Scenarios list names
// scenarioName, in Library enumeration order.
func (e *Engine) couponsFor(scenarioName string) []*model.Coupon {
	var out []*model.Coupon
	for _, entry := range e.lib.Enumerate(unit.KindCoupon) {
		c, ok := entry.Unit.(*model.Coupon)
		if !ok {
			continue
		}
		for _, s := range c.Scenarios {
			if s == scenarioName {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (e *Engine) finish(scenarioID unit.ID, code proto.FinishCode, reason string) {
	e.broadcast.Publish(bus.NewRecord(bus.MessageFinish, scenarioID, fmt.Sprintf("%d %s", code, reason)))
}
