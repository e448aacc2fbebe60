// Package orchestrator wires the individually-testable components
// (config watcher, loader, library, jig detector, the two buses, the
// scenario engine, and the logger/interface/trigger adapters) into the
// single running process described by spec §5 ("Concurrency Model").
// cmd/exclave's main is deliberately thin; this package is what a test
// can construct and drive without an OS process around it.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	errors "github.com/agilira/go-errors"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/config"
	"github.com/agilira/exclave/internal/frontend"
	"github.com/agilira/exclave/internal/jig"
	"github.com/agilira/exclave/internal/library"
	"github.com/agilira/exclave/internal/loader"
	"github.com/agilira/exclave/internal/logger"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/scenario"
	"github.com/agilira/exclave/internal/unit"
	"github.com/agilira/exclave/internal/watcher"
)

const ErrCodeStartup = "EXCLAVE_STARTUP_ERROR"

// Orchestrator owns every long-lived component for one run of the
// exclave process.
type Orchestrator struct {
	cfg       config.RuntimeConfig
	lib       *library.Library
	broadcast *bus.Broadcast
	control   *bus.Control
	engine    *scenario.Engine
	watcher   *watcher.Watcher
}

// New constructs an Orchestrator for cfg without starting anything.
func New(cfg config.RuntimeConfig) (*Orchestrator, error) {
	w, err := watcher.New(cfg.ConfigDir)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeStartup, "creating config directory watcher")
	}
	lib := library.New()
	broadcast := bus.NewBroadcast(0)
	control := bus.NewControl(0)
	engine := scenario.New(lib, broadcast)
	engine.SetConfigDir(cfg.ConfigDir)
	return &Orchestrator{
		cfg:       cfg,
		lib:       lib,
		broadcast: broadcast,
		control:   control,
		engine:    engine,
		watcher:   w,
	}, nil
}

// Broadcast returns the orchestrator's broadcast bus, so cmd/exclave can
// subscribe a stdout echo of the record stream (spec §6: the TSV/JSON
// framing isn't reserved to Logger units alone).
func (o *Orchestrator) Broadcast() *bus.Broadcast { return o.broadcast }

// scenarioLister adapts the Library to frontend.ScenarioLister.
type scenarioLister struct{ lib *library.Library }

func (s scenarioLister) ScenarioNames() []string {
	entries := s.lib.Enumerate(unit.KindScenario)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID.Name)
	}
	return out
}

// Run loads the initial Library, starts the live watcher, detects the
// active jig, spawns every Logger/Interface/Trigger unit, and then
// drives the control bus until ctx is canceled. It returns once every
// spawned component has wound down.
func (o *Orchestrator) Run(ctx context.Context) error {
	for _, err := range loader.LoadInitial(o.lib, o.watcher) {
		o.broadcast.Publish(bus.NewBusRecord(bus.MessageWarn, "startup load: "+err.Error()))
	}

	if err := o.watcher.Start(); err != nil {
		return errors.Wrap(err, ErrCodeStartup, "starting config directory watcher")
	}
	defer o.watcher.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); loader.Run(ctx, o.lib, o.watcher) }()

	o.selectJig(ctx)

	o.spawnLoggers(ctx, &wg)
	o.spawnInterfaces(ctx, &wg)
	o.spawnTriggers(ctx, &wg)

	o.controlLoop(ctx)
	wg.Wait()
	return nil
}

// selectJig evaluates every declared Jig against the live environment
// and Selects the first match (spec §4.J). No candidate matching is not
// an error: the process continues in "no jig" mode, where only
// jig-whitelist-free units are usable (Envelope.JigCompatible).
func (o *Orchestrator) selectJig(ctx context.Context) {
	entries := o.lib.Enumerate(unit.KindJig)
	candidates := make([]jig.Candidate, 0, len(entries))
	for _, e := range entries {
		if j, ok := e.Unit.(*model.Jig); ok {
			candidates = append(candidates, jig.Candidate{ID: e.ID, Jig: j})
		}
	}
	name, ok := jig.Detect(ctx, jig.ExecRunner{}, candidates)
	if !ok {
		o.broadcast.Publish(bus.NewBusRecord(bus.MessageWarn, "no jig matched; running in no-jig mode"))
		return
	}
	id := unit.ID{Kind: unit.KindJig, Name: name}
	if err := o.lib.Select(id, nil); err != nil {
		o.broadcast.Publish(bus.NewBusRecord(bus.MessageWarn, "selecting jig "+name+": "+err.Error()))
	}
}

// spawnLoggers starts every declared Logger unit: a process-backed one
// over a pipe, or the built-in sqlite backend with no child process
// (spec §4.K; SPEC_FULL.md DOMAIN STACK).
func (o *Orchestrator) spawnLoggers(ctx context.Context, wg *sync.WaitGroup) {
	for _, e := range o.lib.Enumerate(unit.KindLogger) {
		lg, ok := e.Unit.(*model.Logger)
		if !ok || !lg.JigCompatible(o.lib.ActiveJig()) {
			continue
		}
		var sink logger.Sink
		var handle interface{ Stop() }
		if lg.Backend == "sqlite" {
			sq, err := logger.NewSQLiteSink(lg.DatabasePath)
			if err != nil {
				o.broadcast.Publish(bus.NewRecord(bus.MessageWarn, e.ID, "starting sqlite logger: "+err.Error()))
				continue
			}
			sink = sq
			handle = sqliteHandle{sq}
		} else {
			pl, err := logger.Spawn(lg)
			if err != nil {
				o.broadcast.Publish(bus.NewRecord(bus.MessageWarn, e.ID, "spawning logger: "+err.Error()))
				continue
			}
			sink = pl
			handle = pl
		}
		if err := o.lib.Select(e.ID, handle); err != nil {
			o.broadcast.Publish(bus.NewRecord(bus.MessageWarn, e.ID, err.Error()))
		}
		wg.Add(1)
		go func(s logger.Sink, h interface{ Stop() }) {
			defer wg.Done()
			logger.Run(ctx, o.broadcast, s)
			h.Stop()
		}(sink, handle)
	}
}

// sqliteHandle adapts SQLiteSink.Close to the Stop() shape shared by the
// other Logger/Interface/Trigger handles the Library stores.
type sqliteHandle struct{ s *logger.SQLiteSink }

func (h sqliteHandle) Stop() { _ = h.s.Close() }

// spawnInterfaces starts every declared Interface unit (spec §4.K, §6).
func (o *Orchestrator) spawnInterfaces(ctx context.Context, wg *sync.WaitGroup) {
	for _, e := range o.lib.Enumerate(unit.KindInterface) {
		iface, ok := e.Unit.(*model.Interface)
		if !ok || !iface.JigCompatible(o.lib.ActiveJig()) {
			continue
		}
		s, err := frontend.SpawnInterface(e.ID, iface)
		if err != nil {
			o.broadcast.Publish(bus.NewRecord(bus.MessageWarn, e.ID, "spawning interface: "+err.Error()))
			continue
		}
		if err := o.lib.Select(e.ID, s); err != nil {
			o.broadcast.Publish(bus.NewRecord(bus.MessageWarn, e.ID, err.Error()))
		}
		wg.Add(1)
		go func(s *frontend.Interface) {
			defer wg.Done()
			frontend.Run(ctx, s, o.broadcast, o.control, o.lib.ActiveJig(), scenarioLister{o.lib})
			s.Stop()
		}(s)
	}
}

// spawnTriggers starts every declared Trigger unit (spec §4.K, §6).
func (o *Orchestrator) spawnTriggers(ctx context.Context, wg *sync.WaitGroup) {
	for _, e := range o.lib.Enumerate(unit.KindTrigger) {
		tr, ok := e.Unit.(*model.Trigger)
		if !ok || !tr.JigCompatible(o.lib.ActiveJig()) {
			continue
		}
		t, err := frontend.SpawnTrigger(e.ID, tr)
		if err != nil {
			o.broadcast.Publish(bus.NewRecord(bus.MessageWarn, e.ID, "spawning trigger: "+err.Error()))
			continue
		}
		if err := o.lib.Select(e.ID, t); err != nil {
			o.broadcast.Publish(bus.NewRecord(bus.MessageWarn, e.ID, err.Error()))
		}
		wg.Add(1)
		go func(t *frontend.Trigger) {
			defer wg.Done()
			frontend.RunTrigger(ctx, t, o.broadcast, o.control)
			t.Stop()
		}(t)
	}
}

// controlLoop drains control bus commands one at a time, starting the
// engine for CommandStart (a duplicate START while a scenario is running
// is discarded, both by the engine state check below and by Engine.Run's
// Idle→Starting compare-and-swap) and routing CommandAbort, which a
// trigger's STOP also becomes, to Engine.Abort. It returns when ctx is
// canceled.
func (o *Orchestrator) controlLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-o.control.Receive():
			switch cmd.Kind {
			case bus.CommandAbort:
				o.engine.Abort()
			case bus.CommandStart:
				id, err := o.resolveScenario(cmd.Scenario)
				if err != nil {
					o.broadcast.Publish(bus.NewBusRecord(bus.MessageWarn, "START: "+err.Error()))
					continue
				}
				if o.engine.State() != scenario.Idle {
					continue
				}
				go o.engine.Run(ctx, id)
			}
		}
	}
}

// resolveScenario maps a control Command's scenario reference to a
// concrete unit.ID: an explicit name resolves directly against the
// Library; the zero Ref (no scenario named in the START verb) falls
// back to the active jig's DefaultScenario (spec §4.J: "DefaultScenario
// names the scenario run when a client START names none").
func (o *Orchestrator) resolveScenario(ref unit.Ref) (unit.ID, error) {
	if ref.Name == "" {
		jigName := o.lib.ActiveJig()
		if jigName == "" {
			return unit.ID{}, fmt.Errorf("no scenario named and no jig selected")
		}
		entry, ok := o.lib.Get(unit.ID{Kind: unit.KindJig, Name: jigName})
		if !ok {
			return unit.ID{}, fmt.Errorf("active jig %q disappeared", jigName)
		}
		j, ok := entry.Unit.(*model.Jig)
		if !ok || j.DefaultScenario == "" {
			return unit.ID{}, fmt.Errorf("jig %q declares no DefaultScenario", jigName)
		}
		ref = unit.Ref{Hint: unit.KindScenario, Name: j.DefaultScenario}
	}
	id := unit.ID{Kind: unit.KindScenario, Name: ref.Name}
	if _, ok := o.lib.Get(id); !ok {
		return unit.ID{}, fmt.Errorf("unknown scenario %q", ref.Name)
	}
	return id, nil
}
