// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package resolve

import (
	"sort"
	"testing"

	"github.com/agilira/exclave/internal/library"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/unit"
)

func newLib(t *testing.T, units map[unit.Kind]map[string]string) *library.Library {
	t.Helper()
	l := library.New()
	for k, names := range units {
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		for _, name := range sorted {
			src := names[name]
			id := unit.ID{Kind: k, Name: name}
			if err := l.Upsert(id, name, []byte(src)); err != nil {
				t.Fatalf("Upsert(%s): %v", id, err)
			}
		}
	}
	return l
}

func scenarioRefs(toks ...string) []unit.Ref {
	out := make([]unit.Ref, len(toks))
	for i, t := range toks {
		out[i] = unit.ParseRef(t)
	}
	return out
}

func TestPlanS1HappyPath(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"led":    "[Test]\nExecStart=/bin/led\n",
			"button": "[Test]\nRequires=led\nExecStart=/bin/button\n",
		},
	})
	scn := &model.Scenario{Tests: scenarioRefs("led", "button")}
	p, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "smoke"}, scn)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(p.Steps))
	}
	if p.Steps[0].ID.Name != "led" || p.Steps[1].ID.Name != "button" {
		t.Errorf("order = %v, %v, want led, button", p.Steps[0].ID.Name, p.Steps[1].ID.Name)
	}
}

func TestPlanCycleHardIsFatal(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"a": "[Test]\nRequires=b\n",
			"b": "[Test]\nRequires=a\n",
		},
	})
	scn := &model.Scenario{Tests: scenarioRefs("a")}
	_, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("expected *CycleError, got %T: %v", err, err)
	}
}

func TestPlanSuggestsOnlyCycleIsBroken(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"a": "[Test]\nSuggests=b\n",
			"b": "[Test]\nSuggests=a\n",
		},
	})
	scn := &model.Scenario{Tests: scenarioRefs("a")}
	p, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
	if err != nil {
		t.Fatalf("Plan should succeed breaking a soft cycle, got %v", err)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("expected both a and b scheduled, got %d steps", len(p.Steps))
	}
}

func TestPlanProvidesSubstitution(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"firmware":      "[Test]\nRequires=swd\n",
			"openocd-rpi":   "[Unit]\nJigs=rpi\n\n[Test]\nProvides=swd\n",
			"openocd-other": "[Unit]\nJigs=other\n\n[Test]\nProvides=swd\n",
		},
		unit.KindJig: {"rpi": "[Jig]\n"},
	})
	if err := l.Select(unit.ID{Kind: unit.KindJig, Name: "rpi"}, "h"); err != nil {
		t.Fatalf("Select jig: %v", err)
	}
	scn := &model.Scenario{Tests: scenarioRefs("firmware")}
	p, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Steps[0].ID.Name != "openocd-rpi" {
		t.Errorf("expected jig-compatible provider scheduled first, got %s", p.Steps[0].ID.Name)
	}
}

func TestPlanUnsatisfiedHardWhenNoJigCompatible(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"firmware": "[Test]\nRequires=swd\n",
			"openocd":  "[Unit]\nJigs=other\n\n[Test]\nProvides=swd\n",
		},
		unit.KindJig: {"rpi": "[Jig]\n"},
	})
	if err := l.Select(unit.ID{Kind: unit.KindJig, Name: "rpi"}, "h"); err != nil {
		t.Fatalf("Select jig: %v", err)
	}
	scn := &model.Scenario{Tests: scenarioRefs("firmware")}
	_, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
	if _, ok := err.(*UnsatisfiedError); !ok {
		t.Fatalf("expected *UnsatisfiedError, got %T: %v", err, err)
	}
}

func TestPlanStableTieBreak(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"firmware": "[Test]\nRequires=swd\n",
			"first":    "[Test]\nProvides=swd\n",
			"second":   "[Test]\nProvides=swd\n",
		},
	})
	scn := &model.Scenario{Tests: scenarioRefs("firmware")}
	var names []string
	for i := 0; i < 3; i++ {
		p, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}
		names = append(names, p.Steps[0].ID.Name)
	}
	for _, n := range names {
		if n != names[0] {
			t.Fatalf("unstable tie-break across runs: %v", names)
		}
	}
	if names[0] != "first" {
		t.Errorf("expected declaration-order winner 'first', got %q", names[0])
	}
}

func TestPlanAssumeNotSpawned(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"preflashed": "[Test]\nProvides=flash\n",
			"app":        "[Test]\nRequires=flash\n",
		},
	})
	scn := &model.Scenario{Tests: scenarioRefs("app"), Assume: scenarioRefs("preflashed")}
	p, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Steps[0].Kind != StepAssumed || p.Steps[0].ID.Name != "preflashed" {
		t.Fatalf("expected assumed entry first, got %+v", p.Steps[0])
	}
	for _, s := range p.Steps {
		if s.ID.Name == "preflashed" && s.Kind == StepScheduled {
			t.Fatal("assumed test must never be scheduled for spawning")
		}
	}
}

func TestPlanS2HardFailureCascadeSkipInfoViaHardDeps(t *testing.T) {
	l := newLib(t, map[unit.Kind]map[string]string{
		unit.KindTest: {
			"firmware": "[Test]\nRequires=swd\n",
			"openocd":  "[Test]\nProvides=swd\n",
			"sound":    "[Test]\nRequires=firmware\n",
			"lcd":      "[Test]\nRequires=firmware\n",
		},
	})
	scn := &model.Scenario{Tests: scenarioRefs("sound", "lcd")}
	p, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	var firmwareStep Step
	for _, s := range p.Steps {
		if s.ID.Name == "sound" || s.ID.Name == "lcd" {
			if len(s.HardDeps) != 1 || s.HardDeps[0].Name != "firmware" {
				t.Errorf("%s HardDeps = %v, want [firmware]", s.ID.Name, s.HardDeps)
			}
		}
		if s.ID.Name == "firmware" {
			firmwareStep = s
		}
	}
	if firmwareStep.ID.Name != "firmware" {
		t.Fatal("firmware not scheduled")
	}
}

func TestPlanTotalityNeverPanics(t *testing.T) {
	l := library.New()
	scn := &model.Scenario{Tests: scenarioRefs("nonexistent")}
	_, err := Plan(l, unit.ID{Kind: unit.KindScenario, Name: "s"}, scn)
	if err == nil {
		t.Fatal("expected an error for a missing goal test")
	}
}
