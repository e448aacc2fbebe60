// Package resolve implements the dependency resolver (spec §4.E): it
// expands a scenario's goal tests over Requires/Suggests/Provides edges
// into either a linear, deterministic schedule or a PlanError.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package resolve

import (
	"fmt"

	"github.com/agilira/exclave/internal/library"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/unit"
)

// StepKind distinguishes a synthetic Assume entry from a test that will
// actually be spawned.
type StepKind int

const (
	StepAssumed StepKind = iota
	StepScheduled
)

// Step is one entry of a Plan.
type Step struct {
	ID       unit.ID
	Kind     StepKind
	HardDeps []unit.ID // concrete hard prerequisites; used by the scenario engine's skip-cascade check
}

// Plan is the immutable output of a successful resolve: Assume entries
// first (spec step 5), then concrete tests in an order that honors every
// Requires/Suggests edge and the scenario's own goal order (spec step 4).
type Plan struct {
	Steps    []Step
	Warnings []string // dropped unsatisfied/cyclic soft edges
}

// CycleError reports a Requires-cycle (spec: "PlanError::Cycle{path}").
type CycleError struct {
	Path []unit.ID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %v", e.Path)
}

// UnsatisfiedError reports a hard dependency that cannot be resolved
// against the active jig (spec: "PlanError::Unsatisfied{test, missing}").
type UnsatisfiedError struct {
	Test    unit.ID
	Missing unit.Ref
}

func (e *UnsatisfiedError) Error() string {
	return fmt.Sprintf("unsatisfied requirement: %s needs %s", e.Test, e.Missing)
}

// Store is the subset of Library's API the resolver needs. library.Library
// satisfies it directly; tests may supply a fake.
type Store interface {
	Get(id unit.ID) (library.Entry, bool)
	ResolveReference(from unit.ID, ref unit.Ref) (unit.ID, error)
}

type stackFrame struct {
	id      unit.ID
	viaHard bool // edge kind of the edge that entered this frame
}

// Plan computes the schedule for scenarioID's scenario against store.
// It never panics and always returns either a non-nil *Plan or a non-nil
// error (spec property 2: "resolver totality").
func Plan(store Store, scenarioID unit.ID, scenario *model.Scenario) (*Plan, error) {
	p := &Plan{}
	scheduled := map[unit.ID]bool{}

	for _, ref := range scenario.Assume {
		id, err := store.ResolveReference(scenarioID, ref)
		if err != nil {
			return nil, &UnsatisfiedError{Test: scenarioID, Missing: ref}
		}
		scheduled[id] = true
		p.Steps = append(p.Steps, Step{ID: id, Kind: StepAssumed})
	}

	var stack []stackFrame
	visiting := map[unit.ID]int{}

	var visit func(id unit.ID, viaHard bool) error
	visit = func(id unit.ID, viaHard bool) error {
		stack = append(stack, stackFrame{id: id, viaHard: viaHard})
		visiting[id] = len(stack) - 1
		defer func() {
			delete(visiting, id)
			stack = stack[:len(stack)-1]
		}()

		entry, ok := store.Get(id)
		if !ok || entry.State == library.StateFailed {
			return &UnsatisfiedError{Test: id, Missing: unit.Ref{Hint: id.Kind, Name: id.Name}}
		}
		test, ok := entry.Unit.(*model.Test)
		if !ok {
			return &UnsatisfiedError{Test: id, Missing: unit.Ref{Hint: id.Kind, Name: id.Name}}
		}

		var hardDeps []unit.ID
		for _, req := range test.Requires {
			target, err := store.ResolveReference(id, req)
			if err != nil {
				return &UnsatisfiedError{Test: id, Missing: req}
			}
			if idx, inStack := visiting[target]; inStack {
				return &CycleError{Path: cyclePath(stack, idx)}
			}
			if !scheduled[target] {
				if err := visit(target, true); err != nil {
					return err
				}
			}
			hardDeps = append(hardDeps, target)
		}

		for _, sug := range test.Suggests {
			target, err := store.ResolveReference(id, sug)
			if err != nil {
				p.Warnings = append(p.Warnings, fmt.Sprintf("dropped unsatisfied suggestion %s -> %s", id, sug))
				continue
			}
			if idx, inStack := visiting[target]; inStack {
				if cyclePureSoft(stack, idx) {
					p.Warnings = append(p.Warnings, fmt.Sprintf("broke suggests-only cycle: dropped %s -> %s", id, target))
					continue
				}
				return &CycleError{Path: cyclePath(stack, idx)}
			}
			if scheduled[target] {
				continue
			}
			if err := visit(target, false); err != nil {
				p.Warnings = append(p.Warnings, fmt.Sprintf("dropped suggestion branch %s -> %s: %v", id, target, err))
				continue
			}
		}

		p.Steps = append(p.Steps, Step{ID: id, Kind: StepScheduled, HardDeps: hardDeps})
		scheduled[id] = true
		return nil
	}

	for _, ref := range scenario.Tests {
		id, err := store.ResolveReference(scenarioID, ref)
		if err != nil {
			return nil, &UnsatisfiedError{Test: scenarioID, Missing: ref}
		}
		if scheduled[id] {
			continue
		}
		if err := visit(id, true); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// cyclePath renders the cycle from idx to the end of stack, closed back
// to stack[idx] for readability.
func cyclePath(stack []stackFrame, idx int) []unit.ID {
	path := make([]unit.ID, 0, len(stack)-idx+1)
	for j := idx; j < len(stack); j++ {
		path = append(path, stack[j].id)
	}
	path = append(path, stack[idx].id)
	return path
}

// cyclePureSoft reports whether every edge from stack[idx+1] to the end
// of the stack is a Suggests edge. The closing edge is known soft by the
// caller (it only calls this from the Suggests loop), so a true result
// means the whole induced cycle is soft-only and may be broken.
func cyclePureSoft(stack []stackFrame, idx int) bool {
	for j := idx + 1; j < len(stack); j++ {
		if stack[j].viaHard {
			return false
		}
	}
	return true
}
