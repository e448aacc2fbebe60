// Package jig implements the jig detector (spec §4.J): ordered
// evaluation of each declared jig's TestFile/TestProgram predicates,
// first-pass-wins selection, and the "no jig" fallback mode.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package jig

import (
	"context"
	"os"
	"os/exec"

	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/unit"
)

// Runner executes a jig's TestProgram and reports whether it exited 0.
// Exists so tests can substitute a fake instead of forking real
// processes.
type Runner interface {
	Run(ctx context.Context, path string) (exitedZero bool, err error)
}

// ExecRunner runs TestProgram as a real child process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, path string) (bool, error) {
	cmd := exec.CommandContext(ctx, path)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, err
}

// Candidate pairs a jig's id with its decoded unit, the shape the
// Library's Enumerate(unit.KindJig) call produces.
type Candidate struct {
	ID  unit.ID
	Jig *model.Jig
}

// Detect evaluates candidates in order (spec: "Library enumeration
// order") and returns the name of the first jig whose predicates all
// pass. An empty string with ok=false means no jig matched: the engine
// must run in "no jig" mode.
func Detect(ctx context.Context, runner Runner, candidates []Candidate) (name string, ok bool) {
	for _, c := range candidates {
		if matches(ctx, runner, c.Jig) {
			return c.ID.Name, true
		}
	}
	return "", false
}

// matches evaluates the three-rule predicate from spec §4.J for a
// single jig.
func matches(ctx context.Context, runner Runner, j *model.Jig) bool {
	hasFile := j.TestFile != ""
	hasProgram := j.TestProgram != ""

	if !hasFile && !hasProgram {
		return true // rule 4: neither present, the jig matches
	}

	if hasFile {
		if !fileReadable(j.TestFile) {
			return false
		}
	}

	if hasProgram {
		passed, err := runner.Run(ctx, j.TestProgram)
		if err != nil || !passed {
			return false
		}
	}

	return true
}

func fileReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
