// Package model holds the typed unit variants decoded from unitfile.File
// (spec §3). Per design note §9 ("dynamic dispatch over unit kinds"),
// kinds are a closed set modeled as distinct structs sharing a common
// Envelope rather than an inheritance hierarchy; Unit is the interface
// that lets the Library and resolver handle any of them uniformly.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package model

import (
	"time"

	"github.com/agilira/exclave/internal/unit"
)

// Format is the wire framing a Logger or Interface unit speaks.
type Format int

const (
	FormatTSV Format = iota
	FormatJSON
	FormatText
)

// Envelope carries the fields every unit kind shares (spec §3).
type Envelope struct {
	ID          unit.ID
	Description string
	Jigs        []string // whitelist of jig names; empty = all jigs
	Source      string   // path to the backing file, as given to the parser
}

// Unit is implemented by every concrete unit variant.
type Unit interface {
	Env() *Envelope
}

// JigCompatible reports whether this unit may be used with the given
// active jig name (spec invariant 2). An empty Jigs whitelist means
// "all jigs"; an empty activeJig means "no jig selected", which only
// units with an empty whitelist can satisfy.
func (e *Envelope) JigCompatible(activeJig string) bool {
	if len(e.Jigs) == 0 {
		return true
	}
	if activeJig == "" {
		return false
	}
	for _, j := range e.Jigs {
		if j == activeJig {
			return true
		}
	}
	return false
}

// TestType distinguishes simple one-shot tests from long-lived daemons
// (spec §3, §4.H).
type TestType int

const (
	TypeSimple TestType = iota
	TypeDaemon
)

// Test is the `.test` unit kind.
type Test struct {
	Envelope
	Requires         []unit.Ref
	Suggests         []unit.Ref
	Provides         []string
	Timeout          time.Duration
	Type             TestType
	DaemonReadyText  string
	DaemonReadyRegex bool
	ExecStart        string
	ExecStop         string
	ExecStopSuccess  string
	ExecStopFail     string
	WorkingDirectory string
}

func (t *Test) Env() *Envelope { return &t.Envelope }

// Jig is the `.jig` unit kind.
type Jig struct {
	Envelope
	TestFile                string
	TestProgram             string
	WorkingDirectory        string
	DefaultWorkingDirectory string
	DefaultScenario         string
}

func (j *Jig) Env() *Envelope { return &j.Envelope }

// Scenario is the `.scenario` unit kind.
type Scenario struct {
	Envelope
	Tests            []unit.Ref // ordered goal nodes
	Assume           []unit.Ref // pretend-passed
	ExecStart        string
	ExecStopSuccess  string
	ExecStopFail     string
	Timeout          time.Duration
	WorkingDirectory string // scenario-level default, below a test's own and above the jig's
}

func (s *Scenario) Env() *Envelope { return &s.Envelope }

// Trigger is the `.trigger` unit kind.
type Trigger struct {
	Envelope
	ExecStart        string
	WorkingDirectory string
}

func (t *Trigger) Env() *Envelope { return &t.Envelope }

// Logger is the `.logger` unit kind. Backend distinguishes the spec's
// spawned-process loggers (the default, "" or "process") from the
// built-in "sqlite" backend (SPEC_FULL.md DOMAIN STACK), which never
// forks a child and instead persists records to DatabasePath.
type Logger struct {
	Envelope
	ExecStart        string
	WorkingDirectory string
	Format           Format
	Backend          string
	DatabasePath     string
}

func (l *Logger) Env() *Envelope { return &l.Envelope }

// Interface is the `.interface` unit kind.
type Interface struct {
	Envelope
	ExecStart        string
	WorkingDirectory string
	Format           Format
}

func (i *Interface) Env() *Envelope { return &i.Envelope }

// Coupon is the `.coupon` unit kind.
type Coupon struct {
	Envelope
	Scenarios       []string
	ExecPreflight   string
	ExecStopSuccess string
	ExecStopFail    string
}

func (c *Coupon) Env() *Envelope { return &c.Envelope }

// Updater is the `.updater` unit kind (spec §3; SPEC_FULL.md §3 gives it
// minimal, maintenance-only semantics — never part of a dependency
// graph).
type Updater struct {
	Envelope
	ExecStart string
}

func (u *Updater) Env() *Envelope { return &u.Envelope }
