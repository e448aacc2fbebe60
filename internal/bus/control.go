// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package bus

import "github.com/agilira/exclave/internal/unit"

// CommandKind is one of the two verbs the control bus carries (spec
// §4.G, §6: trigger/interface client verbs "START" and "ABORT").
type CommandKind int

const (
	CommandStart CommandKind = iota
	CommandAbort
)

// Command is one control bus entry: a request from a trigger or an
// interface client to start or abort a scenario.
type Command struct {
	Kind     CommandKind
	Scenario unit.Ref // zero value means "the jig's default scenario" for CommandStart
	Source   string   // originating unit name, for diagnostics
}

// Control is the many-to-one, bounded, lossless command bus (spec §4.G:
// "ordered and lossless (bounded, blocking producers)"). Unlike
// Broadcast, Send blocks rather than drops: losing a START or ABORT
// would leave an operator's command silently ignored, which this bus
// exists specifically to avoid.
type Control struct {
	ch chan Command
}

// NewControl creates a Control bus with the given capacity (0 selects a
// capacity of 16, enough to absorb a burst of trigger presses without
// blocking their process's stdout pump).
func NewControl(capacity int) *Control {
	if capacity <= 0 {
		capacity = 16
	}
	return &Control{ch: make(chan Command, capacity)}
}

// Send enqueues cmd, blocking if the bus is full.
func (c *Control) Send(cmd Command) {
	c.ch <- cmd
}

// Receive returns the channel the scenario engine drains commands from.
func (c *Control) Receive() <-chan Command {
	return c.ch
}
