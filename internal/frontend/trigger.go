// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package frontend

import (
	"context"
	"strings"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/child"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/proto"
	"github.com/agilira/exclave/internal/unit"
)

// Trigger is one running Trigger unit.
type Trigger struct {
	id   unit.ID
	proc *child.Piped
}

// SpawnTrigger starts t's ExecStart with only stdout captured (spec §6:
// "outbound from trigger process only").
func SpawnTrigger(id unit.ID, t *model.Trigger) (*Trigger, error) {
	proc, err := child.Spawn(t.ExecStart, t.WorkingDirectory, false)
	if err != nil {
		return nil, err
	}
	return &Trigger{id: id, proc: proc}, nil
}

// Stop terminates the trigger's child process.
func (t *Trigger) Stop() { t.proc.Stop() }

// RunTrigger decodes every line of t's stdout as a trigger protocol
// line and translates HELLO/START/STOP/LOG into control-bus commands or
// broadcast log records, until ctx is canceled or the trigger exits.
func RunTrigger(ctx context.Context, t *Trigger, broadcast *bus.Broadcast, control *bus.Control) {
	done := ctx.Done()
	for {
		select {
		case <-done:
			return
		case <-t.proc.Done():
			return
		case line, ok := <-t.proc.Lines():
			if !ok {
				return
			}
			ev, err := proto.ParseTriggerLine(line)
			if err != nil {
				continue
			}
			switch ev.Verb {
			case "START":
				ref := unit.Ref{}
				if len(ev.Args) > 0 {
					ref = unit.ParseRef(ev.Args[0])
				}
				control.Send(bus.Command{Kind: bus.CommandStart, Scenario: ref, Source: t.id.Name})
			case "STOP":
				control.Send(bus.Command{Kind: bus.CommandAbort, Source: t.id.Name})
			case "LOG":
				broadcast.Publish(bus.NewRecord(bus.MessageLog, t.id, strings.Join(ev.Args, " ")))
			case "HELLO":
				// Handshake only; nothing to act on.
			}
		}
	}
}
