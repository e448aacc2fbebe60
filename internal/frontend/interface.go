// Package frontend implements the Interface and Trigger halves of
// component K (spec §4.K): an Interface unit is spawned with stdin and
// stdout as pipes carrying the §6 text (or JSON-verb) protocol, writing
// server→client verbs drained from the broadcast bus and reading
// client→server verbs onto the control bus; a Trigger unit is spawned
// with only its stdout captured and translated into control-bus
// commands.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package frontend

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/child"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/proto"
	"github.com/agilira/exclave/internal/unit"
)

// ProtocolVersion is sent in the HELLO server message on connect.
const ProtocolVersion = "1"

// pongGrace is how long a client has to answer a PING before it's
// considered unresponsive (spec §6: "PONG <id> (must answer within 5s)").
const pongGrace = 5 * time.Second

// Interface is one running Interface unit.
type Interface struct {
	id     unit.ID
	proc   *child.Piped
	format model.Format
}

// SpawnInterface starts i's ExecStart with piped stdin/stdout (spec
// §4.K).
func SpawnInterface(id unit.ID, i *model.Interface) (*Interface, error) {
	proc, err := child.Spawn(i.ExecStart, i.WorkingDirectory, true)
	if err != nil {
		return nil, err
	}
	return &Interface{id: id, proc: proc, format: i.Format}, nil
}

// Stop terminates the interface's child process.
func (s *Interface) Stop() { s.proc.Stop() }

func (s *Interface) send(msg proto.ServerMessage) error {
	var line string
	var err error
	if s.format == model.FormatJSON {
		line, err = msg.EncodeJSONVerb()
	} else {
		line = msg.Encode()
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(s.proc.Stdin(), line)
	return err
}

func (s *Interface) parseClientLine(line string) (proto.ClientCommand, error) {
	if s.format == model.FormatJSON {
		return proto.ParseClientCommandJSON(line)
	}
	return proto.ParseClientCommand(line)
}

// ScenarioLister enumerates scenario unit names in Library order.
type ScenarioLister interface {
	ScenarioNames() []string
}

// Run drives one Interface connection for its lifetime: a broadcast
// subscription forwarding Records as server verbs, and a client-line
// reader translating START/ABORT onto control and publishing client
// LOGs onto the broadcast bus. Run sends no PING and enforces no reply
// deadline; a client PONG is accepted and ignored. Run returns when ctx
// is canceled or the child process exits.
func Run(ctx context.Context, s *Interface, broadcast *bus.Broadcast, control *bus.Control, jigName string, lister ScenarioLister) {
	_ = s.send(proto.Hello(ProtocolVersion))
	_ = s.send(proto.Jig(jigName))
	_ = s.send(proto.Scenarios(lister.ScenarioNames()))

	sub := broadcast.Subscribe()
	defer sub.Unsubscribe()

	done := ctx.Done()
	for {
		select {
		case <-done:
			return
		case <-s.proc.Done():
			return
		case rec, ok := <-sub.C():
			if !ok {
				return
			}
			_ = s.send(recordToServerMessage(rec))
		case line, ok := <-s.proc.Lines():
			if !ok {
				return
			}
			s.handleClientLine(line, broadcast, control)
		}
	}
}

func (s *Interface) handleClientLine(line string, broadcast *bus.Broadcast, control *bus.Control) {
	cmd, err := s.parseClientLine(line)
	if err != nil {
		return
	}
	switch cmd.Verb {
	case "START":
		ref := unit.Ref{}
		if len(cmd.Args) > 0 {
			ref = unit.ParseRef(cmd.Args[0])
		}
		control.Send(bus.Command{Kind: bus.CommandStart, Scenario: ref, Source: s.id.Name})
	case "ABORT":
		control.Send(bus.Command{Kind: bus.CommandAbort, Source: s.id.Name})
	case "LOG":
		broadcast.Publish(bus.NewRecord(bus.MessageLog, s.id, strings.Join(cmd.Args, " ")))
	case "PONG", "HELLO", "JIG", "SCENARIOS", "SCENARIO", "TESTS", "SHUTDOWN":
		// Handshake/introspection/teardown verbs this minimal server
		// acknowledges by not erroring; deeper responses (TESTS plan
		// dump, SCENARIO selection) are driven by the broadcast stream
		// rather than a synchronous reply.
	}
}

func recordToServerMessage(rec bus.Record) proto.ServerMessage {
	switch rec.Type {
	case bus.MessageRunning:
		return proto.Running(rec.Unit)
	case bus.MessageDaemonized:
		return proto.Daemonized(rec.Unit)
	case bus.MessagePass:
		return proto.Pass(rec.Unit, rec.Message)
	case bus.MessageFail:
		return proto.Fail(rec.Unit, rec.Message)
	case bus.MessageSkip:
		return proto.Skip(rec.Unit, rec.Message)
	case bus.MessageFinish:
		code, scenario := splitFinish(rec)
		return proto.Finish(code, scenario)
	default:
		tsv := proto.EncodeTSV(rec)
		return proto.LogLine(strings.TrimSuffix(tsv, "\n"))
	}
}

// splitFinish recovers the FINISH code/scenario pair the scenario
// engine encodes into a MessageFinish record's Message as "<code> <reason>".
func splitFinish(rec bus.Record) (proto.FinishCode, string) {
	fields := strings.SplitN(rec.Message, " ", 2)
	code := proto.FinishTestFailure
	if len(fields) > 0 {
		switch fields[0] {
		case "200":
			code = proto.FinishSuccess
		case "400":
			code = proto.FinishPlanError
		case "412":
			code = proto.FinishPreflightError
		case "504":
			code = proto.FinishTimeout
		case "499":
			code = proto.FinishAborted
		}
	}
	return code, rec.Unit
}

// PingDeadline is exported so a caller wiring a periodic PING can know
// how long to wait for the matching PONG before treating the interface
// as unresponsive (spec §6).
func PingDeadline() time.Duration { return pongGrace }
