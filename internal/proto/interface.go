// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FinishCode is one of the FINISH codes defined in spec §6.
type FinishCode int

const (
	FinishSuccess        FinishCode = 200
	FinishPlanError      FinishCode = 400
	FinishPreflightError FinishCode = 412
	FinishTestFailure    FinishCode = 500
	FinishTimeout        FinishCode = 504
	FinishAborted        FinishCode = 499
)

// ServerMessage is one line an interface server writes to a client
// (spec §6: "Server → client verbs").
type ServerMessage struct {
	Verb string
	Args []string
}

// Encode renders m as a single protocol line, including the trailing
// newline.
func (m ServerMessage) Encode() string {
	if len(m.Args) == 0 {
		return m.Verb + "\n"
	}
	return m.Verb + " " + strings.Join(m.Args, " ") + "\n"
}

func Hello(version string) ServerMessage       { return ServerMessage{Verb: "HELLO", Args: []string{version}} }
func Jig(name string) ServerMessage             { return ServerMessage{Verb: "JIG", Args: []string{name}} }
func Scenarios(names []string) ServerMessage    { return ServerMessage{Verb: "SCENARIOS", Args: names} }
func ScenarioMsg(name string) ServerMessage     { return ServerMessage{Verb: "SCENARIO", Args: []string{name}} }
func Tests(scenario string, names []string) ServerMessage {
	return ServerMessage{Verb: "TESTS", Args: append([]string{scenario}, names...)}
}
func Describe(typ, field, item, value string) ServerMessage {
	return ServerMessage{Verb: "DESCRIBE", Args: []string{typ, field, item, value}}
}
func Start(scenario string) ServerMessage      { return ServerMessage{Verb: "START", Args: []string{scenario}} }
func Running(test string) ServerMessage        { return ServerMessage{Verb: "RUNNING", Args: []string{test}} }
func Daemonized(test string) ServerMessage     { return ServerMessage{Verb: "DAEMONIZED", Args: []string{test}} }
func Pass(test, msg string) ServerMessage      { return ServerMessage{Verb: "PASS", Args: []string{test, msg}} }
func Fail(test, reason string) ServerMessage   { return ServerMessage{Verb: "FAIL", Args: []string{test, reason}} }
func Skip(test, reason string) ServerMessage   { return ServerMessage{Verb: "SKIP", Args: []string{test, reason}} }
func Finish(code FinishCode, scenario string) ServerMessage {
	return ServerMessage{Verb: "FINISH", Args: []string{fmt.Sprintf("%d", code), scenario}}
}
func LogLine(tsvRecord string) ServerMessage { return ServerMessage{Verb: "LOG", Args: []string{tsvRecord}} }
func Ping(id string) ServerMessage           { return ServerMessage{Verb: "PING", Args: []string{id}} }
func Shutdown(reason string) ServerMessage   { return ServerMessage{Verb: "SHUTDOWN", Args: []string{reason}} }

// ClientCommand is one line a client sends to an interface server (spec
// §6: "Client → server verbs").
type ClientCommand struct {
	Verb string
	Args []string
}

// ParseClientCommand parses a single inbound protocol line. Verbs are
// case-insensitive (spec §6); the verb in the returned ClientCommand is
// normalized to uppercase.
func ParseClientCommand(line string) (ClientCommand, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ClientCommand{}, fmt.Errorf("empty protocol line")
	}
	verb := strings.ToUpper(fields[0])
	switch verb {
	case "HELLO", "JIG", "SCENARIOS", "SCENARIO", "TESTS", "START", "ABORT", "PONG", "LOG", "SHUTDOWN":
		return ClientCommand{Verb: verb, Args: fields[1:]}, nil
	default:
		return ClientCommand{}, fmt.Errorf("unknown client verb %q", fields[0])
	}
}

// TriggerEvent is one line a trigger process emits (spec §6: "Trigger
// protocol. Line-oriented, outbound from trigger process only").
type TriggerEvent struct {
	Verb string
	Args []string
}

// jsonVerbLine is the wire shape for an interface unit configured with
// Format=json: "wraps each verb's arguments as a JSON array instead of
// space-separated tokens, same verb set" (SPEC_FULL.md §4.K).
type jsonVerbLine struct {
	Verb string   `json:"verb"`
	Args []string `json:"args"`
}

// EncodeJSONVerb renders m in the JSON verb framing, including the
// trailing newline.
func (m ServerMessage) EncodeJSONVerb() (string, error) {
	out, err := json.Marshal(jsonVerbLine{Verb: m.Verb, Args: m.Args})
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

// ParseClientCommandJSON parses one JSON-framed client→server line.
func ParseClientCommandJSON(line string) (ClientCommand, error) {
	var jv jsonVerbLine
	if err := json.Unmarshal([]byte(line), &jv); err != nil {
		return ClientCommand{}, fmt.Errorf("malformed JSON verb line: %w", err)
	}
	verb := strings.ToUpper(jv.Verb)
	switch verb {
	case "HELLO", "JIG", "SCENARIOS", "SCENARIO", "TESTS", "START", "ABORT", "PONG", "LOG", "SHUTDOWN":
		return ClientCommand{Verb: verb, Args: jv.Args}, nil
	default:
		return ClientCommand{}, fmt.Errorf("unknown client verb %q", jv.Verb)
	}
}

// ParseTriggerLine parses one line of trigger output.
func ParseTriggerLine(line string) (TriggerEvent, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return TriggerEvent{}, fmt.Errorf("empty trigger line")
	}
	verb := strings.ToUpper(fields[0])
	switch verb {
	case "HELLO", "START", "STOP", "LOG":
		return TriggerEvent{Verb: verb, Args: fields[1:]}, nil
	default:
		return TriggerEvent{}, fmt.Errorf("unknown trigger verb %q", fields[0])
	}
}
