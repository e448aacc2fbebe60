// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package proto

import (
	"strings"
	"testing"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/unit"
)

func TestTSVRoundTrip(t *testing.T) {
	rec := bus.Record{
		Type:      bus.MessageFail,
		Unit:      "led",
		UnitType:  unit.KindTest,
		UnixSecs:  1700000000,
		UnixNsecs: 123,
		Message:   "line one\nline two\twith tab and \\backslash",
	}
	line := EncodeTSV(rec)
	if !strings.HasSuffix(line, "\n") {
		t.Fatal("expected trailing newline")
	}
	got, err := DecodeTSV(strings.TrimSuffix(line, "\n"))
	if err != nil {
		t.Fatalf("DecodeTSV: %v", err)
	}
	if got != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestTSVEscaping(t *testing.T) {
	rec := bus.Record{Type: bus.MessageLog, Message: "a\tb\nc\\d"}
	line := EncodeTSV(rec)
	fields := strings.SplitN(strings.TrimSuffix(line, "\n"), "\t", 6)
	if fields[5] != `a\tb\nc\\d` {
		t.Errorf("escaped message = %q", fields[5])
	}
}

func TestJSONRoundTrip(t *testing.T) {
	rec := bus.Record{
		Type:      bus.MessagePass,
		Unit:      "button",
		UnitType:  unit.KindTest,
		UnixSecs:  42,
		UnixNsecs: 7,
		Message:   "",
	}
	line, err := EncodeJSON(rec)
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	got, err := DecodeJSON(strings.TrimSuffix(line, "\n"))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got != rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}
}

func TestParseClientCommand(t *testing.T) {
	cmd, err := ParseClientCommand("start smoke\n")
	if err != nil {
		t.Fatalf("ParseClientCommand: %v", err)
	}
	if cmd.Verb != "START" || len(cmd.Args) != 1 || cmd.Args[0] != "smoke" {
		t.Errorf("got %+v", cmd)
	}
	if _, err := ParseClientCommand("bogus"); err == nil {
		t.Error("expected error for unknown verb")
	}
}

func TestParseTriggerLine(t *testing.T) {
	ev, err := ParseTriggerLine("START\n")
	if err != nil {
		t.Fatalf("ParseTriggerLine: %v", err)
	}
	if ev.Verb != "START" {
		t.Errorf("verb = %q", ev.Verb)
	}
}

func TestFinishEncode(t *testing.T) {
	msg := Finish(FinishSuccess, "smoke")
	if msg.Encode() != "FINISH 200 smoke\n" {
		t.Errorf("got %q", msg.Encode())
	}
}
