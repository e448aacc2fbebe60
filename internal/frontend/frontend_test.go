// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package frontend

import (
	"context"
	"testing"
	"time"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/unit"
)

type fakeLister struct{ names []string }

func (f fakeLister) ScenarioNames() []string { return f.names }

func TestInterfaceHandshakeAndStart(t *testing.T) {
	iface := &model.Interface{ExecStart: "cat", Format: model.FormatText}
	id := unit.ID{Kind: unit.KindInterface, Name: "cli"}
	s, err := SpawnInterface(id, iface)
	if err != nil {
		t.Fatalf("SpawnInterface: %v", err)
	}
	defer s.Stop()

	broadcast := bus.NewBroadcast(16)
	control := bus.NewControl(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, s, broadcast, control, "jig_rpi", fakeLister{names: []string{"smoke"}})

	// cat echoes our own HELLO/JIG/SCENARIOS verbs back as "client"
	// lines; none of them are START/ABORT/LOG so nothing should reach
	// the control bus from the handshake alone.
	select {
	case cmd := <-control.Receive():
		t.Fatalf("unexpected control command from handshake echo: %+v", cmd)
	case <-time.After(200 * time.Millisecond):
	}

	if _, err := s.proc.Stdin().Write([]byte("START smoke\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cmd := <-control.Receive():
		if cmd.Kind != bus.CommandStart || cmd.Scenario.Name != "smoke" {
			t.Fatalf("unexpected command: %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for START command")
	}
}

func TestTriggerStartAndStop(t *testing.T) {
	tr := &model.Trigger{ExecStart: "printf 'START smoke\\nSTOP\\n'"}
	id := unit.ID{Kind: unit.KindTrigger, Name: "button"}
	tg, err := SpawnTrigger(id, tr)
	if err != nil {
		t.Fatalf("SpawnTrigger: %v", err)
	}
	defer tg.Stop()

	broadcast := bus.NewBroadcast(16)
	control := bus.NewControl(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunTrigger(ctx, tg, broadcast, control)

	var got []bus.CommandKind
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case cmd := <-control.Receive():
			got = append(got, cmd.Kind)
		case <-deadline:
			t.Fatalf("timed out, got %v so far", got)
		}
	}
	if got[0] != bus.CommandStart || got[1] != bus.CommandAbort {
		t.Fatalf("unexpected command sequence: %v", got)
	}
}
