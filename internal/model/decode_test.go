// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package model

import (
	"strings"
	"testing"
	"time"

	"github.com/agilira/exclave/internal/unit"
	"github.com/agilira/exclave/internal/unitfile"
)

func mustParse(t *testing.T, src string) *unitfile.File {
	t.Helper()
	f, err := unitfile.Parse("t.unit", strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func TestDecodeTest(t *testing.T) {
	src := `[Unit]
Description=Blink the LED
Jigs=rpi, rpi2

[Test]
Requires=swd
Suggests=sound
Provides=led_check
Timeout=30
Type=daemon
DaemonReadyText=Listening on
ExecStart=/bin/led --blink
`
	f := mustParse(t, src)
	id := unit.ID{Kind: unit.KindTest, Name: "led"}
	u, err := Decode(f, id)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	test, ok := u.(*Test)
	if !ok {
		t.Fatalf("expected *Test, got %T", u)
	}
	if test.Description != "Blink the LED" {
		t.Errorf("Description = %q", test.Description)
	}
	if len(test.Jigs) != 2 || test.Jigs[0] != "rpi" {
		t.Errorf("Jigs = %v", test.Jigs)
	}
	if test.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", test.Timeout)
	}
	if test.Type != TypeDaemon {
		t.Errorf("Type = %v, want daemon", test.Type)
	}
	if len(test.Requires) != 1 || test.Requires[0].Name != "swd" {
		t.Errorf("Requires = %v", test.Requires)
	}
	if len(test.Provides) != 1 || test.Provides[0] != "led_check" {
		t.Errorf("Provides = %v", test.Provides)
	}
}

func TestDecodeUnknownKeyWarns(t *testing.T) {
	src := "[Test]\nExecStart=/bin/true\nBogusKey=1\n"
	f := mustParse(t, src)
	_, err := Decode(f, unit.ID{Kind: unit.KindTest, Name: "x"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(f.Warnings) != 1 {
		t.Fatalf("expected 1 warning for unknown key, got %d", len(f.Warnings))
	}
}

func TestDecodeInvalidType(t *testing.T) {
	src := "[Test]\nType=bogus\n"
	f := mustParse(t, src)
	_, err := Decode(f, unit.ID{Kind: unit.KindTest, Name: "x"})
	if err == nil {
		t.Fatal("expected error for invalid Type")
	}
}

func TestJigCompatible(t *testing.T) {
	cases := []struct {
		name      string
		jigs      []string
		active    string
		wantMatch bool
	}{
		{"no_whitelist_matches_any", nil, "rpi", true},
		{"no_whitelist_matches_no_jig", nil, "", true},
		{"whitelist_matches", []string{"rpi"}, "rpi", true},
		{"whitelist_rejects_other", []string{"rpi"}, "bbb", false},
		{"whitelist_rejects_no_jig", []string{"rpi"}, "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := &Envelope{Jigs: c.jigs}
			if got := e.JigCompatible(c.active); got != c.wantMatch {
				t.Errorf("JigCompatible(%v, %q) = %v, want %v", c.jigs, c.active, got, c.wantMatch)
			}
		})
	}
}

func TestDecodeScenario(t *testing.T) {
	src := "[Scenario]\nTests=led, button\nAssume=preflashed\nTimeout=120\n"
	f := mustParse(t, src)
	u, err := Decode(f, unit.ID{Kind: unit.KindScenario, Name: "smoke"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s := u.(*Scenario)
	if len(s.Tests) != 2 || s.Tests[1].Name != "button" {
		t.Errorf("Tests = %v", s.Tests)
	}
	if len(s.Assume) != 1 || s.Assume[0].Name != "preflashed" {
		t.Errorf("Assume = %v", s.Assume)
	}
	if s.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v", s.Timeout)
	}
}
