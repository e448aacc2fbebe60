// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package unit

import "testing"

func TestKindForSuffix(t *testing.T) {
	cases := []struct {
		suffix string
		want   Kind
		ok     bool
	}{
		{"test", KindTest, true},
		{".test", KindTest, true},
		{"Jig", KindJig, true},
		{"scenario", KindScenario, true},
		{"updater", KindUpdater, true},
		{"bogus", KindUnknown, false},
	}
	for _, c := range cases {
		t.Run(c.suffix, func(t *testing.T) {
			got, ok := KindForSuffix(c.suffix)
			if ok != c.ok || got != c.want {
				t.Errorf("KindForSuffix(%q) = (%v, %v), want (%v, %v)", c.suffix, got, ok, c.want, c.ok)
			}
		})
	}
}

func TestAllKindsStableOrder(t *testing.T) {
	first := AllKinds()
	second := AllKinds()
	if len(first) != 8 {
		t.Fatalf("expected 8 kinds, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("AllKinds order not stable at index %d", i)
		}
	}
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		token string
		want  Ref
	}{
		{"swd", Ref{Hint: KindUnknown, Name: "swd"}},
		{"test:swd", Ref{Hint: KindTest, Name: "swd"}},
		{"jig:rpi", Ref{Hint: KindJig, Name: "rpi"}},
		{"notakind:x", Ref{Hint: KindUnknown, Name: "notakind:x"}},
	}
	for _, c := range cases {
		t.Run(c.token, func(t *testing.T) {
			got := ParseRef(c.token)
			if got != c.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", c.token, got, c.want)
			}
			if got.String() != c.token && c.token != "notakind:x" {
				t.Errorf("round trip: ParseRef(%q).String() = %q", c.token, got.String())
			}
		})
	}
}

func TestIDString(t *testing.T) {
	id := ID{Kind: KindTest, Name: "led"}
	if got, want := id.String(), "test:led"; got != want {
		t.Errorf("ID.String() = %q, want %q", got, want)
	}
}
