// Package unit defines the typed unit identifier and the per-kind
// filename suffix registry (spec §3, component A).
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package unit

import "strings"

// Kind is one of the eight closed unit kinds.
type Kind int

const (
	KindUnknown Kind = iota
	KindTest
	KindJig
	KindScenario
	KindTrigger
	KindLogger
	KindInterface
	KindCoupon
	KindUpdater
)

// suffixes maps each kind to its filename suffix (without the leading dot)
// and back. Order here also fixes String()'s output and is iterated by
// AllKinds for enumeration that must be stable across runs.
var suffixes = [...]struct {
	kind Kind
	ext  string
}{
	{KindTest, "test"},
	{KindJig, "jig"},
	{KindScenario, "scenario"},
	{KindTrigger, "trigger"},
	{KindLogger, "logger"},
	{KindInterface, "interface"},
	{KindCoupon, "coupon"},
	{KindUpdater, "updater"},
}

// AllKinds returns the eight kinds in their canonical, stable order.
func AllKinds() []Kind {
	out := make([]Kind, len(suffixes))
	for i, s := range suffixes {
		out[i] = s.kind
	}
	return out
}

// String renders the kind's canonical lowercase name ("test", "jig", ...).
func (k Kind) String() string {
	for _, s := range suffixes {
		if s.kind == k {
			return s.ext
		}
	}
	return "unknown"
}

// KindForSuffix resolves a filename suffix (as produced by
// filepath.Ext with the leading dot stripped) to a Kind. The second
// return value is false for any suffix that isn't one of the eight
// recognized kinds.
func KindForSuffix(suffix string) (Kind, bool) {
	suffix = strings.ToLower(strings.TrimPrefix(suffix, "."))
	for _, s := range suffixes {
		if s.ext == suffix {
			return s.kind, true
		}
	}
	return KindUnknown, false
}

// KindForName parses a kind name as it would appear in a kind-qualified
// reference token (e.g. "test:swd").
func KindForName(name string) (Kind, bool) {
	return KindForSuffix(name)
}
