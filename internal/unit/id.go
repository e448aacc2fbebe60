// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package unit

import "strings"

// ID is a unit identifier: the pair (kind, name) that addresses exactly
// one unit in the Library (spec §3). name is the file stem.
type ID struct {
	Kind Kind
	Name string
}

// String renders the identifier as "kind:name", the canonical form used
// in log records and error context.
func (id ID) String() string {
	return id.Kind.String() + ":" + id.Name
}

// Ref is a reference to a unit as it appears inside another unit's
// Requires/Suggests/Assume/Tests lists: a token that may or may not carry
// an explicit kind hint. Per design note §9 ("deferred typing"), the
// hint is resolved against the Library at reference-resolution time, not
// at parse time, so forward references during loading are legal.
type Ref struct {
	Hint Kind // KindUnknown if the token carried no "kind:" prefix
	Name string
}

// ParseRef splits a reference token on its optional "kind:" prefix.
// "swd" -> {KindUnknown, "swd"}; "test:swd" -> {KindTest, "swd"}.
func ParseRef(token string) Ref {
	if i := strings.IndexByte(token, ':'); i >= 0 {
		if k, ok := KindForName(token[:i]); ok {
			return Ref{Hint: k, Name: token[i+1:]}
		}
	}
	return Ref{Hint: KindUnknown, Name: token}
}

// String renders the reference back to its token form.
func (r Ref) String() string {
	if r.Hint == KindUnknown {
		return r.Name
	}
	return r.Hint.String() + ":" + r.Name
}
