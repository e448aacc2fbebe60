// Package library implements the typed unit store (spec §3, §4.D): a
// mapping from (kind, name) to Loaded/Selected/Failed state, with
// insertion-order-preserving enumeration and reference resolution
// (direct match, then Provides-based substitution restricted to the
// active jig).
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package library

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"

	errors "github.com/agilira/go-errors"

	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/unit"
	"github.com/agilira/exclave/internal/unitfile"
	"github.com/agilira/exclave/internal/xerr"
)

const (
	ErrCodeUnsatisfied = xerr.CodeUnsatisfied
	ErrCodeLoad        = xerr.CodeLoad
)

// State is one of the three states a Library entry can be in (spec §3).
type State int

const (
	StateLoaded State = iota
	StateSelected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateSelected:
		return "selected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one Library slot.
type Entry struct {
	ID     unit.ID
	State  State
	Unit   model.Unit
	Reason string // populated when State == StateFailed
	Handle interface{}

	digest        [32]byte
	pending       model.Unit // queued redefinition while Selected (SPEC_FULL.md open-question 2)
	pendingDigest [32]byte
	hasPending    bool
}

// Library is the exclusive owner of unit state; callers interact with it
// through this narrow, lock-protected API rather than sharing its
// internals (spec §5: "owned by the loader task").
type Library struct {
	mu        sync.RWMutex
	byKind    map[unit.Kind]map[string]*Entry
	order     map[unit.Kind][]string
	activeJig string
}

// New creates an empty Library.
func New() *Library {
	l := &Library{
		byKind: make(map[unit.Kind]map[string]*Entry),
		order:  make(map[unit.Kind][]string),
	}
	for _, k := range unit.AllKinds() {
		l.byKind[k] = make(map[string]*Entry)
	}
	return l
}

// Upsert parses and decodes raw bytes as unit id, storing it as Loaded.
// If id already exists and is Selected, the new definition is queued as
// Pending rather than applied immediately (it takes effect on the next
// Select call) so that an in-flight scenario is never disturbed by a
// reload (spec §4.C).
func (l *Library) Upsert(id unit.ID, path string, raw []byte) error {
	f, err := unitfile.Parse(path, bytes.NewReader(raw))
	digest := sha256.Sum256(raw)
	if err != nil {
		l.markFailed(id, err.Error())
		return errors.Wrap(err, ErrCodeLoad, "parsing unit file").WithContext("unit", id.String())
	}
	u, err := model.Decode(f, id)
	if err != nil {
		l.markFailed(id, err.Error())
		return errors.Wrap(err, ErrCodeLoad, "decoding unit file").WithContext("unit", id.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.byKind[id.Kind][id.Name]
	if ok && existing.State == StateSelected {
		existing.pending = u
		existing.pendingDigest = digest
		existing.hasPending = true
		return nil
	}

	entry := &Entry{ID: id, State: StateLoaded, Unit: u, digest: digest}
	l.byKind[id.Kind][id.Name] = entry
	if !ok {
		l.order[id.Kind] = append(l.order[id.Kind], id.Name)
	}
	return nil
}

// markFailed records a Failed entry, preserving enumeration order for a
// unit that already existed.
func (l *Library) markFailed(id unit.ID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.byKind[id.Kind][id.Name]
	if ok {
		existing.State = StateFailed
		existing.Reason = reason
		return
	}
	l.byKind[id.Kind][id.Name] = &Entry{ID: id, State: StateFailed, Reason: reason}
	l.order[id.Kind] = append(l.order[id.Kind], id.Name)
}

// Remove deletes a unit from the Library (spec §3 lifecycle: "dies when
// its file is removed"). An in-flight handle referencing the removed
// unit is unaffected since supervisors hold their own copy of the
// decoded unit.
func (l *Library) Remove(id unit.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byKind[id.Kind][id.Name]; !ok {
		return
	}
	delete(l.byKind[id.Kind], id.Name)
	names := l.order[id.Kind]
	for i, n := range names {
		if n == id.Name {
			l.order[id.Kind] = append(names[:i], names[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the entry for id, or a zero Entry and false if
// absent.
func (l *Library) Get(id unit.ID) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byKind[id.Kind][id.Name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Enumerate returns entries of kind k in insertion order.
func (l *Library) Enumerate(k unit.Kind) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := l.order[k]
	out := make([]Entry, 0, len(names))
	for _, n := range names {
		out = append(out, *l.byKind[k][n])
	}
	return out
}

// ActiveJig returns the name of the currently Selected jig, or "" if
// none is selected.
func (l *Library) ActiveJig() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.activeJig
}

// Select transitions id from Loaded to Selected with the given handle.
// Re-selecting an already-Selected unit with an unchanged definition and
// no queued Pending redefinition is a no-op (spec §3: "Selection is
// idempotent"). Selecting a Jig deselects any other currently-Selected
// Jig first (invariant 1: "At most one jig is Selected at a time").
func (l *Library) Select(id unit.ID, handle interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.byKind[id.Kind][id.Name]
	if !ok {
		return errors.New(ErrCodeUnsatisfied, fmt.Sprintf("cannot select unknown unit %s", id)).WithContext("unit", id.String())
	}

	if entry.State == StateSelected && !entry.hasPending && entry.Handle != nil {
		return nil // idempotent no-op
	}

	if entry.hasPending {
		entry.Unit = entry.pending
		entry.digest = entry.pendingDigest
		entry.pending = nil
		entry.hasPending = false
	}

	if id.Kind == unit.KindJig {
		for name, other := range l.byKind[unit.KindJig] {
			if name != id.Name && other.State == StateSelected {
				other.State = StateLoaded
				other.Handle = nil
			}
		}
		l.activeJig = id.Name
	}

	entry.State = StateSelected
	entry.Handle = handle
	return nil
}

// Deselect returns id to the Loaded state.
func (l *Library) Deselect(id unit.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.byKind[id.Kind][id.Name]
	if !ok || entry.State != StateSelected {
		return
	}
	entry.State = StateLoaded
	entry.Handle = nil
	if id.Kind == unit.KindJig && l.activeJig == id.Name {
		l.activeJig = ""
	}
}

// UnsatisfiedReason explains why ResolveReference could not find a
// match for a reference token.
type UnsatisfiedReason struct {
	From    unit.ID
	Token   unit.Ref
	Detail  string
}

func (r *UnsatisfiedReason) Error() string {
	return fmt.Sprintf("%s: reference %q from %s is unsatisfied: %s", ErrCodeUnsatisfied, r.Token, r.From, r.Detail)
}

// ResolveReference resolves a reference token seen inside unit `from` to
// a concrete unit identifier (spec §4.D). Direct (kind,name) lookup is
// attempted first; a reference with no kind hint defaults to KindTest,
// the only kind referenced this way in this spec's dependency language
// (Requires/Suggests/Tests/Assume all name tests). Failing that, the
// token is tried as a Provides virtual name: the first (in Library
// declaration order) jig-compatible test providing it is returned.
func (l *Library) ResolveReference(from unit.ID, ref unit.Ref) (unit.ID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	kind := ref.Hint
	if kind == unit.KindUnknown {
		kind = unit.KindTest
	}

	if e, ok := l.byKind[kind][ref.Name]; ok && e.State != StateFailed && e.Unit != nil {
		if e.Unit.Env().JigCompatible(l.activeJig) {
			return e.ID, nil
		}
	}

	if kind == unit.KindTest {
		for _, name := range l.order[unit.KindTest] {
			e := l.byKind[unit.KindTest][name]
			if e.State == StateFailed {
				continue
			}
			test, ok := e.Unit.(*model.Test)
			if !ok {
				continue
			}
			for _, p := range test.Provides {
				if p == ref.Name && test.JigCompatible(l.activeJig) {
					return e.ID, nil
				}
			}
		}
	}

	return unit.ID{}, &UnsatisfiedReason{From: from, Token: ref, Detail: "no jig-compatible unit satisfies this reference"}
}
