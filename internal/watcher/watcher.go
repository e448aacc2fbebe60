// Package watcher implements the config directory watcher (spec §4.C):
// a one-time walk of the config directory followed by a subscription to
// filesystem change notifications, debounced to one event per path
// within a 100ms window. Its Start/Stop/IsRunning lifecycle shape is
// adapted from the teacher's Watcher (argus.go), generalized from
// polling+os.Stat to github.com/fsnotify/fsnotify's native notifications
// (SPEC_FULL.md DOMAIN STACK).
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agilira/exclave/internal/unit"
)

// EventKind distinguishes the three unit lifecycle transitions spec §4.C
// names: "UnitEvent ∈ {Added, Modified, Removed}".
type EventKind int

const (
	EventAdded EventKind = iota
	EventModified
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// UnitEvent reports one debounced change to a unit file.
type UnitEvent struct {
	ID   unit.ID
	Path string
	Kind EventKind
}

// debounceWindow is spec §4.C's "Debounces bursts (<100 ms window) to
// one event per path."
const debounceWindow = 100 * time.Millisecond

// Watcher walks a config directory once at startup and then streams
// debounced UnitEvents for every subsequent create/write/remove/rename
// under it. Only paths whose extension resolves to a known unit.Kind
// are reported; everything else in the directory is ignored.
type Watcher struct {
	dir string
	fsw *fsnotify.Watcher

	events chan UnitEvent
	done   chan struct{}

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]EventKind
	running bool
}

// New creates a Watcher rooted at dir without starting it.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	return &Watcher{
		dir:     dir,
		fsw:     fsw,
		events:  make(chan UnitEvent, 256),
		done:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]EventKind),
	}, nil
}

// Events returns the channel debounced UnitEvents arrive on.
func (w *Watcher) Events() <-chan UnitEvent { return w.events }

// Scan walks the config directory once, returning one synthetic
// EventAdded UnitEvent per recognized unit file in directory order (spec
// §4.C: "Walks the config directory once at startup"). Callers use this
// to populate the Library before Start begins streaming live changes.
func (w *Watcher) Scan() ([]UnitEvent, error) {
	var out []UnitEvent
	err := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if id, ok := idForPath(path); ok {
			out = append(out, UnitEvent{ID: id, Path: path, Kind: EventAdded})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Start begins watching the config directory for changes. It must be
// called after Scan. Stop releases the underlying fsnotify handle.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching config directory %s: %w", w.dir, err)
	}
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	go w.loop()
	return nil
}

// Stop halts the watch loop and releases the fsnotify handle. Calling it
// again after that is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	close(w.done)
	return w.fsw.Close()
}

// IsRunning reports whether Start has been called without a matching Stop.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// A transient fsnotify error is not fatal to the watcher
			// (spec §7: "a component recovers what it owns"); the next
			// event still arrives normally.
		}
	}
}

// handleRaw classifies a raw fsnotify.Event into an EventKind and
// schedules its debounced delivery (spec §4.C: "On Modified of a
// currently-Selected unit, the watcher does not interrupt an active
// scenario" — that forbearance lives in library.Library.Upsert, not
// here; this layer only debounces and classifies).
func (w *Watcher) handleRaw(ev fsnotify.Event) {
	if _, ok := idForPath(ev.Name); !ok {
		return
	}

	var kind EventKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = EventAdded
	case ev.Has(fsnotify.Write):
		kind = EventModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = EventRemoved
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	// A later raw event for the same path within the window replaces
	// the pending kind rather than stacking a second delivery (spec:
	// "one event per path").
	w.pending[ev.Name] = kind
	if t, exists := w.timers[ev.Name]; exists {
		t.Stop()
	}
	path := ev.Name
	w.timers[path] = time.AfterFunc(debounceWindow, func() { w.flush(path) })
}

func (w *Watcher) flush(path string) {
	w.mu.Lock()
	kind, ok := w.pending[path]
	delete(w.pending, path)
	delete(w.timers, path)
	running := w.running
	w.mu.Unlock()
	if !ok || !running {
		return
	}
	id, ok := idForPath(path)
	if !ok {
		return
	}
	select {
	case w.events <- UnitEvent{ID: id, Path: path, Kind: kind}:
	case <-w.done:
	}
}

// idForPath derives a unit.ID from a file path via its extension, the
// filename-suffix dispatch of spec component A.
func idForPath(path string) (unit.ID, bool) {
	ext := filepath.Ext(path)
	kind, ok := unit.KindForSuffix(ext)
	if !ok {
		return unit.ID{}, false
	}
	base := filepath.Base(path)
	name := base[:len(base)-len(ext)]
	if name == "" {
		return unit.ID{}, false
	}
	return unit.ID{Kind: kind, Name: name}, true
}
