// Package loader bridges the config directory watcher (internal/watcher)
// to the Library (internal/library), turning filesystem UnitEvents into
// Upsert/Remove calls (spec §2 data flow: "C→B→D (units land in the
// Library)").
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package loader

import (
	"context"
	"os"

	"github.com/agilira/exclave/internal/library"
	"github.com/agilira/exclave/internal/watcher"
)

// Apply reads ev.Path and upserts or removes the unit in lib, matching
// its EventKind. A read failure (the file vanished between notification
// and read, a common race under rapid edits) degrades to a Remove
// rather than propagating the error, since the watcher's own next event
// for the same path will reconcile state either way.
func Apply(lib *library.Library, ev watcher.UnitEvent) error {
	if ev.Kind == watcher.EventRemoved {
		lib.Remove(ev.ID)
		return nil
	}
	raw, err := os.ReadFile(ev.Path)
	if err != nil {
		lib.Remove(ev.ID)
		return nil
	}
	return lib.Upsert(ev.ID, ev.Path, raw)
}

// LoadInitial performs the one-time startup walk (spec §4.C) and applies
// every discovered unit to lib before returning. Parse/decode failures
// for individual files are collected but do not abort the walk — a
// misconfigured test file must not prevent the rest of the Library from
// loading (spec §7: "render scenario non-runnable", not the whole run).
func LoadInitial(lib *library.Library, w *watcher.Watcher) []error {
	events, err := w.Scan()
	if err != nil {
		return []error{err}
	}
	var errs []error
	for _, ev := range events {
		if err := Apply(lib, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Run drains w's live event stream into lib until ctx is canceled. It is
// meant to run as its own goroutine for the lifetime of the process
// (spec §5: "one [task] per bus" plus the watcher's own task).
func Run(ctx context.Context, lib *library.Library, w *watcher.Watcher) {
	events := w.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = Apply(lib, ev)
		}
	}
}
