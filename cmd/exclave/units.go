// Offline Library inspection, adapted from the teacher's own
// cmd/cli/manager.go command-tree shape (orpheus.NewCommand +
// Subcommand + fluent flag registration) but retargeted at Exclave's
// unit model instead of Argus's multi-format config files
// (SPEC_FULL.md DOMAIN STACK: "units list", "units dump").
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agilira/orpheus/pkg/orpheus"
	yaml "go.yaml.in/yaml/v3"

	"github.com/agilira/exclave/internal/library"
	"github.com/agilira/exclave/internal/loader"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/unit"
	"github.com/agilira/exclave/internal/watcher"
)

// unitsManager wraps the Orpheus app exposing the "units" subcommand
// tree. It never starts a watch loop or a scenario run: every command
// performs one startup-style scan (internal/loader.LoadInitial) and
// exits, matching the spec's distinction between the live process and
// offline inspection.
type unitsManager struct {
	app *orpheus.App
}

func newUnitsManager() *unitsManager {
	app := orpheus.New("exclave-units").
		SetDescription("Offline inspection of an Exclave config directory").
		SetVersion("1.0.0")

	m := &unitsManager{app: app}

	listCmd := orpheus.NewCommand("list", "List every loaded unit, grouped by kind").
		SetHandler(m.handleList)
	listCmd.AddFlag("config", "c", "", "path to the unit file config directory (required)")
	app.AddCommand(listCmd)

	dumpCmd := orpheus.NewCommand("dump", "Dump the loaded Library as YAML or JSON").
		SetHandler(m.handleDump)
	dumpCmd.AddFlag("config", "c", "", "path to the unit file config directory (required)")
	dumpCmd.AddFlag("format", "f", "yaml", "output format (yaml|json)")
	app.AddCommand(dumpCmd)

	return m
}

func runUnits(args []string) error {
	return newUnitsManager().app.Run(args)
}

// loadOffline performs one startup walk of dir into a fresh Library,
// without starting a live watch loop (reuses internal/loader exactly as
// internal/orchestrator.Run does for its own initial load).
func loadOffline(dir string) (*library.Library, []error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing required -c/-config <config_dir>")
	}
	w, err := watcher.New(dir)
	if err != nil {
		return nil, nil, err
	}
	lib := library.New()
	errs := loader.LoadInitial(lib, w)
	return lib, errs, nil
}

func (m *unitsManager) handleList(ctx *orpheus.Context) error {
	dir := ctx.GetFlagString("config")
	lib, errs, err := loadOffline(dir)
	if err != nil {
		return err
	}
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, "warning:", e)
	}
	for _, k := range unit.AllKinds() {
		entries := lib.Enumerate(k)
		if len(entries) == 0 {
			continue
		}
		fmt.Printf("%s:\n", k)
		for _, e := range entries {
			fmt.Printf("  %-24s %s\n", e.ID.Name, e.State)
		}
	}
	return nil
}

// unitSnapshot is the YAML/JSON-marshalable shape of one Library entry,
// independent of the concrete model.Unit variant underneath it.
type unitSnapshot struct {
	Kind        string   `yaml:"kind" json:"kind"`
	Name        string   `yaml:"name" json:"name"`
	State       string   `yaml:"state" json:"state"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Jigs        []string `yaml:"jigs,omitempty" json:"jigs,omitempty"`
	Reason      string   `yaml:"reason,omitempty" json:"reason,omitempty"`
	Requires    []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	Suggests    []string `yaml:"suggests,omitempty" json:"suggests,omitempty"`
	Provides    []string `yaml:"provides,omitempty" json:"provides,omitempty"`
}

func snapshot(e library.Entry) unitSnapshot {
	s := unitSnapshot{
		Kind:   e.ID.Kind.String(),
		Name:   e.ID.Name,
		State:  e.State.String(),
		Reason: e.Reason,
	}
	if e.Unit == nil {
		return s
	}
	env := e.Unit.Env()
	s.Description = env.Description
	s.Jigs = env.Jigs
	if t, ok := e.Unit.(*model.Test); ok {
		for _, r := range t.Requires {
			s.Requires = append(s.Requires, r.String())
		}
		for _, r := range t.Suggests {
			s.Suggests = append(s.Suggests, r.String())
		}
		s.Provides = append(s.Provides, t.Provides...)
	}
	return s
}

func (m *unitsManager) handleDump(ctx *orpheus.Context) error {
	dir := ctx.GetFlagString("config")
	format := strings.ToLower(ctx.GetFlagString("format"))
	lib, errs, err := loadOffline(dir)
	if err != nil {
		return err
	}
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, "warning:", e)
	}

	var snapshots []unitSnapshot
	for _, k := range unit.AllKinds() {
		for _, e := range lib.Enumerate(k) {
			snapshots = append(snapshots, snapshot(e))
		}
	}
	sort.SliceStable(snapshots, func(i, j int) bool { return snapshots[i].Kind < snapshots[j].Kind })

	switch format {
	case "json":
		return dumpJSON(snapshots)
	case "yaml", "":
		out, err := yaml.Marshal(snapshots)
		if err != nil {
			return err
		}
		_, err = fmt.Print(string(out))
		return err
	default:
		return fmt.Errorf("unsupported dump format %q (want yaml or json)", format)
	}
}

func dumpJSON(snapshots []unitSnapshot) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshots)
}
