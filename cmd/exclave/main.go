// Command exclave is the factory test orchestrator's process entry
// point (spec §6: "exclave -c <config_dir> [-q]"). It owns process-level
// concerns only — flag parsing, signal handling, wiring the
// orchestrator together and echoing its record stream to stdout — and
// delegates every component responsibility to internal/orchestrator
// (SPEC_FULL.md §1: "cmd/exclave is the process entry point... owns
// process-level concerns only").
//
// A leading "units" argument instead runs the offline inspection
// subcommand tree (units.go) built on the teacher's own Orpheus CLI
// framework, for operators who want to list or dump a config
// directory's Library without starting a live run.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/config"
	"github.com/agilira/exclave/internal/orchestrator"
	"github.com/agilira/exclave/internal/proto"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "units" {
		if err := runUnits(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "exclave units:", err)
			os.Exit(1)
		}
		return
	}
	os.Exit(run(args))
}

// run parses args as the top-level "exclave -c <dir> [-q]" invocation,
// starts the orchestrator, and blocks until a shutdown signal arrives.
// It returns a process exit code: 0 on clean shutdown, nonzero on
// unrecoverable init failure (spec §6).
func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "exclave:", err)
		return 1
	}

	o, err := orchestrator.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "exclave: startup:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	if !cfg.Quiet {
		go echoStdout(ctx, o.Broadcast(), done)
	} else {
		close(done)
	}

	if err := o.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "exclave:", err)
		return 1
	}
	<-done
	return 0
}

// echoStdout subscribes to the broadcast bus and writes every record to
// stdout in the TSV framing (spec §6), the same wire format a spawned
// Logger unit would receive over its stdin pipe. It is the one piece of
// "interactive frontend" this binary provides on its own, gated by -q.
func echoStdout(ctx context.Context, b *bus.Broadcast, done chan<- struct{}) {
	defer close(done)
	sub := b.Subscribe()
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub.C():
			if !ok {
				return
			}
			os.Stdout.WriteString(proto.EncodeTSV(rec))
		}
	}
}
