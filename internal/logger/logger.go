// Package logger implements the Logger half of component K (spec §4.K):
// a Logger unit is spawned like a simple test but without a PTY, its
// stdin fed every broadcast Record in its configured wire format. The
// built-in sqlite backend (SPEC_FULL.md DOMAIN STACK) instead subscribes
// to the broadcast bus directly, with no child process at all, the same
// way the TSV/JSON process framer does over a pipe.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package logger

import (
	"context"
	"io"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/child"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/proto"
)

// Sink receives one broadcast Record at a time, already framed in the
// logger's configured format.
type Sink interface {
	Write(rec bus.Record) error
}

// pipeSink frames records as TSV or JSON and writes them to w (normally
// a spawned logger process's stdin).
type pipeSink struct {
	w      io.Writer
	format model.Format
}

func (s *pipeSink) Write(rec bus.Record) error {
	switch s.format {
	case model.FormatJSON:
		line, err := proto.EncodeJSON(rec)
		if err != nil {
			return err
		}
		_, err = io.WriteString(s.w, line)
		return err
	default:
		_, err := io.WriteString(s.w, proto.EncodeTSV(rec))
		return err
	}
}

// ProcessLogger is a Logger unit realized as a spawned child process
// whose stdin receives the framed record stream.
type ProcessLogger struct {
	proc *child.Piped
	sink *pipeSink
}

// Spawn starts lg's ExecStart (spec §4.K: "its stdin connected to a
// pipe"). The child's stdout/stderr are not part of the logger
// contract: Piped line-captures stdout into its Lines channel, which
// ProcessLogger never reads, and leaves stderr unattached, so exec.Cmd
// discards it.
func Spawn(lg *model.Logger) (*ProcessLogger, error) {
	proc, err := child.Spawn(lg.ExecStart, lg.WorkingDirectory, true)
	if err != nil {
		return nil, err
	}
	return &ProcessLogger{proc: proc, sink: &pipeSink{w: proc.Stdin(), format: lg.Format}}, nil
}

// Write implements Sink.
func (p *ProcessLogger) Write(rec bus.Record) error { return p.sink.Write(rec) }

// Stop terminates the logger's child process (spec §4.H escalation
// discipline via internal/child).
func (p *ProcessLogger) Stop() { p.proc.Stop() }

// Run subscribes sink to broadcast and writes every record to it until
// ctx is canceled. Write errors are not fatal to the bus subscription —
// a logger that starts failing (e.g. its pipe closed) simply stops
// making progress on its own backlog, which the broadcast bus's
// back-pressure accounting already covers (spec §4.F).
func Run(ctx context.Context, broadcast *bus.Broadcast, sink Sink) {
	sub := broadcast.Subscribe()
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub.C():
			if !ok {
				return
			}
			_ = sink.Write(rec)
		}
	}
}
