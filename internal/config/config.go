// Package config parses Exclave's own process-level configuration (spec
// §6 invocation: "exclave -c <config_dir> [-q]"). It is deliberately
// small: the config *directory* named by -c is the one piece of external
// configuration this program has, per SPEC_FULL.md's ambient stack.
// Flag parsing is built on the teacher's own github.com/agilira/flash-flags,
// the same library the teacher used for its own CLI flag handling.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package config

import (
	flashflags "github.com/agilira/flash-flags"
	errors "github.com/agilira/go-errors"
)

const ErrCodeInvalidConfig = "EXCLAVE_INVALID_CONFIG"

// RuntimeConfig is Exclave's own runtime configuration, populated from
// CLI flags (SPEC_FULL.md §2: "a small internal/config RuntimeConfig
// struct").
type RuntimeConfig struct {
	ConfigDir string // -c: directory of unit files (required)
	Quiet     bool   // -q: suppress non-essential stdout chatter
	SocketDir string // directory under which interface units may create sockets, if any
}

// Parse parses args (normally os.Args[1:]) into a RuntimeConfig. Both the
// long and short spellings of -config/-quiet are registered as
// independent flags (spec §6: "exclave -c <config_dir> [-q]"), and the
// short form wins when both are given.
func Parse(args []string) (RuntimeConfig, error) {
	fs := flashflags.New("exclave")
	fs.SetDescription("Factory test orchestrator")
	fs.String("config", "", "path to the unit file config directory")
	fs.String("c", "", "shorthand for -config")
	fs.Bool("quiet", false, "suppress non-essential stdout output")
	fs.Bool("q", false, "shorthand for -quiet")
	fs.String("socket-dir", "/run/exclave", "directory for interface unit sockets")

	if err := fs.Parse(args); err != nil {
		return RuntimeConfig{}, errors.Wrap(err, ErrCodeInvalidConfig, "parsing command-line flags")
	}

	rc := RuntimeConfig{
		ConfigDir: fs.GetString("config"),
		Quiet:     fs.GetBool("quiet") || fs.GetBool("q"),
		SocketDir: fs.GetString("socket-dir"),
	}
	if c := fs.GetString("c"); c != "" {
		rc.ConfigDir = c
	}
	if rc.ConfigDir == "" {
		return RuntimeConfig{}, errors.New(ErrCodeInvalidConfig, "missing required -c/-config <config_dir>")
	}
	return rc, nil
}
