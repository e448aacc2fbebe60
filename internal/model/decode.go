// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	errors "github.com/agilira/go-errors"

	"github.com/agilira/exclave/internal/unit"
	"github.com/agilira/exclave/internal/unitfile"
	"github.com/agilira/exclave/internal/xerr"
)

const ErrCodeDecode = xerr.CodeDecode

// sectionNameFor returns the kind-specific section header a unit file
// uses for that kind's fields, systemd-style (e.g. "[Test]", "[Jig]").
func sectionNameFor(k unit.Kind) string {
	s := k.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// Decode builds the typed Unit for id.Kind from the parsed unit file f.
// Unrecognized keys in the [Unit] section and in the kind's own section
// are appended to f.Warnings rather than rejected (spec §4.B: "future
// compatibility"). Other sections are ignored without a warning.
func Decode(f *unitfile.File, id unit.ID) (Unit, error) {
	env := Envelope{ID: id, Source: f.Path}
	if common, ok := f.Section("Unit"); ok {
		env.Description, _ = common.Get("Description")
		if jigs, ok := common.Get("Jigs"); ok {
			env.Jigs = unitfile.SplitList(jigs)
		}
		checkUnknown(f, common, []string{"Description", "Jigs"})
	}

	sectName := sectionNameFor(id.Kind)
	sect, hasSect := f.Section(sectName)

	switch id.Kind {
	case unit.KindTest:
		t := &Test{Envelope: env, WorkingDirectory: ""}
		if hasSect {
			t.ExecStart, _ = sect.Get("ExecStart")
			t.ExecStop, _ = sect.Get("ExecStop")
			t.ExecStopSuccess, _ = sect.Get("ExecStopSuccess")
			t.ExecStopFail, _ = sect.Get("ExecStopFail")
			t.WorkingDirectory, _ = sect.Get("WorkingDirectory")
			t.DaemonReadyText, _ = sect.Get("DaemonReadyText")
			if re, ok := sect.Get("DaemonReadyRegex"); ok {
				b, err := unitfile.ParseBool(re)
				if err != nil {
					return nil, errors.Wrap(err, ErrCodeDecode, "DaemonReadyRegex").WithContext("unit", id.String())
				}
				t.DaemonReadyRegex = b
			}
			if req, ok := sect.Get("Requires"); ok {
				t.Requires = parseRefs(req)
			}
			if sug, ok := sect.Get("Suggests"); ok {
				t.Suggests = parseRefs(sug)
			}
			if prov, ok := sect.Get("Provides"); ok {
				t.Provides = unitfile.SplitList(prov)
			}
			if to, ok := sect.Get("Timeout"); ok {
				d, err := parseSeconds(to)
				if err != nil {
					return nil, errors.Wrap(err, ErrCodeDecode, "Timeout").WithContext("unit", id.String())
				}
				t.Timeout = d
			}
			if typ, ok := sect.Get("Type"); ok {
				switch strings.ToLower(typ) {
				case "simple", "":
					t.Type = TypeSimple
				case "daemon":
					t.Type = TypeDaemon
				default:
					return nil, errors.New(ErrCodeDecode, fmt.Sprintf("unknown Type %q", typ)).WithContext("unit", id.String())
				}
			}
			checkUnknown(f, sect, []string{
				"ExecStart", "ExecStop", "ExecStopSuccess", "ExecStopFail",
				"WorkingDirectory", "DaemonReadyText", "DaemonReadyRegex",
				"Requires", "Suggests", "Provides", "Timeout", "Type",
			})
		}
		return t, nil

	case unit.KindJig:
		j := &Jig{Envelope: env}
		if hasSect {
			j.TestFile, _ = sect.Get("TestFile")
			j.TestProgram, _ = sect.Get("TestProgram")
			j.WorkingDirectory, _ = sect.Get("WorkingDirectory")
			j.DefaultWorkingDirectory, _ = sect.Get("DefaultWorkingDirectory")
			j.DefaultScenario, _ = sect.Get("DefaultScenario")
			checkUnknown(f, sect, []string{"TestFile", "TestProgram", "WorkingDirectory", "DefaultWorkingDirectory", "DefaultScenario"})
		}
		return j, nil

	case unit.KindScenario:
		s := &Scenario{Envelope: env}
		if hasSect {
			if tests, ok := sect.Get("Tests"); ok {
				s.Tests = parseRefs(tests)
			}
			if assume, ok := sect.Get("Assume"); ok {
				s.Assume = parseRefs(assume)
			}
			s.ExecStart, _ = sect.Get("ExecStart")
			s.ExecStopSuccess, _ = sect.Get("ExecStopSuccess")
			s.ExecStopFail, _ = sect.Get("ExecStopFail")
			s.WorkingDirectory, _ = sect.Get("WorkingDirectory")
			if to, ok := sect.Get("Timeout"); ok {
				d, err := parseSeconds(to)
				if err != nil {
					return nil, errors.Wrap(err, ErrCodeDecode, "Timeout").WithContext("unit", id.String())
				}
				s.Timeout = d
			}
			checkUnknown(f, sect, []string{"Tests", "Assume", "ExecStart", "ExecStopSuccess", "ExecStopFail", "WorkingDirectory", "Timeout"})
		}
		return s, nil

	case unit.KindTrigger:
		tr := &Trigger{Envelope: env}
		if hasSect {
			tr.ExecStart, _ = sect.Get("ExecStart")
			tr.WorkingDirectory, _ = sect.Get("WorkingDirectory")
			checkUnknown(f, sect, []string{"ExecStart", "WorkingDirectory"})
		}
		return tr, nil

	case unit.KindLogger:
		l := &Logger{Envelope: env}
		if hasSect {
			l.ExecStart, _ = sect.Get("ExecStart")
			l.WorkingDirectory, _ = sect.Get("WorkingDirectory")
			fv, _ := sect.Get("Format")
			fmtVal, err := parseLoggerFormat(fv)
			if err != nil {
				return nil, errors.Wrap(err, ErrCodeDecode, "Format").WithContext("unit", id.String())
			}
			l.Format = fmtVal
			l.Backend, _ = sect.Get("Backend")
			l.DatabasePath, _ = sect.Get("DatabasePath")
			if l.Backend == "" {
				l.Backend = "process"
			}
			if l.Backend != "process" && l.Backend != "sqlite" {
				return nil, errors.New(ErrCodeDecode, fmt.Sprintf("unknown logger Backend %q", l.Backend)).WithContext("unit", id.String())
			}
			checkUnknown(f, sect, []string{"ExecStart", "WorkingDirectory", "Format", "Backend", "DatabasePath"})
		}
		return l, nil

	case unit.KindInterface:
		i := &Interface{Envelope: env}
		if hasSect {
			i.ExecStart, _ = sect.Get("ExecStart")
			i.WorkingDirectory, _ = sect.Get("WorkingDirectory")
			fv, _ := sect.Get("Format")
			fmtVal, err := parseInterfaceFormat(fv)
			if err != nil {
				return nil, errors.Wrap(err, ErrCodeDecode, "Format").WithContext("unit", id.String())
			}
			i.Format = fmtVal
			checkUnknown(f, sect, []string{"ExecStart", "WorkingDirectory", "Format"})
		}
		return i, nil

	case unit.KindCoupon:
		c := &Coupon{Envelope: env}
		if hasSect {
			if sc, ok := sect.Get("Scenarios"); ok {
				c.Scenarios = unitfile.SplitList(sc)
			}
			c.ExecPreflight, _ = sect.Get("ExecPreflight")
			c.ExecStopSuccess, _ = sect.Get("ExecStopSuccess")
			c.ExecStopFail, _ = sect.Get("ExecStopFail")
			checkUnknown(f, sect, []string{"Scenarios", "ExecPreflight", "ExecStopSuccess", "ExecStopFail"})
		}
		return c, nil

	case unit.KindUpdater:
		u := &Updater{Envelope: env}
		if hasSect {
			u.ExecStart, _ = sect.Get("ExecStart")
			checkUnknown(f, sect, []string{"ExecStart"})
		}
		return u, nil

	default:
		return nil, errors.New(ErrCodeDecode, fmt.Sprintf("unsupported kind %v", id.Kind))
	}
}

func parseRefs(v string) []unit.Ref {
	toks := unitfile.SplitList(v)
	out := make([]unit.Ref, 0, len(toks))
	for _, t := range toks {
		out = append(out, unit.ParseRef(t))
	}
	return out
}

func parseSeconds(v string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds value %q: %w", v, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parseLoggerFormat(v string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "tsv":
		return FormatTSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unknown logger Format %q", v)
	}
}

func parseInterfaceFormat(v string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unknown interface Format %q", v)
	}
}

// checkUnknown appends a Warning for every key in sect not present in
// known.
func checkUnknown(f *unitfile.File, sect *unitfile.Section, known []string) {
	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}
	for _, k := range sect.Keys() {
		if _, ok := knownSet[k]; !ok {
			f.Warnings = append(f.Warnings, unitfile.Warning{
				Reason: fmt.Sprintf("unknown key %q in section [%s]", k, sect.Name),
			})
		}
	}
}
