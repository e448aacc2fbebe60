// Package unitfile implements the ini-shaped unit file grammar (spec §4.B):
// case-sensitive bracketed section headers, Key=Value pairs, "#"/";" line
// comments, trailing-backslash line continuation, comma-or-whitespace
// lists, and case-insensitive booleans.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package unitfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	errors "github.com/agilira/go-errors"

	"github.com/agilira/exclave/internal/xerr"
)

// ErrCodeParse is the go-errors code attached to read failures from Parse
// and to ParseBool errors; ParseError itself is a plain struct with no
// code.
const ErrCodeParse = xerr.CodeParse

// ParseError reports a malformed unit file with file/line context,
// matching spec §4.B's ParseError{file, line, reason}.
type ParseError struct {
	File   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
}

// Warning is a non-fatal condition encountered while parsing: a duplicate
// key (last wins) or an unrecognized key preserved for forward
// compatibility.
type Warning struct {
	Line   int
	Reason string
}

// Section is one [Header] block: an ordered list of keys (insertion
// order preserved, duplicates already resolved last-wins) and one raw
// string value per key; list values are split later by SplitList.
type Section struct {
	Name string
	keys []string
	vals map[string]string
}

// Get returns the raw string value of a key, or "" if absent.
func (s *Section) Get(key string) (string, bool) {
	v, ok := s.vals[key]
	return v, ok
}

// Keys returns the keys of this section in first-seen order.
func (s *Section) Keys() []string { return append([]string(nil), s.keys...) }

// File is the deserialized content of one unit file: its sections in
// declaration order, plus warnings: duplicate keys found while parsing,
// and unknown keys that model.Decode appends later. Unknown keys keep
// their values in their Section.
type File struct {
	Path     string
	Sections []*Section
	Warnings []Warning
}

// Section looks up a section by name, or returns (nil, false).
func (f *File) Section(name string) (*Section, bool) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Parse reads and parses one unit file from r. path is used only for
// ParseError/diagnostics context.
func Parse(path string, r io.Reader) (*File, error) {
	f := &File{Path: path}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur *Section
	lineNum := 0
	var pending strings.Builder
	pendingStartLine := 0

	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		line := pending.String()
		pending.Reset()
		return processLine(f, &cur, line, pendingStartLine)
	}

	for sc.Scan() {
		lineNum++
		raw := sc.Text()

		stripped := stripComment(raw)
		trimmedRight := strings.TrimRight(stripped, " \t")

		if strings.HasSuffix(trimmedRight, "\\") {
			if pending.Len() == 0 {
				pendingStartLine = lineNum
			}
			pending.WriteString(strings.TrimSuffix(trimmedRight, "\\"))
			continue
		}
		if pending.Len() > 0 {
			pending.WriteString(trimmedRight)
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if err := processLine(f, &cur, trimmedRight, lineNum); err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, ErrCodeParse, "reading unit file").WithContext("path", path)
	}
	return f, nil
}

// stripComment removes a "#" or ";" line comment. Comment markers are
// only recognized at the start of a (trimmed) line or after whitespace,
// so a value may contain them mid-token but not after whitespace; the
// unit file grammar has no in-value quoting, matching the teacher's INI
// dialect.
func stripComment(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
		return ""
	}
	// A comment mid-line must be preceded by whitespace to avoid cutting
	// values such as paths containing '#'.
	for i, r := range line {
		if (r == '#' || r == ';') && i > 0 && (line[i-1] == ' ' || line[i-1] == '\t') {
			return line[:i]
		}
	}
	return line
}

func processLine(f *File, cur **Section, line string, lineNum int) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		if !strings.HasSuffix(trimmed, "]") {
			return &ParseError{File: f.Path, Line: lineNum, Reason: "malformed section header"}
		}
		name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		if name == "" {
			return &ParseError{File: f.Path, Line: lineNum, Reason: "empty section header"}
		}
		s := &Section{Name: name, vals: map[string]string{}}
		f.Sections = append(f.Sections, s)
		*cur = s
		return nil
	}

	if *cur == nil {
		return &ParseError{File: f.Path, Line: lineNum, Reason: "key outside of any section"}
	}

	eq := strings.IndexByte(trimmed, '=')
	if eq < 0 {
		return &ParseError{File: f.Path, Line: lineNum, Reason: "missing '=' in key/value pair"}
	}
	key := strings.TrimSpace(trimmed[:eq])
	val := strings.TrimSpace(trimmed[eq+1:])
	if key == "" {
		return &ParseError{File: f.Path, Line: lineNum, Reason: "empty key"}
	}

	sect := *cur
	if _, dup := sect.vals[key]; dup {
		f.Warnings = append(f.Warnings, Warning{Line: lineNum, Reason: fmt.Sprintf("duplicate key %q in section [%s], last wins", key, sect.Name)})
	} else {
		sect.keys = append(sect.keys, key)
	}
	sect.vals[key] = val
	return nil
}

// SplitList splits a comma-or-whitespace separated list value, dropping
// empty elements (spec §4.B).
func SplitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ParseBool accepts true|false|yes|no|1|0, case-insensitive (spec §4.B).
func ParseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	default:
		return false, errors.New(ErrCodeParse, fmt.Sprintf("invalid boolean value %q", v))
	}
}
