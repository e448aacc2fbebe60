// Package proto implements the wire framings spec §6 defines: the TSV
// and JSON broadcast record formats, and the line-oriented interface and
// trigger protocols.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package proto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/unit"
)

// EncodeTSV renders rec as a tab-separated line (spec §6: "Broadcast
// record (TSV)"), including the trailing newline. The message field is
// escaped per the spec's three-character escape table; all other fields
// are assumed not to contain control characters (unit names and kinds
// come from the unit file grammar, which already excludes them).
func EncodeTSV(rec bus.Record) string {
	var b strings.Builder
	b.WriteString(rec.Type.String())
	b.WriteByte('\t')
	b.WriteString(rec.Unit)
	b.WriteByte('\t')
	b.WriteString(rec.UnitType.String())
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(rec.UnixSecs, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(rec.UnixNsecs, 10))
	b.WriteByte('\t')
	b.WriteString(escapeTSV(rec.Message))
	b.WriteByte('\n')
	return b.String()
}

func escapeTSV(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeTSV(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// DecodeTSV parses one TSV broadcast record line (without its trailing
// newline).
func DecodeTSV(line string) (bus.Record, error) {
	fields := strings.SplitN(line, "\t", 6)
	if len(fields) != 6 {
		return bus.Record{}, fmt.Errorf("malformed TSV record: expected 6 fields, got %d", len(fields))
	}
	mt, err := parseMessageType(fields[0])
	if err != nil {
		return bus.Record{}, err
	}
	kind, _ := unit.KindForName(strings.ToLower(fields[2]))
	secs, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return bus.Record{}, fmt.Errorf("malformed unix-secs %q: %w", fields[3], err)
	}
	nsecs, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return bus.Record{}, fmt.Errorf("malformed unix-nsecs %q: %w", fields[4], err)
	}
	return bus.Record{
		Type:      mt,
		Unit:      fields[1],
		UnitType:  kind,
		UnixSecs:  secs,
		UnixNsecs: nsecs,
		Message:   unescapeTSV(fields[5]),
	}, nil
}

// jsonRecord is the wire shape for EncodeJSON/DecodeJSON (spec §6:
// "Broadcast record (JSON)").
type jsonRecord struct {
	MessageType   int    `json:"message_type"`
	Unit          string `json:"unit"`
	UnitType      string `json:"unit_type"`
	UnixTime      int64  `json:"unix_time"`
	UnixTimeNsecs int64  `json:"unix_time_nsecs"`
	Message       string `json:"message"`
}

// EncodeJSON renders rec as one JSON object followed by a newline. The
// message field is not escaped beyond what encoding/json already does
// (spec: "message (string, unescaped)" — unescaped relative to the TSV
// backslash scheme, not relative to JSON's own string quoting).
func EncodeJSON(rec bus.Record) (string, error) {
	out, err := json.Marshal(jsonRecord{
		MessageType:   int(rec.Type),
		Unit:          rec.Unit,
		UnitType:      rec.UnitType.String(),
		UnixTime:      rec.UnixSecs,
		UnixTimeNsecs: rec.UnixNsecs,
		Message:       rec.Message,
	})
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

// DecodeJSON parses one JSON broadcast record line.
func DecodeJSON(line string) (bus.Record, error) {
	var jr jsonRecord
	if err := json.Unmarshal([]byte(line), &jr); err != nil {
		return bus.Record{}, fmt.Errorf("malformed JSON record: %w", err)
	}
	kind, _ := unit.KindForName(strings.ToLower(jr.UnitType))
	return bus.Record{
		Type:      bus.MessageType(jr.MessageType),
		Unit:      jr.Unit,
		UnitType:  kind,
		UnixSecs:  jr.UnixTime,
		UnixNsecs: jr.UnixTimeNsecs,
		Message:   jr.Message,
	}, nil
}

func parseMessageType(verb string) (bus.MessageType, error) {
	switch strings.ToUpper(verb) {
	case "RUNNING":
		return bus.MessageRunning, nil
	case "DAEMONIZED":
		return bus.MessageDaemonized, nil
	case "PASS":
		return bus.MessagePass, nil
	case "FAIL":
		return bus.MessageFail, nil
	case "SKIP":
		return bus.MessageSkip, nil
	case "FINISH":
		return bus.MessageFinish, nil
	case "LOG":
		return bus.MessageLog, nil
	case "WARN":
		return bus.MessageWarn, nil
	default:
		return 0, fmt.Errorf("unknown message type verb %q", verb)
	}
}
