// Package bus implements the two-bus messaging fabric (spec §4.F/4.G): a
// multi-producer multi-consumer broadcast bus carrying Record values, and
// a many-to-one control bus carrying Commands from triggers/interfaces to
// the scenario engine.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package bus

import (
	"github.com/agilira/go-timecache"

	"github.com/agilira/exclave/internal/unit"
)

// MessageType enumerates the verbs a Record can carry (spec §6, interface
// protocol server→client verbs restricted to the ones that travel as
// broadcast records rather than handshake/control chatter).
type MessageType int

const (
	MessageRunning MessageType = iota
	MessageDaemonized
	MessagePass
	MessageFail
	MessageSkip
	MessageFinish
	MessageLog
	MessageWarn
)

// String renders the wire verb for m, matching the interface protocol's
// vocabulary (spec §6).
func (m MessageType) String() string {
	switch m {
	case MessageRunning:
		return "RUNNING"
	case MessageDaemonized:
		return "DAEMONIZED"
	case MessagePass:
		return "PASS"
	case MessageFail:
		return "FAIL"
	case MessageSkip:
		return "SKIP"
	case MessageFinish:
		return "FINISH"
	case MessageLog:
		return "LOG"
	case MessageWarn:
		return "WARN"
	default:
		return "UNKNOWN"
	}
}

// Record is one broadcast bus entry (spec §6: "Broadcast record"). Unit
// and UnitType are empty/KindUnknown for bus-level records that aren't
// about a specific unit (e.g. a FINISH for a scenario still carries the
// scenario as Unit; a dropped-record warning carries no unit at all).
type Record struct {
	Type      MessageType
	Unit      string
	UnitType  unit.Kind
	UnixSecs  int64
	UnixNsecs int64
	Message   string
}

// NewRecord stamps a Record with the current cached time (spec's
// performance note: "use of go-timecache on hot paths" per SPEC_FULL.md
// ambient stack; grounded on audit.go's timecache.CachedTime() use).
func NewRecord(t MessageType, id unit.ID, message string) Record {
	now := timecache.CachedTimeNano()
	return Record{
		Type:      t,
		Unit:      id.Name,
		UnitType:  id.Kind,
		UnixSecs:  now / 1e9,
		UnixNsecs: now % 1e9,
		Message:   message,
	}
}

// NewBusRecord stamps a Record with no associated unit, used for
// bus-internal diagnostics such as the dropped-record warning (spec
// §4.F: "a single warning record per gap").
func NewBusRecord(t MessageType, message string) Record {
	now := timecache.CachedTimeNano()
	return Record{
		Type:      t,
		UnixSecs:  now / 1e9,
		UnixNsecs: now % 1e9,
		Message:   message,
	}
}
