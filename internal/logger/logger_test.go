// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package logger

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agilira/exclave/internal/bus"
	"github.com/agilira/exclave/internal/model"
	"github.com/agilira/exclave/internal/unit"
)

func TestPipeSinkTSVFraming(t *testing.T) {
	var buf bytes.Buffer
	s := &pipeSink{w: &buf, format: model.FormatTSV}
	rec := bus.NewRecord(bus.MessagePass, unit.ID{Kind: unit.KindTest, Name: "led"}, "ok")
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line := buf.String()
	if !strings.HasPrefix(line, "PASS\tled\ttest\t") || !strings.HasSuffix(line, "\tok\n") {
		t.Fatalf("unexpected TSV line: %q", line)
	}
}

func TestPipeSinkJSONFraming(t *testing.T) {
	var buf bytes.Buffer
	s := &pipeSink{w: &buf, format: model.FormatJSON}
	rec := bus.NewRecord(bus.MessageFail, unit.ID{Kind: unit.KindTest, Name: "sound"}, "boom")
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(buf.String(), `"message":"boom"`) {
		t.Fatalf("unexpected JSON line: %q", buf.String())
	}
}

func TestProcessLoggerReceivesFramedRecords(t *testing.T) {
	lg := &model.Logger{ExecStart: "cat > " + filepath.Join(t.TempDir(), "out"), Format: model.FormatTSV}
	pl, err := Spawn(lg)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer pl.Stop()
	rec := bus.NewRecord(bus.MessageRunning, unit.ID{Kind: unit.KindTest, Name: "led"}, "")
	if err := pl.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestRunDrainsBroadcastUntilCanceled(t *testing.T) {
	b := bus.NewBroadcast(16)
	var buf bytes.Buffer
	sink := &pipeSink{w: &buf, format: model.FormatTSV}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, b, sink)
		close(done)
	}()

	b.Publish(bus.NewRecord(bus.MessagePass, unit.ID{Kind: unit.KindTest, Name: "led"}, ""))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
	if !strings.Contains(buf.String(), "PASS\tled\ttest") {
		t.Fatalf("expected drained record in buffer, got %q", buf.String())
	}
}

func TestSQLiteSinkPersistsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	defer sink.Close()

	rec := bus.NewRecord(bus.MessageFinish, unit.ID{Kind: unit.KindScenario, Name: "smoke"}, "200 ok")
	if err := sink.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var count int
	if err := sink.db.QueryRow("SELECT COUNT(*) FROM run_records WHERE unit = 'smoke'").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}
