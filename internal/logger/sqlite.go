// SQLite backend for the built-in "sqlite" logger (SPEC_FULL.md DOMAIN
// STACK): persists the broadcast record stream for post-run inspection
// without standing up an external logger process. Schema and pragmas
// are adapted from the teacher's sqliteAuditBackend (audit_backend.go):
// WAL journal mode, a busy timeout, one table plus indexes on the
// columns queries filter by, and a prepared single-row insert statement.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package logger

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agilira/exclave/internal/bus"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS run_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_type TEXT NOT NULL,
	unit TEXT NOT NULL,
	unit_type TEXT NOT NULL,
	unix_secs INTEGER NOT NULL,
	unix_nsecs INTEGER NOT NULL,
	message TEXT NOT NULL
);`

var createIndexSQL = []string{
	"CREATE INDEX IF NOT EXISTS idx_run_records_unit ON run_records(unit)",
	"CREATE INDEX IF NOT EXISTS idx_run_records_type ON run_records(message_type)",
	"CREATE INDEX IF NOT EXISTS idx_run_records_time ON run_records(unix_secs)",
}

const insertSQL = `
INSERT INTO run_records (message_type, unit, unit_type, unix_secs, unix_nsecs, message)
VALUES (?, ?, ?, ?, ?, ?)`

// SQLiteSink persists every broadcast Record as one row. Unlike
// ProcessLogger it never forks a child process.
type SQLiteSink struct {
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
}

// NewSQLiteSink opens (creating if needed) a WAL-mode SQLite database at
// path and ensures its schema exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite logger database: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating run_records table: %w", err)
	}
	for _, idx := range createIndexSQL {
		if _, err := db.Exec(idx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("creating index: %w", err)
		}
	}
	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	return &SQLiteSink{db: db, insert: stmt}, nil
}

// Write implements Sink.
func (s *SQLiteSink) Write(rec bus.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.insert.Exec(rec.Type.String(), rec.Unit, rec.UnitType.String(), rec.UnixSecs, rec.UnixNsecs, rec.Message)
	return err
}

// Close releases the prepared statement and database handle.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.insert.Close()
	return s.db.Close()
}
