// Package sqlite implements the single-node student repository on SQLite
// through database/sql and the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// timeLayout is how timestamps are stored. Fixed width keeps TEXT ordering
// equal to time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the database handle.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	out := &DB{DB: db, path: path}
	if err := out.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return out, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func dsn(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// Migrations returns the schema statements. SQLite executes one statement
// per Exec, so each entry is a single statement.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS students (
			id                           TEXT PRIMARY KEY,
			display_name                 TEXT NOT NULL DEFAULT '',
			points                       INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
			current_streak               INTEGER NOT NULL DEFAULT 0,
			longest_streak               INTEGER NOT NULL DEFAULT 0,
			homework_streak              INTEGER NOT NULL DEFAULT 0,
			low_engagement_weeks         INTEGER NOT NULL DEFAULT 0,
			missed_sessions              INTEGER NOT NULL DEFAULT 0,
			sessions_attended_this_month INTEGER NOT NULL DEFAULT 0,
			version                      INTEGER NOT NULL DEFAULT 1,
			created_at                   TEXT NOT NULL,
			updated_at                   TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS penalty_records (
			id              TEXT PRIMARY KEY,
			student_id      TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			position        INTEGER NOT NULL,
			type            TEXT NOT NULL,
			points_deducted INTEGER NOT NULL CHECK (points_deducted >= 0),
			reason          TEXT NOT NULL,
			applied_at      TEXT NOT NULL,
			applied_by      TEXT NOT NULL,
			waived          INTEGER NOT NULL DEFAULT 0,
			waived_by       TEXT NOT NULL DEFAULT '',
			waived_at       TEXT,
			waived_reason   TEXT NOT NULL DEFAULT '',
			UNIQUE(student_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_penalty_records_student_applied ON penalty_records(student_id, applied_at)`,

		`CREATE TABLE IF NOT EXISTS bonus_records (
			id             TEXT PRIMARY KEY,
			student_id     TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			position       INTEGER NOT NULL,
			type           TEXT NOT NULL,
			points_awarded INTEGER NOT NULL,
			reason         TEXT NOT NULL,
			awarded_at     TEXT NOT NULL,
			awarded_by     TEXT NOT NULL,
			UNIQUE(student_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bonus_records_student_type ON bonus_records(student_id, type, awarded_at)`,
	}
}

// Migrate applies the schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}

// withTx runs fn in a transaction, committing on nil.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// isConstraintViolation reports primary key and unique violations.
func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Without extended result codes only the message tells them apart.
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
