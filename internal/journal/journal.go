package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"audiototext/internal/common"
)

// Entry records the terminal outcome of one job. The journal is an
// operator-facing side effect; submitters have no way to query it.
type Entry struct {
	JobID        string
	Outcome      string // delivered | delivered_via_fallback
	ErrorDetail  string // delivery error, if any
	FallbackPath string // set when a fallback write was attempted
	CompletedAt  time.Time
}

// Journal persists terminal job outcomes.
type Journal interface {
	Record(e Entry) error
	Close() error
}

// SQLiteJournal implements Journal on a local SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens (and migrates) the journal database at path.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deliveries (
		job_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_detail TEXT,
		fallback_path TEXT,
		completed_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Record appends one terminal outcome.
func (j *SQLiteJournal) Record(e Entry) error {
	if e.JobID == "" {
		return errors.New("entry.JobID is required")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now().UTC()
	}
	var detail, fallback *string
	if e.ErrorDetail != "" {
		detail = &e.ErrorDetail
	}
	if e.FallbackPath != "" {
		fallback = &e.FallbackPath
	}
	_, err := j.db.Exec(
		`INSERT INTO deliveries (job_id, outcome, error_detail, fallback_path, completed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.JobID, e.Outcome, detail, fallback, e.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. Intended for operator
// tooling and tests.
func (j *SQLiteJournal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT job_id, outcome, error_detail, fallback_path, completed_at
		 FROM deliveries ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var detail, fallback sql.NullString
		var completed string
		if err := rows.Scan(&e.JobID, &e.Outcome, &detail, &fallback, &completed); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if detail.Valid {
			e.ErrorDetail = detail.String
		}
		if fallback.Valid {
			e.FallbackPath = fallback.String
		}
		if ts, err := time.Parse(time.RFC3339Nano, completed); err == nil {
			e.CompletedAt = ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
