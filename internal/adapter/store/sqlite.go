package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chrysalis/internal/domain"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements domain.Store on SQLite.
// Steps and field reports reference their mission with ON DELETE CASCADE.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and runs the schema
// migration. Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so that every pooled connection gets them.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open mission db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate mission db: %w", err)
	}

	logger.Info("sqlite store initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS missions (
			id                   TEXT PRIMARY KEY,
			code_name            TEXT NOT NULL DEFAULT '',
			description          TEXT NOT NULL DEFAULT '',
			location             TEXT NOT NULL DEFAULT '',
			start_date           TEXT,
			end_date             TEXT,
			status               TEXT NOT NULL DEFAULT 'ASSIGNED',
			classification_level TEXT NOT NULL DEFAULT 'CONFIDENTIAL',
			encrypted_data       TEXT NOT NULL DEFAULT '',
			agent_id             TEXT NOT NULL DEFAULT '',
			title                TEXT NOT NULL DEFAULT '',
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS steps (
			id                     TEXT PRIMARY KEY,
			mission_id             TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			title                  TEXT NOT NULL DEFAULT '',
			description            TEXT NOT NULL DEFAULT '',
			assigned_agent         TEXT NOT NULL DEFAULT '',
			location               TEXT NOT NULL DEFAULT '',
			start_date             TEXT,
			end_date               TEXT,
			status                 TEXT NOT NULL DEFAULT 'ASSIGNED',
			step_order             INTEGER NOT NULL DEFAULT 0,
			encrypted_instructions TEXT NOT NULL DEFAULT '',
			created_at             TEXT NOT NULL,
			updated_at             TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_steps_mission ON steps(mission_id, step_order);

		CREATE TABLE IF NOT EXISTS field_reports (
			id                TEXT PRIMARY KEY,
			mission_id        TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
			encrypted_content TEXT NOT NULL,
			location          TEXT NOT NULL DEFAULT '',
			latitude          REAL,
			longitude         REAL,
			status            TEXT NOT NULL DEFAULT 'draft',
			attachments       TEXT NOT NULL DEFAULT '[]',
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_field_reports_mission ON field_reports(mission_id);
	`)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// isForeignKeyViolation reports whether err came from a missing parent row.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func notFound(subsystem, op, id string) error {
	return domain.NewSubSystemError(subsystem, op, domain.ErrNotFound, id)
}

// checkAffected maps a zero-row write to NotFound.
func checkAffected(res sql.Result, subsystem, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(subsystem, op, id)
	}
	return nil
}
