package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite run store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets MCP tool calls read while a run is being written
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS simulation_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		patient_id TEXT DEFAULT '',
		drug TEXT DEFAULT '',
		degraded INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL,
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_runs_kind ON simulation_runs(kind);
	CREATE INDEX IF NOT EXISTS idx_runs_patient_id ON simulation_runs(patient_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON simulation_runs(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveRun stores a run or replaces an existing one with the same ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	var version int
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT version, created_at FROM simulation_runs WHERE id = ?", run.ID,
	).Scan(&version, &createdAt)

	if err == nil {
		run.Version = version + 1
		run.CreatedAt = createdAt
		run.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE simulation_runs SET
				kind = ?,
				patient_id = ?,
				drug = ?,
				degraded = ?,
				payload = ?,
				created_by = ?,
				updated_at = ?,
				version = ?
			WHERE id = ?
		`,
			string(run.Kind),
			run.PatientID,
			run.Drug,
			run.Degraded,
			[]byte(run.Payload),
			run.CreatedBy,
			now,
			run.Version,
			run.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	run.Version = 1
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO simulation_runs (
			id, kind, patient_id, drug, degraded,
			payload, created_by, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Kind),
		run.PatientID,
		run.Drug,
		run.Degraded,
		[]byte(run.Payload),
		run.CreatedBy,
		now,
		now,
		run.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, patient_id, drug, degraded,
			payload, created_by, created_at, updated_at, version
		FROM simulation_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return run, nil
}

// ListRuns returns runs, newest first, with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, patient_id, drug, degraded,
			payload, created_by, created_at, updated_at, version
		FROM simulation_runs
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// Count returns the total number of runs.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM simulation_runs").Scan(&count)
	return count, err
}

// Delete removes a run by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM simulation_runs WHERE id = ?", id)
	return err
}

// ExportJSON exports all runs to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportRuns(ctx, s, writer)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
