package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL run store.
// It expects the simulation_runs table (payload JSONB) to already exist.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL run store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// SaveRun stores a run, bumping the version when the ID already exists.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
		INSERT INTO simulation_runs (
			id, kind, patient_id, drug, degraded,
			payload, created_by, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			patient_id = EXCLUDED.patient_id,
			drug = EXCLUDED.drug,
			degraded = EXCLUDED.degraded,
			payload = EXCLUDED.payload,
			created_by = EXCLUDED.created_by,
			updated_at = EXCLUDED.updated_at,
			version = simulation_runs.version + 1
		RETURNING created_at, version
	`

	err := s.db.QueryRowContext(ctx, query,
		run.ID,
		string(run.Kind),
		run.PatientID,
		run.Drug,
		run.Degraded,
		string(run.Payload),
		run.CreatedBy,
		now,
		now,
	).Scan(&run.CreatedAt, &run.Version)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	run.UpdatedAt = now
	return nil
}

// GetRun retrieves a run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, patient_id, drug, degraded,
			payload, created_by, created_at, updated_at, version
		FROM simulation_runs
		WHERE id = $1
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
func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, patient_id, drug, degraded,
			payload, created_by, created_at, updated_at, version
		FROM simulation_runs
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM simulation_runs").Scan(&count)
	return count, err
}

// Delete removes a run by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM simulation_runs WHERE id = $1", id)
	return err
}

// ExportJSON exports all runs to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportRuns(ctx, s, writer)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
