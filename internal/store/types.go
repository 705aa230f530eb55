// Package store persists simulation runs. A run wraps one engine output record
// (PK result, interaction report, dose recommendation, adverse-event prediction,
// safety report or patient simulation) with audit metadata; the engine packages
// never depend on it.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// RunKind identifies the record type stored in a run's payload
type RunKind string

const (
	KindPKSimulation      RunKind = "pk_simulation"
	KindInteractionCheck  RunKind = "interaction_check"
	KindDoseOptimization  RunKind = "dose_optimization"
	KindAdverseEvents     RunKind = "adverse_events"
	KindSafetyReport      RunKind = "safety_report"
	KindPatientSimulation RunKind = "patient_simulation"
)

// Run is a persisted engine output with audit metadata
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	PatientID string          `json:"patient_id,omitempty"`
	Drug      string          `json:"drug,omitempty"`
	Degraded  bool            `json:"degraded"`
	Payload   json.RawMessage `json:"payload"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int             `json:"version"`
}

// NewRun serializes record into a new run with a random ID
func NewRun(kind RunKind, patientID, drug, createdBy string, degraded bool, record interface{}) (*Run, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		PatientID: patientID,
		Drug:      drug,
		Degraded:  degraded,
		Payload:   payload,
		CreatedBy: createdBy,
	}, nil
}

// Decode unmarshals the run payload into out
func (r *Run) Decode(out interface{}) error {
	if err := json.Unmarshal(r.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", r.Kind, err)
	}
	return nil
}

// Store defines the interface for run storage operations.
type Store interface {
	// SaveRun inserts a run, or replaces it and bumps its version if the ID exists.
	// An empty ID is assigned a new UUID.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID. Returns nil, nil if not found.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs, newest first, with pagination.
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Count returns the total number of runs.
	Count(ctx context.Context) (int64, error)

	// Delete removes a run by ID.
	Delete(ctx context.Context, id string) error

	// ExportJSON exports all runs to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// RunExport represents the JSON export format.
type RunExport struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Runs       []*Run    `json:"runs"`
}

// maxExportLimit is the maximum number of runs to export at once.
const maxExportLimit = 1000000

func exportRuns(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.ListRuns(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	export := &RunExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Runs:       all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans a row into a Run struct.
func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var kind string
	var payload []byte

	err := s.Scan(
		&run.ID, &kind, &run.PatientID, &run.Drug, &run.Degraded,
		&payload, &run.CreatedBy, &run.CreatedAt, &run.UpdatedAt, &run.Version,
	)
	if err != nil {
		return nil, err
	}

	run.Kind = RunKind(kind)
	run.Payload = json.RawMessage(payload)
	return run, nil
}
