package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkddi-mcp-server/internal/domain"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "store-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "runs.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveRun(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	run := pkRun(t, "P001")

	err := store.SaveRun(ctx, run)

	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 1, run.Version)
	assert.False(t, run.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, run.UpdatedAt.IsZero(), "UpdatedAt should be set")
}

func TestSQLiteStore_SaveRun_AssignsID(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	run := pkRun(t, "P001")
	run.ID = ""

	require.NoError(t, store.SaveRun(context.Background(), run))
	assert.Len(t, run.ID, 36)
}

func TestSQLiteStore_SaveRun_UpdateBumpsVersion(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	run := pkRun(t, "P001")
	require.NoError(t, store.SaveRun(ctx, run))
	originalCreatedAt := run.CreatedAt

	run.Degraded = true
	run.CreatedBy = "reviewer"
	require.NoError(t, store.SaveRun(ctx, run))

	assert.Equal(t, 2, run.Version)
	assert.True(t, originalCreatedAt.Equal(run.CreatedAt))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
	assert.True(t, got.Degraded)
	assert.Equal(t, "reviewer", got.CreatedBy)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_GetRun(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		run := pkRun(t, "P002")
		require.NoError(t, store.SaveRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, KindPKSimulation, got.Kind)
		assert.Equal(t, "P002", got.PatientID)
		assert.Equal(t, "metformin", got.Drug)
		assert.False(t, got.Degraded)

		var params domain.PKParameters
		require.NoError(t, got.Decode(&params))
		assert.InDelta(t, 25.0, params.Cmax, 1e-9)
		assert.InDelta(t, 1.5, params.Tmax, 1e-9)
	})

	t.Run("Not_Found", func(t *testing.T) {
		got, err := store.GetRun(ctx, "00000000-0000-0000-0000-000000000000")

		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	var ids []string
	for _, pid := range []string{"P001", "P002", "P003"} {
		run := pkRun(t, pid)
		require.NoError(t, store.SaveRun(ctx, run))
		ids = append(ids, run.ID)
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("Newest_First", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, ids[2], runs[0].ID)
		assert.Equal(t, ids[0], runs[2].ID)
	})

	t.Run("Pagination", func(t *testing.T) {
		runs, err := store.ListRuns(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "P001", runs[0].PatientID)
	})
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	run := pkRun(t, "P001")
	require.NoError(t, store.SaveRun(ctx, run))

	require.NoError(t, store.Delete(ctx, run.ID))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, pkRun(t, "P001")))
	require.NoError(t, store.SaveRun(ctx, pkRun(t, "P002")))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export RunExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, "1.0", export.Version)
	assert.Equal(t, 2, export.Count)
	assert.Len(t, export.Runs, 2)
}

func TestOpen(t *testing.T) {
	t.Run("None_Disables_Persistence", func(t *testing.T) {
		s, err := Open(domain.StoreConfig{Driver: "none"}, nullLogger())
		assert.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("SQLite", func(t *testing.T) {
		dir := t.TempDir()
		s, err := Open(domain.StoreConfig{Driver: "SQLite", DSN: filepath.Join(dir, "runs.db")}, nullLogger())
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.NoError(t, s.Close())
	})

	t.Run("Missing_DSN", func(t *testing.T) {
		_, err := Open(domain.StoreConfig{Driver: "postgres"}, nullLogger())
		assert.Error(t, err)
	})

	t.Run("Unknown_Driver", func(t *testing.T) {
		_, err := Open(domain.StoreConfig{Driver: "mongodb", DSN: "x"}, nullLogger())
		assert.ErrorContains(t, err, "unsupported store driver")
	})
}

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestNewRun(t *testing.T) {
	_, err := NewRun(KindPKSimulation, "P001", "metformin", "test", false, func() {})
	assert.Error(t, err, "functions cannot be marshaled")
}

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "store-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := NewSQLiteStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	return store
}

func pkRun(t *testing.T, patientID string) *Run {
	t.Helper()
	params := domain.PKParameters{
		Cmax:                     25.0,
		Tmax:                     1.5,
		AUC:                      1200,
		Clearance:                0.042,
		HalfLife:                 12,
		SteadyStateConcentration: 50,
	}
	run, err := NewRun(KindPKSimulation, patientID, "metformin", "test", false, params)
	require.NoError(t, err)
	return run
}
