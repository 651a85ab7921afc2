package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/focusflow/backend/internal/persistence"
	"github.com/manpreetbhatti/focusflow/backend/internal/protocol"
	"github.com/manpreetbhatti/focusflow/backend/internal/workspace"
)

var _ persistence.DocumentStore = (*Database)(nil)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "focusflow-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "nested", "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NotNil(t, db)
	assert.NoError(t, db.Ping(context.Background()))
}

func TestFindOneMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	doc, err := db.FindOne(context.Background(), "w3")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestUpsertAndFindOne(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first := time.Now().UTC().Add(-time.Minute)
	err := db.Upsert(ctx, "w1", persistence.Document{Data: []byte(`{"cards":[{"id":1}]}`), UpdatedAt: first})
	require.NoError(t, err)

	doc, err := db.FindOne(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.JSONEq(t, `{"cards":[{"id":1}]}`, string(doc.Data))
	assert.WithinDuration(t, first, doc.UpdatedAt, time.Second)

	second := time.Now().UTC()
	err = db.Upsert(ctx, "w1", persistence.Document{Data: []byte(`{}`), UpdatedAt: second})
	require.NoError(t, err)

	doc, err = db.FindOne(ctx, "w1")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(doc.Data))
	assert.WithinDuration(t, second, doc.UpdatedAt, time.Second)
}

func TestListAndDeleteWorkspaces(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		err := db.Upsert(ctx, fmt.Sprintf("w%d", i), persistence.Document{
			Data:      []byte(`{"n":1}`),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	workspaces, err := db.ListWorkspaces(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, workspaces, 5)
	assert.Equal(t, "w4", workspaces[0].ID, "most recently updated first")
	assert.Equal(t, int64(7), workspaces[0].Size)

	workspaces, err = db.ListWorkspaces(ctx, 2, 3)
	require.NoError(t, err)
	assert.Len(t, workspaces, 2)

	require.NoError(t, db.DeleteWorkspace(ctx, "w4"))
	doc, err := db.FindOne(ctx, "w4")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["workspace_count"])
	assert.Equal(t, int64(0), stats["stored_bytes"])

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Upsert(ctx, fmt.Sprintf("stats-%d", i), persistence.Document{
			Data:      []byte(`{}`),
			UpdatedAt: time.Now(),
		}))
	}

	stats, err = db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["workspace_count"])
	assert.Equal(t, int64(6), stats["stored_bytes"])
}

func TestSynchronizerRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	writer := persistence.New(db, workspace.NewStore(), persistence.DefaultConfig())
	w, err := writer.EnsureLoaded(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, w.Apply(protocol.Merge{Key: "cards", Items: []protocol.Item{{"id": "a", "title": "x"}}}))
	writer.MarkDirty("w1")

	flushed, err := writer.FlushCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)

	// a fresh process reads back what the first one flushed
	reader := persistence.New(db, workspace.NewStore(), persistence.DefaultConfig())
	loaded, err := reader.EnsureLoaded(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, w.State(), loaded.State())
}
