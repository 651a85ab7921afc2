package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/manpreetbhatti/focusflow/backend/internal/logging"
	"github.com/manpreetbhatti/focusflow/backend/internal/persistence"
)

type Database struct {
	db  *sql.DB
	log *logrus.Entry
}

// Workspace is a stored workspace without its document
type Workspace struct {
	ID        string    `json:"id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log := logging.NewLogger("db")
	log.WithField("path", dbPath).Info("Database initialized")
	return &Database{db: db, log: log}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_workspaces_updated_at ON workspaces(updated_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Document operations

// FindOne returns the stored document of a workspace, or nil if none exists
func (d *Database) FindOne(ctx context.Context, workspaceID string) (*persistence.Document, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT data, updated_at FROM workspaces WHERE id = ?",
		workspaceID,
	)

	var data string
	var doc persistence.Document
	err := row.Scan(&data, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.Data = []byte(data)
	return &doc, nil
}

// Upsert stores the document of a workspace, creating the row if needed
func (d *Database) Upsert(ctx context.Context, workspaceID string, doc persistence.Document) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, workspaceID, string(doc.Data), doc.UpdatedAt.UTC())
	return err
}

// Workspace operations

func (d *Database) ListWorkspaces(ctx context.Context, limit, offset int) ([]Workspace, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, LENGTH(data), created_at, updated_at FROM workspaces ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.ID, &w.Size, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

func (d *Database) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM workspaces WHERE id = ?", workspaceID)
	return err
}

// Stats

func (d *Database) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var count int
	var size sql.NullInt64
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*), SUM(LENGTH(data)) FROM workspaces",
	).Scan(&count, &size); err != nil {
		return nil, err
	}
	stats["workspace_count"] = count
	stats["stored_bytes"] = size.Int64

	return stats, nil
}
