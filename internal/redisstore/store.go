// Package redisstore keeps workspace documents in Redis.
//
// Each workspace is a hash at {prefix}:workspace:{id} with the fields
// "data" (the JSON document) and "updated_at" (RFC 3339, UTC). The ids of
// all stored workspaces are kept in the set {prefix}:workspaces.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manpreetbhatti/focusflow/backend/internal/persistence"
)

const (
	fieldData      = "data"
	fieldUpdatedAt = "updated_at"
)

// Store is a persistence.DocumentStore backed by Redis. It is safe for
// concurrent use.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New creates a store using the given connection options. All keys are
// namespaced with prefix, which must not be empty.
func New(opts *redis.Options, prefix string) (*Store, error) {
	if prefix == "" {
		return nil, fmt.Errorf("redis key prefix cannot be empty")
	}
	return &Store{
		rdb:    redis.NewClient(opts),
		prefix: prefix,
	}, nil
}

// WorkspaceKey returns the hash key of a workspace document
func (s *Store) WorkspaceKey(workspaceID string) string {
	return fmt.Sprintf("%s:workspace:%s", s.prefix, workspaceID)
}

func (s *Store) indexKey() string {
	return s.prefix + ":workspaces"
}

// Close closes the Redis connection. Implements io.Closer.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// FindOne reads the document of a workspace. It returns (nil, nil) when the
// workspace has never been stored.
func (s *Store) FindOne(ctx context.Context, workspaceID string) (*persistence.Document, error) {
	hash, err := s.rdb.HGetAll(ctx, s.WorkspaceKey(workspaceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hash) == 0 {
		return nil, nil
	}

	doc := &persistence.Document{Data: []byte(hash[fieldData])}
	if raw := hash[fieldUpdatedAt]; raw != "" {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s for workspace %s: %w", fieldUpdatedAt, workspaceID, err)
		}
		doc.UpdatedAt = updatedAt
	}
	return doc, nil
}

// Upsert writes the document of a workspace and records its id in the index.
// Both writes happen in one MULTI/EXEC transaction.
func (s *Store) Upsert(ctx context.Context, workspaceID string, doc persistence.Document) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.WorkspaceKey(workspaceID),
			fieldData, string(doc.Data),
			fieldUpdatedAt, doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.SAdd(ctx, s.indexKey(), workspaceID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write workspace to Redis: %w", err)
	}
	return nil
}

// Count returns the number of stored workspaces
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, s.indexKey()).Result()
}

// GetStats mirrors the SQLite store's stats keys
func (s *Store) GetStats(ctx context.Context) (map[string]interface{}, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count workspaces: %w", err)
	}
	return map[string]interface{}{
		"workspace_count": int(count),
	}, nil
}
