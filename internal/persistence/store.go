// Package persistence keeps resident workspaces in step with the durable
// document store using write-behind flushing.
//
// Mutations only mark a workspace dirty; its state reaches the store on the
// next periodic flush, when its last connection leaves, or when the process
// drains on shutdown. A crash between a mutation and the next successful
// flush loses that mutation.
package persistence

import (
	"context"
	"encoding/json"
	"time"
)

// Document is the durable record of one workspace
type Document struct {
	Data      json.RawMessage
	UpdatedAt time.Time
}

// DocumentStore is the durable storage the synchronizer writes through.
// FindOne returns nil and no error when there is no record.
type DocumentStore interface {
	FindOne(ctx context.Context, workspaceID string) (*Document, error)
	Upsert(ctx context.Context, workspaceID string, doc Document) error
	Ping(ctx context.Context) error
	Close() error
}
