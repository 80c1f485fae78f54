// Package metadata provides the persistence layer for companion metadata
// records of encrypted files.
//
// Every stored file has exactly one metadata record, keyed by the derived
// metadata key (see internal/aliasx). Records are created or replaced
// together with the file and removed when the file is deleted.
package metadata

import (
	"context"
	"time"
)

// FileMetadata describes a stored file. Tags preserve insertion order.
type FileMetadata struct {
	FileName     string
	MimeType     string
	Size         int64
	LastModified time.Time
	Tags         []string
}

// Repository describes CRUD operations for metadata records.
// Implementations are typically backed by a local SQLite database.
type Repository interface {
	// Put inserts or replaces the record stored under key.
	Put(ctx context.Context, key string, meta FileMetadata) error

	// Get returns the record stored under key, or common.ErrNotFound.
	Get(ctx context.Context, key string) (*FileMetadata, error)

	// Remove deletes the record stored under key. Removing an absent key
	// is not an error.
	Remove(ctx context.Context, key string) error
}
