// Package memory provides the session-scoped key-value persistence used by
// the conversation manager. A Store is a pluggable backend (process memory,
// files, SQLite, Redis); KV narrows it to the get/set/remove view the
// manager needs, optionally scoped under a namespace.
package memory

import (
	"context"
	"io"
)

// Store translates between external storage and the key-value namespace.
// Implementations are stateless: they perform I/O on each call without
// caching. Implementations must be safe for concurrent use.
type Store interface {
	// List returns all available keys in the store, sorted.
	List(ctx context.Context) ([]string, error)
	// Load retrieves entries for the specified keys.
	// Missing keys fail with ErrKeyNotFound.
	Load(ctx context.Context, keys ...string) ([]Entry, error)
	// Save persists entries, creating or overwriting as needed.
	Save(ctx context.Context, entries ...Entry) error
	// Delete removes entries. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Close releases store resources when the backend holds any.
func Close(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
