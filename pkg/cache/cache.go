// Package cache provides the byte-level cache used to keep node-type schemas
// between runs.
//
// Fetching the full schema catalog from an execution server is slow and the
// catalog rarely changes, so providers store the raw response under a key
// derived from the server URL. Two backends are provided:
//
//   - [FileCache]: JSON entry files under a directory, for CLI usage
//   - [NullCache]: never stores anything, for tests and --no-cache
//
// Keys are produced by a [Keyer] so every component agrees on the format.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache stores opaque byte values with an optional time-to-live.
type Cache interface {
	// Get returns the cached value and whether it was found.
	// Expired or corrupt entries are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer generates cache keys.
type Keyer interface {
	// SchemaKey generates the key for the node-type schema catalog of a server.
	SchemaKey(serverURL string) string
}

// DefaultKeyer is the standard Keyer.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard Keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// SchemaKey hashes the normalized server URL so different servers never share
// a catalog entry.
func (DefaultKeyer) SchemaKey(serverURL string) string {
	return hashKey("schema", strings.TrimRight(strings.ToLower(serverURL), "/"))
}
