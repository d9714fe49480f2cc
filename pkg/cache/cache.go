// Package cache provides the key/value store for build metadata.
//
// Building a local project (editable or directory requirement) is the most
// expensive step of a sync. The editable builder records the outcome of each
// build here, keyed by the project's path and source fingerprint, so that an
// unchanged project is never built twice, across runs and, with a shared
// backend, across machines.
//
// # Backends
//
//   - [FileCache]: JSON entries under the user cache directory (default)
//   - [RedisCache]: a shared Redis instance
//   - [MongoCache]: a shared MongoDB collection
//   - [Disabled]: caching turned off, every lookup misses
//
// [Open] selects a backend from [Options].
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the value for key. The boolean is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer derives cache keys. Implementations must be deterministic.
type Keyer interface {
	// BuildKey addresses the built wheel of a local project.
	BuildKey(opts BuildKeyOpts) string

	// MetadataKey addresses the prepared metadata of a local project.
	MetadataKey(path, fingerprint string) string
}

// BuildKeyOpts identifies one build of a local source tree.
type BuildKeyOpts struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Editable    bool   `json:"editable"`
	Python      string `json:"python,omitempty"`
}
