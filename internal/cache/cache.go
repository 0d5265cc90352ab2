// Package cache provides the offline/degraded-service key-value store used
// by the fallback cascade: get/set with TTL semantics over a pluggable
// backend (in-memory, SQLite, Postgres).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rotisserie/eris"
)

// Store is the offline cache contract. Operations are atomic per key.
type Store interface {
	// Get returns the value for key if present and not expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteExpired removes expired entries and returns the count.
	DeleteExpired(ctx context.Context) (int, error)
	Close() error
}

// RequestKey derives a deterministic cache key from an operation name and
// its request payload. The payload is canonicalized through JSON marshaling
// (map keys sort) so equivalent requests share a key.
func RequestKey(operation string, request any) (string, error) {
	canonical, err := json.Marshal(request)
	if err != nil {
		return "", eris.Wrap(err, "cache: canonicalize request")
	}

	h := fnv.New64a()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write(canonical)
	return fmt.Sprintf("%s:%016x", operation, h.Sum64()), nil
}
