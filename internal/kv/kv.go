// Package kv defines the key-value persistence boundary for watch progress
// and its backends (memory, Redis, Postgres) plus a circuit-breaker
// decorator.
package kv

import "context"

// Store is the persistence contract the progress store writes through.
// Get reports an absent key as (_, false, nil); only transport-level
// failures surface as errors.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
