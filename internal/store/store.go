// Package store persists generated LLM responses so repeated reviews of
// unchanged code do not pay for the same completion twice. It never records
// run history.
package store

import (
	"context"
	"time"
)

// ProducerStats is one row of the cache summary.
type ProducerStats struct {
	Producer string
	Entries  int
	Hits     int
	Bytes    int64
}

// ResponseCache defines the persistence interface for cached responses.
type ResponseCache interface {
	GetResponse(ctx context.Context, key string) (string, bool, error)
	PutResponse(ctx context.Context, key, producer, text string) error
	Stats(ctx context.Context) ([]*ProducerStats, error)
	Purge(ctx context.Context, olderThan time.Time) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var _ ResponseCache = (*SQLiteStore)(nil)
