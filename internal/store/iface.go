package store

import (
	"context"
	"time"
)

// UsageLog is the subset of Store used while serving requests.
type UsageLog interface {
	// Insert appends one record.
	Insert(ctx context.Context, rec UsageRecord) (int64, error)

	// TrailingWindowCount returns per-day request counts for the days-long
	// window ending on from's date, zero-filled.
	TrailingWindowCount(ctx context.Context, from time.Time, days int) (map[string]int, error)

	// Close releases the underlying database.
	Close() error
}

// Compile-time check that *Store satisfies UsageLog.
var _ UsageLog = (*Store)(nil)
