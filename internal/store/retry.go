package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
)

const (
	sqliteBusy           = 5
	sqliteLocked         = 6
	sqliteIOErrShortRead = 522
)

// retryConfig controls retries of transient SQLite errors.
type retryConfig struct {
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// isTransientSQLiteErr reports whether err is a lock or WAL contention error
// that may succeed on retry.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqliteBusy, sqliteLocked, sqliteIOErrShortRead:
			return true
		}
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func (c retryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.MaxInterval = c.maxDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// retryOp runs fn, retrying transient errors with exponential backoff.
// Other errors are returned immediately.
func retryOp(ctx context.Context, cfg retryConfig, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransientSQLiteErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}, cfg.backOff(ctx))
}

// retryOnContention wraps retryOp with the default config. All write
// operations go through it.
func retryOnContention(ctx context.Context, fn func() error) error {
	return retryOp(ctx, defaultRetryConfig, fn)
}
