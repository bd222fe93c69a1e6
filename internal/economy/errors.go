package economy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors a calling feature is expected to handle.
var (
	ErrInsufficientFunds    = errors.New("economy: insufficient funds")
	ErrExchangeRateNotFound = errors.New("economy: exchange rate not found")
	ErrInvalidParameters    = errors.New("economy: invalid parameters")
)

// Storage errors. These are generic failures from the caller's point of view.
var (
	// ErrNotFound is returned by stores when a requested row does not exist.
	ErrNotFound = errors.New("economy: not found")

	// ErrConflict wraps contention failures reported by the backing store
	// (serialization failures, deadlocks, busy databases). The engine never
	// retries them itself.
	ErrConflict = errors.New("economy: storage conflict")
)

// IsRetryable reports whether err was caused by storage contention and the
// whole operation may be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Retry calls op up to attempts times while it fails with a retryable
// error, sleeping a little longer after each attempt. It is meant for
// callers; the engine itself never retries.
func Retry(ctx context.Context, attempts int, op func() error) error {
	attempts = max(attempts, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = op()
		if !IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
