package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	maxAttempts = 5
	baseBackoff = 100 * time.Millisecond
)

// retry runs fn until it succeeds, fails with a permanent error or runs out
// of attempts. Backoff doubles after each transient failure.
func retry(ctx context.Context, opName string, fn func() error) error {
	var lastErr error
	backoff := baseBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return fmt.Errorf("%s failed permanently: %w", opName, lastErr)
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", opName, maxAttempts, lastErr)
}

// isTransient reports errors worth retrying: a busy target on Windows or a
// network filesystem, an interrupted call or a timeout.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.EBUSY),
		errors.Is(err, syscall.EINTR),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, os.ErrDeadlineExceeded):
		return true
	}
	return false
}

func renameWithRetry(ctx context.Context, oldPath, newPath string) error {
	return retry(ctx, "rename", func() error {
		return os.Rename(oldPath, newPath)
	})
}
