package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockedError reports that another apply holds the project lock. It is
// transient; the caller may retry.
type LockedError struct {
	Root string
	Wait time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("project %s is locked by another operation (waited %s)", e.Root, e.Wait)
}

// Lock is an exclusive advisory lock over one project's manifest. All
// operations against a project serialize on it for the duration of an
// apply; a concurrent apply blocks up to the configured wait and then
// fails with LockedError.
type Lock struct {
	fl   *flock.Flock
	root string
}

// Acquire takes the project lock, polling until ctx is done or wait
// elapses.
func Acquire(ctx context.Context, root string, wait time.Duration) (*Lock, error) {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	fl := flock.New(filepath.Join(dir, "lock"))

	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ok, err := fl.TryLockContext(lockCtx, 50*time.Millisecond)
	if !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &LockedError{Root: root, Wait: wait}
		}
		return nil, fmt.Errorf("locking project: %w", err)
	}
	return &Lock{fl: fl, root: root}, nil
}

// Release drops the lock. Safe to call once after Acquire succeeds.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
