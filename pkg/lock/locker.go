// pkg/lock/locker.go
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("lock is held by another owner")

// Locker grants exclusive, non-blocking ownership of a key.
type Locker interface {
	// Acquire takes the lock for key or fails fast with ErrLocked.
	Acquire(ctx context.Context, key string) (Lock, error)
}

// Lock is a held lock. Release is idempotent.
type Lock interface {
	Release(ctx context.Context) error
}
