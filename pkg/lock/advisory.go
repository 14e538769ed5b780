// pkg/lock/advisory.go
package lock

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// AdvisoryLocker implements Locker with Postgres session advisory locks.
// Each held lock pins one pooled connection until it is released.
type AdvisoryLocker struct {
	db *sqlx.DB
}

// NewAdvisoryLocker creates an AdvisoryLocker over db.
func NewAdvisoryLocker(db *sqlx.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// Acquire implements Locker.
func (l *AdvisoryLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock %s: failed to get connection: %w", key, err)
	}

	var ok bool
	if err := conn.QueryRowxContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}
	if !ok {
		_ = conn.Close()
		return nil, ErrLocked
	}
	return &advisoryLock{conn: conn, key: key}, nil
}

type advisoryLock struct {
	conn *sqlx.Conn
	key  string
	once sync.Once
	err  error
}

func (a *advisoryLock) Release(ctx context.Context) error {
	a.once.Do(func() {
		defer a.conn.Close()
		var released bool
		if err := a.conn.QueryRowxContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, a.key).Scan(&released); err != nil {
			// The session may still hold the lock; drop the connection instead of pooling it.
			_ = a.conn.Raw(func(any) error { return driver.ErrBadConn })
			a.err = fmt.Errorf("advisory unlock %s: %w", a.key, err)
			return
		}
		if !released {
			a.err = fmt.Errorf("advisory unlock %s: lock was not held", a.key)
		}
	})
	return a.err
}
