package lock

import (
	"context"
	"database/sql/driver"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const backendPostgres = "postgres"

// AdvisoryLocker uses session-level Postgres advisory locks. Each attempt
// borrows a pooled connection and hands it back when the lock is held
// elsewhere, so waiters never pin connections the holder needs for fn.
type AdvisoryLocker struct {
	db   *sqlx.DB
	opts options
}

// NewAdvisoryLocker constructs an AdvisoryLocker.
func NewAdvisoryLocker(db *sqlx.DB, opts ...Option) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, opts: buildOptions(opts)}
}

// WithLock implements Locker. Connection checkout counts against the lock timeout.
func (l *AdvisoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	start := time.Now()
	id := advisoryKey(key)

	var conn *sqlx.Conn
	err := poll(ctx, key, l.opts.timeout, func(ctx context.Context) error {
		c, err := l.db.Connx(ctx)
		if err != nil {
			return err
		}
		var acquired bool
		if err := c.GetContext(ctx, &acquired, "SELECT pg_try_advisory_lock($1)", id); err != nil {
			_ = c.Close()
			return err
		}
		if !acquired {
			_ = c.Close()
			return errHeld
		}
		conn = c
		return nil
	})
	l.opts.observe(backendPostgres, start, err == nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer l.unlock(ctx, conn, key, id)

	return fn(ctx)
}

func (l *AdvisoryLocker) unlock(ctx context.Context, conn *sqlx.Conn, key string, id int64) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", id); err != nil {
		l.opts.logger.Warn("advisory unlock failed", zap.String("key", key), zap.Error(err))
		// discard the session so the lock does not survive in the pool
		if rawErr := conn.Raw(func(interface{}) error { return driver.ErrBadConn }); rawErr != nil && !errors.Is(rawErr, driver.ErrBadConn) {
			l.opts.logger.Debug("advisory session discarded", zap.String("key", key), zap.Error(rawErr))
		}
	}
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
