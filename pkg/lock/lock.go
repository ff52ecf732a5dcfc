// Package lock serialises work per string key with a bounded acquisition wait.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/pkg/config"
)

// DefaultTimeout bounds acquisition when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when the lock could not be acquired within the timeout.
var ErrTimeout = errors.New("lock acquisition timed out")

// errHeld marks a poll attempt that found the lock owned by someone else.
var errHeld = errors.New("lock held")

// Locker runs fn while holding the lock for key. The lock is released on
// every exit path of fn, including a panic.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Observer receives acquisition timings.
type Observer interface {
	ObserveLockWait(backend string, wait time.Duration, acquired bool)
}

// EnrollKey builds the lock key for a (student, course) pair.
func EnrollKey(studentID, courseID string) string {
	return fmt.Sprintf("enroll:%s:%s", studentID, courseID)
}

type options struct {
	timeout  time.Duration
	ttl      time.Duration
	observer Observer
	logger   *zap.Logger
}

// Option customises a Locker.
type Option func(*options)

// WithTimeout bounds how long WithLock waits for the lock.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTTL sets the expiry of distributed locks so crashed holders are bounded.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithObserver attaches an acquisition observer, usually the metrics service.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the logger used for release failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout, ttl: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.ttl < o.timeout {
		o.ttl = o.timeout * 2
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

func (o options) observe(backend string, start time.Time, acquired bool) {
	if o.observer != nil {
		o.observer.ObserveLockWait(backend, time.Since(start), acquired)
	}
}

// New builds the Locker selected by cfg.Backend.
func New(cfg config.LockConfig, db *sqlx.DB, client *redis.Client, opts ...Option) (Locker, error) {
	opts = append([]Option{WithTimeout(cfg.Timeout), WithTTL(cfg.TTL)}, opts...)
	switch cfg.Backend {
	case "", config.LockBackendMemory:
		return NewMemoryLocker(opts...), nil
	case config.LockBackendRedis:
		if client == nil {
			return nil, errors.New("redis lock backend requires a redis client")
		}
		return NewRedisLocker(client, opts...), nil
	case config.LockBackendPostgres:
		if db == nil {
			return nil, errors.New("postgres lock backend requires a database")
		}
		return NewAdvisoryLocker(db, opts...), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// pollBackOff returns the retry schedule used by the polling backends.
func pollBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.Multiplier = 1.6
	return b
}

// poll retries try until it reports acquisition, the timeout elapses or ctx is cancelled.
// try returns errHeld while the lock is owned elsewhere; any other error aborts polling.
func poll(ctx context.Context, key string, timeout time.Duration, try func(context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var storeErr error
	_, err := backoff.Retry(waitCtx, func() (struct{}, error) {
		err := try(waitCtx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, errHeld):
			return struct{}{}, err
		case waitCtx.Err() != nil:
			return struct{}{}, backoff.Permanent(errHeld)
		default:
			storeErr = err
			return struct{}{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(pollBackOff()), backoff.WithMaxElapsedTime(timeout))
	if err == nil {
		return nil
	}
	if storeErr != nil {
		return fmt.Errorf("acquire lock %s: %w", key, storeErr)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s", ErrTimeout, key)
}
