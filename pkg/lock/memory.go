package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const backendMemory = "memory"

type memoryEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// MemoryLocker is an in-process keyed mutex. Entries are reference counted
// and dropped once no caller holds or waits on them.
type MemoryLocker struct {
	opts options

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryLocker constructs a MemoryLocker.
func NewMemoryLocker(opts ...Option) *MemoryLocker {
	return &MemoryLocker{opts: buildOptions(opts), entries: make(map[string]*memoryEntry)}
}

// WithLock implements Locker.
func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	entry := l.retain(key)
	defer l.release(key, entry)

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.timeout)
	defer cancel()

	start := time.Now()
	if err := entry.sem.Acquire(waitCtx, 1); err != nil {
		l.opts.observe(backendMemory, start, false)
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", ErrTimeout, key)
	}
	l.opts.observe(backendMemory, start, true)
	defer entry.sem.Release(1)

	return fn(ctx)
}

// Len returns the number of tracked keys.
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLocker) retain(key string) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryLocker) release(key string, entry *memoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
