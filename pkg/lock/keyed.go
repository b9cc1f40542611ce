package lock

import (
	"context"
	"sync"
	"time"
)

// Keyed is an in-process Locker. Locks are dropped from memory once no caller holds or
// waits for them.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
	timeout time.Duration
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

var _ Locker = (*Keyed)(nil)

// NewKeyed creates an in-process locker. A zero timeout uses DefaultAcquireTimeout.
func NewKeyed(timeout time.Duration) *Keyed {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &Keyed{
		entries: make(map[string]*keyedEntry),
		timeout: timeout,
	}
}

// Acquire waits for the lock on key
func (k *Keyed) Acquire(ctx context.Context, key string) (Lock, error) {
	entry := k.ref(key)

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return &keyedLock{owner: k, key: key, entry: entry}, nil
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	case <-timer.C:
		k.unref(key, entry)
		return nil, ErrLockNotAcquired
	}
}

// Len returns the number of keys currently held or waited on
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed) ref(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *Keyed) unref(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

type keyedLock struct {
	owner *Keyed
	key   string
	entry *keyedEntry
	once  sync.Once
}

func (l *keyedLock) Release(ctx context.Context) error {
	err := ErrLockNotHeld
	l.once.Do(func() {
		<-l.entry.sem
		l.owner.unref(l.key, l.entry)
		err = nil
	})
	return err
}
