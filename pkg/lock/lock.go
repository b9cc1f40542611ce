// Package lock serializes writers per case
package lock

import (
	"context"
	"errors"
	"sort"
	"time"
)

const (
	DefaultAcquireTimeout = 10 * time.Second
	DefaultTTL            = 30 * time.Second
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired before the timeout
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that is no longer held
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock is a held lock
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive locks by key. Acquire blocks until the lock is held, the
// acquire timeout passes or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

// CaseKey is the lock key of a case
func CaseKey(caseID string) string {
	return "case:" + caseID
}

// AcquireAll locks every key in sorted order and returns a function releasing them in
// reverse. On failure the locks already taken are released.
func AcquireAll(ctx context.Context, locker Locker, keys ...string) (func(context.Context), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]Lock, 0, len(sorted))
	release := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Release(ctx)
		}
	}

	var prev string
	for i, key := range sorted {
		if i > 0 && key == prev {
			continue
		}
		prev = key
		l, err := locker.Acquire(ctx, key)
		if err != nil {
			release(ctx)
			return nil, err
		}
		held = append(held, l)
	}
	return release, nil
}
