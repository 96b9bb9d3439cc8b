package store

import "context"

// asyncMutex is a single-permit semaphore usable from context-bearing
// call sites: Lock suspends on ctx cancellation rather than blocking
// the calling goroutine's thread indefinitely (spec §5: "suspension
// points are: awaiting stream locks ...").
type asyncMutex chan struct{}

func newAsyncMutex() asyncMutex {
	m := make(asyncMutex, 1)
	m <- struct{}{}
	return m
}

func (m asyncMutex) Lock(ctx context.Context) error {
	select {
	case <-m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock acquires the mutex without blocking, reporting whether it
// succeeded (used by Append's non-blocking mode).
func (m asyncMutex) TryLock() bool {
	select {
	case <-m:
		return true
	default:
		return false
	}
}

func (m asyncMutex) Unlock() { m <- struct{}{} }
