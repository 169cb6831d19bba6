package checkpoint

import (
	"context"
	"sync"
)

// MutexLocker is the single-process Locker implementation: a plain
// sync.Mutex. Sufficient when exactly one writer process runs the
// sealer; multi-process deployments need redislock.New instead.
type MutexLocker struct {
	mu sync.Mutex
}

// NewMutexLocker creates an in-process Locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

// Lock acquires the mutex and returns a function that releases it.
func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}
