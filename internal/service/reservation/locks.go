package reservation

import (
	"math/rand/v2"
	"sync"
	"time"
)

// keyedMutex serialises work per pool inside one process. Each key gets its
// own mutex, dropped again once nobody holds or waits for it; callers must
// never hold two keys at once.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refLock)}
}

func (k *keyedMutex) Lock(key int64) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size reports how many keys are currently locked or awaited.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// calculateBackoff doubles base per attempt, caps at limit and adds up to 20% jitter.
func calculateBackoff(attempt int, base, limit time.Duration) time.Duration {
	wait := time.Duration(1<<min(attempt, 30)) * base
	if limit > 0 && wait > limit {
		wait = limit
	}
	if j := int64(wait / 5); j > 0 {
		wait += time.Duration(rand.Int64N(j))
	}
	return wait
}
