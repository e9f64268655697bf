package reconciliation

import "sync"

// keyedMutex hands out one mutex per key. The engine keys on the timeframe
// grouping id rather than the group id: signal handling can mutate two groups
// at once (the signal's own group plus the opposing active group it stops),
// and one lock per grouping serializes both without any lock ordering
// concerns. Mutexes are never evicted; the grouping set is small and fixed
// per deployment.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
