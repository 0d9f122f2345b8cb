package dispatch

import "sync"

// keyedMutex provides per-key mutual exclusion with a non-blocking acquire.
// A second in-flight request for the same conversation is rejected rather
// than queued, keeping the busy outcome deterministic.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[string]struct{})}
}

// TryLock acquires the key if free, reporting success.
func (k *keyedMutex) TryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[key]; ok {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

// Unlock releases the key. Releasing a free key is a no-op.
func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}
