package core

import "sync"

// KeyedMutex provides per-entity mutual exclusion. Response actions for the
// same device or user must serialize their read-modify-write of entity state;
// the lock scope is exactly one state transition, never the whole pipeline.
// Incident timeline appends reuse the same discipline keyed by incident ID.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex set.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key, blocking until it is available. Distinct
// keys never contend with each other.
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the mutex for key. The per-key entry is reclaimed once no
// goroutine holds or waits on it, so the map does not grow with the number
// of devices ever seen.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
	}
	km.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}

// WithLock runs fn while holding the mutex for key.
func (km *KeyedMutex) WithLock(key string, fn func() error) error {
	km.Lock(key)
	defer km.Unlock(key)
	return fn()
}
