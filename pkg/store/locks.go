package store

import "sync"

// KeyedLocks serializes operations per key while letting operations on
// different keys proceed in parallel. Each store owns its own registry and
// injects it where needed; there is no process-wide singleton.
//
// Entries are reference counted and removed once the last waiter drains,
// so the map does not grow with the number of keys ever seen.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocks creates an empty lock registry.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*lockEntry)}
}

// Do runs fn while holding the lock for key. A panic or error inside fn
// does not poison later operations on the same key.
func (k *KeyedLocks) Do(key string, fn func() error) error {
	entry := k.acquire(key)
	defer k.release(key, entry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn()
}

func (k *KeyedLocks) acquire(key string) *lockEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (k *KeyedLocks) release(key string, entry *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(k.locks, key)
	}
}

// Size reports the number of keys currently held or waited on.
func (k *KeyedLocks) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
