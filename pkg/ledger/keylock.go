package ledger

import "sync"

// keyLock provides a mutex per copy ID. Entries are reference counted and
// removed once the last holder unlocks, so the map doesn't grow with the
// catalog.
type keyLock struct {
	mu      sync.Mutex
	entries map[int]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: map[int]*keyLockEntry{}}
}

func (kl *keyLock) lock(key int) {
	kl.mu.Lock()
	entry, ok := kl.entries[key]
	if !ok {
		entry = &keyLockEntry{}
		kl.entries[key] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	entry.mu.Lock()
}

func (kl *keyLock) unlock(key int) {
	kl.mu.Lock()
	entry, ok := kl.entries[key]
	if !ok {
		kl.mu.Unlock()
		panic("ledger: unlock of unlocked copy")
	}
	entry.refs--
	if entry.refs == 0 {
		delete(kl.entries, key)
	}
	kl.mu.Unlock()

	entry.mu.Unlock()
}
