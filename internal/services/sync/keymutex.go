package sync

import gosync "sync"

// keyedMutex hands out one mutex per key so racing writers for the same
// issue serialize without blocking unrelated keys. Entries are
// refcounted and dropped once unused.
type keyedMutex struct {
    mu    gosync.Mutex
    locks map[string]*kmEntry
}

type kmEntry struct {
    mu   gosync.Mutex
    refs int
}

func newKeyedMutex() *keyedMutex {
    return &keyedMutex{locks: map[string]*kmEntry{}}
}

func (k *keyedMutex) Lock(key string) func() {
    k.mu.Lock()
    e, ok := k.locks[key]
    if !ok {
        e = &kmEntry{}
        k.locks[key] = e
    }
    e.refs++
    k.mu.Unlock()

    e.mu.Lock()
    return func() {
        e.mu.Unlock()
        k.mu.Lock()
        e.refs--
        if e.refs == 0 { delete(k.locks, key) }
        k.mu.Unlock()
    }
}
