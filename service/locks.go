package service

import (
	"sort"
	"sync"
)

// keyedMutex provides an exclusive section per key. Entries are refcounted
// and removed once the last holder releases, so the map does not grow with
// the number of boards ever touched.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("unlock of unheld key: " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// LockAll acquires the given keys in sorted order so two callers locking
// overlapping key sets cannot deadlock. Duplicate keys are locked once.
// The returned function releases everything.
func (k *keyedMutex) LockAll(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			uniq = append(uniq, key)
		}
	}
	sort.Strings(uniq)
	for _, key := range uniq {
		k.Lock(key)
	}
	return func() {
		for i := len(uniq) - 1; i >= 0; i-- {
			k.Unlock(uniq[i])
		}
	}
}
