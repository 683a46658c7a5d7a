package service

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	var a, b int
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		key := []string{"a", "b"}[i%2]
		go func(key string) {
			defer wg.Done()
			km.Lock(key)
			if key == "a" {
				a++
			} else {
				b++
			}
			km.Unlock(key)
		}(key)
	}
	wg.Wait()

	if a != 100 || b != 100 {
		t.Fatalf("a=%d b=%d", a, b)
	}
	if len(km.entries) != 0 {
		t.Fatalf("entries leaked: %d", len(km.entries))
	}
}

func TestLockAllAvoidsDeadlockOnReversedOrder(t *testing.T) {
	km := newKeyedMutex()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := km.LockAll("x", "y")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := km.LockAll("y", "x")
			unlock()
		}()
	}
	wg.Wait()
}

func TestLockAllDeduplicates(t *testing.T) {
	km := newKeyedMutex()
	unlock := km.LockAll("same", "same")
	unlock()
	if len(km.entries) != 0 {
		t.Fatalf("entries leaked: %d", len(km.entries))
	}
}

func TestUnlockUnheldKeyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	newKeyedMutex().Unlock("never")
}
