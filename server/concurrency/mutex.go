package concurrency

import (
	"context"
	"sync"
)

// SimpleMutex is a channel used for locking.
type SimpleMutex chan struct{}

// NewSimpleMutex creates and returns a new SimpleMutex object.
func NewSimpleMutex() SimpleMutex {
	return make(SimpleMutex, 1)
}

// Lock acquires a lock on the mutex.
func (s SimpleMutex) Lock() {
	s <- struct{}{}
}

// LockContext acquires a lock on the mutex or gives up when ctx is done.
func (s SimpleMutex) LockContext(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock attempts to acquire a lock on the mutex.
// Returns true if the lock has been acquired, false otherwise.
func (s SimpleMutex) TryLock() bool {
	select {
	case s <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the mutex.
func (s SimpleMutex) Unlock() {
	<-s
}

type keyedEntry struct {
	lock SimpleMutex
	// Number of goroutines holding or waiting for the lock.
	refs int
}

// KeyedMutex is a set of mutexes addressed by string keys. Locks on different
// keys are independent. Entries are created on demand and dropped when no
// goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for the given key. It returns a function which releases
// the lock. If ctx is done before the lock is acquired, the error is returned and
// nothing needs to be released.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e := k.locks[key]
	if e == nil {
		e = &keyedEntry{lock: NewSimpleMutex()}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.lock.LockContext(ctx); err != nil {
		k.release(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.lock.Unlock()
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// Len returns the number of keys currently locked or waited on.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
