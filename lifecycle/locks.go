package lifecycle

import (
	"slices"
	"sync"
)

// keyedMutex serialises mutations per key. Keyed holders share the global
// read lock; Exclusive takes the global write lock and so waits for every
// keyed holder and blocks new ones.
type keyedMutex struct {
	global sync.RWMutex

	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the locks for keys and returns the function releasing them.
// Keys are taken in sorted order so that overlapping key sets cannot
// deadlock.
func (k *keyedMutex) Lock(keys ...string) (unlock func()) {
	names := slices.Compact(slices.Sorted(slices.Values(keys)))
	k.global.RLock()
	held := make([]*refLock, 0, len(names))
	for _, key := range names {
		l := k.acquire(key)
		l.mu.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(names[i])
		}
		k.global.RUnlock()
	}
}

// Exclusive blocks every keyed mutation until the returned function runs.
func (k *keyedMutex) Exclusive() (unlock func()) {
	k.global.Lock()
	return k.global.Unlock
}

func (k *keyedMutex) acquire(key string) *refLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func certKey(domain string) string { return "cert:" + domain }
func vhostKey(name string) string  { return "vhost:" + name }

const (
	proxyKey     = "proxy"
	localAddrKey = "localaddr"
)
