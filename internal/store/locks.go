package store

import (
	"sync"

	"github.com/puzpuzpuz/xsync"
)

// Locks is a set of per-path mutexes. Writers to different paths never
// contend; writers to the same path are serialised.
//
// Entries are never removed. Each costs a few dozen bytes and the working set
// is bounded by the number of distinct paths written in the process lifetime.
type Locks struct {
	m *xsync.MapOf[string, *sync.Mutex]
}

func NewLocks() *Locks {
	return &Locks{m: xsync.NewMapOf[*sync.Mutex]()}
}

// Lock acquires the mutex for key and returns its unlock function.
func (l *Locks) Lock(key string) (unlock func()) {
	mu, _ := l.m.LoadOrStore(key, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}
