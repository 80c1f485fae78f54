package storage

import "sync"

// namedLocks provides mutual exclusion per logical file name, so that
// concurrent operations on the same name are serialized while operations on
// distinct names proceed independently.
type namedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newNamedLocks() *namedLocks {
	return &namedLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for id and returns its unlock function.
func (n *namedLocks) acquire(id string) func() {
	n.mu.Lock()
	l, ok := n.locks[id]
	if !ok {
		l = &sync.Mutex{}
		n.locks[id] = l
	}
	n.mu.Unlock()

	l.Lock()
	return l.Unlock
}
