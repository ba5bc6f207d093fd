package orchestrator

import "sync"

// lockEntry holds the mutex of one thread and the number of holders.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// threadLocks serializes turns per thread id. Entries are dropped once no
// request holds or waits for them.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*lockEntry)}
}

// lock blocks until threadID is free and returns the matching unlock.
func (l *threadLocks) lock(threadID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[threadID]
	if !ok {
		entry = &lockEntry{}
		l.locks[threadID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		defer l.mu.Unlock()
		entry.refs--
		if entry.refs <= 0 {
			delete(l.locks, threadID)
		}
	}
}

func (l *threadLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
