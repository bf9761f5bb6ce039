package routing

import "sync"

// callLocks hands out one mutex per call SID so that events for the same
// call are applied strictly in arrival order while unrelated calls proceed
// in parallel. Entries are reference counted and removed once the last
// holder unlocks, so the map does not grow with call history.
type callLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newCallLocks() *callLocks {
	return &callLocks{entries: make(map[string]*lockEntry)}
}

func (l *callLocks) lock(callSID string) {
	l.mu.Lock()
	e, ok := l.entries[callSID]
	if !ok {
		e = &lockEntry{}
		l.entries[callSID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

func (l *callLocks) unlock(callSID string) {
	l.mu.Lock()
	e, ok := l.entries[callSID]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(l.entries, callSID)
		}
	}
	l.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}
