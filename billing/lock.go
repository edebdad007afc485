package billing

import "sync"

// recordLocks serializes mutations per record. Entries are reference
// counted and dropped when the last holder unlocks, so the map only holds
// records with work in flight.
type recordLocks struct {
	mu    sync.Mutex
	locks map[RecordID]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

func newRecordLocks() *recordLocks {
	return &recordLocks{locks: make(map[RecordID]*recordLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *recordLocks) lock(id RecordID) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &recordLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *recordLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
