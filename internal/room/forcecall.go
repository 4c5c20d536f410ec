package room

import "sync"

// ForceCalls tracks the leader's all-hands override per room. The flag is
// deliberately process-local: it dies with the session engine rather than
// lingering in the database after a crash.
type ForceCalls struct {
	mu     sync.RWMutex
	active map[string]bool
}

func NewForceCalls() *ForceCalls {
	return &ForceCalls{active: make(map[string]bool)}
}

func (f *ForceCalls) Set(roomID string, active bool) {
	f.mu.Lock()
	if active {
		f.active[roomID] = true
	} else {
		delete(f.active, roomID)
	}
	f.mu.Unlock()
}

func (f *ForceCalls) Active(roomID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active[roomID]
}

func (f *ForceCalls) Forget(roomID string) {
	f.mu.Lock()
	delete(f.active, roomID)
	f.mu.Unlock()
}
