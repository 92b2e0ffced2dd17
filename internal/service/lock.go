package service

import "sync"

// appLocks serializes runs per application within this process. Acquiring
// never blocks: a second run for the same application is refused.
type appLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newAppLocks() *appLocks {
	return &appLocks{held: make(map[string]bool)}
}

func (l *appLocks) tryLock(applicationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[applicationID] {
		return false
	}
	l.held[applicationID] = true
	return true
}

func (l *appLocks) unlock(applicationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, applicationID)
}
