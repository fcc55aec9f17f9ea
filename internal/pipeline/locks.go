package pipeline

import "sync"

// sessionLocks provides per-session mutual exclusion. Each session id maps
// to its own mutex, created on first use and dropped when no turn holds or
// waits on it, so the map stays proportional to in-flight sessions rather
// than all sessions ever seen.
//
// Contention on one session's lock never blocks turns for other sessions.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the session's lock is held and returns the release
// function. release must be called exactly once.
func (s *sessionLocks) acquire(sessionID string) (release func()) {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}
