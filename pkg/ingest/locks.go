package ingest

import "sync"

// storyLocks hands out one mutex per story id and frees it when the last
// holder unlocks.
type storyLocks struct {
	mu    sync.Mutex
	locks map[string]*storyLock
}

type storyLock struct {
	sync.Mutex
	refs int
}

func (s *storyLocks) lock(storyID string) (unlock func()) {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*storyLock)
	}
	l, ok := s.locks[storyID]
	if !ok {
		l = new(storyLock)
		s.locks[storyID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, storyID)
		}
		s.mu.Unlock()
	}
}
