package chat

import "sync"

// convLocks serializes commit and delivery per conversation. Entries are
// reference counted and dropped when nobody holds or waits for them.
type convLocks struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{locks: make(map[string]*convLock)}
}

// Lock blocks until the conversation is free and returns the unlock function.
func (l *convLocks) Lock(conversationID string) func() {
	l.mu.Lock()
	cl, ok := l.locks[conversationID]
	if !ok {
		cl = &convLock{}
		l.locks[conversationID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()

	return func() {
		cl.mu.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, conversationID)
		}
		l.mu.Unlock()
	}
}
