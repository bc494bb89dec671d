package registry

import (
	"sync"

	"parley/internal/session"

	"github.com/samber/lo"
)

// TransitionObserver is told when a user gets its first connection and when it
// loses its last one. It is called with the registry lock held and must not block.
type TransitionObserver interface {
	Online(userID string)
	Offline(userID string)
}

// Registry maps a user to the set of its live connections.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]map[string]session.Conn // userID -> connID -> conn
	observer TransitionObserver
}

func New(observer TransitionObserver) *Registry {
	return &Registry{
		conns:    make(map[string]map[string]session.Conn),
		observer: observer,
	}
}

// Register adds conn under its user. Registering the same connection twice is a no-op.
func (r *Registry) Register(conn session.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := conn.UserID()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]session.Conn)
		r.conns[userID] = set
	}
	if _, exists := set[conn.ID()]; exists {
		return
	}
	set[conn.ID()] = conn

	if len(set) == 1 && r.observer != nil {
		r.observer.Online(userID)
	}
}

// Unregister removes conn and reports whether it was registered.
func (r *Registry) Unregister(conn session.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := conn.UserID()
	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, exists := set[conn.ID()]; !exists {
		return false
	}
	delete(set, conn.ID())

	if len(set) == 0 {
		delete(r.conns, userID)
		if r.observer != nil {
			r.observer.Offline(userID)
		}
	}
	return true
}

// ConnectionsOf returns a snapshot of the user's connections. It is never nil.
func (r *Registry) ConnectionsOf(userID string) []session.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.conns[userID]
	if !ok {
		return []session.Conn{}
	}
	return lo.Values(set)
}

// Has reports whether conn is currently registered.
func (r *Registry) Has(conn session.Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[conn.UserID()][conn.ID()]
	return ok
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[userID]) > 0
}

// OnlineUsers returns the ids of all users with at least one connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.conns)
}
