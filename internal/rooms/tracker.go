package rooms

import (
	"sync"

	"parley/internal/session"

	"github.com/samber/lo"
)

// Tracker maps a conversation to the connections actively viewing it.
// Membership is per connection and independent of the user's presence.
type Tracker struct {
	mu      sync.RWMutex
	members map[string]map[string]session.Conn // conversationID -> connID -> conn
	joined  map[string]map[string]struct{}     // connID -> set of conversationIDs
}

func NewTracker() *Tracker {
	return &Tracker{
		members: make(map[string]map[string]session.Conn),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (t *Tracker) Join(conn session.Conn, conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.members[conversationID]
	if !ok {
		room = make(map[string]session.Conn)
		t.members[conversationID] = room
	}
	room[conn.ID()] = conn

	rooms, ok := t.joined[conn.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		t.joined[conn.ID()] = rooms
	}
	rooms[conversationID] = struct{}{}
}

// Leave removes conn from the room. Leaving a room the connection is not in is a no-op.
func (t *Tracker) Leave(conn session.Conn, conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.leaveLocked(conn.ID(), conversationID)
}

// RemoveAll drops conn from every room it joined and returns those rooms.
func (t *Tracker) RemoveAll(conn session.Conn) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	left := lo.Keys(t.joined[conn.ID()])
	for _, conversationID := range left {
		t.leaveLocked(conn.ID(), conversationID)
	}
	return left
}

// MembersOf returns a snapshot of the room's connections. It is never nil.
func (t *Tracker) MembersOf(conversationID string) []session.Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room, ok := t.members[conversationID]
	if !ok {
		return []session.Conn{}
	}
	return lo.Values(room)
}

func (t *Tracker) IsMember(conn session.Conn, conversationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.members[conversationID][conn.ID()]
	return ok
}

// RoomsOf returns the conversations conn has joined.
func (t *Tracker) RoomsOf(conn session.Conn) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return lo.Keys(t.joined[conn.ID()])
}

func (t *Tracker) leaveLocked(connID, conversationID string) {
	if room, ok := t.members[conversationID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(t.members, conversationID)
		}
	}
	if rooms, ok := t.joined[connID]; ok {
		delete(rooms, conversationID)
		if len(rooms) == 0 {
			delete(t.joined, connID)
		}
	}
}
