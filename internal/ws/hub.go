package ws

import (
	"context"
	"log/slog"
	"sync"

	"parley/internal/chat"
	"parley/internal/delivery"
	"parley/internal/models"
	"parley/internal/presence"
	"parley/internal/registry"
	"parley/internal/rooms"
	"parley/internal/session"
)

// Store is everything the hub needs from persistence.
type Store interface {
	chat.Store
	delivery.Contacts
	presence.Store
}

// Hub wires connections to rooms, presence, the message pipeline and delivery.
type Hub struct {
	// lifecycle orders room joins against disconnects, so a connection that
	// was unregistered can never be added to a room again.
	lifecycle sync.Mutex

	registry *registry.Registry
	rooms    *rooms.Tracker
	presence *presence.Manager
	pipeline *chat.Pipeline
	router   *delivery.Router
	typing   *delivery.TypingRelay
	log      *slog.Logger
}

func NewHub(store Store, log *slog.Logger) *Hub {
	h := &Hub{
		rooms: rooms.NewTracker(),
		log:   log,
	}
	h.registry = registry.New(transitions{h})
	h.router = delivery.NewRouter(delivery.Config{
		Connections: h.registry,
		Rooms:       h.rooms,
		Contacts:    store,
		Evict:       h.evict,
		Log:         log,
	})
	h.presence = presence.NewManager(store, h.router, log)
	h.typing = delivery.NewTypingRelay(h.router)
	h.pipeline = chat.New(chat.Config{
		Store:     store,
		Deliverer: h.router,
		Log:       log,
	})
	return h
}

// transitions forwards registry online and offline transitions to presence.
type transitions struct {
	h *Hub
}

func (t transitions) Online(userID string)  { t.h.presence.Online(userID) }
func (t transitions) Offline(userID string) { t.h.presence.Offline(userID) }

// Run drives presence persistence until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.presence.Run(ctx)
}

func (h *Hub) Connect(conn session.Conn) {
	h.registry.Register(conn)
	h.log.Debug("connection registered", "conn_id", conn.ID(), "user_id", conn.UserID())
}

// Disconnect drops every room membership of conn and then unregisters it.
// Calling it more than once is harmless.
func (h *Hub) Disconnect(conn session.Conn) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	h.rooms.RemoveAll(conn)
	if h.registry.Unregister(conn) {
		h.log.Debug("connection unregistered", "conn_id", conn.ID(), "user_id", conn.UserID())
	}
}

// Join adds conn to the conversation's room. The user must be a participant.
// A connection that is no longer registered is not added.
func (h *Hub) Join(conn session.Conn, conversationID string) error {
	if _, err := h.pipeline.Authorize(conversationID, conn.UserID()); err != nil {
		return err
	}

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	if !h.registry.Has(conn) {
		h.log.Debug("join after disconnect ignored", "conn_id", conn.ID(), "conversation_id", conversationID)
		return nil
	}
	h.rooms.Join(conn, conversationID)
	return nil
}

func (h *Hub) Leave(conn session.Conn, conversationID string) {
	h.rooms.Leave(conn, conversationID)
}

func (h *Hub) Submit(ctx context.Context, req chat.SubmitRequest) (models.Message, error) {
	return h.pipeline.Submit(ctx, req)
}

func (h *Hub) History(ctx context.Context, conversationID, userID string, from int64, limit int) ([]models.Message, error) {
	return h.pipeline.History(ctx, conversationID, userID, from, limit)
}

func (h *Hub) StartTyping(conn session.Conn, conversationID string) {
	h.typing.Start(conversationID, conn)
}

func (h *Hub) StopTyping(conn session.Conn, conversationID string) {
	h.typing.Stop(conversationID, conn)
}

func (h *Hub) IsOnline(userID string) bool {
	return h.registry.IsOnline(userID)
}

// DisconnectUser closes every connection of the user and returns how many there were.
func (h *Hub) DisconnectUser(userID string) int {
	conns := h.registry.ConnectionsOf(userID)
	for _, conn := range conns {
		h.evict(conn)
	}
	return len(conns)
}

// CloseAll closes every live connection.
func (h *Hub) CloseAll() {
	for _, userID := range h.registry.OnlineUsers() {
		h.DisconnectUser(userID)
	}
}

type closer interface {
	Close()
}

func (h *Hub) evict(conn session.Conn) {
	h.Disconnect(conn)
	if c, ok := conn.(closer); ok {
		c.Close()
	}
}
