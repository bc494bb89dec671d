package delivery

import (
	"parley/internal/models"
	"parley/internal/session"
)

// TypingRelay forwards typing indicators to the other connections viewing a
// conversation. Nothing is stored.
type TypingRelay struct {
	router *Router
}

func NewTypingRelay(router *Router) *TypingRelay {
	return &TypingRelay{router: router}
}

func (t *TypingRelay) Start(conversationID string, origin session.Conn) {
	t.relay(conversationID, origin, models.ServerMessageTypeTypingStart)
}

func (t *TypingRelay) Stop(conversationID string, origin session.Conn) {
	t.relay(conversationID, origin, models.ServerMessageTypeTypingStop)
}

// relay is a no-op unless origin has joined the conversation.
func (t *TypingRelay) relay(conversationID string, origin session.Conn, typ models.ServerMessageType) {
	rooms := t.router.rooms
	if !rooms.IsMember(origin, conversationID) {
		return
	}

	msg := models.ServerMessage{
		Type:           typ,
		ConversationID: conversationID,
		UserID:         origin.UserID(),
	}
	for _, conn := range rooms.MembersOf(conversationID) {
		if conn.ID() == origin.ID() {
			continue
		}
		t.router.send(conn, msg)
	}
}
