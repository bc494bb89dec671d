package delivery

import (
	"log/slog"

	"parley/internal/chat"
	"parley/internal/models"
	"parley/internal/session"

	"github.com/samber/lo"
)

type Connections interface {
	ConnectionsOf(userID string) []session.Conn
}

type Rooms interface {
	MembersOf(conversationID string) []session.Conn
	IsMember(conn session.Conn, conversationID string) bool
}

// Contacts lists the conversations a user takes part in.
type Contacts interface {
	ListConversations(userID string) ([]models.Conversation, error)
}

// EvictFunc drops a connection whose Send failed. It must remove the connection
// from rooms and the registry before returning.
type EvictFunc func(conn session.Conn)

type Config struct {
	Connections Connections
	Rooms       Rooms
	Contacts    Contacts
	Evict       EvictFunc
	Log         *slog.Logger
}

// Router decides, per participant, whether a committed message is broadcast,
// announced as a notification or not sent at all.
type Router struct {
	conns    Connections
	rooms    Rooms
	contacts Contacts
	evict    EvictFunc
	log      *slog.Logger
}

func NewRouter(config Config) *Router {
	return &Router{
		conns:    config.Connections,
		rooms:    config.Rooms,
		contacts: config.Contacts,
		evict:    config.Evict,
		log:      config.Log,
	}
}

// Deliver sends msg to the participants of conv. Connections joined to the
// conversation get the full message. A participant with no joined connection
// gets one notification per connection if online, and nothing if offline.
func (r *Router) Deliver(conv models.Conversation, msg models.Message) {
	members := r.rooms.MembersOf(conv.ID)

	for _, participant := range conv.Participants {
		joined := lo.Filter(members, func(c session.Conn, _ int) bool {
			return c.UserID() == participant
		})
		if len(joined) > 0 {
			r.sendAll(joined, models.ServerMessage{
				Type:           models.ServerMessageTypeBroadcast,
				ConversationID: conv.ID,
				Message:        &msg,
			})
			continue
		}

		conns := r.conns.ConnectionsOf(participant)
		if len(conns) == 0 {
			continue
		}
		r.sendAll(conns, models.ServerMessage{
			Type:           models.ServerMessageTypeNotification,
			ConversationID: conv.ID,
			Notification: &models.Notification{
				ConversationID: conv.ID,
				MessageID:      msg.ID,
				Seq:            msg.Seq,
				SenderID:       msg.SenderID,
				Summary:        chat.Summarize(msg),
			},
		})
	}
}

// PresenceChanged tells every online counterpart of userID about its new presence.
func (r *Router) PresenceChanged(userID string, presence models.Presence) {
	convs, err := r.contacts.ListConversations(userID)
	if err != nil {
		r.log.Warn("failed to list conversations for presence update", "user_id", userID, "error", err)
		return
	}

	counterparts := lo.Uniq(lo.FilterMap(convs, func(c models.Conversation, _ int) (string, bool) {
		other := c.Counterpart(userID)
		return other, other != "" && other != userID
	}))

	for _, other := range counterparts {
		r.sendAll(r.conns.ConnectionsOf(other), models.ServerMessage{
			Type:     models.ServerMessageTypePresence,
			UserID:   userID,
			Presence: &presence,
		})
	}
}

func (r *Router) sendAll(conns []session.Conn, msg models.ServerMessage) {
	for _, conn := range conns {
		r.send(conn, msg)
	}
}

func (r *Router) send(conn session.Conn, msg models.ServerMessage) {
	if err := conn.Send(msg); err != nil {
		r.log.Warn("delivery failed, evicting connection",
			"conn_id", conn.ID(), "user_id", conn.UserID(), "type", msg.Type, "error", err)
		if r.evict != nil {
			r.evict(conn)
		}
	}
}
