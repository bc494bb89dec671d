package ws

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"parley/internal/chat"
	"parley/internal/models"
	"parley/internal/session/sessiontest"
	"parley/internal/storage"

	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *storage.BboltStorage) {
	t.Helper()
	req := require.New(t)

	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "hub.db"))
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })

	for _, u := range []string{"A", "B", "E"} {
		req.NoError(store.CreateUser(models.User{ID: u, UserName: "user" + u, DisplayName: u}))
	}
	_, created, err := store.CreateConversation("C123", "A", "B", time.Now().UnixMilli())
	req.NoError(err)
	req.True(created)

	return NewHub(store, discardLogger()), store
}

func connect(t *testing.T, h *Hub, userID string, joined ...string) *sessiontest.Conn {
	t.Helper()
	conn := sessiontest.NewConn(userID)
	h.Connect(conn)
	for _, id := range joined {
		require.NoError(t, h.Join(conn, id))
	}
	return conn
}

func TestHub_BothJoinedReceiveBroadcast(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub(t)
	a := connect(t, h, "A", "C123")
	b := connect(t, h, "B", "C123")

	msg, err := h.Submit(context.Background(), chat.SubmitRequest{ConversationID: "C123", SenderID: "A", Body: "hi"})
	req.NoError(err)

	for _, conn := range []*sessiontest.Conn{a, b} {
		msgs := conn.Messages()
		req.Len(msgs, 1)
		req.Equal(models.ServerMessageTypeBroadcast, msgs[0].Type)
		req.Equal(msg, *msgs[0].Message)
	}

	conv, err := store.GetConversation("C123")
	req.NoError(err)
	req.Equal("hi", conv.LastMessageSummary)
	req.Equal(msg.Timestamp, conv.LastMessageAt)
}

func TestHub_OnlineNotJoinedGetsNotification(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)
	a := connect(t, h, "A", "C123")
	b := connect(t, h, "B")

	_, err := h.Submit(context.Background(), chat.SubmitRequest{ConversationID: "C123", SenderID: "A", Body: "hello"})
	req.NoError(err)

	req.Len(a.OfType(models.ServerMessageTypeBroadcast), 1)
	req.Empty(b.OfType(models.ServerMessageTypeBroadcast))

	notes := b.OfType(models.ServerMessageTypeNotification)
	req.Len(notes, 1)
	req.Equal("C123", notes[0].Notification.ConversationID)
	req.Equal("hello", notes[0].Notification.Summary)
	req.Equal("A", notes[0].Notification.SenderID)
}

func TestHub_ImageSummary(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub(t)
	a := connect(t, h, "A")
	connect(t, h, "B", "C123")

	msg, err := h.Submit(context.Background(), chat.SubmitRequest{
		ConversationID: "C123",
		SenderID:       "B",
		Attachment:     &models.Attachment{URL: "/api/attachments/1", Name: "cat.png", MimeType: "image/png"},
	})
	req.NoError(err)
	req.Equal(models.MessageKindImage, msg.Kind)

	conv, err := store.GetConversation("C123")
	req.NoError(err)
	req.Equal("shared an attachment: cat.png", conv.LastMessageSummary)

	notes := a.OfType(models.ServerMessageTypeNotification)
	req.Len(notes, 1)
	req.Equal("shared an attachment: cat.png", notes[0].Notification.Summary)
}

func TestHub_Forbidden(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub(t)
	a := connect(t, h, "A", "C123")
	e := connect(t, h, "E")

	req.ErrorIs(h.Join(e, "C123"), models.ErrForbidden)
	req.ErrorIs(h.Join(e, "nope"), models.ErrNotFound)

	_, err := h.Submit(context.Background(), chat.SubmitRequest{ConversationID: "C123", SenderID: "E", Body: "hi"})
	req.ErrorIs(err, models.ErrForbidden)

	msgs, err := store.ListMessages("C123", 0, 0)
	req.NoError(err)
	req.Empty(msgs)
	req.Empty(a.Messages())
}

func TestHub_DisconnectRemovesMemberships(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)
	connect(t, h, "A", "C123")
	b := connect(t, h, "B", "C123")

	h.Disconnect(b)
	h.Disconnect(b)

	req.Empty(h.rooms.RoomsOf(b))
	req.False(h.IsOnline("B"))
	req.Len(h.rooms.MembersOf("C123"), 1)
}

func TestHub_LeaveSwitchesToNotifications(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)
	connect(t, h, "A", "C123")
	b := connect(t, h, "B", "C123")

	h.Leave(b, "C123")
	h.Leave(b, "C123")

	_, err := h.Submit(context.Background(), chat.SubmitRequest{ConversationID: "C123", SenderID: "A", Body: "still there?"})
	req.NoError(err)
	req.Len(b.OfType(models.ServerMessageTypeNotification), 1)
	req.Empty(b.OfType(models.ServerMessageTypeBroadcast))
}

func TestHub_BroadcastOrder(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)
	connect(t, h, "A", "C123")
	b := connect(t, h, "B", "C123")

	for i := range 10 {
		sender := "A"
		if i%2 == 1 {
			sender = "B"
		}
		_, err := h.Submit(context.Background(), chat.SubmitRequest{ConversationID: "C123", SenderID: sender, Body: "x"})
		req.NoError(err)
	}

	msgs := b.OfType(models.ServerMessageTypeBroadcast)
	req.Len(msgs, 10)
	for i, m := range msgs {
		req.Equal(int64(i+1), m.Message.Seq)
	}
}

func TestHub_EvictsBrokenConnection(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)
	connect(t, h, "A", "C123")
	b := connect(t, h, "B", "C123")
	b.Close()

	_, err := h.Submit(context.Background(), chat.SubmitRequest{ConversationID: "C123", SenderID: "A", Body: "hi"})
	req.NoError(err)

	req.False(h.IsOnline("B"))
	req.Empty(h.rooms.RoomsOf(b))
}

// gatedStore blocks the first GetConversation after armed is set until release is closed.
type gatedStore struct {
	*storage.BboltStorage
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) GetConversation(id string) (models.Conversation, error) {
	if g.armed.CompareAndSwap(true, false) {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.BboltStorage.GetConversation(id)
}

func TestHub_JoinRacingEvictionLeavesNoMembership(t *testing.T) {
	req := require.New(t)
	_, store := newTestHub(t)
	gated := &gatedStore{
		BboltStorage: store,
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	h := NewHub(gated, discardLogger())

	connect(t, h, "A", "C123")
	b1 := connect(t, h, "B")
	b2 := connect(t, h, "B")

	gated.armed.Store(true)
	joined := make(chan error, 1)
	go func() {
		joined <- h.Join(b1, "C123")
	}()

	select {
	case <-gated.entered:
	case <-time.After(time.Second):
		t.Fatal("join did not reach the store")
	}
	h.evict(b1)
	close(gated.release)
	req.NoError(<-joined)

	req.False(h.rooms.IsMember(b1, "C123"))
	req.Empty(h.rooms.RoomsOf(b1))
	req.True(h.IsOnline("B"))

	_, err := h.Submit(context.Background(), chat.SubmitRequest{ConversationID: "C123", SenderID: "A", Body: "hello"})
	req.NoError(err)

	req.Empty(b1.Messages())
	notes := b2.OfType(models.ServerMessageTypeNotification)
	req.Len(notes, 1)
	req.Equal("hello", notes[0].Notification.Summary)
}

func TestHub_TypingRelay(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)
	a := connect(t, h, "A", "C123")
	b := connect(t, h, "B", "C123")

	h.StartTyping(a, "C123")
	h.StopTyping(a, "C123")

	req.Empty(a.Messages())
	msgs := b.Messages()
	req.Len(msgs, 2)
	req.Equal(models.ServerMessageTypeTypingStart, msgs[0].Type)
	req.Equal(models.ServerMessageTypeTypingStop, msgs[1].Type)
}

func TestHub_PresenceLifecycle(t *testing.T) {
	req := require.New(t)
	h, store := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.Run(ctx)
	}()

	b := connect(t, h, "B")
	a1 := connect(t, h, "A")
	a2 := connect(t, h, "A")

	req.Eventually(func() bool {
		u, err := store.GetUser("A")
		return err == nil && u.Presence.Online
	}, time.Second, 5*time.Millisecond)

	req.Eventually(func() bool {
		return len(b.OfType(models.ServerMessageTypePresence)) == 1
	}, time.Second, 5*time.Millisecond)

	h.Disconnect(a1)
	req.True(h.IsOnline("A"))

	h.Disconnect(a2)
	req.False(h.IsOnline("A"))

	cancel()
	req.NoError(<-done)

	u, err := store.GetUser("A")
	req.NoError(err)
	req.False(u.Presence.Online)
	req.NotZero(u.Presence.LastSeen)

	updates := b.OfType(models.ServerMessageTypePresence)
	req.Len(updates, 2)
	req.True(updates[0].Presence.Online)
	req.False(updates[1].Presence.Online)
}

func TestHub_DisconnectUser(t *testing.T) {
	req := require.New(t)
	h, _ := newTestHub(t)
	connect(t, h, "A", "C123")
	connect(t, h, "A")
	b := connect(t, h, "B", "C123")

	req.Equal(2, h.DisconnectUser("A"))
	req.False(h.IsOnline("A"))
	req.Equal(0, h.DisconnectUser("A"))

	h.CloseAll()
	req.False(h.IsOnline("B"))
	req.ErrorIs(b.Send(models.ServerMessage{}), models.ErrDelivery)
}
