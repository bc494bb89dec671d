package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"parley/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *BboltStorage {
	t.Helper()
	store, err := NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorage(t *testing.T) {
	store := newTestStorage(t)
	now := time.Now().UnixMilli()

	t.Run("Users", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.CreateUser(models.User{ID: "u1", UserName: "alice", DisplayName: "Alice"}))
		req.NoError(store.CreateUser(models.User{ID: "u2", UserName: "bob", DisplayName: "Bob"}))

		err := store.CreateUser(models.User{ID: "u3", UserName: "alice"})
		req.ErrorIs(err, ErrUserExists)

		users, err := store.ListUsers()
		req.NoError(err)
		req.Len(users, 2)
		req.Equal("Alice", users[0].DisplayName)

		_, err = store.GetUser("missing")
		req.ErrorIs(err, models.ErrNotFound)
	})

	t.Run("Presence", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.SetPresence("u1", models.Presence{Online: false, LastSeen: 1234}))
		req.NoError(store.SetPresence("u1", models.Presence{Online: true}))

		u, err := store.GetUser("u1")
		req.NoError(err)
		req.True(u.Presence.Online)
		// Going online keeps the last offline timestamp.
		req.Equal(int64(1234), u.Presence.LastSeen)

		req.NoError(store.SetPresence("u1", models.Presence{Online: false, LastSeen: 5678}))
		u, err = store.GetUser("u1")
		req.NoError(err)
		req.False(u.Presence.Online)
		req.Equal(int64(5678), u.Presence.LastSeen)

		req.ErrorIs(store.SetPresence("missing", models.Presence{Online: true}), models.ErrNotFound)
	})

	t.Run("Conversation", func(t *testing.T) {
		req := require.New(t)
		conv, created, err := store.CreateConversation("c1", "u2", "u1", now)
		req.NoError(err)
		req.True(created)
		req.Equal([2]string{"u1", "u2"}, conv.Participants)

		// Same unordered pair returns the existing conversation.
		again, created, err := store.CreateConversation("c2", "u1", "u2", now)
		req.NoError(err)
		req.False(created)
		req.Equal("c1", again.ID)

		_, _, err = store.CreateConversation("c3", "u1", "u1", now)
		req.ErrorIs(err, ErrSelfConversation)

		_, _, err = store.CreateConversation("c4", "u1", "ghost", now)
		req.ErrorIs(err, models.ErrNotFound)

		_, err = store.GetConversation("c2")
		req.ErrorIs(err, models.ErrNotFound)
	})

	t.Run("Messages", func(t *testing.T) {
		req := require.New(t)
		m1, err := store.AppendMessage(models.Message{
			ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hello",
			Kind: models.MessageKindText, Timestamp: now,
		}, "hello")
		req.NoError(err)
		req.Equal(int64(1), m1.Seq)

		m2, err := store.AppendMessage(models.Message{
			ID: "m2", ConversationID: "c1", SenderID: "u2", Kind: models.MessageKindImage, Timestamp: now,
			Attachment: &models.Attachment{URL: "/api/attachments/f1", Name: "cat.png", MimeType: "image/png"},
		}, "shared an attachment: cat.png")
		req.NoError(err)
		req.Equal(int64(2), m2.Seq)

		msgs, err := store.ListMessages("c1", 0, 0)
		req.NoError(err)
		req.Len(msgs, 2)
		req.Equal("hello", msgs[0].Content)
		req.Equal(models.MessageKindImage, msgs[1].Kind)
		req.NotNil(msgs[1].Attachment)
		req.Equal("cat.png", msgs[1].Attachment.Name)

		msgs, err = store.ListMessages("c1", 2, 10)
		req.NoError(err)
		req.Len(msgs, 1)
		req.Equal("m2", msgs[0].ID)

		msgs, err = store.ListMessages("c1", 0, 1)
		req.NoError(err)
		req.Len(msgs, 1)
		req.Equal("m1", msgs[0].ID)

		conv, err := store.GetConversation("c1")
		req.NoError(err)
		req.Equal(int64(2), conv.LastSeq)
		req.Equal("shared an attachment: cat.png", conv.LastMessageSummary)
		req.Equal(now, conv.LastMessageAt)
	})

	t.Run("AppendToMissingConversation", func(t *testing.T) {
		req := require.New(t)
		_, err := store.AppendMessage(models.Message{ID: "x", ConversationID: "nope", Timestamp: now}, "x")
		req.True(errors.Is(err, models.ErrNotFound))

		msgs, err := store.ListMessages("nope", 0, 0)
		req.NoError(err)
		req.Empty(msgs)
	})

	t.Run("ListConversations", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.CreateUser(models.User{ID: "u3", UserName: "carol", DisplayName: "Carol"}))
		_, _, err := store.CreateConversation("c5", "u1", "u3", now+1000)
		req.NoError(err)

		convs, err := store.ListConversations("u1")
		req.NoError(err)
		req.Len(convs, 2)
		// c5 was created after the last message in c1.
		req.Equal("c5", convs[0].ID)

		_, err = store.AppendMessage(models.Message{ID: "m3", ConversationID: "c1", SenderID: "u1", Timestamp: now + 2000}, "later")
		req.NoError(err)
		convs, err = store.ListConversations("u1")
		req.NoError(err)
		req.Equal("c1", convs[0].ID)

		convs, err = store.ListConversations("u2")
		req.NoError(err)
		req.Len(convs, 1)
	})

	t.Run("Files", func(t *testing.T) {
		req := require.New(t)
		req.NoError(store.UpsertFileMetadata(FileMetadata{ID: "f1", Hash: "abc", Name: "cat.png", MimeType: "image/png"}))
		meta, err := store.GetFileMetadata("f1")
		req.NoError(err)
		req.Equal("abc", meta.Hash)

		_, err = store.GetFileMetadata("f2")
		req.ErrorIs(err, models.ErrNotFound)
	})
}
