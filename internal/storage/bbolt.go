package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"parley/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers         = []byte("users")
	bucketConversations = []byte("conversations")
	bucketPairs         = []byte("conversation_pairs")
	bucketMessages      = []byte("messages")
	bucketFiles         = []byte("files")
)

var (
	ErrUserExists       = errors.New("user already exists")
	ErrSelfConversation = errors.New("conversation needs two distinct users")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketConversations, bucketPairs, bucketMessages, bucketFiles} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// CreateUser stores a new user. User names are unique.
func (s *BboltStorage) CreateUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		err := b.ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbUser.UserName == user.UserName || dbUser.ID == user.ID {
				return ErrUserExists
			}
			return nil
		})
		if err != nil {
			return err
		}

		dbUser := &DBUser{
			ID:          user.ID,
			UserName:    user.UserName,
			DisplayName: user.DisplayName,
			Online:      user.Presence.Online,
			LastSeen:    user.Presence.LastSeen,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = dbUser.toModel()
		return nil
	})
	return user, err
}

// ListUsers returns all users sorted by display name.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, dbUser.toModel())
			return nil
		})
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].DisplayName < users[j].DisplayName
	})
	return users, err
}

// SetPresence updates presence fields of a user in a single transaction.
// LastSeen is only overwritten when the user goes offline.
func (s *BboltStorage) SetPresence(userID string, presence models.Presence) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		dbUser.Online = presence.Online
		if !presence.Online {
			dbUser.LastSeen = presence.LastSeen
		}
		newData, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), newData)
	})
}

// CreateConversation returns the conversation between two users, creating it if needed.
// The boolean reports whether a new conversation was created.
func (s *BboltStorage) CreateConversation(id, userA, userB string, now int64) (models.Conversation, bool, error) {
	if userA == userB {
		return models.Conversation{}, false, ErrSelfConversation
	}
	pair := models.NewPair(userA, userB)

	var (
		conv    models.Conversation
		created bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		for _, userID := range pair {
			if users.Get([]byte(userID)) == nil {
				return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
			}
		}

		convs := tx.Bucket(bucketConversations)
		pairs := tx.Bucket(bucketPairs)
		if existingID := pairs.Get(pairKey(pair)); existingID != nil {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(convs.Get(existingID)); err != nil {
				return fmt.Errorf("failed to unmarshal conversation: %w", err)
			}
			conv = dbConv.toModel()
			return nil
		}

		dbConv := &DBConversation{
			ID:           id,
			Participants: pair[:],
			CreatedAt:    now,
		}
		data, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		if err := convs.Put(dbConv.Key(), data); err != nil {
			return err
		}
		if err := pairs.Put(pairKey(pair), dbConv.Key()); err != nil {
			return err
		}
		conv = dbConv.toModel()
		created = true
		return nil
	})
	return conv, created, err
}

func (s *BboltStorage) GetConversation(id string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConversations).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("conversation %s: %w", id, models.ErrNotFound)
		}
		var dbConv DBConversation
		if err := dbConv.UnmarshalBinary(data); err != nil {
			return err
		}
		conv = dbConv.toModel()
		return nil
	})
	return conv, err
}

// ListConversations returns the conversations of a user, most recently active first.
func (s *BboltStorage) ListConversations(userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			conv := dbConv.toModel()
			if conv.HasParticipant(userID) {
				convs = append(convs, conv)
			}
			return nil
		})
	})
	sort.SliceStable(convs, func(i, j int) bool {
		return activity(convs[i]) > activity(convs[j])
	})
	return convs, err
}

func activity(c models.Conversation) int64 {
	if c.LastMessageAt > 0 {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

// AppendMessage assigns the next sequence number, saves the message and updates the
// conversation summary in one transaction. Either both writes are visible or neither.
func (s *BboltStorage) AppendMessage(message models.Message, summary string) (models.Message, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if message.ConversationID == "" {
			return errors.New("message missing conversationID")
		}

		convs := tx.Bucket(bucketConversations)
		convKey := []byte(message.ConversationID)
		convData := convs.Get(convKey)
		if convData == nil {
			return fmt.Errorf("conversation %s: %w", message.ConversationID, models.ErrNotFound)
		}

		var dbConv DBConversation
		if err := dbConv.UnmarshalBinary(convData); err != nil {
			return fmt.Errorf("failed to unmarshal conversation: %w", err)
		}

		dbConv.LastSeq++
		message.Seq = dbConv.LastSeq
		dbConv.LastMessageSummary = summary
		dbConv.LastMessageAt = message.Timestamp

		convBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(convKey)
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		dbMessage := fromMessage(message)
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := convBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		newConvData, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		return convs.Put(convKey, newConvData)
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListMessages returns up to limit messages with Seq >= from, in append order.
// A non-positive limit returns everything after from.
func (s *BboltStorage) ListMessages(conversationID string, from int64, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if convBucket == nil {
			return nil // No messages for this conversation
		}

		c := convBucket.Cursor()
		for k, v := c.Seek(seqKey(from)); k != nil; k, v = c.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.toModel())
		}
		return nil
	})
	return messages, err
}
