package storage

import (
	"encoding"
	"encoding/binary"

	"parley/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID          string `msgpack:"id"`
	UserName    string `msgpack:"userName"`
	DisplayName string `msgpack:"displayName"`
	Online      bool   `msgpack:"online"`
	LastSeen    int64  `msgpack:"lastSeen"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) toModel() models.User {
	return models.User{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		Presence: models.Presence{
			Online:   u.Online,
			LastSeen: u.LastSeen,
		},
	}
}

type DBConversation struct {
	ID                 string   `msgpack:"id"`
	Participants       []string `msgpack:"participants"`
	LastMessageSummary string   `msgpack:"lastMessageSummary"`
	LastMessageAt      int64    `msgpack:"lastMessageAt"`
	LastSeq            int64    `msgpack:"lastSeq"`
	CreatedAt          int64    `msgpack:"createdAt"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

func (c *DBConversation) toModel() models.Conversation {
	conv := models.Conversation{
		ID:                 c.ID,
		LastMessageSummary: c.LastMessageSummary,
		LastMessageAt:      c.LastMessageAt,
		LastSeq:            c.LastSeq,
		CreatedAt:          c.CreatedAt,
	}
	if len(c.Participants) == 2 {
		conv.Participants = models.NewPair(c.Participants[0], c.Participants[1])
	}
	return conv
}

// pairKey indexes a conversation by its unordered participant pair.
func pairKey(pair [2]string) []byte {
	return []byte(pair[0] + "\x00" + pair[1])
}

type DBMessage struct {
	ID             string        `msgpack:"id"`
	Seq            int64         `msgpack:"seq"`
	Timestamp      int64         `msgpack:"timestamp"`
	ConversationID string        `msgpack:"conversationId"`
	SenderID       string        `msgpack:"senderId"`
	Content        string        `msgpack:"content"`
	HTML           string        `msgpack:"html"`
	Kind           string        `msgpack:"kind"`
	Attachment     *DBAttachment `msgpack:"attachment"`
}

type DBAttachment struct {
	URL      string `msgpack:"url"`
	Name     string `msgpack:"name"`
	MimeType string `msgpack:"mimeType"`
}

// Key is the big-endian sequence number, so cursor order is append order.
func (m *DBMessage) Key() []byte {
	return seqKey(m.Seq)
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func fromMessage(m models.Message) DBMessage {
	dbMessage := DBMessage{
		ID:             m.ID,
		Seq:            m.Seq,
		Timestamp:      m.Timestamp,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		HTML:           m.HTML,
		Kind:           string(m.Kind),
	}
	if m.Attachment != nil {
		dbMessage.Attachment = &DBAttachment{
			URL:      m.Attachment.URL,
			Name:     m.Attachment.Name,
			MimeType: m.Attachment.MimeType,
		}
	}
	return dbMessage
}

func (m *DBMessage) toModel() models.Message {
	msg := models.Message{
		ID:             m.ID,
		Seq:            m.Seq,
		Timestamp:      m.Timestamp,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		HTML:           m.HTML,
		Kind:           models.MessageKind(m.Kind),
	}
	if m.Attachment != nil {
		msg.Attachment = &models.Attachment{
			URL:      m.Attachment.URL,
			Name:     m.Attachment.Name,
			MimeType: m.Attachment.MimeType,
		}
	}
	return msg
}
