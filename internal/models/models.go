package models

import (
	"slices"
	"strings"
)

// User represents a user in the system.
type User struct {
	ID          string   `json:"id"`
	UserName    string   `json:"userName"`
	DisplayName string   `json:"displayName"`
	Presence    Presence `json:"presence"`
}

// Presence represents the online status of a user.
type Presence struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen,omitempty"` // Unix milliseconds
}

// Conversation is a two-party chat room.
type Conversation struct {
	ID string `json:"id"`
	// Participants are kept sorted so the pair is order independent.
	Participants       [2]string `json:"participants"`
	LastMessageSummary string    `json:"lastMessageSummary,omitempty"`
	LastMessageAt      int64     `json:"lastMessageAt,omitempty"` // Unix milliseconds
	LastSeq            int64     `json:"lastSeq"`
	CreatedAt          int64     `json:"createdAt"`
}

// NewPair returns the canonical participant pair for two user ids.
func NewPair(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (c Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants[:], userID)
}

// Counterpart returns the other participant, or "" if userID is not in the conversation.
func (c Conversation) Counterpart(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindFile  MessageKind = "file"
)

// Attachment describes a file uploaded out-of-band and referenced by a message.
type Attachment struct {
	URL      string `json:"url" validate:"required"`
	Name     string `json:"name" validate:"required"`
	MimeType string `json:"mimeType" validate:"required"`
}

// Kind classifies a message by its attachment.
func (a *Attachment) Kind() MessageKind {
	switch {
	case a == nil:
		return MessageKindText
	case strings.HasPrefix(a.MimeType, "image/"):
		return MessageKindImage
	default:
		return MessageKindFile
	}
}

// Message represents a chat message. Messages are append-only.
type Message struct {
	ID             string      `json:"id"`
	Seq            int64       `json:"seq"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Content        string      `json:"content,omitempty"`
	HTML           string      `json:"html,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Kind           MessageKind `json:"kind"`
	Timestamp      int64       `json:"timestamp"` // Unix milliseconds
}

// Notification is the lightweight event sent to participants that are online
// but not viewing the conversation.
type Notification struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Seq            int64  `json:"seq"`
	SenderID       string `json:"senderId"`
	Summary        string `json:"summary"`
}

// ClientMessage represents a message sent from the client to the server.
type ClientMessage struct {
	Type           ClientMessageType `json:"type"`
	ConversationID string            `json:"conversationId"`
	Content        string            `json:"content,omitempty"`
	Attachment     *Attachment       `json:"attachment,omitempty"`
}

// ServerMessage represents a message to the client.
type ServerMessage struct {
	Type           ServerMessageType `json:"type"`
	ConversationID string            `json:"conversationId,omitempty"`
	UserID         string            `json:"userId,omitempty"`
	Message        *Message          `json:"message,omitempty"`
	Notification   *Notification     `json:"notification,omitempty"`
	Presence       *Presence         `json:"presence,omitempty"`
	Error          *ErrorPayload     `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ClientMessageType string

const (
	ClientMessageTypeJoin       ClientMessageType = "join"
	ClientMessageTypeLeave      ClientMessageType = "leave"
	ClientMessageTypeSend       ClientMessageType = "send"
	ClientMessageTypeTyping     ClientMessageType = "typing"
	ClientMessageTypeStopTyping ClientMessageType = "stopTyping"
)

type ServerMessageType string

const (
	ServerMessageTypeBroadcast    ServerMessageType = "message-broadcast"
	ServerMessageTypeNotification ServerMessageType = "message-notification"
	ServerMessageTypeTypingStart  ServerMessageType = "typing-start"
	ServerMessageTypeTypingStop   ServerMessageType = "typing-stop"
	ServerMessageTypePresence     ServerMessageType = "presence-changed"
	ServerMessageTypeError        ServerMessageType = "error"
)

// APIResponse is the generic JSON envelope for non-data responses.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
