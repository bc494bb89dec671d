// Package sessiontest provides an in-memory session.Conn for tests.
package sessiontest

import (
	"fmt"
	"sync"

	"parley/internal/models"

	"github.com/google/uuid"
)

// Conn records every message sent to it.
type Conn struct {
	id     string
	userID string

	mu       sync.Mutex
	messages []models.ServerMessage
	closed   bool
}

func NewConn(userID string) *Conn {
	return &Conn{id: uuid.NewString(), userID: userID}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Send(msg models.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s closed: %w", c.id, models.ErrDelivery)
	}
	c.messages = append(c.messages, msg)
	return nil
}

// Close makes every following Send fail.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Messages returns a copy of everything received so far.
func (c *Conn) Messages() []models.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ServerMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// OfType returns the received messages of the given type.
func (c *Conn) OfType(t models.ServerMessageType) []models.ServerMessage {
	var out []models.ServerMessage
	for _, m := range c.Messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}
