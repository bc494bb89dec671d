// Package session defines the view of a live client connection shared by the
// registry, the room tracker and the delivery router.
package session

import "parley/internal/models"

// Conn is one live transport session of a user.
type Conn interface {
	// ID is unique per connection.
	ID() string
	// UserID is the identity resolved at handshake. It never changes.
	UserID() string
	// Send enqueues msg without blocking. It returns an error wrapping
	// models.ErrDelivery if the connection is closed or cannot keep up.
	Send(msg models.ServerMessage) error
}
