package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"parley/internal/chat"
	"parley/internal/models"
	"parley/internal/session"

	"github.com/google/uuid"
)

const DefaultSendBuffer = 256

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
	Ping() error
}

type messageHub interface {
	Connect(conn session.Conn)
	Disconnect(conn session.Conn)
	Join(conn session.Conn, conversationID string) error
	Leave(conn session.Conn, conversationID string)
	Submit(ctx context.Context, req chat.SubmitRequest) (models.Message, error)
	StartTyping(conn session.Conn, conversationID string)
	StopTyping(conn session.Conn, conversationID string)
}

type ConnectionConfig struct {
	SendBuffer   int
	PingInterval time.Duration
	Log          *slog.Logger
}

// Connection is one websocket session. It implements session.Conn.
type Connection struct {
	id           string
	userID       string
	ws           wsConnection
	hub          messageHub
	log          *slog.Logger
	pingInterval time.Duration

	fromClient chan models.ClientMessage
	outbound   chan models.ServerMessage
	errorCh    chan error

	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(
	hub messageHub,
	ws wsConnection,
	userID string,
	config ConnectionConfig,
) *Connection {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultSendBuffer
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	id := uuid.NewString()
	return &Connection{
		id:           id,
		userID:       userID,
		ws:           ws,
		hub:          hub,
		log:          config.Log.With("conn_id", id, "user_id", userID),
		pingInterval: config.PingInterval,
		fromClient:   make(chan models.ClientMessage),
		outbound:     make(chan models.ServerMessage, config.SendBuffer),
		errorCh:      make(chan error, 2),
		done:         make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }

// Send queues msg for the writer. It never blocks.
func (c *Connection) Send(msg models.ServerMessage) error {
	select {
	case <-c.done:
		return fmt.Errorf("connection %s closed: %w", c.id, models.ErrDelivery)
	default:
	}

	select {
	case c.outbound <- msg:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full: %w", c.id, models.ErrDelivery)
	}
}

// Close stops the session. Handle returns shortly after.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Handle serves the connection until the client goes away, ctx is done or the
// connection is closed. The hub forgets the connection once no request of it is
// still in flight.
func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.hub.Connect(c)

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	cancel()

	c.Close()
	_ = c.ws.Close()
	wg.Wait()
	c.hub.Disconnect(c)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case msg := <-c.fromClient:
			c.processClientMessage(ctx, msg)
		case msg := <-c.outbound:
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ping:
			if err := c.ws.Ping(); err != nil {
				return err
			}
		case <-c.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientMessage(ctx context.Context, msg models.ClientMessage) {
	var err error
	switch msg.Type {
	case models.ClientMessageTypeJoin:
		err = c.hub.Join(c, msg.ConversationID)
	case models.ClientMessageTypeLeave:
		c.hub.Leave(c, msg.ConversationID)
	case models.ClientMessageTypeSend:
		_, err = c.hub.Submit(ctx, chat.SubmitRequest{
			ConversationID: msg.ConversationID,
			SenderID:       c.userID,
			Body:           msg.Content,
			Attachment:     msg.Attachment,
		})
	case models.ClientMessageTypeTyping:
		c.hub.StartTyping(c, msg.ConversationID)
	case models.ClientMessageTypeStopTyping:
		c.hub.StopTyping(c, msg.ConversationID)
	default:
		err = fmt.Errorf("%w: unknown message type %q", models.ErrInvalidMessage, msg.Type)
	}

	if err != nil {
		c.reportError(msg, err)
	}
}

func (c *Connection) reportError(msg models.ClientMessage, err error) {
	code := models.CodeOf(err)
	if code == models.ErrorCodeInternal || code == models.ErrorCodePersistence {
		c.log.Error("client request failed", "type", msg.Type, "conversation_id", msg.ConversationID, "error", err)
	} else {
		c.log.Debug("client request rejected", "type", msg.Type, "conversation_id", msg.ConversationID, "error", err)
	}

	sendErr := c.Send(models.ServerMessage{
		Type:           models.ServerMessageTypeError,
		ConversationID: msg.ConversationID,
		Error: &models.ErrorPayload{
			Code:    code,
			Message: err.Error(),
		},
	})
	if sendErr != nil {
		c.log.Warn("failed to report error to client", "error", sendErr)
	}
}
