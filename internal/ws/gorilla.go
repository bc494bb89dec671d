package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// gorillaConn adds deadlines and keepalive pings to a gorilla websocket.
type gorillaConn struct {
	*websocket.Conn
	pongWait time.Duration
}

func newGorillaConn(conn *websocket.Conn, pingInterval time.Duration) *gorillaConn {
	gc := &gorillaConn{Conn: conn}
	conn.SetReadLimit(maxMessageSize)

	if pingInterval > 0 {
		gc.pongWait = 2 * pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(gc.pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(gc.pongWait))
		})
	}
	return gc
}

func (g *gorillaConn) WriteJSON(v any) error {
	if err := g.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return g.Conn.WriteJSON(v)
}

func (g *gorillaConn) Ping() error {
	return g.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
