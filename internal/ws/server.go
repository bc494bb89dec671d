package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	GetUserID(token string) (string, error)
}

type ServerConfig struct {
	SendBuffer   int
	PingInterval time.Duration
}

type Server struct {
	auth     Authenticator
	hub      *Hub
	upgrader *websocket.Upgrader
	config   ServerConfig
	log      *slog.Logger
}

func NewServer(auth Authenticator, hub *Hub, config ServerConfig, log *slog.Logger) *Server {
	return &Server{
		auth:   auth,
		hub:    hub,
		config: config,
		log:    log,
		// A nil CheckOrigin makes gorilla refuse handshakes whose Origin host
		// differs from the request host. The token cookie rides along on those.
		upgrader: &websocket.Upgrader{},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := s.auth.GetUserID(TokenFromRequest(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("error upgrading to websocket", "user_id", userID, "error", err)
		return
	}

	conn := NewConnection(s.hub, newGorillaConn(ws, s.config.PingInterval), userID, ConnectionConfig{
		SendBuffer:   s.config.SendBuffer,
		PingInterval: s.config.PingInterval,
		Log:          s.log,
	})
	if err := conn.Handle(r.Context()); err != nil {
		s.log.Debug("connection closed", "conn_id", conn.ID(), "user_id", userID, "error", err)
	}
}

// TokenFromRequest looks for the session token in the "token" header, then
// the "token" query parameter, then the "token" cookie.
func TokenFromRequest(r *http.Request) string {
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}
