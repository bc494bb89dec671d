package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"parley/internal/api"
	"parley/internal/ws"
)

type APIServer struct {
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, addr string, log *slog.Logger) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("GET /api/users", apiHandlers.RequireAuth(apiHandlers.UsersHandler))
	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("GET /api/conversations", apiHandlers.RequireAuth(apiHandlers.ConversationsHandler))
	mux.HandleFunc("POST /api/conversations", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.StartConversationHandler)))
	mux.HandleFunc("GET /api/conversations/{id}/messages", apiHandlers.RequireAuth(apiHandlers.MessagesHandler))
	mux.HandleFunc("POST /api/conversations/{id}/messages", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.SendMessageHandler)))
	mux.HandleFunc("POST /api/attachments", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UploadAttachmentHandler)))
	mux.HandleFunc("GET /api/attachments/{id}", apiHandlers.RequireAuth(apiHandlers.GetAttachmentHandler))

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		log: log,
	}
}

func (s *APIServer) Start() error {
	s.log.Info("API server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
