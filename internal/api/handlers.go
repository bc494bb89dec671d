package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"parley/internal/chat"
	"parley/internal/filestore"
	"parley/internal/models"
	"parley/internal/storage"
	"parley/internal/ws"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 200
)

type Auth interface {
	GetUserID(token string) (string, error)
	Logoff(token string) error
}

type Store interface {
	GetUser(id string) (models.User, error)
	ListUsers() ([]models.User, error)
	CreateConversation(id, userA, userB string, now int64) (models.Conversation, bool, error)
	ListConversations(userID string) ([]models.Conversation, error)
	UpsertFileMetadata(meta storage.FileMetadata) error
	GetFileMetadata(id string) (storage.FileMetadata, error)
}

type Hub interface {
	Submit(ctx context.Context, req chat.SubmitRequest) (models.Message, error)
	History(ctx context.Context, conversationID, userID string, from int64, limit int) ([]models.Message, error)
}

type Config struct {
	Auth           Auth
	Store          Store
	Hub            Hub
	Files          filestore.FileStore
	MaxUploadBytes int64
	Log            *slog.Logger
}

type API struct {
	auth           Auth
	store          Store
	hub            Hub
	files          filestore.FileStore
	maxUploadBytes int64
	validate       *validator.Validate
	log            *slog.Logger
	now            func() time.Time
}

func New(config Config) *API {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &API{
		auth:           config.Auth,
		store:          config.Store,
		hub:            config.Hub,
		files:          config.Files,
		maxUploadBytes: config.MaxUploadBytes,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		log:            config.Log,
		now:            time.Now,
	}
}

type ctxKey struct{}

// RequireAuth resolves the session token and stores the user id in the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.GetUserID(ws.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	}
}

// RequireSameOrigin rejects browser requests coming from another origin.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(ctxKey{}).(string)
	return userID
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.store.GetUser(userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers()
	if err != nil {
		a.writeError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	a.writeJSON(w, http.StatusOK, users)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := ws.TokenFromRequest(r); token != "" {
		if err := a.auth.Logoff(token); err != nil {
			a.log.Warn("logoff failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

type StartConversationRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// StartConversationHandler returns the conversation with another user, creating it on first use.
func (a *API) StartConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := userIDFrom(r.Context())
	conv, created, err := a.store.CreateConversation(uuid.NewString(), userID, req.UserID, a.now().UnixMilli())
	if err != nil {
		if errors.Is(err, storage.ErrSelfConversation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		a.log.Info("conversation created", "conversation_id", conv.ID, "by", userID)
	}
	a.writeJSON(w, status, conv)
}

func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := a.store.ListConversations(userIDFrom(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	a.writeJSON(w, http.StatusOK, convs)
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from", 0)
	if err != nil || from < 0 {
		http.Error(w, "Invalid from", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	limit = min(limit, maxHistoryLimit)

	messages, err := a.hub.History(r.Context(), r.PathValue("id"), userIDFrom(r.Context()), from, int(limit))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	a.writeJSON(w, http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content    string             `json:"content"`
	Attachment *models.Attachment `json:"attachment,omitempty"`
}

// SendMessageHandler submits a message the same way a websocket client does.
func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := a.hub.Submit(r.Context(), chat.SubmitRequest{
		ConversationID: r.PathValue("id"),
		SenderID:       userIDFrom(r.Context()),
		Body:           req.Content,
		Attachment:     req.Attachment,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, msg)
}

func queryInt(r *http.Request, key string, fallback int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	} else {
		a.log.Error("request failed", "error", err)
	}
	a.writeJSON(w, status, models.APIResponse{Success: false, Message: message})
}

func statusOf(err error) int {
	switch models.CodeOf(err) {
	case models.ErrorCodeNotFound:
		return http.StatusNotFound
	case models.ErrorCodeForbidden:
		return http.StatusForbidden
	case models.ErrorCodeInvalidMessage:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
