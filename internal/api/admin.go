package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"parley/internal/content"
	"parley/internal/models"
	"parley/internal/storage"

	"github.com/google/uuid"
)

type TokenIssuer interface {
	IssueToken(userID string) (string, int64, error)
}

type UserStore interface {
	CreateUser(user models.User) error
	GetUser(id string) (models.User, error)
}

type Disconnector interface {
	DisconnectUser(userID string) int
}

type AdminHandler struct {
	tokens TokenIssuer
	users  UserStore
	hub    Disconnector
	log    *slog.Logger
}

func NewAdminHandler(tokens TokenIssuer, users UserStore, hub Disconnector, log *slog.Logger) *AdminHandler {
	return &AdminHandler{tokens: tokens, users: users, hub: hub, log: log}
}

type AddUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

type AddUserResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Username    string `json:"username,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := content.ValidateUsername(req.Username); err != nil {
		h.writeJSON(w, http.StatusBadRequest, AddUserResponse{Message: err.Error()})
		return
	}

	displayName := content.Sanitize(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}

	user := models.User{
		ID:          uuid.NewString(),
		UserName:    req.Username,
		DisplayName: displayName,
	}
	if err := h.users.CreateUser(user); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrUserExists) {
			status = http.StatusConflict
		}
		h.writeJSON(w, status, AddUserResponse{Message: fmt.Sprintf("Failed to create user: %v", err)})
		return
	}

	token, expiry, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		h.log.Error("failed to issue token", "user_id", user.ID, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, AddUserResponse{Message: "Failed to issue token"})
		return
	}

	h.log.Info("user created", "user_id", user.ID, "username", user.UserName)
	h.writeJSON(w, http.StatusOK, AddUserResponse{
		Success:     true,
		UserID:      user.ID,
		Username:    user.UserName,
		Token:       token,
		TokenExpiry: expiry,
	})
}

// DisconnectUserHandler closes every live connection of a user.
func (h *AdminHandler) DisconnectUserHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, err := h.users.GetUser(userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, models.APIResponse{Message: "User not found"})
			return
		}
		h.writeJSON(w, http.StatusInternalServerError, models.APIResponse{Message: err.Error()})
		return
	}

	n := h.hub.DisconnectUser(userID)
	h.log.Info("user disconnected", "user_id", userID, "connections", n)
	h.writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("Closed %d connection(s) of user %s", n, userID),
	})
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to encode response", "error", err)
	}
}
