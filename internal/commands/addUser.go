package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parley/internal/api"
	"parley/internal/config"
)

// AddUser creates a user through the admin API of a running server and prints
// its session token.
func AddUser(username string, cfg *config.Config, out io.Writer) error {
	reqBody, err := json.Marshal(api.AddUserRequest{Username: username})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result api.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	chatURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/api/chat"
	chatURL = strings.Replace(chatURL, "http", "ws", 1)

	_, _ = fmt.Fprintf(out, "\nUser Created Successfully!\n")
	_, _ = fmt.Fprintf(out, "Username:      %s\n", result.Username)
	_, _ = fmt.Fprintf(out, "User ID:       %s\n", result.UserID)
	_, _ = fmt.Fprintf(out, "Token:         %s\n", result.Token)
	_, _ = fmt.Fprintf(out, "Token expires: %s\n", time.Unix(result.TokenExpiry, 0).Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "Chat endpoint: %s\n\n", chatURL)
	return nil
}
