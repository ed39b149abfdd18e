package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/service"
)

// UserHandler serves the Discord identity-link endpoints used by the chat
// bridge and the dashboard settings page.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logHandler(logger, "user"),
	}
}

// GetDiscordID returns the Discord user id linked to an account. 404 covers
// both an unknown account and an account with no link.
// GET /api/users/{id}/discord
func (h *UserHandler) GetDiscordID(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")

	discordID, err := h.users.DiscordID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":         userID,
		"discord_user_id": discordID,
	})
}

// GetByDiscordID resolves a Discord user id to an account.
// GET /api/users/by-discord/{discordId}
func (h *UserHandler) GetByDiscordID(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.ByDiscordID(r.Context(), pathParam(r, "discordId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":  u.ID,
		"username": u.Username,
	})
}

type linkDiscordRequest struct {
	UserID        string `json:"user_id"`
	DiscordUserID string `json:"discord_user_id"`
}

// LinkDiscord associates a Discord account with a user.
// POST /api/users/link-discord
func (h *UserHandler) LinkDiscord(w http.ResponseWriter, r *http.Request) {
	var req linkDiscordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.users.LinkDiscord(r.Context(), req.UserID, req.DiscordUserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GetConfig returns a user's trading configuration.
// GET /api/users/{id}/config
func (h *UserHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.users.Config(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
