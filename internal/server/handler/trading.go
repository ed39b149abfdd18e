package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// defaultPauseTTL bounds how long a pause lasts when the client does not
// give one. Pauses always expire; a forgotten pause must not silence the
// signal generator forever.
const defaultPauseTTL = 7 * 24 * time.Hour

// TradingHandler serves the pause/resume toggle consulted by the signal
// generator.
type TradingHandler struct {
	control domain.TradingControl
	logger  *slog.Logger
}

// NewTradingHandler creates a TradingHandler.
func NewTradingHandler(control domain.TradingControl, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{
		control: control,
		logger:  logHandler(logger, "trading"),
	}
}

type pauseRequest struct {
	UserID     string `json:"user_id"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// Pause sets the pause flag for a user.
// POST /api/trading/pause
func (h *TradingHandler) Pause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ttl := defaultPauseTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	if err := h.control.Pause(r.Context(), req.UserID, ttl); err != nil {
		h.logger.ErrorContext(r.Context(), "pause failed",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "paused": true})
}

type resumeRequest struct {
	UserID string `json:"user_id"`
}

// Resume clears the pause flag for a user.
// POST /api/trading/resume
func (h *TradingHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.control.Resume(r.Context(), req.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "paused": false})
}

// Status reports whether trading is paused for a user.
// GET /api/trading/status?user_id=...
func (h *TradingHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	paused, err := h.control.IsPaused(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": paused})
}
