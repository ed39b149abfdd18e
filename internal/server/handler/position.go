package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/service"
)

// PositionHandler serves the read-only position endpoints.
type PositionHandler struct {
	positions *service.PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions *service.PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "position"),
	}
}

// List returns a user's portfolio.
// GET /api/positions?user_id=...&status=open|closed
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := domain.PositionStatus(q.Get("status"))
	switch status {
	case "", domain.PositionStatusOpen, domain.PositionStatusClosed:
	default:
		writeError(w, http.StatusBadRequest, "status must be open or closed")
		return
	}

	portfolio, err := h.positions.Portfolio(r.Context(), q.Get("user_id"), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if portfolio.Positions == nil {
		portfolio.Positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// Get returns a single position.
// GET /api/positions/{id}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}
