package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/service"
)

// AnalyticsHandler serves the aggregate P&L endpoint behind the dashboard
// header.
type AnalyticsHandler struct {
	positions *service.PositionService
	logger    *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(positions *service.PositionService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		positions: positions,
		logger:    logHandler(logger, "analytics"),
	}
}

// PnL returns daily realized, total unrealized, open position count and
// trades today for a user.
// GET /api/analytics/pnl?user_id=...
func (h *AnalyticsHandler) PnL(w http.ResponseWriter, r *http.Request) {
	summary, err := h.positions.PnL(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
