package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/domain"
	"github.com/alanyoungcy/tradedesk/internal/service"
)

// SignalHandler serves the trade-signal endpoints: lifecycle decisions plus
// the pending and history views the dashboard renders.
type SignalHandler struct {
	signals *service.SignalService
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(signals *service.SignalService, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		logger:  logHandler(logger, "signal"),
	}
}

// decisionRequest is the body for confirm and reject.
type decisionRequest struct {
	UserID string `json:"user_id"`
	Source string `json:"source,omitempty"`
}

// Confirm records a confirm decision on a pending signal.
// POST /api/signals/{id}/confirm
func (h *SignalHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.signals.Confirm)
}

// Reject records a reject decision on a pending signal.
// POST /api/signals/{id}/reject
func (h *SignalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.signals.Reject)
}

func (h *SignalHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id, actorID, source string) (domain.TradeSignal, error),
) {
	id := pathParam(r, "id")

	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		req.Source = string(domain.SourceWeb)
	}

	sig, err := op(r.Context(), id, req.UserID, req.Source)
	if err != nil {
		if !service.IsDecided(err) {
			h.logger.WarnContext(r.Context(), "decision failed",
				slog.String("signal_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"signal":  sig,
	})
}

// Get returns a single signal.
// GET /api/signals/{id}
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	sig, err := h.signals.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// ListPending returns the caller's pending signals.
// GET /api/signals/pending?user_id=...
func (h *SignalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	signals, err := h.signals.ListPending(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if signals == nil {
		signals = []domain.TradeSignal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}

// ListHistory returns the caller's signal history, newest first.
// GET /api/signals/history?user_id=...&limit=...&offset=...
func (h *SignalHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	signals, err := h.signals.ListHistory(r.Context(), r.URL.Query().Get("user_id"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if signals == nil {
		signals = []domain.TradeSignal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": signals})
}
