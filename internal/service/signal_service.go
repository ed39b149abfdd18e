package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// SignalService owns the trade-signal lifecycle: it arbitrates confirm and
// reject decisions against the store's atomic guard, and after every
// successful transition publishes the updated record on signals:updated plus
// a notification for the owning user, so the surface that did not originate
// the decision can reconcile its rendering.
type SignalService struct {
	signals domain.SignalStore
	bus     domain.EventBus
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewSignalService creates a SignalService with all required dependencies.
// The audit store may be nil (transitions are then unaudited but still echo).
func NewSignalService(
	signals domain.SignalStore,
	bus domain.EventBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SignalService {
	return &SignalService{
		signals: signals,
		bus:     bus,
		audit:   audit,
		logger:  logger.With(slog.String("component", "signal_service")),
	}
}

// Confirm records a confirm decision for a pending signal. Exactly one of
// any set of racing confirm/reject calls succeeds; the losers receive
// domain.ErrAlreadyProcessed. The store's conditional update is the only
// lock taken.
func (s *SignalService) Confirm(ctx context.Context, id, actorID, source string) (domain.TradeSignal, error) {
	d, err := buildDecision(id, actorID, source)
	if err != nil {
		return domain.TradeSignal{}, err
	}

	sig, err := s.signals.Confirm(ctx, id, d)
	if err != nil {
		return domain.TradeSignal{}, err
	}

	s.logger.InfoContext(ctx, "signal confirmed",
		slog.String("signal_id", sig.ID),
		slog.String("actor_id", d.ActorID),
		slog.String("source", string(d.Source)),
	)

	s.afterTransition(ctx, sig, "signal_confirmed", d)
	return sig, nil
}

// Reject records a reject decision for a pending signal. Symmetric to Confirm.
func (s *SignalService) Reject(ctx context.Context, id, actorID, source string) (domain.TradeSignal, error) {
	d, err := buildDecision(id, actorID, source)
	if err != nil {
		return domain.TradeSignal{}, err
	}

	sig, err := s.signals.Reject(ctx, id, d)
	if err != nil {
		return domain.TradeSignal{}, err
	}

	s.logger.InfoContext(ctx, "signal rejected",
		slog.String("signal_id", sig.ID),
		slog.String("actor_id", d.ActorID),
		slog.String("source", string(d.Source)),
	)

	s.afterTransition(ctx, sig, "signal_rejected", d)
	return sig, nil
}

// Expire transitions a single pending signal to expired if its expiration
// time has passed. A decision that beat the timer wins; the caller observes
// ErrAlreadyProcessed and must not override.
func (s *SignalService) Expire(ctx context.Context, id string) (domain.TradeSignal, error) {
	sig, err := s.signals.Expire(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.TradeSignal{}, err
	}

	s.logger.InfoContext(ctx, "signal expired", slog.String("signal_id", sig.ID))
	s.afterTransition(ctx, sig, "signal_expired", domain.Decision{})
	return sig, nil
}

// Get returns a single signal by id.
func (s *SignalService) Get(ctx context.Context, id string) (domain.TradeSignal, error) {
	return s.signals.GetByID(ctx, id)
}

// ListPending returns a user's pending signals.
func (s *SignalService) ListPending(ctx context.Context, userID string) ([]domain.TradeSignal, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	return s.signals.ListPending(ctx, userID)
}

// ListHistory returns a user's signal history with pagination.
func (s *SignalService) ListHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.TradeSignal, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	return s.signals.ListHistory(ctx, userID, opts)
}

// afterTransition publishes the echo event and notification and records the
// audit row. All of it is best effort: the transition is already durable,
// and a bus or audit failure must not turn a successful decision into an
// error for the caller.
func (s *SignalService) afterTransition(ctx context.Context, sig domain.TradeSignal, event string, d domain.Decision) {
	payload, err := json.Marshal(sig)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal signal for echo",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.bus.Publish(ctx, domain.ChannelSignalsUpdated, payload); err != nil {
		s.logger.WarnContext(ctx, "publish signal update failed",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
	}

	notif, _ := json.Marshal(domain.Notification{
		UserID:  sig.UserID,
		Title:   notificationTitle(sig.Status, sig.Symbol),
		Message: fmt.Sprintf("Signal %s is now %s", sig.ID, sig.Status),
		Type:    event,
	})
	if err := s.bus.Publish(ctx, domain.NotificationChannel(sig.UserID), notif); err != nil {
		s.logger.WarnContext(ctx, "publish notification failed",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.audit != nil {
		detail := map[string]any{
			"signal_id": sig.ID,
			"user_id":   sig.UserID,
			"status":    string(sig.Status),
		}
		if d.ActorID != "" {
			detail["actor_id"] = d.ActorID
			detail["source"] = string(d.Source)
		}
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func buildDecision(id, actorID, source string) (domain.Decision, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Decision{}, fmt.Errorf("%w: signal id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(actorID) == "" {
		return domain.Decision{}, fmt.Errorf("%w: actor id is required", domain.ErrValidation)
	}
	if !domain.ValidConfirmSource(source) {
		return domain.Decision{}, fmt.Errorf("%w: unknown confirmation source %q", domain.ErrValidation, source)
	}

	return domain.Decision{
		ActorID: strings.TrimSpace(actorID),
		Source:  domain.ConfirmSource(strings.ToLower(strings.TrimSpace(source))),
		At:      time.Now().UTC(),
	}, nil
}

func notificationTitle(status domain.SignalStatus, symbol string) string {
	switch status {
	case domain.SignalStatusConfirmed:
		return "Trade confirmed: " + symbol
	case domain.SignalStatusRejected:
		return "Trade rejected: " + symbol
	case domain.SignalStatusExpired:
		return "Signal expired: " + symbol
	}
	return "Signal update: " + symbol
}

// IsDecided reports whether err represents the expected loser outcome of a
// decision race rather than a failure.
func IsDecided(err error) bool {
	return errors.Is(err, domain.ErrAlreadyProcessed)
}
