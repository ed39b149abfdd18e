package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// expiryLockKey guards the sweep so only one process instance expires
// signals at a time, no matter how many gateways are running.
const expiryLockKey = "signal-expiry"

// ExpirySweeper is the authoritative server-side expiry driver. Local timers
// on the chat and web surfaces are optimistic UI only; the sweep is the one
// that writes, and its echo on signals:updated is what the surfaces trust.
type ExpirySweeper struct {
	signals  domain.SignalStore
	bus      domain.EventBus
	locks    domain.LockManager
	interval time.Duration
	logger   *slog.Logger

	// alert is called when a sweep fails outright; wired to the ops
	// notifier. May be nil.
	alert func(ctx context.Context, title, message string)
}

// NewExpirySweeper creates a sweeper that runs every interval. A zero or
// negative interval defaults to 10 seconds.
func NewExpirySweeper(
	signals domain.SignalStore,
	bus domain.EventBus,
	locks domain.LockManager,
	interval time.Duration,
	logger *slog.Logger,
) *ExpirySweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ExpirySweeper{
		signals:  signals,
		bus:      bus,
		locks:    locks,
		interval: interval,
		logger:   logger.With(slog.String("component", "expiry_sweeper")),
	}
}

// SetAlert registers an operator alert callback, typically the ops notifier.
func (e *ExpirySweeper) SetAlert(alert func(ctx context.Context, title, message string)) {
	e.alert = alert
}

// Run executes the sweep loop until the context is cancelled.
func (e *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.InfoContext(ctx, "expiry sweeper started",
		slog.Duration("interval", e.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.ErrorContext(ctx, "expiry sweep failed",
					slog.String("error", err.Error()),
				)
				if e.alert != nil {
					e.alert(ctx, "Expiry sweep failed", err.Error())
				}
			}
		}
	}
}

// SweepOnce expires every due pending signal and publishes the echo for
// each. When another instance holds the sweep lock the call is a no-op.
func (e *ExpirySweeper) SweepOnce(ctx context.Context) error {
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, expiryLockKey, e.interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil
			}
			return err
		}
		defer unlock()
	}

	expired, err := e.signals.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	e.logger.InfoContext(ctx, "expired signals", slog.Int("count", len(expired)))

	for _, sig := range expired {
		payload, err := json.Marshal(sig)
		if err != nil {
			continue
		}
		if err := e.bus.Publish(ctx, domain.ChannelSignalsUpdated, payload); err != nil {
			e.logger.WarnContext(ctx, "publish expiry update failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
		}

		notif, _ := json.Marshal(domain.Notification{
			UserID:  sig.UserID,
			Title:   "Signal expired: " + sig.Symbol,
			Message: "The signal expired without a decision.",
			Type:    "signal_expired",
		})
		if err := e.bus.Publish(ctx, domain.NotificationChannel(sig.UserID), notif); err != nil {
			e.logger.WarnContext(ctx, "publish expiry notification failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
