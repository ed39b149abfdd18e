package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Bus channel names. These are a wire-level contract shared with the signal
// generator and execution engine; consumers must match them exactly.
const (
	// ChannelSignalsAll carries every newly created TradeSignal.
	ChannelSignalsAll = "signals:all"

	// ChannelSignalsUpdated carries the full record after every successful
	// status transition, so surfaces that did not originate the decision can
	// reconcile their rendering.
	ChannelSignalsUpdated = "signals:updated"

	// ChannelPositionsPattern matches per-user position update channels,
	// e.g. "positions:<user-id>".
	ChannelPositionsPattern = "positions:*"

	// ChannelNotificationsPattern matches per-user notification channels,
	// e.g. "notifications:<user-id>".
	ChannelNotificationsPattern = "notifications:*"
)

// PositionChannel returns the literal position-update channel for a user.
func PositionChannel(userID string) string {
	return "positions:" + userID
}

// NotificationChannel returns the literal notification channel for a user.
func NotificationChannel(userID string) string {
	return "notifications:" + userID
}

// Notification is the generic payload on notifications:* channels.
type Notification struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// BusEvent is a decoded bus message: the channel it arrived on plus exactly
// one of the typed payload fields, selected by the channel name.
type BusEvent struct {
	Channel string

	Signal         *TradeSignal
	PositionUpdate *PositionUpdateEvent
	Notification   *Notification
}

// UserID returns the owning user of the event payload, or "" if the payload
// carries no user attribution.
func (e BusEvent) UserID() string {
	switch {
	case e.Signal != nil:
		return e.Signal.UserID
	case e.PositionUpdate != nil:
		return e.PositionUpdate.UserID
	case e.Notification != nil:
		return e.Notification.UserID
	}
	return ""
}

// DecodeBusEvent parses a raw payload received on channel into a typed
// BusEvent. The channel name selects the variant. Failures are reported as
// ErrMalformedEvent so subscriber loops can log and continue; one bad
// message must never take down a subscription.
func DecodeBusEvent(channel string, payload []byte) (BusEvent, error) {
	evt := BusEvent{Channel: channel}

	switch {
	case channel == ChannelSignalsAll || channel == ChannelSignalsUpdated:
		var s TradeSignal
		if err := json.Unmarshal(payload, &s); err != nil {
			return BusEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, channel, err)
		}
		if s.ID == "" || s.UserID == "" {
			return BusEvent{}, fmt.Errorf("%w: %s: missing id or user_id", ErrMalformedEvent, channel)
		}
		evt.Signal = &s

	case strings.HasPrefix(channel, "positions:"):
		var u PositionUpdateEvent
		if err := json.Unmarshal(payload, &u); err != nil {
			return BusEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, channel, err)
		}
		if u.UserID == "" {
			return BusEvent{}, fmt.Errorf("%w: %s: missing user_id", ErrMalformedEvent, channel)
		}
		evt.PositionUpdate = &u

	case strings.HasPrefix(channel, "notifications:"):
		var n Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return BusEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, channel, err)
		}
		if n.UserID == "" {
			return BusEvent{}, fmt.Errorf("%w: %s: missing user_id", ErrMalformedEvent, channel)
		}
		evt.Notification = &n

	default:
		return BusEvent{}, fmt.Errorf("%w: unknown channel %s", ErrMalformedEvent, channel)
	}

	return evt, nil
}

// MatchChannel reports whether a literal channel name matches a subscription
// pattern. Only the trailing-star glob form used by our channel contract is
// supported ("positions:*" matches "positions:closed:123").
func MatchChannel(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, pattern[:len(pattern)-1])
	}
	return false
}
