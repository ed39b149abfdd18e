package domain

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeBusEventSignal(t *testing.T) {
	payload := []byte(`{
		"id": "sig-1",
		"user_id": "u-1",
		"symbol": "AAPL",
		"signal_type": "buy",
		"option_type": "call",
		"strike_price": 195,
		"quantity": 2,
		"status": "pending",
		"expires_at": "2026-09-01T12:00:00Z"
	}`)

	evt, err := DecodeBusEvent(ChannelSignalsAll, payload)
	if err != nil {
		t.Fatalf("DecodeBusEvent: %v", err)
	}
	if evt.Signal == nil {
		t.Fatal("expected signal payload")
	}
	if evt.Signal.ID != "sig-1" || evt.Signal.Symbol != "AAPL" {
		t.Errorf("unexpected signal: %+v", evt.Signal)
	}
	if got := evt.UserID(); got != "u-1" {
		t.Errorf("UserID() = %q, want u-1", got)
	}
}

func TestDecodeBusEventMalformed(t *testing.T) {
	cases := []struct {
		name    string
		channel string
		payload string
	}{
		{"not json", ChannelSignalsAll, "not-json-at-all"},
		{"missing id", ChannelSignalsAll, `{"user_id":"u-1"}`},
		{"missing user", "positions:u-1", `{"type":"position_closed"}`},
		{"unknown channel", "orders:all", `{}`},
		{"bad notification", "notifications:u-1", `[1,2,3]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeBusEvent(tc.channel, []byte(tc.payload))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("DecodeBusEvent(%q) err = %v, want ErrMalformedEvent", tc.channel, err)
			}
		})
	}
}

func TestDecodeBusEventPositionAndNotification(t *testing.T) {
	evt, err := DecodeBusEvent("positions:u-9", []byte(`{"type":"position_closed","user_id":"u-9","position_id":"p-1","symbol":"TSLA"}`))
	if err != nil {
		t.Fatalf("position decode: %v", err)
	}
	if evt.PositionUpdate == nil || evt.PositionUpdate.Type != "position_closed" {
		t.Errorf("unexpected position event: %+v", evt.PositionUpdate)
	}

	evt, err = DecodeBusEvent("notifications:u-9", []byte(`{"user_id":"u-9","title":"hi","message":"m","type":"info"}`))
	if err != nil {
		t.Fatalf("notification decode: %v", err)
	}
	if evt.Notification == nil || evt.Notification.Title != "hi" {
		t.Errorf("unexpected notification: %+v", evt.Notification)
	}
}

func TestMatchChannel(t *testing.T) {
	cases := []struct {
		pattern string
		channel string
		want    bool
	}{
		{"positions:*", "positions:closed:123", true},
		{"positions:*", "positions:u-1", true},
		{"positions:*", "notifications:u-1", false},
		{"notifications:*", "positions:closed:123", false},
		{"signals:all", "signals:all", true},
		{"signals:all", "signals:updated", false},
		{"signals:*", "signals:updated", true},
	}

	for _, tc := range cases {
		if got := MatchChannel(tc.pattern, tc.channel); got != tc.want {
			t.Errorf("MatchChannel(%q, %q) = %v, want %v", tc.pattern, tc.channel, got, tc.want)
		}
	}
}

func TestSignalStatusTerminal(t *testing.T) {
	if SignalStatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []SignalStatus{SignalStatusConfirmed, SignalStatusRejected, SignalStatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestSignalDue(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s := TradeSignal{ExpiresAt: now.Add(time.Second)}
	if s.Due(now) {
		t.Error("signal due before expires_at")
	}
	if !s.Due(now.Add(time.Second)) {
		t.Error("signal not due at expires_at")
	}
}
