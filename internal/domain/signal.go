package domain

import (
	"strings"
	"time"
)

// SignalStatus is the lifecycle state of a trade signal.
type SignalStatus string

const (
	SignalStatusPending   SignalStatus = "pending"
	SignalStatusConfirmed SignalStatus = "confirmed"
	SignalStatusRejected  SignalStatus = "rejected"
	SignalStatusExpired   SignalStatus = "expired"
)

// Terminal reports whether no further transition is permitted from s.
func (s SignalStatus) Terminal() bool {
	switch s {
	case SignalStatusConfirmed, SignalStatusRejected, SignalStatusExpired:
		return true
	}
	return false
}

// ConfirmSource identifies the surface a confirm/reject decision came from.
type ConfirmSource string

const (
	SourceWeb     ConfirmSource = "web"
	SourceDiscord ConfirmSource = "discord"
	SourceAuto    ConfirmSource = "auto"
)

// ValidConfirmSource reports whether s is one of the accepted decision sources.
func ValidConfirmSource(s string) bool {
	switch ConfirmSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceWeb, SourceDiscord, SourceAuto:
		return true
	}
	return false
}

// SignalType is the proposed trade direction.
type SignalType string

const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// TradeSignal is one proposed options trade awaiting human confirmation.
// The generating engine inserts it as pending; the only subsequent writes
// are the terminal transitions recorded by the SignalStore.
type TradeSignal struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Symbol       string     `json:"symbol"`
	StrategyType string     `json:"strategy_type"`
	SignalType   SignalType `json:"signal_type"`

	OptionSymbol   string     `json:"option_symbol"`
	StrikePrice    float64    `json:"strike_price"`
	ExpirationDate string     `json:"expiration_date"` // contract expiry, YYYY-MM-DD
	OptionType     OptionType `json:"option_type"`

	Quantity   int      `json:"quantity"`
	LimitPrice *float64 `json:"limit_price,omitempty"`

	ConfidenceScore  float64        `json:"confidence_score"`
	Reasoning        string         `json:"reasoning,omitempty"`
	MarketConditions map[string]any `json:"market_conditions,omitempty"`

	Status             SignalStatus  `json:"status"`
	ConfirmationSource ConfirmSource `json:"confirmation_source,omitempty"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty"`
	ConfirmedBy        string        `json:"confirmed_by,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the signal is still awaiting a decision.
func (s TradeSignal) Pending() bool {
	return s.Status == SignalStatusPending
}

// Due reports whether the signal's expiration time has passed as of now.
func (s TradeSignal) Due(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
