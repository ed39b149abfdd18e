package domain

import "time"

// PositionStatus is the lifecycle state of a position row.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is an open or closed options position owned by a user. The
// execution engine that opens and closes positions is external; this system
// only reads position rows and relays position events.
type Position struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	SignalID     string         `json:"signal_id,omitempty"`
	Symbol       string         `json:"symbol"`
	OptionSymbol string         `json:"option_symbol"`
	StrategyType string         `json:"strategy_type"`
	Quantity     int            `json:"quantity"`
	EntryPrice   float64        `json:"entry_price"`
	CurrentPrice float64        `json:"current_price"`
	ExitPrice    *float64       `json:"exit_price,omitempty"`

	UnrealizedPnL    float64  `json:"unrealized_pnl"`
	UnrealizedPnLPct float64  `json:"unrealized_pnl_pct"`
	RealizedPnL      *float64 `json:"realized_pnl,omitempty"`
	RealizedPnLPct   *float64 `json:"realized_pnl_pct,omitempty"`

	Status      PositionStatus `json:"status"`
	CloseReason string         `json:"close_reason,omitempty"`
	OpenedAt    time.Time      `json:"opened_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
}

// PositionUpdateEvent is the transient bus message describing a position
// change. It is not persisted here; the positions table is the record.
type PositionUpdateEvent struct {
	Type           string   `json:"type"` // "position_opened", "position_updated", "position_closed"
	UserID         string   `json:"user_id"`
	PositionID     string   `json:"position_id"`
	Symbol         string   `json:"symbol"`
	StrategyType   string   `json:"strategy_type,omitempty"`
	ExitPrice      *float64 `json:"exit_price,omitempty"`
	RealizedPnL    *float64 `json:"realized_pnl,omitempty"`
	RealizedPnLPct *float64 `json:"realized_pnl_pct,omitempty"`
	UnrealizedPnL  *float64 `json:"unrealized_pnl,omitempty"`
	CloseReason    string   `json:"close_reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Portfolio summarizes a user's positions for the dashboard and chat surfaces.
type Portfolio struct {
	OpenPositions      int        `json:"open_positions"`
	TotalUnrealizedPnL float64    `json:"total_unrealized_pnl"`
	DailyRealizedPnL   float64    `json:"daily_realized_pnl"`
	Positions          []Position `json:"positions"`
}

// PnLSummary aggregates realized and unrealized profit for a user.
type PnLSummary struct {
	DailyRealizedPnL   float64 `json:"daily_realized_pnl"`
	TotalUnrealizedPnL float64 `json:"total_unrealized_pnl"`
	OpenPositions      int     `json:"open_positions"`
	TradesToday        int     `json:"trades_today"`
}
