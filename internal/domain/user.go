package domain

import "time"

// User is a dashboard account. Authentication is handled upstream; this
// system reads users for ownership checks and chat-identity resolution.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	DiscordUserID string    `json:"discord_user_id,omitempty"`
	TradingMode   string    `json:"trading_mode"` // "paper" or "live"
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserConfig is the per-user trading configuration shown by the dashboard
// and the !config chat command. The engine consumes it; we only read it.
type UserConfig struct {
	UserID             string    `json:"user_id"`
	MaxPositionSizePct float64   `json:"max_position_size_pct"`
	MaxDailyTrades     int       `json:"max_daily_trades"`
	ProfitTargetPct    float64   `json:"default_profit_target_pct"`
	StopLossPct        float64   `json:"default_stop_loss_pct"`
	AllowedStrategies  []string  `json:"allowed_strategies"`
	AutoSellEnabled    bool      `json:"auto_sell_enabled"`
	DiscordEnabled     bool      `json:"discord_notifications_enabled"`
	WebEnabled         bool      `json:"web_notifications_enabled"`
	Version            int       `json:"version"`
	UpdatedAt          time.Time `json:"updated_at"`
}
