package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userCols = `id, username, email, discord_user_id, trading_mode, is_active, created_at`

// GetByID returns a user by primary id.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByDiscordID returns the user whose Discord account is linked to the
// given Discord user id.
func (s *UserStore) GetByDiscordID(ctx context.Context, discordID string) (domain.User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE discord_user_id = $1`
	return s.getOne(ctx, query, discordID)
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var u domain.User
	var discordID *string

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &discordID, &u.TradingMode, &u.IsActive, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user: %w", err)
	}
	if discordID != nil {
		u.DiscordUserID = *discordID
	}
	return u, nil
}

// LinkDiscord associates a Discord user id with an account. The unique
// constraint on discord_user_id keeps one Discord account per user.
func (s *UserStore) LinkDiscord(ctx context.Context, userID, discordID string) error {
	const query = `UPDATE users SET discord_user_id = $1, updated_at = NOW() WHERE id = $2`

	tag, err := s.pool.Exec(ctx, query, discordID, userID)
	if err != nil {
		return fmt.Errorf("postgres: link discord for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetConfig returns the latest configuration version for a user.
func (s *UserStore) GetConfig(ctx context.Context, userID string) (domain.UserConfig, error) {
	const query = `
		SELECT user_id, max_position_size_pct, max_daily_trades,
		       default_profit_target_pct, default_stop_loss_pct,
		       allowed_strategies, auto_sell_enabled,
		       discord_notifications_enabled, web_notifications_enabled,
		       version, updated_at
		FROM user_configs
		WHERE user_id = $1
		ORDER BY version DESC
		LIMIT 1`

	var cfg domain.UserConfig
	var strategies []byte

	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&cfg.UserID, &cfg.MaxPositionSizePct, &cfg.MaxDailyTrades,
		&cfg.ProfitTargetPct, &cfg.StopLossPct,
		&strategies, &cfg.AutoSellEnabled,
		&cfg.DiscordEnabled, &cfg.WebEnabled,
		&cfg.Version, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserConfig{}, domain.ErrNotFound
		}
		return domain.UserConfig{}, fmt.Errorf("postgres: get user config %s: %w", userID, err)
	}

	if len(strategies) > 0 {
		if err := json.Unmarshal(strategies, &cfg.AllowedStrategies); err != nil {
			return domain.UserConfig{}, fmt.Errorf("postgres: unmarshal allowed strategies: %w", err)
		}
	}
	return cfg, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
