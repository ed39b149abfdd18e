package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// TradingControl implements domain.TradingControl with a per-user pause flag
// in Redis. The signal generator checks the flag before producing; the
// gateway and the Discord bridge both toggle it. The TTL keeps a forgotten
// pause from silencing an account forever.
type TradingControl struct {
	rdb *redis.Client
}

// NewTradingControl creates a TradingControl backed by the given Client.
func NewTradingControl(c *Client) *TradingControl {
	return &TradingControl{rdb: c.Underlying()}
}

func pauseKey(userID string) string {
	return "trading:paused:" + userID
}

// Pause sets the pause flag for a user with the given TTL.
func (t *TradingControl) Pause(ctx context.Context, userID string, ttl time.Duration) error {
	if err := t.rdb.Set(ctx, pauseKey(userID), "true", ttl).Err(); err != nil {
		return fmt.Errorf("redis: pause trading for %s: %w", userID, err)
	}
	return nil
}

// Resume removes the pause flag for a user. Resuming a user that was never
// paused is a no-op.
func (t *TradingControl) Resume(ctx context.Context, userID string) error {
	if err := t.rdb.Del(ctx, pauseKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis: resume trading for %s: %w", userID, err)
	}
	return nil
}

// IsPaused reports whether the pause flag is currently set for a user.
func (t *TradingControl) IsPaused(ctx context.Context, userID string) (bool, error) {
	val, err := t.rdb.Get(ctx, pauseKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: read pause flag for %s: %w", userID, err)
	}
	return val == "true", nil
}

// Compile-time interface check.
var _ domain.TradingControl = (*TradingControl)(nil)
