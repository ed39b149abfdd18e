package domain

import (
	"context"
	"time"
)

// EventBus delivers JSON-encoded domain events from producers to all
// currently-connected consumers, channel-addressed. Delivery is at-most-once:
// publish is fire-and-forget and a consumer not subscribed at publish time
// never sees the event. Patterns with a trailing glob ("positions:*") must
// deliver every matching literal channel.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// TradingControl holds the per-user pause flag consulted by the signal
// generator. Pausing is advisory and expires on its own after the TTL.
type TradingControl interface {
	Pause(ctx context.Context, userID string, ttl time.Duration) error
	Resume(ctx context.Context, userID string) error
	IsPaused(ctx context.Context, userID string) (bool, error)
}

// RateLimiter provides distributed rate limiting. Allow both checks and
// counts the request when permitted.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
