package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Decision carries the audit fields of a confirm/reject action.
type Decision struct {
	ActorID string
	Source  ConfirmSource
	At      time.Time
}

// SignalStore is the system of record for trade signals. Confirm, Reject and
// Expire must be implemented as a single atomic conditional write guarded on
// status = pending, so at most one terminal transition ever succeeds per
// signal regardless of concurrency. Losers observe ErrAlreadyProcessed.
type SignalStore interface {
	Create(ctx context.Context, s TradeSignal) error
	GetByID(ctx context.Context, id string) (TradeSignal, error)
	ListPending(ctx context.Context, userID string) ([]TradeSignal, error)
	ListHistory(ctx context.Context, userID string, opts ListOpts) ([]TradeSignal, error)

	Confirm(ctx context.Context, id string, d Decision) (TradeSignal, error)
	Reject(ctx context.Context, id string, d Decision) (TradeSignal, error)
	Expire(ctx context.Context, id string, now time.Time) (TradeSignal, error)

	// ExpireDue transitions every pending signal whose expires_at has passed
	// and returns the affected records.
	ExpireDue(ctx context.Context, now time.Time) ([]TradeSignal, error)

	// ListTerminalSince returns signals that reached a terminal state in
	// (since, until]; used by the compliance archiver.
	ListTerminalSince(ctx context.Context, since, until time.Time) ([]TradeSignal, error)
}

// PositionStore reads position rows written by the execution engine.
type PositionStore interface {
	GetByID(ctx context.Context, id string) (Position, error)
	ListByUser(ctx context.Context, userID string, status PositionStatus) ([]Position, error)
	ListClosedSince(ctx context.Context, userID string, since time.Time) ([]Position, error)
}

// UserStore reads user accounts and manages the Discord identity link.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetByDiscordID(ctx context.Context, discordID string) (User, error)
	LinkDiscord(ctx context.Context, userID, discordID string) error
	GetConfig(ctx context.Context, userID string) (UserConfig, error)
}

// ExecutionStore reads execution fills recorded by the execution engine.
type ExecutionStore interface {
	ListBySignal(ctx context.Context, signalID string) ([]Execution, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Execution is one broker fill resulting from a confirmed signal.
type Execution struct {
	ID            string    `json:"id"`
	SignalID      string    `json:"signal_id"`
	UserID        string    `json:"user_id"`
	BrokerOrderID string    `json:"broker_order_id,omitempty"`
	OrderType     string    `json:"order_type"`
	Side          string    `json:"side"`
	FilledQty     int       `json:"filled_quantity"`
	FilledPrice   float64   `json:"filled_price"`
	Status        string    `json:"status"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
