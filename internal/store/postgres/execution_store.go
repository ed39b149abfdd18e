package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// ListBySignal returns the fills recorded for a signal, oldest first.
func (s *ExecutionStore) ListBySignal(ctx context.Context, signalID string) ([]domain.Execution, error) {
	const query = `
		SELECT id, signal_id, user_id, broker_order_id, order_type, side,
		       filled_quantity, filled_price, status, executed_at
		FROM executions
		WHERE signal_id = $1
		ORDER BY executed_at`

	rows, err := s.pool.Query(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions for signal %s: %w", signalID, err)
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		var e domain.Execution
		var brokerOrderID *string

		if err := rows.Scan(
			&e.ID, &e.SignalID, &e.UserID, &brokerOrderID, &e.OrderType, &e.Side,
			&e.FilledQty, &e.FilledPrice, &e.Status, &e.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		if brokerOrderID != nil {
			e.BrokerOrderID = *brokerOrderID
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate executions: %w", err)
	}
	return execs, nil
}

// CountSince returns the number of executions for a user at or after the
// given time. Drives the "trades today" analytics field.
func (s *ExecutionStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM executions WHERE user_id = $1 AND executed_at >= $2`

	var n int
	if err := s.pool.QueryRow(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count executions: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
