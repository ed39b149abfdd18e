package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. The
// execution engine writes position rows; this store only reads them for the
// dashboard, analytics, and chat surfaces.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, user_id, signal_id, symbol, option_symbol, strategy_type,
	quantity, entry_price, current_price, exit_price,
	unrealized_pnl, unrealized_pnl_pct, realized_pnl, realized_pnl_pct,
	status, close_reason, opened_at, closed_at`

// GetByID returns a single position by id.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions WHERE id = $1`

	pos, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return pos, nil
}

// ListByUser returns a user's positions in the given status, newest first.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, status domain.PositionStatus) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + `
		FROM positions
		WHERE user_id = $1 AND status = $2
		ORDER BY opened_at DESC`

	rows, err := s.pool.Query(ctx, query, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// ListClosedSince returns positions closed at or after the given time.
func (s *PositionStore) ListClosedSince(ctx context.Context, userID string, since time.Time) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + `
		FROM positions
		WHERE user_id = $1 AND status = 'closed' AND closed_at >= $2
		ORDER BY closed_at DESC`

	rows, err := s.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

func scanPosition(scanner interface{ Scan(dest ...any) error }) (domain.Position, error) {
	var pos domain.Position
	var signalID, closeReason *string
	var status string

	err := scanner.Scan(
		&pos.ID, &pos.UserID, &signalID, &pos.Symbol, &pos.OptionSymbol, &pos.StrategyType,
		&pos.Quantity, &pos.EntryPrice, &pos.CurrentPrice, &pos.ExitPrice,
		&pos.UnrealizedPnL, &pos.UnrealizedPnLPct, &pos.RealizedPnL, &pos.RealizedPnLPct,
		&status, &closeReason, &pos.OpenedAt, &pos.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}

	pos.Status = domain.PositionStatus(status)
	if signalID != nil {
		pos.SignalID = *signalID
	}
	if closeReason != nil {
		pos.CloseReason = *closeReason
	}
	return pos, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
