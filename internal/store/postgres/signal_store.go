package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
//
// The terminal transitions are single conditional UPDATEs guarded on
// status = 'pending'. The predicate is the concurrency guard: Postgres
// evaluates the WHERE clause and the write atomically per row, so of any
// number of racing confirm/reject/expire calls exactly one sees an affected
// row and every loser gets ErrAlreadyProcessed.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalCols = `id, user_id, symbol, strategy_type, signal_type,
	option_symbol, strike_price, expiration_date, option_type,
	quantity, limit_price, confidence_score, reasoning, market_conditions,
	status, confirmation_source, confirmed_at, confirmed_by,
	expires_at, created_at`

// Create inserts a new pending signal. Used by the simulation tooling and by
// tests; in production the signal generator writes these rows directly.
func (s *SignalStore) Create(ctx context.Context, sig domain.TradeSignal) error {
	var conditions []byte
	if sig.MarketConditions != nil {
		var err error
		conditions, err = json.Marshal(sig.MarketConditions)
		if err != nil {
			return fmt.Errorf("postgres: marshal market conditions: %w", err)
		}
	}

	const query = `
		INSERT INTO trade_signals (
			id, user_id, symbol, strategy_type, signal_type,
			option_symbol, strike_price, expiration_date, option_type,
			quantity, limit_price, confidence_score, reasoning, market_conditions,
			status, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.UserID, sig.Symbol, sig.StrategyType, string(sig.SignalType),
		sig.OptionSymbol, sig.StrikePrice, sig.ExpirationDate, string(sig.OptionType),
		sig.Quantity, sig.LimitPrice, sig.ConfidenceScore, sig.Reasoning, conditions,
		string(sig.Status), sig.ExpiresAt, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create signal %s: %w", sig.ID, err)
	}
	return nil
}

// GetByID returns a single signal by id.
func (s *SignalStore) GetByID(ctx context.Context, id string) (domain.TradeSignal, error) {
	query := `SELECT ` + signalCols + ` FROM trade_signals WHERE id = $1`

	sig, err := scanSignal(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeSignal{}, domain.ErrNotFound
		}
		return domain.TradeSignal{}, fmt.Errorf("postgres: get signal %s: %w", id, err)
	}
	return sig, nil
}

// ListPending returns a user's pending signals, newest first.
func (s *SignalStore) ListPending(ctx context.Context, userID string) ([]domain.TradeSignal, error) {
	query := `SELECT ` + signalCols + `
		FROM trade_signals
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending signals: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// ListHistory returns a user's signals in all states with pagination.
func (s *SignalStore) ListHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.TradeSignal, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + signalCols + `
		FROM trade_signals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, userID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signal history: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// Confirm atomically transitions a pending signal to confirmed and stamps the
// audit fields. Returns ErrAlreadyProcessed if the signal exists but is no
// longer pending, ErrNotFound if there is no such signal.
func (s *SignalStore) Confirm(ctx context.Context, id string, d domain.Decision) (domain.TradeSignal, error) {
	return s.transition(ctx, id, domain.SignalStatusConfirmed, d)
}

// Reject is symmetric to Confirm with target status rejected.
func (s *SignalStore) Reject(ctx context.Context, id string, d domain.Decision) (domain.TradeSignal, error) {
	return s.transition(ctx, id, domain.SignalStatusRejected, d)
}

func (s *SignalStore) transition(ctx context.Context, id string, target domain.SignalStatus, d domain.Decision) (domain.TradeSignal, error) {
	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := `
		UPDATE trade_signals
		SET status = $1,
		    confirmation_source = $2,
		    confirmed_by = $3,
		    confirmed_at = $4,
		    updated_at = NOW()
		WHERE id = $5 AND status = 'pending'
		RETURNING ` + signalCols

	sig, err := scanSignal(s.pool.QueryRow(ctx, query,
		string(target), string(d.Source), d.ActorID, at, id,
	))
	if err == nil {
		return sig, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.TradeSignal{}, fmt.Errorf("postgres: %s signal %s: %w", target, id, err)
	}

	// No row matched the guard: either the signal does not exist or it has
	// already left pending. Re-read to report which.
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return domain.TradeSignal{}, getErr
	}
	return domain.TradeSignal{}, domain.ErrAlreadyProcessed
}

// Expire transitions a single pending signal to expired, but only if its
// expiration time has actually passed. A confirm or reject that beat the
// timer is never overridden.
func (s *SignalStore) Expire(ctx context.Context, id string, now time.Time) (domain.TradeSignal, error) {
	query := `
		UPDATE trade_signals
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expires_at <= $2
		RETURNING ` + signalCols

	sig, err := scanSignal(s.pool.QueryRow(ctx, query, id, now))
	if err == nil {
		return sig, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.TradeSignal{}, fmt.Errorf("postgres: expire signal %s: %w", id, err)
	}

	// Zero rows covers three cases: missing, already decided, or pending but
	// not yet due. Re-read to report which.
	cur, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return domain.TradeSignal{}, getErr
	}
	if cur.Status == domain.SignalStatusPending {
		return domain.TradeSignal{}, fmt.Errorf("%w: signal %s has not reached its expiry time", domain.ErrValidation, id)
	}
	return domain.TradeSignal{}, domain.ErrAlreadyProcessed
}

// ExpireDue transitions every due pending signal in one statement and
// returns the affected records.
func (s *SignalStore) ExpireDue(ctx context.Context, now time.Time) ([]domain.TradeSignal, error) {
	query := `
		UPDATE trade_signals
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING ` + signalCols

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: expire due signals: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// ListTerminalSince returns signals that reached a terminal state within
// (since, until], ordered by decision time. Expired signals carry no
// confirmed_at, so updated_at stands in for the decision time there.
func (s *SignalStore) ListTerminalSince(ctx context.Context, since, until time.Time) ([]domain.TradeSignal, error) {
	query := `SELECT ` + signalCols + `
		FROM trade_signals
		WHERE status IN ('confirmed', 'rejected', 'expired')
		  AND COALESCE(confirmed_at, updated_at) > $1
		  AND COALESCE(confirmed_at, updated_at) <= $2
		ORDER BY COALESCE(confirmed_at, updated_at)`

	rows, err := s.pool.Query(ctx, query, since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal signals: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

func scanSignal(scanner interface{ Scan(dest ...any) error }) (domain.TradeSignal, error) {
	var sig domain.TradeSignal
	var signalType, optionType, status string
	var expirationDate time.Time
	var source, reasoning, confirmedBy *string
	var conditions []byte

	err := scanner.Scan(
		&sig.ID, &sig.UserID, &sig.Symbol, &sig.StrategyType, &signalType,
		&sig.OptionSymbol, &sig.StrikePrice, &expirationDate, &optionType,
		&sig.Quantity, &sig.LimitPrice, &sig.ConfidenceScore, &reasoning, &conditions,
		&status, &source, &sig.ConfirmedAt, &confirmedBy,
		&sig.ExpiresAt, &sig.CreatedAt,
	)
	if err != nil {
		return domain.TradeSignal{}, err
	}

	sig.SignalType = domain.SignalType(signalType)
	sig.OptionType = domain.OptionType(optionType)
	sig.Status = domain.SignalStatus(status)
	sig.ExpirationDate = expirationDate.Format("2006-01-02")
	if reasoning != nil {
		sig.Reasoning = *reasoning
	}
	if source != nil {
		sig.ConfirmationSource = domain.ConfirmSource(*source)
	}
	if confirmedBy != nil {
		sig.ConfirmedBy = *confirmedBy
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &sig.MarketConditions); err != nil {
			return domain.TradeSignal{}, fmt.Errorf("unmarshal market conditions: %w", err)
		}
	}

	return sig, nil
}

func collectSignals(rows pgx.Rows) ([]domain.TradeSignal, error) {
	var signals []domain.TradeSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate signals: %w", err)
	}
	return signals, nil
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
