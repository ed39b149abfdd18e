package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// PositionService is the read side over positions written by the execution
// engine: portfolio summaries for the dashboard and chat, and the P&L
// aggregates behind the analytics endpoint.
type PositionService struct {
	positions  domain.PositionStore
	executions domain.ExecutionStore
	logger     *slog.Logger
}

// NewPositionService creates a PositionService with the given dependencies.
func NewPositionService(
	positions domain.PositionStore,
	executions domain.ExecutionStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions:  positions,
		executions: executions,
		logger:     logger.With(slog.String("component", "position_service")),
	}
}

// Get returns a single position by id.
func (s *PositionService) Get(ctx context.Context, id string) (domain.Position, error) {
	return s.positions.GetByID(ctx, id)
}

// Portfolio returns a user's positions in the requested status together with
// unrealized and same-day realized P&L totals.
func (s *PositionService) Portfolio(ctx context.Context, userID string, status domain.PositionStatus) (domain.Portfolio, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Portfolio{}, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if status == "" {
		status = domain.PositionStatusOpen
	}

	positions, err := s.positions.ListByUser(ctx, userID, status)
	if err != nil {
		return domain.Portfolio{}, err
	}

	var unrealized float64
	for _, p := range positions {
		unrealized += p.UnrealizedPnL
	}

	closedToday, err := s.positions.ListClosedSince(ctx, userID, startOfDay(time.Now().UTC()))
	if err != nil {
		return domain.Portfolio{}, err
	}

	var realized float64
	for _, p := range closedToday {
		if p.RealizedPnL != nil {
			realized += *p.RealizedPnL
		}
	}

	return domain.Portfolio{
		OpenPositions:      len(positions),
		TotalUnrealizedPnL: unrealized,
		DailyRealizedPnL:   realized,
		Positions:          positions,
	}, nil
}

// PnL returns the P&L summary shown by the dashboard header and the !pnl
// chat command.
func (s *PositionService) PnL(ctx context.Context, userID string) (domain.PnLSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.PnLSummary{}, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}

	open, err := s.positions.ListByUser(ctx, userID, domain.PositionStatusOpen)
	if err != nil {
		return domain.PnLSummary{}, err
	}

	var unrealized float64
	for _, p := range open {
		unrealized += p.UnrealizedPnL
	}

	dayStart := startOfDay(time.Now().UTC())

	closedToday, err := s.positions.ListClosedSince(ctx, userID, dayStart)
	if err != nil {
		return domain.PnLSummary{}, err
	}

	var realized float64
	for _, p := range closedToday {
		if p.RealizedPnL != nil {
			realized += *p.RealizedPnL
		}
	}

	trades := 0
	if s.executions != nil {
		trades, err = s.executions.CountSince(ctx, userID, dayStart)
		if err != nil {
			// Trades-today is decoration; keep the summary usable.
			s.logger.WarnContext(ctx, "count executions failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			trades = 0
		}
	}

	return domain.PnLSummary{
		DailyRealizedPnL:   realized,
		TotalUnrealizedPnL: unrealized,
		OpenPositions:      len(open),
		TradesToday:        trades,
	}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
