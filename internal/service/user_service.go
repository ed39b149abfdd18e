package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// UserService resolves accounts and the Discord identity link consumed by
// the chat bridge.
type UserService struct {
	users  domain.UserStore
	logger *slog.Logger
}

// NewUserService creates a UserService backed by the given store.
func NewUserService(users domain.UserStore, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// DiscordID returns the Discord user id linked to an account, or
// ErrNotFound when the account exists but has no link.
func (s *UserService) DiscordID(ctx context.Context, userID string) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.DiscordUserID == "" {
		return "", domain.ErrNotFound
	}
	return u.DiscordUserID, nil
}

// ByDiscordID returns the account linked to a Discord user id.
func (s *UserService) ByDiscordID(ctx context.Context, discordID string) (domain.User, error) {
	if strings.TrimSpace(discordID) == "" {
		return domain.User{}, fmt.Errorf("%w: discord id is required", domain.ErrValidation)
	}
	return s.users.GetByDiscordID(ctx, discordID)
}

// LinkDiscord associates a Discord account with a user.
func (s *UserService) LinkDiscord(ctx context.Context, userID, discordID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(discordID) == "" {
		return fmt.Errorf("%w: user_id and discord_user_id are required", domain.ErrValidation)
	}

	if err := s.users.LinkDiscord(ctx, userID, discordID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "discord account linked",
		slog.String("user_id", userID),
		slog.String("discord_user_id", discordID),
	)
	return nil
}

// Config returns the latest trading configuration for a user.
func (s *UserService) Config(ctx context.Context, userID string) (domain.UserConfig, error) {
	return s.users.GetConfig(ctx, userID)
}
