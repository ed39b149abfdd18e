package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/bot/discord"
	"github.com/alanyoungcy/tradedesk/internal/domain"
)

const helpText = "**Commands**\n" +
	"`!signals` — your pending trade signals\n" +
	"`!positions` — your open positions\n" +
	"`!pnl` — today's P&L summary\n" +
	"`!config` — your trading configuration\n" +
	"`!pause` — pause new signals\n" +
	"`!resume` — resume new signals\n" +
	"`!help` — this message"

// HandleMessage processes a chat command. Wire it to Gateway.OnMessage.
// Non-command messages are ignored.
func (b *Bridge) HandleMessage(msg discord.Message) {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, "!") {
		return
	}
	command := strings.ToLower(strings.Fields(content)[0])

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if command == "!help" {
		b.reply(ctx, msg.ChannelID, helpText)
		return
	}

	user, err := b.api.UserByDiscordID(ctx, msg.Author.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.reply(ctx, msg.ChannelID, "This Discord account is not linked to a trading account.")
			return
		}
		b.logger.ErrorContext(ctx, "resolve command author failed",
			slog.String("discord_user_id", msg.Author.ID),
			slog.String("error", err.Error()),
		)
		b.reply(ctx, msg.ChannelID, "The trading service is unavailable right now.")
		return
	}

	switch command {
	case "!signals":
		b.cmdSignals(ctx, msg.ChannelID, user.ID)
	case "!positions":
		b.cmdPositions(ctx, msg.ChannelID, user.ID)
	case "!pnl":
		b.cmdPnL(ctx, msg.ChannelID, user.ID)
	case "!config":
		b.cmdConfig(ctx, msg.ChannelID, user.ID)
	case "!pause":
		b.cmdPause(ctx, msg.ChannelID, user.ID)
	case "!resume":
		b.cmdResume(ctx, msg.ChannelID, user.ID)
	}
}

func (b *Bridge) cmdSignals(ctx context.Context, channelID, userID string) {
	signals, err := b.api.PendingSignals(ctx, userID)
	if err != nil {
		b.replyError(ctx, channelID, "fetch pending signals", err)
		return
	}
	if len(signals) == 0 {
		b.reply(ctx, channelID, "No pending signals.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%d pending signal(s)**\n", len(signals))
	for _, sig := range signals {
		fmt.Fprintf(&sb, "- `%s` %s %s x%d, expires %s\n",
			sig.ID,
			strings.ToUpper(string(sig.SignalType)),
			sig.OptionSymbol,
			sig.Quantity,
			sig.ExpiresAt.UTC().Format("15:04:05 MST"),
		)
	}
	b.reply(ctx, channelID, sb.String())
}

func (b *Bridge) cmdPositions(ctx context.Context, channelID, userID string) {
	portfolio, err := b.api.Portfolio(ctx, userID)
	if err != nil {
		b.replyError(ctx, channelID, "fetch portfolio", err)
		return
	}
	if portfolio.OpenPositions == 0 {
		b.reply(ctx, channelID, "No open positions.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%d open position(s)**, unrealized $%.2f\n",
		portfolio.OpenPositions, portfolio.TotalUnrealizedPnL)
	for _, p := range portfolio.Positions {
		fmt.Fprintf(&sb, "- %s x%d @ $%.2f, now $%.2f (%+.1f%%)\n",
			p.OptionSymbol, p.Quantity, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnLPct)
	}
	b.reply(ctx, channelID, sb.String())
}

func (b *Bridge) cmdPnL(ctx context.Context, channelID, userID string) {
	summary, err := b.api.PnL(ctx, userID)
	if err != nil {
		b.replyError(ctx, channelID, "fetch pnl", err)
		return
	}

	b.reply(ctx, channelID, fmt.Sprintf(
		"**Today**: realized $%.2f, unrealized $%.2f, %d open position(s), %d trade(s)",
		summary.DailyRealizedPnL,
		summary.TotalUnrealizedPnL,
		summary.OpenPositions,
		summary.TradesToday,
	))
}

func (b *Bridge) cmdConfig(ctx context.Context, channelID, userID string) {
	cfg, err := b.api.UserConfig(ctx, userID)
	if err != nil {
		b.replyError(ctx, channelID, "fetch config", err)
		return
	}

	var sb strings.Builder
	sb.WriteString("**Trading configuration**\n")
	fmt.Fprintf(&sb, "- Max position size: %.1f%%\n", cfg.MaxPositionSizePct)
	fmt.Fprintf(&sb, "- Max daily trades: %d\n", cfg.MaxDailyTrades)
	fmt.Fprintf(&sb, "- Profit target: %.1f%%, stop loss: %.1f%%\n", cfg.ProfitTargetPct, cfg.StopLossPct)
	fmt.Fprintf(&sb, "- Auto-sell: %v\n", cfg.AutoSellEnabled)
	if len(cfg.AllowedStrategies) > 0 {
		fmt.Fprintf(&sb, "- Strategies: %s\n", strings.Join(cfg.AllowedStrategies, ", "))
	}
	b.reply(ctx, channelID, sb.String())
}

func (b *Bridge) cmdPause(ctx context.Context, channelID, userID string) {
	if err := b.api.PauseTrading(ctx, userID); err != nil {
		b.replyError(ctx, channelID, "pause trading", err)
		return
	}
	b.reply(ctx, channelID, "Trading paused. New signals will not be generated. `!resume` to undo.")
}

func (b *Bridge) cmdResume(ctx context.Context, channelID, userID string) {
	if err := b.api.ResumeTrading(ctx, userID); err != nil {
		b.replyError(ctx, channelID, "resume trading", err)
		return
	}
	b.reply(ctx, channelID, "Trading resumed.")
}

func (b *Bridge) reply(ctx context.Context, channelID, content string) {
	if _, err := b.dc.SendMessage(ctx, channelID, discord.MessageSend{Content: content}); err != nil {
		b.logger.WarnContext(ctx, "command reply failed",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bridge) replyError(ctx context.Context, channelID, op string, err error) {
	b.logger.ErrorContext(ctx, "command failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	b.reply(ctx, channelID, "The trading service is unavailable right now.")
}
