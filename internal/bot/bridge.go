package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/bot/discord"
	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Embed colors per signal state.
const (
	colorPending   = 0xF1C40F // yellow
	colorConfirmed = 0x2ECC71 // green
	colorRejected  = 0xE74C3C // red
	colorExpired   = 0x95A5A6 // grey
	colorClosed    = 0x3498DB // blue
)

// TradingAPI is the gateway surface the bridge consumes. *APIClient
// implements it.
type TradingAPI interface {
	ConfirmSignal(ctx context.Context, signalID, userID string) (domain.TradeSignal, error)
	RejectSignal(ctx context.Context, signalID, userID string) (domain.TradeSignal, error)
	GetSignal(ctx context.Context, signalID string) (domain.TradeSignal, error)
	PendingSignals(ctx context.Context, userID string) ([]domain.TradeSignal, error)
	Portfolio(ctx context.Context, userID string) (domain.Portfolio, error)
	PnL(ctx context.Context, userID string) (domain.PnLSummary, error)
	UserConfig(ctx context.Context, userID string) (domain.UserConfig, error)
	DiscordID(ctx context.Context, userID string) (string, error)
	UserByDiscordID(ctx context.Context, discordID string) (domain.User, error)
	PauseTrading(ctx context.Context, userID string) error
	ResumeTrading(ctx context.Context, userID string) error
}

// Messenger is the Discord REST surface the bridge consumes.
// *discord.Client implements it.
type Messenger interface {
	SendDM(ctx context.Context, userID string, msg discord.MessageSend) (discord.Message, error)
	SendMessage(ctx context.Context, channelID string, msg discord.MessageSend) (discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg discord.MessageSend) (discord.Message, error)
	RespondInteraction(ctx context.Context, interactionID, token string, resp discord.InteractionResponse) error
}

// trackedSignal is a DM the bridge has sent for a still-pending signal. The
// timer fires at expires_at and rewrites the message optimistically; the
// authoritative state always arrives via the signals:updated echo.
type trackedSignal struct {
	userID    string
	channelID string
	messageID string
	timer     *time.Timer
}

// Bridge relays trade signals into Discord DMs and button clicks back into
// the gateway. It holds no durable state: the tracked-message map exists
// only to know which DM to edit, and a restart simply stops editing old
// messages.
type Bridge struct {
	api    TradingAPI
	dc     Messenger
	bus    domain.EventBus
	logger *slog.Logger

	mu      sync.Mutex
	tracked map[string]*trackedSignal // signal id -> sent DM
}

// NewBridge creates a Bridge.
func NewBridge(api TradingAPI, dc Messenger, bus domain.EventBus, logger *slog.Logger) *Bridge {
	return &Bridge{
		api:     api,
		dc:      dc,
		bus:     bus,
		logger:  logger.With(slog.String("component", "discord_bridge")),
		tracked: make(map[string]*trackedSignal),
	}
}

// Run subscribes to the bus and relays events until the context is
// cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	newSignals, err := b.bus.Subscribe(ctx, domain.ChannelSignalsAll)
	if err != nil {
		return fmt.Errorf("bot: subscribe %s: %w", domain.ChannelSignalsAll, err)
	}
	updates, err := b.bus.Subscribe(ctx, domain.ChannelSignalsUpdated)
	if err != nil {
		return fmt.Errorf("bot: subscribe %s: %w", domain.ChannelSignalsUpdated, err)
	}
	positions, err := b.bus.Subscribe(ctx, domain.ChannelPositionsPattern)
	if err != nil {
		return fmt.Errorf("bot: subscribe %s: %w", domain.ChannelPositionsPattern, err)
	}

	b.logger.InfoContext(ctx, "bridge started")

	for {
		select {
		case <-ctx.Done():
			b.stopTimers()
			return ctx.Err()

		case payload, ok := <-newSignals:
			if !ok {
				return fmt.Errorf("bot: %s subscription closed", domain.ChannelSignalsAll)
			}
			b.handleBusEvent(ctx, domain.ChannelSignalsAll, payload, b.onNewSignal)

		case payload, ok := <-updates:
			if !ok {
				return fmt.Errorf("bot: %s subscription closed", domain.ChannelSignalsUpdated)
			}
			b.handleBusEvent(ctx, domain.ChannelSignalsUpdated, payload, b.onSignalUpdated)

		case payload, ok := <-positions:
			if !ok {
				return fmt.Errorf("bot: %s subscription closed", domain.ChannelPositionsPattern)
			}
			b.handleBusEvent(ctx, domain.ChannelPositionsPattern, payload, b.onPositionEvent)
		}
	}
}

// handleBusEvent decodes one bus payload and hands it to fn. Malformed
// payloads are logged and dropped so one bad event never wedges the loop.
func (b *Bridge) handleBusEvent(ctx context.Context, channel string, payload []byte, fn func(context.Context, domain.BusEvent)) {
	ev, err := domain.DecodeBusEvent(channel, payload)
	if err != nil {
		b.logger.WarnContext(ctx, "malformed bus event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	fn(ctx, ev)
}

// onNewSignal DMs the signal's owner with a decision prompt. Users without
// a linked Discord account are skipped.
func (b *Bridge) onNewSignal(ctx context.Context, ev domain.BusEvent) {
	sig := *ev.Signal

	discordID, err := b.api.DiscordID(ctx, sig.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.logger.InfoContext(ctx, "no discord link, dropping signal",
				slog.String("signal_id", sig.ID),
				slog.String("user_id", sig.UserID),
			)
			return
		}
		b.logger.ErrorContext(ctx, "resolve discord id failed",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	msg, err := b.dc.SendDM(ctx, discordID, discord.MessageSend{
		Embeds:     []discord.Embed{signalEmbed(sig)},
		Components: decisionButtons(sig.ID, false),
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "send signal dm failed",
			slog.String("signal_id", sig.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	b.track(ctx, sig, msg)
}

// track remembers the sent DM and arms the local expiry timer.
func (b *Bridge) track(ctx context.Context, sig domain.TradeSignal, msg discord.Message) {
	t := &trackedSignal{
		userID:    sig.UserID,
		channelID: msg.ChannelID,
		messageID: msg.ID,
	}

	wait := time.Until(sig.ExpiresAt)
	if wait < 0 {
		wait = 0
	}
	t.timer = time.AfterFunc(wait, func() {
		b.onLocalExpiry(sig.ID)
	})

	b.mu.Lock()
	b.tracked[sig.ID] = t
	b.mu.Unlock()

	b.logger.DebugContext(ctx, "signal dm sent",
		slog.String("signal_id", sig.ID),
		slog.String("message_id", msg.ID),
	)
}

// onLocalExpiry rewrites the DM to its expired rendering when the timer
// fires. This is optimistic: the server-side sweep owns the actual
// transition, and if a decision actually won the race the echo will redraw
// the message moments later.
func (b *Bridge) onLocalExpiry(signalID string) {
	b.mu.Lock()
	t, ok := b.tracked[signalID]
	if ok {
		delete(b.tracked, signalID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sig, err := b.api.GetSignal(ctx, signalID)
	if err != nil {
		b.logger.WarnContext(ctx, "fetch signal for expiry edit failed",
			slog.String("signal_id", signalID),
			slog.String("error", err.Error()),
		)
		return
	}
	if sig.Status == domain.SignalStatusPending {
		sig.Status = domain.SignalStatusExpired
	}

	if _, err := b.dc.EditMessage(ctx, t.channelID, t.messageID, discord.MessageSend{
		Embeds:     []discord.Embed{signalEmbed(sig)},
		Components: decisionButtons(signalID, true),
	}); err != nil {
		b.logger.WarnContext(ctx, "expiry edit failed",
			slog.String("signal_id", signalID),
			slog.String("error", err.Error()),
		)
	}
}

// onSignalUpdated redraws the tracked DM with the signal's recorded state.
// The record is re-fetched rather than trusted from the event so an edit
// racing the expiry timer always lands on the final state.
func (b *Bridge) onSignalUpdated(ctx context.Context, ev domain.BusEvent) {
	signalID := ev.Signal.ID

	b.mu.Lock()
	t, ok := b.tracked[signalID]
	if ok {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(b.tracked, signalID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	sig, err := b.api.GetSignal(ctx, signalID)
	if err != nil {
		b.logger.WarnContext(ctx, "fetch updated signal failed",
			slog.String("signal_id", signalID),
			slog.String("error", err.Error()),
		)
		sig = *ev.Signal
	}

	if _, err := b.dc.EditMessage(ctx, t.channelID, t.messageID, discord.MessageSend{
		Embeds:     []discord.Embed{signalEmbed(sig)},
		Components: decisionButtons(signalID, true),
	}); err != nil {
		b.logger.WarnContext(ctx, "update edit failed",
			slog.String("signal_id", signalID),
			slog.String("error", err.Error()),
		)
	}
}

// onPositionEvent DMs closed-position P&L to the owner.
func (b *Bridge) onPositionEvent(ctx context.Context, ev domain.BusEvent) {
	update := *ev.PositionUpdate
	if update.Type != "position_closed" {
		return
	}

	discordID, err := b.api.DiscordID(ctx, update.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			b.logger.ErrorContext(ctx, "resolve discord id failed",
				slog.String("position_id", update.PositionID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if _, err := b.dc.SendDM(ctx, discordID, discord.MessageSend{
		Embeds: []discord.Embed{positionClosedEmbed(update)},
	}); err != nil {
		b.logger.ErrorContext(ctx, "send position dm failed",
			slog.String("position_id", update.PositionID),
			slog.String("error", err.Error()),
		)
	}
}

// HandleInteraction processes a button click. Wire it to
// Gateway.OnInteraction.
func (b *Bridge) HandleInteraction(in discord.Interaction) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	action, signalID, ok := strings.Cut(in.Data.CustomID, ":")
	if !ok {
		return
	}

	actor := in.Actor()
	user, err := b.api.UserByDiscordID(ctx, actor.ID)
	if err != nil {
		b.logger.WarnContext(ctx, "interaction from unlinked discord user",
			slog.String("discord_user_id", actor.ID),
			slog.String("error", err.Error()),
		)
		b.respondContent(ctx, in, "This Discord account is not linked to a trading account.")
		return
	}

	switch action {
	case "confirm":
		b.decide(ctx, in, signalID, user.ID, b.api.ConfirmSignal)
	case "reject":
		b.decide(ctx, in, signalID, user.ID, b.api.RejectSignal)
	case "details":
		b.details(ctx, in, signalID)
	}
}

// decide runs a confirm or reject and redraws the message. Losing the race
// renders "no longer available"; it is never an error to the user.
func (b *Bridge) decide(
	ctx context.Context,
	in discord.Interaction,
	signalID, userID string,
	op func(ctx context.Context, signalID, userID string) (domain.TradeSignal, error),
) {
	sig, err := op(ctx, signalID, userID)
	switch {
	case err == nil:
		b.untrack(signalID)
		b.respondEmbed(ctx, in, signalEmbed(sig), decisionButtons(signalID, true))

	case errors.Is(err, domain.ErrAlreadyProcessed):
		// Someone (or the sweep) got there first. Show whatever state won.
		b.untrack(signalID)
		current, fetchErr := b.api.GetSignal(ctx, signalID)
		if fetchErr != nil {
			b.respondContent(ctx, in, "This signal is no longer available.")
			return
		}
		embed := signalEmbed(current)
		embed.Footer = &discord.EmbedFooter{Text: "This signal was no longer available."}
		b.respondEmbed(ctx, in, embed, decisionButtons(signalID, true))

	case errors.Is(err, domain.ErrNotFound):
		b.untrack(signalID)
		b.respondContent(ctx, in, "This signal is no longer available.")

	default:
		// The signal is still pending; keep the expiry timer armed so the
		// DM does not sit in a stale pending rendering.
		b.logger.ErrorContext(ctx, "decision via interaction failed",
			slog.String("signal_id", signalID),
			slog.String("error", err.Error()),
		)
		b.respondContent(ctx, in, "Something went wrong recording your decision. Try again.")
	}
}

// details redraws the message with the full signal rendering.
func (b *Bridge) details(ctx context.Context, in discord.Interaction, signalID string) {
	sig, err := b.api.GetSignal(ctx, signalID)
	if err != nil {
		b.respondContent(ctx, in, "This signal is no longer available.")
		return
	}

	embed := detailEmbed(sig)
	b.respondEmbed(ctx, in, embed, decisionButtons(signalID, sig.Status != domain.SignalStatusPending))
}

func (b *Bridge) respondEmbed(ctx context.Context, in discord.Interaction, embed discord.Embed, components []discord.Component) {
	err := b.dc.RespondInteraction(ctx, in.ID, in.Token, discord.InteractionResponse{
		Type: discord.ResponseUpdateMessage,
		Data: &discord.MessageSend{
			Embeds:     []discord.Embed{embed},
			Components: components,
		},
	})
	if err != nil {
		b.logger.WarnContext(ctx, "interaction response failed",
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bridge) respondContent(ctx context.Context, in discord.Interaction, content string) {
	err := b.dc.RespondInteraction(ctx, in.ID, in.Token, discord.InteractionResponse{
		Type: discord.ResponseUpdateMessage,
		Data: &discord.MessageSend{Content: content},
	})
	if err != nil {
		b.logger.WarnContext(ctx, "interaction response failed",
			slog.String("error", err.Error()),
		)
	}
}

// untrack stops the expiry timer for a signal, if tracked.
func (b *Bridge) untrack(signalID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tracked[signalID]; ok {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(b.tracked, signalID)
	}
}

func (b *Bridge) stopTimers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.tracked {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(b.tracked, id)
	}
}

// --------------------------------------------------------------------------
// Embed rendering
// --------------------------------------------------------------------------

func statusColor(status domain.SignalStatus) int {
	switch status {
	case domain.SignalStatusConfirmed:
		return colorConfirmed
	case domain.SignalStatusRejected:
		return colorRejected
	case domain.SignalStatusExpired:
		return colorExpired
	default:
		return colorPending
	}
}

func statusLine(status domain.SignalStatus) string {
	switch status {
	case domain.SignalStatusPending:
		return "Awaiting your decision"
	case domain.SignalStatusConfirmed:
		return "Confirmed"
	case domain.SignalStatusRejected:
		return "Rejected"
	case domain.SignalStatusExpired:
		return "Expired without a decision"
	}
	return string(status)
}

// signalEmbed renders the standard signal card.
func signalEmbed(sig domain.TradeSignal) discord.Embed {
	fields := []discord.EmbedField{
		{Name: "Contract", Value: sig.OptionSymbol, Inline: true},
		{Name: "Side", Value: strings.ToUpper(string(sig.SignalType)), Inline: true},
		{Name: "Qty", Value: fmt.Sprintf("%d", sig.Quantity), Inline: true},
		{Name: "Strike", Value: fmt.Sprintf("$%.2f %s", sig.StrikePrice, strings.ToUpper(string(sig.OptionType))), Inline: true},
		// ConfidenceScore is already on the 0-100 scale.
		{Name: "Confidence", Value: fmt.Sprintf("%.0f%%", sig.ConfidenceScore), Inline: true},
	}
	if sig.LimitPrice != nil {
		fields = append(fields, discord.EmbedField{
			Name: "Limit", Value: fmt.Sprintf("$%.2f", *sig.LimitPrice), Inline: true,
		})
	}
	if sig.Status == domain.SignalStatusPending {
		fields = append(fields, discord.EmbedField{
			Name: "Expires", Value: sig.ExpiresAt.UTC().Format(time.RFC1123),
		})
	}

	return discord.Embed{
		Title:       fmt.Sprintf("%s %s (%s)", strings.ToUpper(string(sig.SignalType)), sig.Symbol, sig.StrategyType),
		Description: statusLine(sig.Status),
		Color:       statusColor(sig.Status),
		Fields:      fields,
		Timestamp:   sig.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// detailEmbed is signalEmbed plus reasoning and market conditions.
func detailEmbed(sig domain.TradeSignal) discord.Embed {
	embed := signalEmbed(sig)
	if sig.Reasoning != "" {
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name: "Reasoning", Value: sig.Reasoning,
		})
	}
	if len(sig.MarketConditions) > 0 {
		var lines []string
		for k, v := range sig.MarketConditions {
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name: "Market conditions", Value: strings.Join(lines, "\n"),
		})
	}
	return embed
}

// positionClosedEmbed renders the realized P&L card for a closed position.
func positionClosedEmbed(e domain.PositionUpdateEvent) discord.Embed {
	fields := []discord.EmbedField{
		{Name: "Symbol", Value: e.Symbol, Inline: true},
	}
	if e.ExitPrice != nil {
		fields = append(fields, discord.EmbedField{
			Name: "Exit", Value: fmt.Sprintf("$%.2f", *e.ExitPrice), Inline: true,
		})
	}

	color := colorClosed
	title := "Position closed: " + e.Symbol
	if e.RealizedPnL != nil {
		pnl := *e.RealizedPnL
		value := fmt.Sprintf("$%.2f", pnl)
		if e.RealizedPnLPct != nil {
			value = fmt.Sprintf("$%.2f (%+.1f%%)", pnl, *e.RealizedPnLPct)
		}
		fields = append(fields, discord.EmbedField{Name: "Realized P&L", Value: value, Inline: true})
		if pnl >= 0 {
			color = colorConfirmed
		} else {
			color = colorRejected
		}
	}
	if e.CloseReason != "" {
		fields = append(fields, discord.EmbedField{Name: "Reason", Value: e.CloseReason, Inline: true})
	}

	return discord.Embed{
		Title:     title,
		Color:     color,
		Fields:    fields,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
	}
}

// decisionButtons builds the Confirm / Reject / Details row.
func decisionButtons(signalID string, disabled bool) []discord.Component {
	return []discord.Component{{
		Type: discord.ComponentActionRow,
		Components: []discord.Component{
			{
				Type:     discord.ComponentButton,
				Style:    discord.ButtonSuccess,
				Label:    "Confirm",
				CustomID: "confirm:" + signalID,
				Disabled: disabled,
			},
			{
				Type:     discord.ComponentButton,
				Style:    discord.ButtonDanger,
				Label:    "Reject",
				CustomID: "reject:" + signalID,
				Disabled: disabled,
			},
			{
				Type:     discord.ComponentButton,
				Style:    discord.ButtonSecondary,
				Label:    "Details",
				CustomID: "details:" + signalID,
				Disabled: disabled,
			},
		},
	}}
}
