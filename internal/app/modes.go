package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradedesk/internal/bot"
	"github.com/alanyoungcy/tradedesk/internal/bot/discord"
	"github.com/alanyoungcy/tradedesk/internal/notify"
	"github.com/alanyoungcy/tradedesk/internal/server"
	"github.com/alanyoungcy/tradedesk/internal/server/handler"
	"github.com/alanyoungcy/tradedesk/internal/server/ws"
	"github.com/alanyoungcy/tradedesk/internal/service"
)

// GatewayMode runs the HTTP/WebSocket gateway, the expiry sweeper, and the
// optional signal archiver.
func (a *App) GatewayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting gateway mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startGateway(ctx, g, deps)
	return g.Wait()
}

// BotMode runs the Discord bridge against a remote gateway API.
func (a *App) BotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bot mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startBot(ctx, g, deps); err != nil {
		return fmt.Errorf("bot mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs the gateway and the Discord bridge in one process. The bridge
// still goes through the HTTP API so decision arbitration has a single path.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startGateway(ctx, g, deps)
	if err := a.startBot(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	return g.Wait()
}

// startGateway adds the HTTP server, WebSocket hub, expiry sweeper, and
// optional archiver goroutines to the given errgroup.
func (a *App) startGateway(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	signalSvc := service.NewSignalService(deps.SignalStore, deps.Bus, deps.AuditStore, a.logger)
	positionSvc := service.NewPositionService(deps.PositionStore, deps.ExecutionStore, a.logger)
	userSvc := service.NewUserService(deps.UserStore, a.logger)

	// WebSocket hub fans bus events out to per-user rooms.
	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger, a.cfg.Mode, time.Now().UTC()),
		Signals:   handler.NewSignalHandler(signalSvc, a.logger),
		Positions: handler.NewPositionHandler(positionSvc, a.logger),
		Users:     handler.NewUserHandler(userSvc, a.logger),
		Trading:   handler.NewTradingHandler(deps.TradingControl, a.logger),
		Analytics: handler.NewAnalyticsHandler(positionSvc, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	// Expiry sweeper: the lock manager keeps concurrent gateway replicas from
	// double-sweeping.
	sweeper := service.NewExpirySweeper(
		deps.SignalStore, deps.Bus, deps.LockManager,
		a.cfg.Expiry.Interval.Duration, a.logger,
	)
	if deps.Notifier != nil {
		sweeper.SetAlert(func(ctx context.Context, title, message string) {
			_ = deps.Notifier.Notify(ctx, notify.EventExpirySweepFailed, title, message)
		})
	}
	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	if a.cfg.Archive.Enabled && deps.BlobWriter != nil {
		archiver := service.NewSignalArchiver(
			deps.SignalStore, deps.BlobWriter,
			a.cfg.Archive.Interval.Duration, a.cfg.Archive.Prefix, a.logger,
		)
		if deps.Notifier != nil {
			archiver.SetAlert(func(ctx context.Context, title, message string) {
				_ = deps.Notifier.Notify(ctx, notify.EventArchiveFailed, title, message)
			})
		}
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}
}

// startBot connects to Discord and adds the bridge goroutines to the given
// errgroup. It returns an error if the initial gateway handshake fails.
func (a *App) startBot(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	dc := discord.NewClient(a.cfg.Discord.BotToken)

	wsURL, err := dc.GatewayURL(ctx)
	if err != nil {
		return fmt.Errorf("resolve discord gateway url: %w", err)
	}
	gw := discord.NewGateway(a.cfg.Discord.BotToken, wsURL)

	api := bot.NewAPIClient(a.cfg.Discord.GatewayAPIBase, a.cfg.Discord.GatewayAPIKey)
	bridge := bot.NewBridge(api, dc, deps.Bus, a.logger)

	gw.OnMessage(bridge.HandleMessage)
	gw.OnInteraction(bridge.HandleInteraction)

	if err := gw.Connect(ctx); err != nil {
		return fmt.Errorf("connect discord gateway: %w", err)
	}

	g.Go(func() error {
		return bridge.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return gw.Close()
	})

	return nil
}
