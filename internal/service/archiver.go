package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// multipartThreshold is the export size above which the archiver uses a
// multipart upload.
const multipartThreshold int64 = 8 << 20

// SignalArchiver periodically exports signals that reached a terminal state
// to blob storage as JSON lines, one object per run. The export is a
// compliance trail, not a source of truth; a failed run is retried with the
// same window on the next tick because lastRun only advances on success.
type SignalArchiver struct {
	signals  domain.SignalStore
	blob     domain.BlobWriter
	interval time.Duration
	prefix   string
	logger   *slog.Logger

	lastRun time.Time
	alert   func(ctx context.Context, title, message string)
}

// NewSignalArchiver creates an archiver writing under the given key prefix.
// A zero or negative interval defaults to one hour.
func NewSignalArchiver(
	signals domain.SignalStore,
	blob domain.BlobWriter,
	interval time.Duration,
	prefix string,
	logger *slog.Logger,
) *SignalArchiver {
	if interval <= 0 {
		interval = time.Hour
	}
	if prefix == "" {
		prefix = "signals"
	}
	return &SignalArchiver{
		signals:  signals,
		blob:     blob,
		interval: interval,
		prefix:   prefix,
		logger:   logger.With(slog.String("component", "signal_archiver")),
		lastRun:  time.Now().UTC(),
	}
}

// SetAlert registers an operator alert callback for failed runs.
func (a *SignalArchiver) SetAlert(alert func(ctx context.Context, title, message string)) {
	a.alert = alert
}

// Run executes the archive loop until the context is cancelled.
func (a *SignalArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "signal archiver started",
		slog.Duration("interval", a.interval),
		slog.String("prefix", a.prefix),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
				if a.alert != nil {
					a.alert(ctx, "Signal archive failed", err.Error())
				}
			}
		}
	}
}

// ArchiveOnce exports terminal signals decided since the last successful
// run. Runs with nothing to export still advance the window.
func (a *SignalArchiver) ArchiveOnce(ctx context.Context) error {
	until := time.Now().UTC()

	signals, err := a.signals.ListTerminalSince(ctx, a.lastRun, until)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		a.lastRun = until
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, sig := range signals {
		if err := enc.Encode(sig); err != nil {
			return fmt.Errorf("encode signal %s: %w", sig.ID, err)
		}
	}

	key := fmt.Sprintf("%s/%s/%s.jsonl",
		a.prefix, until.Format("2006-01-02"), until.Format("150405"),
	)
	// Exports balloon after long downtime; switch to multipart past 8 MiB.
	if int64(buf.Len()) >= multipartThreshold {
		err = a.blob.PutMultipart(ctx, key, &buf, 0)
	} else {
		err = a.blob.Put(ctx, key, &buf, "application/x-ndjson")
	}
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "archived terminal signals",
		slog.Int("count", len(signals)),
		slog.String("key", key),
	)

	a.lastRun = until
	return nil
}
