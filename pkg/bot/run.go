package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/ticketbot/pkg/version"
)

// Run connects to the chat gateway and blocks until a shutdown signal.
func (b *Bot) Run() error {
	if err := b.Start(); err != nil {
		return err
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-b.ctx.Done():
	}

	slog.Info("shutting down...")
	b.Shutdown()
	return nil
}

// Start opens the gateway, restores stored sessions and starts the
// background services. It returns once the bot is serving.
func (b *Bot) Start() error {
	if b.gw == nil || b.store == nil || b.vault == nil {
		return errors.New("bot: missing gateway, store or vault dependency")
	}

	// Accounts first so restored menus render with live state.
	if err := b.replayAccounts(b.ctx); err != nil {
		slog.Error("replay accounts failed", "err", err)
	}

	if err := b.gw.Open(b.ctx, b.handleEvent); err != nil {
		return fmt.Errorf("bot: open gateway: %w", err)
	}
	if err := b.restoreTickets(b.ctx); err != nil {
		slog.Error("restore tickets failed", "err", err)
	}

	slog.Info("ticketbot running",
		"bot", b.gw.BotName(),
		"version", version.String(),
		"store", b.config().Store,
	)

	// Start Prometheus metrics HTTP endpoint
	b.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	b.metrics.StartPeriodicLog(60*time.Second, b.ctx.Done())
	return nil
}

// Shutdown stops every relay, disconnects and closes the store.
func (b *Bot) Shutdown() {
	b.relays.StopAll()
	b.cancel()
	if b.gw != nil {
		if err := b.gw.Close(); err != nil {
			slog.Debug("gateway close failed", "err", err)
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			slog.Warn("store close failed", "err", err)
		}
	}
}
