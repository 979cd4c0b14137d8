package bot

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/ticketbot/pkg/model"
)

// replayConcurrency bounds the platform logins made at startup.
const replayConcurrency = 8

// replayAccounts re-derives the account state of every stored session by
// logging in again. Failures degrade the session, they never abort replay.
func (b *Bot) replayAccounts(ctx context.Context) error {
	all, err := b.sessions.List()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(replayConcurrency)
	for userID, s := range all {
		if !s.HasCredentials() {
			continue
		}
		g.Go(func() error {
			if err := b.restoreAccount(gctx, userID, s); err != nil {
				slog.Debug("replay: account not restored", "user", userID, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("replay: accounts restored", "sessions", len(all), "live", b.sessions.AccountCount())
	return nil
}

// restoreTickets reconciles stored tickets with the chat server. It needs an
// open gateway.
func (b *Bot) restoreTickets(ctx context.Context) error {
	all, err := b.sessions.List()
	if err != nil {
		return err
	}

	for userID, s := range all {
		if s.ChannelID == "" && s.MessageID == "" {
			continue
		}
		if _, ok := b.gw.ChannelTopic(s.ChannelID); !ok {
			slog.Info("replay: ticket channel gone", "user", userID, "channel", s.ChannelID)
			b.degrade(userID, func(s *model.UserSession) { s.ClearTicket() })
			continue
		}
		if s.MessageID == "" || !b.gw.MessageExists(ctx, s.ChannelID, s.MessageID) {
			slog.Info("replay: ticket menu gone, removing channel", "user", userID, "channel", s.ChannelID)
			if err := b.gw.DeleteChannel(ctx, s.ChannelID); err != nil {
				slog.Debug("replay: delete channel failed", "channel", s.ChannelID, "err", err)
			}
			b.degrade(userID, func(s *model.UserSession) { s.ClearTicket() })
			continue
		}
		b.refreshMenu(ctx, userID)
	}
	return nil
}
