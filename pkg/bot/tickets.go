package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/errs"
	"github.com/NicolasHaas/ticketbot/pkg/model"
)

const ticketPerms = chat.PermView | chat.PermSend | chat.PermReadHistory

func topicTag(botName string) string {
	return "Created By " + botName
}

func ticketTopic(botName, userID string) string {
	return topicTag(botName) + " | USER: " + userID
}

func bootstrapTopic(botName string) string {
	return topicTag(botName) + " | DO NOT DELETE"
}

// parseTopic reports whether topic marks a channel managed by botName and
// returns the tagged owner, empty for the bootstrap channel.
func parseTopic(topic, botName string) (owner string, ok bool) {
	if !strings.Contains(topic, topicTag(botName)) {
		return "", false
	}
	_, owner, _ = strings.Cut(topic, "USER: ")
	return strings.TrimSpace(owner), true
}

// createTicket opens a private channel for the user and posts the menu.
func (b *Bot) createTicket(ctx context.Context, r *request) error {
	ev := r.ev
	if !b.allowTicket(ev.UserID) {
		return errs.Validation("You are creating tickets too quickly. Try again in a few seconds.")
	}
	if err := b.sessions.Ensure(ev.UserID); err != nil {
		return err
	}

	s, err := b.sessions.Get(ev.UserID)
	if err != nil {
		return err
	}
	if s.ChannelID != "" {
		b.relays.Stop(ev.UserID)
		if _, ok := b.gw.ChannelTopic(s.ChannelID); ok {
			if err := b.gw.DeleteChannel(ctx, s.ChannelID); err != nil {
				slog.Debug("stale ticket delete failed", "user", ev.UserID, "channel", s.ChannelID, "err", err)
			}
		}
		if _, err := b.sessions.Update(ev.UserID, clearTicket); err != nil {
			return err
		}
	}

	cfg := b.config()
	name := strings.ToLower(ev.Username)
	if name == "" {
		name = "ticket-" + ev.UserID
	}
	channelID, err := b.gw.CreateChannel(ctx, chat.ChannelSpec{
		GuildID:  ev.GuildID,
		Name:     name,
		Type:     chat.ChannelText,
		ParentID: cfg.TicketCategory,
		Topic:    ticketTopic(b.gw.BotName(), ev.UserID),
		Overwrites: []chat.Overwrite{
			{ID: ev.GuildID, Deny: chat.PermView},
			{ID: ev.UserID, Member: true, Allow: ticketPerms},
		},
	})
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not create the ticket channel.", err)
	}
	if err := b.gw.GrantMember(ctx, channelID, ev.UserID, ticketPerms); err != nil {
		slog.Warn("grant ticket permission failed", "user", ev.UserID, "channel", channelID, "err", err)
	}

	b.refreshTotals(ctx, ev.UserID)
	messageID, err := b.gw.SendMessage(ctx, channelID, renderMenu(ev.UserID, s, b.sessions.State(ev.UserID)))
	if err != nil {
		if derr := b.gw.DeleteChannel(ctx, channelID); derr != nil {
			slog.Warn("ticket rollback failed", "user", ev.UserID, "channel", channelID, "err", derr)
		}
		if _, uerr := b.sessions.Update(ev.UserID, clearTicket); uerr != nil {
			slog.Warn("ticket rollback failed", "user", ev.UserID, "err", uerr)
		}
		return errs.Wrap(errs.KindUnknown, "Could not post the ticket menu.", err)
	}

	if _, err := b.sessions.Update(ev.UserID, func(s *model.UserSession) error {
		s.ChannelID = channelID
		s.MessageID = messageID
		return nil
	}); err != nil {
		return err
	}
	b.metrics.TicketsCreated.Add(1)
	slog.Info("ticket created", "user", ev.UserID, "channel", channelID)

	_, err = b.respond(ctx, r, successMessage("Ticket created", fmt.Sprintf("<#%s>", channelID)))
	return err
}

func clearTicket(s *model.UserSession) error {
	s.ClearTicket()
	return nil
}

// refreshMenu re-renders the user's menu in place. Failures are logged and
// leave the session unchanged.
func (b *Bot) refreshMenu(ctx context.Context, userID string) {
	s, err := b.sessions.Get(userID)
	if err != nil {
		slog.Warn("menu render skipped", "user", userID, "err", err)
		return
	}
	if !s.HasTicket() {
		return
	}
	b.refreshTotals(ctx, userID)
	msg := renderMenu(userID, s, b.sessions.State(userID))
	if err := b.gw.EditMessage(ctx, s.ChannelID, s.MessageID, msg); err != nil {
		slog.Debug("menu render failed", "user", userID, "channel", s.ChannelID, "err", err)
	}
}

// refreshTotals fetches study progress for a fully linked account.
func (b *Bot) refreshTotals(ctx context.Context, userID string) {
	st := b.sessions.State(userID)
	if !st.LoggedIn || !st.HasSet() || !st.HasClass() {
		return
	}
	t, err := b.sessions.Client(userID).Total(ctx)
	if err != nil {
		slog.Debug("fetch totals failed", "user", userID, "err", err)
		b.sessions.SetState(userID, func(a *model.AccountState) { a.Totals = nil })
		return
	}
	b.sessions.SetState(userID, func(a *model.AccountState) { a.Totals = &t })
}

// deleteTicket asks for confirmation, then removes the ticket channel.
func (b *Bot) deleteTicket(ctx context.Context, r *request) error {
	ok, err := b.confirm(ctx, r, "Delete this ticket?")
	if err != nil || !ok {
		return err
	}

	userID := r.ev.UserID
	b.relays.Stop(userID)
	s, err := b.sessions.Get(userID)
	if err != nil {
		return err
	}
	channelID := s.ChannelID
	if channelID == "" {
		channelID = r.ev.ChannelID
	}
	if _, err := b.sessions.Update(userID, clearTicket); err != nil {
		return err
	}
	if err := b.gw.DeleteChannel(ctx, channelID); err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not delete the ticket channel.", err)
	}
	b.metrics.TicketsDeleted.Add(1)
	slog.Info("ticket deleted", "user", userID, "channel", channelID)
	return nil
}

// deleteInfo asks for confirmation, then forgets the stored credentials.
func (b *Bot) deleteInfo(ctx context.Context, r *request) error {
	ok, err := b.confirm(ctx, r, "Delete your stored id/password?")
	if err != nil || !ok {
		return err
	}

	userID := r.ev.UserID
	if _, err := b.sessions.Update(userID, func(s *model.UserSession) error {
		s.ClearCredentials()
		return nil
	}); err != nil {
		return err
	}
	b.sessions.ResetAccount(userID)
	b.refreshMenu(ctx, userID)
	_, err = b.respond(ctx, r, successMessage("Stored info deleted", ""))
	return err
}
