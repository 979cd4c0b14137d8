package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/logging"
	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/rbac"
	"github.com/NicolasHaas/ticketbot/pkg/version"
)

const (
	ticketCategoryName   = "TICKETS"
	bootstrapChannelName = "create-ticket"
)

// handleCommand runs owner text commands. Anything else is ignored.
func (b *Bot) handleCommand(ctx context.Context, ev *chat.Event) {
	cfg := b.config()
	rest, ok := strings.CutPrefix(ev.Content, cfg.Prefix)
	if !ok || ev.UserID == b.gw.BotID() {
		return
	}
	role := model.RoleMember
	if cfg.IsOwner(ev.UserID) {
		role = model.RoleOwner
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return
	}
	var perm model.Permission
	switch fields[0] {
	case "setup":
		perm = model.PermSetup
	case "s":
		perm = model.PermSwapSecret
	case "diag":
		perm = model.PermDiagnostics
	default:
		return
	}
	if msg := rbac.RequirePermission(role, perm); msg != "" {
		slog.Debug("owner command refused", "user", ev.UserID, "command", fields[0], "reason", msg)
		return
	}

	var err error
	switch fields[0] {
	case "setup":
		err = b.setup(ctx, ev)
	case "s":
		b.swapSecret(ctx, ev, fields[1:])
	case "diag":
		err = b.diag(ctx, ev, fields[1:])
	}
	if err != nil {
		slog.Error("owner command failed", "user", ev.UserID, "command", fields[0], "err", err)
	}
}

// setup recreates the ticket category and the bootstrap channel with its
// create button, and saves the new ids.
func (b *Bot) setup(ctx context.Context, ev *chat.Event) error {
	cfg := b.config()
	guildID := ev.GuildID
	if guildID == "" {
		return errors.New("setup: command must be sent in a guild")
	}

	if cfg.TicketCategory != "" {
		for _, id := range b.gw.ChildChannels(guildID, cfg.TicketCategory) {
			if err := b.gw.DeleteChannel(ctx, id); err != nil {
				slog.Debug("setup: delete ticket failed", "channel", id, "err", err)
			}
		}
		if err := b.gw.DeleteChannel(ctx, cfg.TicketCategory); err != nil {
			slog.Debug("setup: delete category failed", "channel", cfg.TicketCategory, "err", err)
		}
	}
	if cfg.TicketChannel != "" {
		if err := b.gw.DeleteChannel(ctx, cfg.TicketChannel); err != nil {
			slog.Debug("setup: delete bootstrap channel failed", "channel", cfg.TicketChannel, "err", err)
		}
	}

	categoryID, err := b.gw.CreateChannel(ctx, chat.ChannelSpec{
		GuildID: guildID,
		Name:    ticketCategoryName,
		Type:    chat.ChannelCategory,
		Overwrites: []chat.Overwrite{
			{ID: guildID, Allow: chat.PermReadHistory, Deny: chat.PermView | chat.PermSend},
		},
	})
	if err != nil {
		return fmt.Errorf("setup: create category: %w", err)
	}
	channelID, err := b.gw.CreateChannel(ctx, chat.ChannelSpec{
		GuildID: guildID,
		Name:    bootstrapChannelName,
		Type:    chat.ChannelText,
		Topic:   bootstrapTopic(b.gw.BotName()),
		Overwrites: []chat.Overwrite{
			{ID: guildID, Allow: chat.PermView | chat.PermReadHistory, Deny: chat.PermSend},
		},
	})
	if err != nil {
		return fmt.Errorf("setup: create bootstrap channel: %w", err)
	}

	open := embed("🎫 Open a ticket", colorGreen)
	open.Description = "Press the button to get a private channel for your account."
	if _, err := b.gw.SendMessage(ctx, channelID, chat.Message{
		Embeds: []*discordgo.MessageEmbed{open},
		Components: []discordgo.MessageComponent{
			row(button(idCreateTicket, "Create ticket", discordgo.PrimaryButton, false)),
		},
	}); err != nil {
		return fmt.Errorf("setup: post create button: %w", err)
	}

	cfg = b.updateConfig(func(c *Config) {
		c.Guild = guildID
		c.TicketCategory = categoryID
		c.TicketChannel = channelID
	})
	if b.cfgPath != "" {
		if err := SaveConfig(b.cfgPath, cfg); err != nil {
			slog.Warn("setup: save config failed", "path", b.cfgPath, "err", err)
		}
	}
	slog.Info("setup complete", "guild", guildID, "category", categoryID, "channel", channelID)

	replyID, err := b.gw.SendMessage(ctx, ev.ChannelID, successMessage("Setup complete", ""))
	if err != nil {
		slog.Debug("setup reply failed", "channel", ev.ChannelID, "err", err)
	}
	delay := cfg.SetupReplyDelay.Std()
	b.deleteLater(ev.ChannelID, ev.MessageID, delay)
	if replyID != "" {
		b.deleteLater(ev.ChannelID, replyID, delay)
	}
	return nil
}

// swapSecret replaces the vault secret. The command message is deleted
// first so the secret does not stay in the channel.
func (b *Bot) swapSecret(ctx context.Context, ev *chat.Event, args []string) {
	if err := b.gw.DeleteMessage(ctx, ev.ChannelID, ev.MessageID); err != nil {
		slog.Debug("delete secret command failed", "channel", ev.ChannelID, "err", err)
	}
	if len(args) != 1 || !b.vault.SetSecret(args[0]) {
		slog.Warn("secret swap ignored, the secret must be 32 characters", "user", ev.UserID)
		return
	}
	slog.Info("secret replaced", "user", ev.UserID)
}

// diag answers read-only diagnostic queries.
func (b *Bot) diag(ctx context.Context, ev *chat.Event, args []string) error {
	sub := "sessions"
	if len(args) > 0 {
		sub = args[0]
	}

	var text string
	switch sub {
	case "sessions":
		all, err := b.sessions.List()
		if err != nil {
			return fmt.Errorf("diag: list sessions: %w", err)
		}
		var creds, tickets int
		for _, s := range all {
			if s.HasCredentials() {
				creds++
			}
			if s.HasTicket() {
				tickets++
			}
		}
		text = fmt.Sprintf("stored: %d\nwith credentials: %d\nwith tickets: %d\nlive accounts: %d",
			len(all), creds, tickets, b.sessions.AccountCount())
	case "relays":
		text = fmt.Sprintf("active relays: %d", b.relays.Count())
	case "metrics":
		text = "```json\n" + b.metrics.JSON() + "\n```"
	case "version":
		text = version.Full()
	case "level":
		if len(args) > 1 {
			if err := logging.SetLevel(args[1]); err != nil {
				text = err.Error()
				break
			}
			slog.Info("log level changed", "user", ev.UserID, "level", logging.Level())
		}
		text = "log level: " + logging.Level()
	default:
		text = "usage: diag sessions|relays|metrics|version|level [name]"
	}

	e := embed("🔧 diag "+sub, colorAqua)
	e.Description = text
	if _, err := b.gw.SendMessage(ctx, ev.ChannelID, chat.Message{Embeds: []*discordgo.MessageEmbed{e}}); err != nil {
		return fmt.Errorf("diag: reply: %w", err)
	}
	return nil
}
