package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/errs"
)

// Embed colors.
const (
	colorGreen  = 0x57F287
	colorYellow = 0xFEE75C
	colorRed    = 0xED4245
	colorAqua   = 0x1ABC9C
)

func embed(title string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: title, Color: color}
}

func notice(title string, color int) chat.Message {
	return chat.Message{Embeds: []*discordgo.MessageEmbed{embed(title, color)}}
}

func successMessage(title, description string) chat.Message {
	e := embed("✅ "+title, colorGreen)
	e.Description = description
	return chat.Message{Embeds: []*discordgo.MessageEmbed{e}}
}

func waitMessage(title string) chat.Message {
	return notice("⚙️ "+title, colorAqua)
}

func questionMessage(title string) chat.Message {
	return notice("❓ "+title, colorYellow)
}

// errorTitles are the headings shown for each error kind.
var errorTitles = map[errs.Kind]string{
	errs.KindValidation:  "❌ Invalid input",
	errs.KindAuth:        "❌ Login failed",
	errs.KindTimeout:     "❌ Time expired",
	errs.KindExternalAPI: "❌ The learning platform returned an error",
	errs.KindPermission:  "❌ Not allowed",
	errs.KindUnknown:     "❌ Something went wrong",
}

// errorEmbed is the only place user-facing error text is produced.
func errorEmbed(err error) *discordgo.MessageEmbed {
	kind := errs.KindOf(err)
	title, ok := errorTitles[kind]
	if !ok {
		title = errorTitles[errs.KindUnknown]
	}
	e := embed(title, colorRed)
	if msg := errs.MessageOf(err, ""); msg != "" && len(msg) < 4000 {
		e.Description = msg
	}
	return e
}

func errorMessage(err error) chat.Message {
	return chat.Message{Embeds: []*discordgo.MessageEmbed{errorEmbed(err)}}
}

// report shows err to the user who triggered ev. If the interaction was
// already answered the reply is edited, otherwise a new ephemeral reply is
// sent. Failures are logged and dropped.
func (b *Bot) report(ctx context.Context, ev *chat.Event, acked bool, err error) {
	kind := errs.KindOf(err)
	logArgs := []any{"user", ev.UserID, "custom_id", ev.CustomID, "kind", kind, "err", err}
	var e *errs.Error
	if errors.As(err, &e) && e.Trace != "" {
		logArgs = append(logArgs, "trace", e.Trace)
	}
	switch kind {
	case errs.KindUnknown:
		slog.Error("interaction failed", logArgs...)
	case errs.KindExternalAPI:
		b.metrics.ExternalFailures.Add(1)
		slog.Warn("interaction failed", logArgs...)
	default:
		slog.Debug("interaction rejected", logArgs...)
	}

	if !ev.IsInteraction() {
		return
	}
	msg := errorMessage(err)
	if acked {
		_, rerr := b.gw.EditReply(ctx, ev, msg)
		if rerr != nil {
			slog.Debug("error reply edit failed", "user", ev.UserID, "err", rerr)
		}
		return
	}
	if rerr := b.gw.Reply(ctx, ev, msg, true); rerr != nil {
		slog.Debug("error reply failed", "user", ev.UserID, "err", rerr)
	}
}

// deleteLater removes a message after delay unless the bot is shutting down.
func (b *Bot) deleteLater(channelID, messageID string, delay time.Duration) {
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-b.ctx.Done():
			return
		case <-t.C:
		}
		if !b.gw.MessageExists(b.ctx, channelID, messageID) {
			return
		}
		if err := b.gw.DeleteMessage(b.ctx, channelID, messageID); err != nil {
			slog.Debug("delayed delete failed", "channel", channelID, "message", messageID, "err", err)
		}
	}()
}

// button builds a button component.
func button(customID, label string, style discordgo.ButtonStyle, disabled bool) discordgo.Button {
	return discordgo.Button{CustomID: customID, Label: label, Style: style, Disabled: disabled}
}

func row(buttons ...discordgo.MessageComponent) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: buttons}
}
