package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/ticketbot/pkg/errs"
)

// confirmTimeout matches the lifetime of an interaction token; after it the
// Yes/No buttons can no longer be answered anyway.
const confirmTimeout = 15 * time.Minute

// confirm shows Yes/No buttons on the interaction reply and waits for the
// requesting user to press one. A "No" or a failed wait shows a cancellation
// notice and reports false without an error.
func (b *Bot) confirm(ctx context.Context, r *request, question string) (bool, error) {
	msg := questionMessage(question)
	msg.Components = []discordgo.MessageComponent{
		row(
			button(idYes, "Yes", discordgo.DangerButton, false),
			button(idNo, "No", discordgo.SecondaryButton, false),
		),
	}
	replyID, err := b.respond(ctx, r, msg)
	if err != nil {
		return false, errs.Wrap(errs.KindUnknown, "Could not ask for confirmation.", err)
	}

	press, err := b.collector.Await(ctx, componentOn(replyID, r.ev.UserID, idYes, idNo), confirmTimeout)
	if err != nil {
		slog.Debug("confirmation wait failed", "user", r.ev.UserID, "err", err)
		b.cancelled(ctx, r)
		return false, nil
	}
	if err := b.gw.DeferUpdate(ctx, press); err != nil {
		slog.Debug("defer update failed", "user", press.UserID, "err", err)
	}
	if press.CustomID != idYes {
		b.cancelled(ctx, r)
		return false, nil
	}
	if _, err := b.respond(ctx, r, waitMessage("Working on it...")); err != nil {
		slog.Debug("confirmation reply failed", "user", r.ev.UserID, "err", err)
	}
	return true, nil
}

func (b *Bot) cancelled(ctx context.Context, r *request) {
	if _, err := b.respond(ctx, r, notice("Cancelled.", colorRed)); err != nil {
		slog.Debug("cancel reply failed", "user", r.ev.UserID, "err", err)
	}
}
