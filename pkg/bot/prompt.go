package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/NicolasHaas/ticketbot/pkg/errs"
)

// awaitText waits for the next message userID writes in channelID and
// deletes it. On timeout the prompt message promptID, when given, is edited
// to an expiry notice and removed after the notice delay.
func (b *Bot) awaitText(ctx context.Context, channelID, promptID, userID string) (string, error) {
	cfg := b.config()
	ev, err := b.collector.Await(ctx, messageFrom(channelID, userID), cfg.PromptTimeout.Std())
	if err != nil {
		if errs.KindOf(err) == errs.KindTimeout {
			b.metrics.PromptTimeouts.Add(1)
			if promptID != "" {
				b.expire(ctx, channelID, promptID)
			}
		}
		return "", err
	}

	if err := b.gw.DeleteMessage(ctx, channelID, ev.MessageID); err != nil {
		slog.Debug("delete answer failed", "channel", channelID, "message", ev.MessageID, "err", err)
	}
	return strings.TrimSpace(ev.Content), nil
}

// expire turns a prompt into a timeout notice and deletes it later.
func (b *Bot) expire(ctx context.Context, channelID, promptID string) {
	msg := errorMessage(errs.Timeout("time expired."))
	if err := b.gw.EditMessage(ctx, channelID, promptID, msg); err != nil {
		slog.Debug("expire prompt failed", "channel", channelID, "message", promptID, "err", err)
	}
	b.deleteLater(channelID, promptID, b.config().NoticeDelay.Std())
}
