package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/ticketbot/pkg/errs"
	"github.com/NicolasHaas/ticketbot/pkg/model"
)

// learn completes every card of the linked set in one study mode.
func (b *Bot) learn(ctx context.Context, r *request, kind model.LearningKind) error {
	userID := r.ev.UserID
	client, err := b.loggedIn(userID)
	if err != nil {
		return err
	}
	if !b.sessions.State(userID).Set.Type.Studiable() {
		return errs.Validation("This set type does not support study actions.")
	}

	p, err := client.LearnAll(ctx, kind)
	if err != nil {
		return err
	}
	b.refreshMenu(ctx, userID)

	title := strings.ToUpper(kind.String()[:1]) + kind.String()[1:] + " complete"
	_, err = b.respond(ctx, r, successMessage(title, fmt.Sprintf("%d%% → %d%%", p.Before, p.After)))
	return err
}

func (b *Bot) postTest(ctx context.Context, r *request) error {
	userID := r.ev.UserID
	client, err := b.loggedIn(userID)
	if err != nil {
		return err
	}
	if !b.sessions.State(userID).HasClass() {
		return errs.Validation("Tests are only available inside a class.")
	}

	score, err := client.PostTest(ctx)
	if err != nil {
		return err
	}
	if score == "" {
		score = "100"
	}
	b.refreshMenu(ctx, userID)
	_, err = b.respond(ctx, r, successMessage("Test submitted", "Score: **"+score+"**"))
	return err
}

// scoreError turns a score validation failure into the message shown to the user.
func scoreError(err error, unit int) error {
	switch {
	case errors.Is(err, model.ErrScoreUnit):
		return errs.Validation(fmt.Sprintf("The score must be a multiple of %d.", unit))
	case errors.Is(err, model.ErrScoreNotNumber):
		return errs.Validation("The score must be a number.")
	case errors.Is(err, model.ErrScoreTooHigh):
		return errs.Validation(fmt.Sprintf("The score cannot be higher than %d.", model.MaxGameScore))
	case errors.Is(err, model.ErrScoreTooLow):
		return errs.Validation(fmt.Sprintf("The score must be at least %d.", unit))
	default:
		return errs.Wrap(errs.KindValidation, "Invalid score.", err)
	}
}

// playMinigame asks for a score in the channel and records it.
func (b *Bot) playMinigame(ctx context.Context, r *request, activity model.Activity) error {
	userID := r.ev.UserID
	client, err := b.loggedIn(userID)
	if err != nil {
		return err
	}
	if !b.sessions.State(userID).Set.Type.Studiable() {
		return errs.Validation("This set type does not support this game.")
	}

	unit := activity.ScoreUnit()
	prompt := questionMessage(fmt.Sprintf("Type the %s score to record (a multiple of %d, at most %d).",
		activity, unit, model.MaxGameScore))
	if _, err := b.respond(ctx, r, prompt); err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not ask for the score.", err)
	}

	// The prompt is an ephemeral reply, the timeout notice replaces it.
	raw, err := b.awaitText(ctx, r.ev.ChannelID, "", userID)
	if err != nil {
		return err
	}
	score, err := model.ParseGameScore(raw, unit)
	if err != nil {
		return scoreError(err, unit)
	}

	if _, err := b.respond(ctx, r, waitMessage("Recording the score...")); err != nil {
		slog.Debug("score reply failed", "user", userID, "err", err)
	}
	res, err := client.AddGameScore(ctx, activity, score, true)
	if err != nil {
		return err
	}

	msg := successMessage("Score recorded", res.Message)
	e := msg.Embeds[0]
	if res.Rank.All != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name: "Overall rank", Value: fmt.Sprintf("#%d", *res.Rank.All), Inline: true,
		})
	}
	if res.Rank.Class != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name: "Class rank", Value: fmt.Sprintf("#%d", *res.Rank.Class), Inline: true,
		})
	}
	b.refreshMenu(ctx, userID)
	_, err = b.respond(ctx, r, msg)
	return err
}
