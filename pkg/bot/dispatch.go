package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/errs"
	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/rbac"
)

// Modal ids.
const (
	modalCredentials = "modal_id_pass"
	modalSet         = "modal_set"
)

// request is one interaction being handled.
type request struct {
	ev    *chat.Event
	owner string // user id tagged in the channel topic
	acked bool   // a reply exists and later output edits it
}

// respond shows msg to the user, editing the existing reply if there is one.
// It returns the id of the reply message.
func (b *Bot) respond(ctx context.Context, r *request, msg chat.Message) (string, error) {
	if !r.acked {
		if err := b.gw.Reply(ctx, r.ev, msg, true); err != nil {
			return "", err
		}
		r.acked = true
	}
	// Reply does not return the message, the edit does.
	return b.gw.EditReply(ctx, r.ev, msg)
}

// handleEvent is the gateway entry point for every inbound event.
func (b *Bot) handleEvent(ctx context.Context, ev *chat.Event) {
	if b.collector.Offer(ev) {
		return
	}
	if ev.Kind == chat.EventMessage {
		b.handleCommand(ctx, ev)
		return
	}

	topic, ok := b.gw.ChannelTopic(ev.ChannelID)
	if !ok {
		return
	}
	owner, ok := parseTopic(topic, b.gw.BotName())
	if !ok {
		return
	}
	b.metrics.Interactions.Add(1)

	r := &request{ev: ev, owner: owner}
	if !strings.HasPrefix(ev.CustomID, "_") {
		if err := b.gw.Reply(ctx, ev, waitMessage("Please wait..."), true); err != nil {
			slog.Debug("wait reply failed", "user", ev.UserID, "custom_id", ev.CustomID, "err", err)
		} else {
			r.acked = true
		}
	}

	if err := b.route(ctx, r); err != nil {
		b.report(ctx, ev, r.acked, err)
	}
}

// route applies the ownership and precondition guards, then runs the handler.
func (b *Bot) route(ctx context.Context, r *request) error {
	ev := r.ev
	if ev.CustomID == idCreateTicket {
		return b.createTicket(ctx, r)
	}
	if target, ok := strings.CutPrefix(ev.CustomID, idDeleteMessage+"|"); ok {
		return b.deleteMessage(ctx, r, target)
	}

	role := model.RoleMember
	if r.owner != "" && r.owner == ev.UserID {
		role = model.RoleTicketOwner
	}
	if msg := rbac.RequirePermission(role, model.PermControlTicket); msg != "" {
		b.metrics.PermissionDenials.Add(1)
		return errs.Permission(msg)
	}

	if strings.HasPrefix(ev.CustomID, "s_") && !b.sessions.State(ev.UserID).HasSet() {
		return errs.Validation("Link a set first with the set target button.")
	}

	switch ev.CustomID {
	case idDeleteChannel:
		return b.deleteTicket(ctx, r)
	case idDeleteInfo:
		return b.deleteInfo(ctx, r)
	case idSetIDPass:
		return b.showCredentialsModal(ctx, r)
	case idSetSet:
		return b.showSetModal(ctx, r)
	case modalCredentials:
		return b.submitCredentials(ctx, r)
	case modalSet:
		return b.submitSet(ctx, r)
	case idGetSets:
		return b.listSets(ctx, r)
	case idRefresh:
		return b.refresh(ctx, r)
	case idMemorize:
		return b.learn(ctx, r, model.LearnMemorize)
	case idRecall:
		return b.learn(ctx, r, model.LearnRecall)
	case idSpell:
		return b.learn(ctx, r, model.LearnSpell)
	case idTest:
		return b.postTest(ctx, r)
	case idMatchScramble:
		return b.playMinigame(ctx, r, model.ActivityMatch)
	case idCrash:
		return b.playMinigame(ctx, r, model.ActivityCrash)
	case idQuizBattle:
		return b.startBattle(ctx, r, false)
	case idCrasher:
		return b.startBattle(ctx, r, true)
	case idYes, idNo, idClassSelect, idMarkCorrect, idMarkWrong:
		return errs.Timeout("This prompt is no longer active.")
	default:
		slog.Debug("unknown component", "user", ev.UserID, "custom_id", ev.CustomID)
		return nil
	}
}

// deleteMessage removes the message a delete button is attached to. Only
// the user named in the button id may press it.
func (b *Bot) deleteMessage(ctx context.Context, r *request, target string) error {
	if r.ev.UserID != target {
		b.metrics.PermissionDenials.Add(1)
		return errs.Permission("Only the requesting user can delete this message.")
	}
	if err := b.gw.DeferUpdate(ctx, r.ev); err != nil {
		slog.Debug("defer update failed", "user", r.ev.UserID, "err", err)
	}
	r.acked = true
	if err := b.gw.DeleteMessage(ctx, r.ev.ChannelID, r.ev.MessageID); err != nil {
		slog.Debug("delete message failed", "channel", r.ev.ChannelID, "message", r.ev.MessageID, "err", err)
	}
	return nil
}
