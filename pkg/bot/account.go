package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/errs"
	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/platform"
)

const (
	// maxListLength keeps a set listing inside an embed description.
	maxListLength = 3800

	// maxSelectOptions is the platform limit for one select menu.
	maxSelectOptions = 25
)

func (b *Bot) showCredentialsModal(ctx context.Context, r *request) error {
	err := b.gw.ShowModal(ctx, r.ev, chat.Modal{
		CustomID: modalCredentials,
		Title:    "Set id/password",
		Fields: []chat.TextField{
			{ID: "id", Label: "ID", Placeholder: "platform id", MinLength: 5, MaxLength: 20},
			{ID: "password", Label: "Password", Placeholder: "platform password", MinLength: 5, MaxLength: 4000},
		},
	})
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not open the form.", err)
	}
	r.acked = true
	return nil
}

func (b *Bot) showSetModal(ctx context.Context, r *request) error {
	err := b.gw.ShowModal(ctx, r.ev, chat.Modal{
		CustomID: modalSet,
		Title:    "Set target set",
		Fields: []chat.TextField{
			{ID: "set_id", Label: "Set ID", Placeholder: "numeric set id", MinLength: 1, MaxLength: 20},
		},
	})
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not open the form.", err)
	}
	r.acked = true
	return nil
}

// submitCredentials logs in with the submitted id/password on a fresh
// client. The session is only written after the login succeeded.
func (b *Bot) submitCredentials(ctx context.Context, r *request) error {
	userID := r.ev.UserID
	id := strings.TrimSpace(r.ev.Fields["id"])
	password := r.ev.Fields["password"]
	if id == "" || password == "" {
		return errs.Validation("Both id and password are required.")
	}

	client := b.sessions.NewClient()
	acct, err := client.Login(ctx, id, password)
	if err != nil {
		return err
	}

	idCipher, err := b.vault.Encrypt(id)
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not store the credentials.", err)
	}
	pwCipher, err := b.vault.Encrypt(password)
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not store the credentials.", err)
	}
	if _, err := b.sessions.Update(userID, func(s *model.UserSession) error {
		s.ExternalIDCipher = idCipher
		s.ExternalPasswordCipher = pwCipher
		s.ClassID = 0
		s.SetID = 0
		return nil
	}); err != nil {
		return err
	}
	b.sessions.Attach(userID, client, model.AccountState{LoggedIn: true, Account: acct})
	slog.Info("account linked", "user", userID)

	b.refreshMenu(ctx, userID)
	_, err = b.respond(ctx, r, successMessage("Logged in", fmt.Sprintf("Logged in as **%s**.", acct.Name)))
	return err
}

// loggedIn returns the user's client, or an AuthError when no account is
// logged in.
func (b *Bot) loggedIn(userID string) (platform.Client, error) {
	if !b.sessions.State(userID).LoggedIn {
		return nil, errs.Auth("Set your id/password first.")
	}
	return b.sessions.Client(userID), nil
}

func (b *Bot) submitSet(ctx context.Context, r *request) error {
	userID := r.ev.UserID
	setID, err := strconv.Atoi(strings.TrimSpace(r.ev.Fields["set_id"]))
	if err != nil || setID <= 0 {
		return errs.Validation("The set id must be a positive number.")
	}
	client, err := b.loggedIn(userID)
	if err != nil {
		return err
	}

	set, err := client.SetSet(ctx, setID)
	if err != nil {
		return err
	}
	if _, err := b.sessions.Update(userID, func(s *model.UserSession) error {
		s.SetID = set.ID
		return nil
	}); err != nil {
		return err
	}
	b.sessions.SetState(userID, func(a *model.AccountState) {
		a.Set = set
		a.Totals = nil
	})

	b.refreshMenu(ctx, userID)
	_, err = b.respond(ctx, r, successMessage("Set linked", fmt.Sprintf("`%s` [%d]", set.Name, set.ID)))
	return err
}

// listSets offers the user's classes and folders, links the chosen class
// (or unlinks it for a folder) and posts the sets it contains.
func (b *Bot) listSets(ctx context.Context, r *request) error {
	userID := r.ev.UserID
	client, err := b.loggedIn(userID)
	if err != nil {
		return err
	}

	classes, err := client.Classes(ctx)
	if err != nil {
		return err
	}
	folders, err := client.Folders(ctx)
	if err != nil {
		return err
	}

	var options []discordgo.SelectMenuOption
	for _, c := range classes {
		options = append(options, discordgo.SelectMenuOption{
			Label: c.Name, Value: "class:" + strconv.Itoa(c.ID), Description: "class",
		})
	}
	for _, f := range folders {
		options = append(options, discordgo.SelectMenuOption{
			Label: f.Name, Value: "folder:" + f.Name, Description: "folder",
		})
	}
	if len(options) == 0 {
		return errs.Validation("You have no classes or folders.")
	}
	if len(options) > maxSelectOptions {
		options = options[:maxSelectOptions]
	}

	prompt := questionMessage("Choose a class or folder.")
	prompt.Components = []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{CustomID: idClassSelect, Placeholder: "class or folder", Options: options},
		}},
	}
	replyID, err := b.respond(ctx, r, prompt)
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not show the class list.", err)
	}

	pick, err := b.collector.Await(ctx, componentOn(replyID, userID, idClassSelect), b.config().PromptTimeout.Std())
	if err != nil {
		if errs.KindOf(err) == errs.KindTimeout {
			b.metrics.PromptTimeouts.Add(1)
		}
		return err
	}
	if err := b.gw.DeferUpdate(ctx, pick); err != nil {
		slog.Debug("defer update failed", "user", userID, "err", err)
	}
	if len(pick.Values) == 0 {
		return errs.Validation("Nothing was selected.")
	}

	var (
		header string
		sets   []model.Named
	)
	kind, value, _ := strings.Cut(pick.Values[0], ":")
	switch kind {
	case "class":
		classID, err := strconv.Atoi(value)
		if err != nil {
			return errs.Validation("Unknown class.")
		}
		class, err := client.SetClass(ctx, classID)
		if err != nil {
			return err
		}
		if _, err := b.sessions.Update(userID, func(s *model.UserSession) error {
			s.ClassID = class.ID
			return nil
		}); err != nil {
			return err
		}
		b.sessions.SetState(userID, func(a *model.AccountState) { a.Class = class })
		if sets, err = client.SetsFromClass(ctx, class.ID); err != nil {
			return err
		}
		header = fmt.Sprintf("Sets in class **%s**", class.Name)
	case "folder":
		if _, err := b.sessions.Update(userID, func(s *model.UserSession) error {
			s.ClassID = 0
			return nil
		}); err != nil {
			return err
		}
		b.sessions.SetState(userID, func(a *model.AccountState) { a.Class = model.Class{} })
		if sets, err = client.SetsFromFolder(ctx, value); err != nil {
			return err
		}
		header = fmt.Sprintf("Sets in folder **%s**", value)
	default:
		return errs.Validation("Unknown selection.")
	}
	b.refreshMenu(ctx, userID)

	list := embed("📚 "+header, colorAqua)
	list.Description = setListing(sets)
	msg := chat.Message{
		Embeds: []*discordgo.MessageEmbed{list},
		Components: []discordgo.MessageComponent{
			row(button(idDeleteMessage+"|"+userID, "Delete", discordgo.DangerButton, false)),
		},
	}
	if _, err := b.gw.SendMessage(ctx, r.ev.ChannelID, msg); err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not post the set list.", err)
	}
	_, err = b.respond(ctx, r, successMessage("Set list posted", "Use the set id with the set target button."))
	return err
}

// setListing renders sets one per line.
func setListing(sets []model.Named) string {
	if len(sets) == 0 {
		return "There are no sets here."
	}
	var sb strings.Builder
	for _, s := range sets {
		fmt.Fprintf(&sb, "`%s` [%d]\n", s.Name, s.ID)
	}
	if sb.Len() > maxListLength {
		return "Too many sets to list. Look the set id up on the learning platform."
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// refresh logs in again with the stored credentials and re-renders the
// menu. A rejected login forgets the credentials.
func (b *Bot) refresh(ctx context.Context, r *request) error {
	userID := r.ev.UserID
	s, err := b.sessions.Get(userID)
	if err != nil {
		return err
	}
	if !s.HasCredentials() {
		return errs.Auth("Set your id/password first.")
	}
	if _, err := b.respond(ctx, r, waitMessage("Refreshing...")); err != nil {
		slog.Debug("refresh reply failed", "user", userID, "err", err)
	}

	err = b.restoreAccount(ctx, userID, s)
	b.refreshMenu(ctx, userID)
	if err != nil {
		return err
	}
	_, err = b.respond(ctx, r, successMessage("Menu refreshed", ""))
	return err
}

// restoreAccount logs in with the stored credentials and re-links the stored
// class and set. Every step that fails degrades the matching session field
// to unset and persists that.
func (b *Bot) restoreAccount(ctx context.Context, userID string, s model.UserSession) error {
	id := b.vault.Decrypt(s.ExternalIDCipher)
	password := b.vault.Decrypt(s.ExternalPasswordCipher)

	client := b.sessions.NewClient()
	var (
		acct model.Account
		err  error
	)
	if id == "" || password == "" {
		err = errs.Auth("Stored credentials could not be read.")
	} else {
		acct, err = client.Login(ctx, id, password)
	}
	if err != nil {
		b.sessions.ResetAccount(userID)
		if _, uerr := b.sessions.Update(userID, func(s *model.UserSession) error {
			s.ClearCredentials()
			return nil
		}); uerr != nil {
			slog.Warn("clear credentials failed", "user", userID, "err", uerr)
		}
		slog.Info("stored login rejected, credentials cleared", "user", userID, "err", err)
		return errs.Wrap(errs.KindAuth, "invalid id or password.", err)
	}

	state := model.AccountState{LoggedIn: true, Account: acct}
	if s.ClassID > 0 {
		class, err := client.SetClass(ctx, s.ClassID)
		if err != nil {
			slog.Info("stored class unavailable", "user", userID, "class", s.ClassID, "err", err)
			b.degrade(userID, func(s *model.UserSession) { s.ClassID = 0 })
		} else {
			state.Class = class
		}
	}
	if s.SetID > 0 {
		set, err := client.SetSet(ctx, s.SetID)
		if err != nil {
			slog.Info("stored set unavailable", "user", userID, "set", s.SetID, "err", err)
			b.degrade(userID, func(s *model.UserSession) { s.SetID = 0 })
		} else {
			state.Set = set
		}
	}
	b.sessions.Attach(userID, client, state)
	return nil
}

func (b *Bot) degrade(userID string, fn func(*model.UserSession)) {
	if _, err := b.sessions.Update(userID, func(s *model.UserSession) error {
		fn(s)
		return nil
	}); err != nil {
		slog.Warn("persist degraded session failed", "user", userID, "err", err)
	}
}
