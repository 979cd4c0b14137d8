package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/model"
)

// Component ids. Ids without a leading underscore get an immediate
// "please wait" reply before they are handled.
const (
	idCreateTicket  = "create_ticket"
	idDeleteChannel = "delete_channel"
	idDeleteInfo    = "delete_info"
	idSetIDPass     = "_set_id_pass"
	idSetSet        = "_set_set"
	idGetSets       = "get_sets"
	idMemorize      = "s_memorize"
	idRecall        = "s_recall"
	idSpell         = "s_spell"
	idMatchScramble = "s_match_scramble"
	idCrash         = "s_crash"
	idTest          = "s_test"
	idQuizBattle    = "_quiz_battle"
	idCrasher       = "_quiz_battle_crasher"
	idMarkCorrect   = "_quiz_battle_answer|correct"
	idMarkWrong     = "_quiz_battle_answer|wrong"
	idDeleteMessage = "_delete_message"
	idRefresh       = "_update_message"
	idYes           = "_yes"
	idNo            = "_no"
	idClassSelect   = "class_select_1"
)

type menuMode int

const (
	menuNeedsCredentials menuMode = iota
	menuNeedsTarget
	menuFull
)

func menuModeOf(s model.UserSession, st model.AccountState) menuMode {
	switch {
	case !s.HasCredentials():
		return menuNeedsCredentials
	case !st.HasSet() || !st.HasClass():
		return menuNeedsTarget
	default:
		return menuFull
	}
}

// renderMenu builds the ticket menu. It is a pure function of its inputs.
func renderMenu(userID string, s model.UserSession, st model.AccountState) chat.Message {
	mode := menuModeOf(s, st)
	noCreds := mode == menuNeedsCredentials
	studiable := st.Set.Type.Studiable()

	components := []discordgo.MessageComponent{
		row(
			button(idSetIDPass, "Set id/password", discordgo.PrimaryButton, false),
			button(idSetSet, "Set target set", discordgo.PrimaryButton, noCreds),
		),
	}

	if mode == menuFull {
		var study []discordgo.MessageComponent
		if studiable {
			study = append(study,
				button(idMemorize, "Memorize", discordgo.SuccessButton, false),
				button(idRecall, "Recall", discordgo.SuccessButton, false),
				button(idSpell, "Spell", discordgo.SuccessButton, false),
			)
		}
		if st.HasClass() {
			study = append(study, button(idTest, "Test", discordgo.SuccessButton, false))
		}
		if len(study) > 0 {
			components = append(components, row(study...))
		}
	}

	var battle []discordgo.MessageComponent
	if mode == menuFull && studiable {
		battle = append(battle,
			button(idMatchScramble, "Match/Scramble game", discordgo.SuccessButton, false),
			button(idCrash, "Crash game", discordgo.SuccessButton, false),
		)
	}
	battle = append(battle,
		button(idQuizBattle, "Quiz battle", discordgo.SuccessButton, false),
		button(idCrasher, "Quiz battle crasher", discordgo.SuccessButton, false),
	)
	components = append(components,
		row(battle...),
		row(
			button(idGetSets, "Fetch set list", discordgo.SuccessButton, noCreds),
			button(idRefresh, "Refresh", discordgo.SuccessButton, noCreds),
		),
		row(
			button(idDeleteChannel, "Delete ticket", discordgo.DangerButton, false),
			button(idDeleteInfo, "Delete stored info", discordgo.DangerButton, noCreds),
		),
	)

	status := &discordgo.MessageEmbed{Color: colorYellow}
	switch mode {
	case menuNeedsCredentials:
		status.Title = "Set your id/password."
	case menuNeedsTarget:
		if st.HasClass() {
			status.Title = "Choose a set."
		} else {
			status.Title = "Studying is limited outside a class, move to a class."
		}
	case menuFull:
		status.Title = "Account info"
		status.Color = colorGreen
		status.Fields = []*discordgo.MessageEmbedField{
			{Name: "Name", Value: "**" + st.Account.Name + "**", Inline: true},
		}
	}

	embeds := []*discordgo.MessageEmbed{status}
	if mode == menuFull {
		embeds = append(embeds, infoEmbed(st))
	}

	return chat.Message{
		Content:    "<@" + userID + ">",
		Embeds:     embeds,
		Components: components,
	}
}

func infoEmbed(st model.AccountState) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: "Set/Class info",
		Color: colorGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Set name[id]", Value: fmt.Sprintf("%s[%d]", st.Set.Name, st.Set.ID), Inline: true},
			{Name: "Class", Value: fmt.Sprintf("%s[%d]", st.Class.Name, st.Class.ID), Inline: true},
			{Name: "Set type", Value: st.Set.Type.String(), Inline: true},
			{Name: "Cards", Value: fmt.Sprintf("%d cards", st.Set.CardCount), Inline: true},
		},
	}
	t := st.Totals
	if t == nil {
		return e
	}
	if st.Set.Type.Studiable() {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   "Study progress",
			Value:  fmt.Sprintf("Memorize: **%d%%**\nRecall: **%d%%**\nSpell: **%d%%**", t.Memorize, t.Recall, t.Spell),
			Inline: true,
		})
	}
	if t.Test != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   "Tests",
			Value:  testHistory(t.Test),
			Inline: true,
		})
	}
	return e
}

// testHistory renders test scores two per line.
func testHistory(scores []int) string {
	if len(scores) == 0 {
		return "No test records."
	}
	var lines []string
	for i := 0; i < len(scores); i += 2 {
		line := fmt.Sprintf("%d차 - **%d점**", i+1, scores[i])
		if i+1 < len(scores) {
			line += fmt.Sprintf(" %d차 - **%d점**", i+2, scores[i+1])
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
