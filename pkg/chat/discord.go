package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/bwmarrin/discordgo"
)

var _ Gateway = (*Discord)(nil)

// Discord implements Gateway on a discordgo session.
type Discord struct {
	s *discordgo.Session

	mu      sync.RWMutex
	botID   string
	botName string
}

// NewDiscord creates an adapter for the bot token. Call Open to connect.
func NewDiscord(token string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("chat: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	s.StateEnabled = true
	return &Discord{s: s}, nil
}

func (d *Discord) Open(ctx context.Context, h Handler) error {
	ready := make(chan struct{})
	var once sync.Once

	d.s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.mu.Lock()
		d.botID = r.User.ID
		d.botName = r.User.Username
		d.mu.Unlock()
		slog.Info("chat gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
		once.Do(func() { close(ready) })
	})
	d.s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		d.dispatch(ctx, h, &Event{
			Kind:      EventMessage,
			Content:   m.Content,
			GuildID:   m.GuildID,
			ChannelID: m.ChannelID,
			MessageID: m.ID,
			UserID:    m.Author.ID,
			Username:  m.Author.Username,
		})
	})
	d.s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if ev := fromInteraction(i.Interaction); ev != nil {
			d.dispatch(ctx, h, ev)
		}
	})

	if err := d.s.Open(); err != nil {
		return fmt.Errorf("chat: open gateway: %w", err)
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		_ = d.s.Close()
		return ctx.Err()
	}
}

func (d *Discord) Close() error {
	return d.s.Close()
}

// dispatch runs h and keeps a panicking handler from killing the gateway.
func (d *Discord) dispatch(ctx context.Context, h Handler, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panic",
				"kind", ev.Kind, "custom_id", ev.CustomID, "user", ev.UserID,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	h(ctx, ev)
}

// fromInteraction normalizes a component or modal interaction. Other
// interaction types yield nil.
func fromInteraction(i *discordgo.Interaction) *Event {
	ev := &Event{
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		interaction: i,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID, ev.Username = i.Member.User.ID, i.Member.User.Username
	case i.User != nil:
		ev.UserID, ev.Username = i.User.ID, i.User.Username
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.CustomID = data.CustomID
		ev.Values = data.Values
		ev.Kind = EventButton
		if data.ComponentType != discordgo.ButtonComponent {
			ev.Kind = EventSelect
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = EventModal
		ev.CustomID = data.CustomID
		ev.Fields = modalFields(data.Components)
	default:
		return nil
	}
	return ev
}

func modalFields(components []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, comp := range components {
		var inner []discordgo.MessageComponent
		switch row := comp.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, c := range inner {
			switch ti := c.(type) {
			case *discordgo.TextInput:
				fields[ti.CustomID] = ti.Value
			case discordgo.TextInput:
				fields[ti.CustomID] = ti.Value
			}
		}
	}
	return fields
}

func (d *Discord) BotID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.botID
}

func (d *Discord) BotName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.botName
}

func (d *Discord) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	m, err := d.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     msg.Embeds,
		Components: msg.Components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("chat: send message: %w", mapErr(err))
	}
	return m.ID, nil
}

func (d *Discord) EditMessage(ctx context.Context, channelID, messageID string, msg Message) error {
	embeds := nonNilEmbeds(msg.Embeds)
	components := nonNilComponents(msg.Components)
	content := msg.Content
	_, err := d.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("chat: edit message: %w", mapErr(err))
	}
	return nil
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := d.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("chat: delete message: %w", mapErr(err))
	}
	return nil
}

func (d *Discord) MessageExists(ctx context.Context, channelID, messageID string) bool {
	if channelID == "" || messageID == "" {
		return false
	}
	_, err := d.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	return err == nil
}

func (d *Discord) ChannelTopic(channelID string) (string, bool) {
	if channelID == "" {
		return "", false
	}
	ch, err := d.s.State.Channel(channelID)
	if err != nil {
		return "", false
	}
	return ch.Topic, true
}

func (d *Discord) ChildChannels(guildID, parentID string) []string {
	g, err := d.s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	var ids []string
	for _, ch := range g.Channels {
		if ch.ParentID == parentID {
			ids = append(ids, ch.ID)
		}
	}
	return ids
}

func (d *Discord) CreateChannel(ctx context.Context, spec ChannelSpec) (string, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     spec.Name,
		Type:     discordgo.ChannelTypeGuildText,
		Topic:    spec.Topic,
		ParentID: spec.ParentID,
	}
	if spec.Type == ChannelCategory {
		data.Type = discordgo.ChannelTypeGuildCategory
	}
	for _, o := range spec.Overwrites {
		t := discordgo.PermissionOverwriteTypeRole
		if o.Member {
			t = discordgo.PermissionOverwriteTypeMember
		}
		data.PermissionOverwrites = append(data.PermissionOverwrites, &discordgo.PermissionOverwrite{
			ID: o.ID, Type: t, Allow: o.Allow, Deny: o.Deny,
		})
	}

	ch, err := d.s.GuildChannelCreateComplex(spec.GuildID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("chat: create channel %q: %w", spec.Name, mapErr(err))
	}
	return ch.ID, nil
}

func (d *Discord) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := d.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("chat: delete channel: %w", mapErr(err))
	}
	return nil
}

func (d *Discord) GrantMember(ctx context.Context, channelID, userID string, allow int64) error {
	err := d.s.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, allow, 0, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("chat: grant member: %w", mapErr(err))
	}
	return nil
}

func (d *Discord) Reply(ctx context.Context, ev *Event, msg Message, ephemeral bool) error {
	if ev.interaction == nil {
		return ErrNotFound
	}
	data := &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     msg.Embeds,
		Components: msg.Components,
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := d.s.InteractionRespond(ev.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("chat: reply: %w", mapErr(err))
	}
	return nil
}

func (d *Discord) DeferUpdate(ctx context.Context, ev *Event) error {
	if ev.interaction == nil {
		return ErrNotFound
	}
	err := d.s.InteractionRespond(ev.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("chat: defer update: %w", mapErr(err))
	}
	return nil
}

func (d *Discord) EditReply(ctx context.Context, ev *Event, msg Message) (string, error) {
	if ev.interaction == nil {
		return "", ErrNotFound
	}
	embeds := nonNilEmbeds(msg.Embeds)
	components := nonNilComponents(msg.Components)
	content := msg.Content
	m, err := d.s.InteractionResponseEdit(ev.interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("chat: edit reply: %w", mapErr(err))
	}
	return m.ID, nil
}

func (d *Discord) ShowModal(ctx context.Context, ev *Event, modal Modal) error {
	if ev.interaction == nil {
		return ErrNotFound
	}
	rows := make([]discordgo.MessageComponent, 0, len(modal.Fields))
	for _, f := range modal.Fields {
		style := discordgo.TextInputShort
		if f.Paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    f.ID,
					Label:       f.Label,
					Style:       style,
					Placeholder: f.Placeholder,
					Required:    true,
					MinLength:   f.MinLength,
					MaxLength:   f.MaxLength,
				},
			},
		})
	}
	err := d.s.InteractionRespond(ev.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   modal.CustomID,
			Title:      modal.Title,
			Components: rows,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("chat: show modal: %w", mapErr(err))
	}
	return nil
}

// mapErr turns Discord 404s into ErrNotFound so callers can test for it.
func mapErr(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func nonNilEmbeds(e []*discordgo.MessageEmbed) []*discordgo.MessageEmbed {
	if e == nil {
		return []*discordgo.MessageEmbed{}
	}
	return e
}

func nonNilComponents(c []discordgo.MessageComponent) []discordgo.MessageComponent {
	if c == nil {
		return []discordgo.MessageComponent{}
	}
	return c
}
