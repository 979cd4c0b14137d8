// Package chat is the boundary to the chat platform: normalized events in,
// message/channel operations out. The bot only talks to a Gateway; the
// Discord adapter and the in-memory Fake implement it.
package chat

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
)

var (
	ErrNotFound     = errors.New("chat: not found")
	ErrNotConnected = errors.New("chat: gateway not connected")
)

// EventKind classifies an inbound event.
type EventKind int

const (
	EventButton EventKind = iota + 1
	EventSelect
	EventModal
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventButton:
		return "button"
	case EventSelect:
		return "select"
	case EventModal:
		return "modal"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a button press, select, modal submit or plain message.
type Event struct {
	Kind      EventKind
	CustomID  string            // component or modal id
	Values    []string          // select menu values
	Fields    map[string]string // modal text inputs by id
	Content   string            // message text
	GuildID   string
	ChannelID string
	MessageID string // message the component is attached to, or the message itself
	UserID    string
	Username  string

	interaction *discordgo.Interaction
}

// IsInteraction reports whether the event can be responded to.
func (e *Event) IsInteraction() bool {
	return e.Kind != EventMessage
}

// Message is the content of a chat message.
type Message struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// ChannelType selects what CreateChannel creates.
type ChannelType int

const (
	ChannelText ChannelType = iota
	ChannelCategory
)

// Overwrite is a permission override on a channel.
type Overwrite struct {
	ID     string // role or member id
	Member bool
	Allow  int64
	Deny   int64
}

// ChannelSpec describes a channel to create.
type ChannelSpec struct {
	GuildID    string
	Name       string
	Type       ChannelType
	ParentID   string
	Topic      string
	Overwrites []Overwrite
}

// TextField is one modal input.
type TextField struct {
	ID          string
	Label       string
	Placeholder string
	MinLength   int
	MaxLength   int
	Paragraph   bool
}

// Modal is a request/response form.
type Modal struct {
	CustomID string
	Title    string
	Fields   []TextField
}

// Handler receives every inbound event.
type Handler func(ctx context.Context, ev *Event)

// Gateway is the set of chat operations the bot depends on.
type Gateway interface {
	// Open connects and blocks until the gateway is ready. Events are
	// delivered to h on gateway goroutines.
	Open(ctx context.Context, h Handler) error
	Close() error

	BotID() string
	BotName() string

	SendMessage(ctx context.Context, channelID string, msg Message) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	MessageExists(ctx context.Context, channelID, messageID string) bool

	// ChannelTopic looks the channel up in the local cache.
	ChannelTopic(channelID string) (topic string, ok bool)
	ChildChannels(guildID, parentID string) []string
	CreateChannel(ctx context.Context, spec ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	GrantMember(ctx context.Context, channelID, userID string, allow int64) error

	// Reply answers an interaction with a new message.
	Reply(ctx context.Context, ev *Event, msg Message, ephemeral bool) error
	// DeferUpdate acknowledges a component interaction without a reply.
	DeferUpdate(ctx context.Context, ev *Event) error
	// EditReply replaces the interaction's reply and returns its message id.
	EditReply(ctx context.Context, ev *Event, msg Message) (string, error)
	ShowModal(ctx context.Context, ev *Event, modal Modal) error
}

// Permission bits used for ticket channels.
const (
	PermView        = discordgo.PermissionViewChannel
	PermSend        = discordgo.PermissionSendMessages
	PermReadHistory = discordgo.PermissionReadMessageHistory
)
