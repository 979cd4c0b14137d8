package chat

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var _ Gateway = (*Fake)(nil)

// FakeChannel is a channel held by Fake.
type FakeChannel struct {
	ID         string
	GuildID    string
	Name       string
	Type       ChannelType
	ParentID   string
	Topic      string
	Overwrites []Overwrite
}

// FakeReply records an interaction reply or an edit of one.
type FakeReply struct {
	UserID    string
	CustomID  string
	MessageID string
	Message   Message
	Ephemeral bool
}

// Fake is an in-memory Gateway for tests. It assigns sequential ids and
// records every operation.
type Fake struct {
	mu       sync.Mutex
	handler  Handler
	seq      int
	channels map[string]*FakeChannel
	messages map[string]map[string]Message // channel -> message id -> message
	deleted  []string                      // deleted message ids in order
	replies  []FakeReply
	replyIDs map[*Event]string
	modals   []Modal
	deferred int

	// FailSend makes the next SendMessage return this error.
	FailSend error
}

// NewFake creates an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		channels: make(map[string]*FakeChannel),
		messages: make(map[string]map[string]Message),
		replyIDs: make(map[*Event]string),
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *Fake) Open(_ context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return nil
}

func (f *Fake) Close() error { return nil }

func (f *Fake) BotID() string   { return "bot" }
func (f *Fake) BotName() string { return "TicketBot" }

// Emit delivers ev to the handler and returns once it has run.
func (f *Fake) Emit(ctx context.Context, ev *Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ctx, ev)
	}
}

// EmitAsync delivers ev on a new goroutine; the channel closes when the
// handler returns.
func (f *Fake) EmitAsync(ctx context.Context, ev *Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Emit(ctx, ev)
	}()
	return done
}

// AddChannel registers an existing channel, as if created out of band.
func (f *Fake) AddChannel(ch FakeChannel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := ch
	f.channels[ch.ID] = &c
	if f.messages[ch.ID] == nil {
		f.messages[ch.ID] = make(map[string]Message)
	}
}

// Channel returns a copy of the channel with id.
func (f *Fake) Channel(id string) (FakeChannel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return FakeChannel{}, false
	}
	return *ch, true
}

// Channels returns the ids of all live channels, sorted.
func (f *Fake) Channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.channels))
}

// Message returns the current content of a message.
func (f *Fake) Message(channelID, messageID string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[channelID][messageID]
	return m, ok
}

// MessageIDs returns the ids of the live messages in a channel, sorted.
func (f *Fake) MessageIDs(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.messages[channelID]))
}

// Deleted returns the ids of deleted messages in deletion order.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.deleted)
}

// Replies returns every reply and reply edit in order.
func (f *Fake) Replies() []FakeReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.replies)
}

// LastReply returns the most recent reply, if any.
func (f *Fake) LastReply() (FakeReply, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return FakeReply{}, false
	}
	return f.replies[len(f.replies)-1], true
}

// Modals returns every modal shown.
func (f *Fake) Modals() []Modal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.modals)
}

// Deferred returns how many interactions were acknowledged with DeferUpdate.
func (f *Fake) Deferred() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deferred
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailSend; err != nil {
		f.FailSend = nil
		return "", err
	}
	if _, ok := f.channels[channelID]; !ok {
		return "", fmt.Errorf("chat: send message: %w", ErrNotFound)
	}
	id := f.nextID("m")
	f.messages[channelID][id] = msg
	return id, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[channelID][messageID]; !ok {
		return fmt.Errorf("chat: edit message: %w", ErrNotFound)
	}
	f.messages[channelID][messageID] = msg
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	if _, ok := f.messages[channelID][messageID]; !ok {
		return fmt.Errorf("chat: delete message: %w", ErrNotFound)
	}
	delete(f.messages[channelID], messageID)
	return nil
}

func (f *Fake) MessageExists(_ context.Context, channelID, messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.messages[channelID][messageID]
	return ok
}

func (f *Fake) ChannelTopic(channelID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return "", false
	}
	return ch.Topic, true
}

func (f *Fake) ChildChannels(guildID, parentID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, ch := range f.channels {
		if ch.GuildID == guildID && ch.ParentID == parentID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (f *Fake) CreateChannel(_ context.Context, spec ChannelSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("c")
	f.channels[id] = &FakeChannel{
		ID:         id,
		GuildID:    spec.GuildID,
		Name:       spec.Name,
		Type:       spec.Type,
		ParentID:   spec.ParentID,
		Topic:      spec.Topic,
		Overwrites: slices.Clone(spec.Overwrites),
	}
	f.messages[id] = make(map[string]Message)
	return id, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return fmt.Errorf("chat: delete channel: %w", ErrNotFound)
	}
	delete(f.channels, channelID)
	delete(f.messages, channelID)
	return nil
}

func (f *Fake) GrantMember(_ context.Context, channelID, userID string, allow int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return fmt.Errorf("chat: grant member: %w", ErrNotFound)
	}
	ch.Overwrites = append(ch.Overwrites, Overwrite{ID: userID, Member: true, Allow: allow})
	return nil
}

func (f *Fake) Reply(_ context.Context, ev *Event, msg Message, ephemeral bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("r")
	f.replyIDs[ev] = id
	f.replies = append(f.replies, FakeReply{
		UserID: ev.UserID, CustomID: ev.CustomID, MessageID: id, Message: msg, Ephemeral: ephemeral,
	})
	return nil
}

func (f *Fake) DeferUpdate(_ context.Context, _ *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deferred++
	return nil
}

func (f *Fake) EditReply(_ context.Context, ev *Event, msg Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.replyIDs[ev]
	if !ok {
		id = f.nextID("r")
		f.replyIDs[ev] = id
	}
	f.replies = append(f.replies, FakeReply{
		UserID: ev.UserID, CustomID: ev.CustomID, MessageID: id, Message: msg, Ephemeral: true,
	})
	return id, nil
}

func (f *Fake) ShowModal(_ context.Context, _ *Event, modal Modal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modals = append(f.modals, modal)
	return nil
}
