package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/errs"
	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/protocol"
)

const (
	maxDisplayName = 20
	finishTimeout  = 10 * time.Second
)

// RelayState is a step of the relay state machine.
type RelayState int

const (
	RelayInit RelayState = iota
	RelayConnecting
	RelayJoining
	RelayWaitingStart
	RelayActive
	RelayEnded
	RelayError
)

func (s RelayState) String() string {
	switch s {
	case RelayInit:
		return "init"
	case RelayConnecting:
		return "connecting"
	case RelayJoining:
		return "joining"
	case RelayWaitingStart:
		return "waiting_start"
	case RelayActive:
		return "active"
	case RelayEnded:
		return "ended"
	case RelayError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the relay has stopped.
func (s RelayState) Terminal() bool {
	return s == RelayEnded || s == RelayError
}

// Relay bridges one quiz battle connection and the chat panel message that
// shows it. The battle session is owned by the relay goroutine.
type Relay struct {
	ID        string
	UserID    string
	ChannelID string
	MessageID string

	b       *Bot
	conn    BattleConn
	session *model.QuizBattleSession

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state RelayState
}

func (b *Bot) newRelay(userID, channelID, messageID string, conn BattleConn, session *model.QuizBattleSession) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChannelID: channelID,
		MessageID: messageID,
		b:         b,
		conn:      conn,
		session:   session,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// State returns the current state.
func (r *Relay) State() RelayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Relay) setState(s RelayState) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	slog.Debug("relay state", "relay", r.ID, "user", r.UserID, "from", prev, "to", s)
}

// Done is closed once the relay has finished its teardown.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Stop cancels the relay and waits for its teardown. A relay stopped
// before it starts tears down as soon as it is started.
func (r *Relay) Stop() {
	r.cancel()
	<-r.done
}

// start runs the relay until it ends or parent is done.
func (r *Relay) start(parent context.Context) {
	unlink := context.AfterFunc(parent, r.cancel)
	go func() {
		defer unlink()
		r.run(r.ctx)
	}()
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)
	defer r.cancel()
	b := r.b
	b.metrics.RelaysStarted.Add(1)
	b.metrics.ActiveRelays.Add(1)
	defer b.metrics.ActiveRelays.Add(-1)

	final, reason := r.safeLoop(ctx)
	r.finish(ctx, final, reason)
}

// safeLoop runs loop and turns a panic into a relay error.
func (r *Relay) safeLoop(ctx context.Context) (final RelayState, reason string) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("relay panic", "relay", r.ID, "user", r.UserID, "panic", p)
			final, reason = RelayError, "The quiz battle relay crashed."
		}
	}()
	return r.loop(ctx)
}

// loop drives the relay until a terminal state and returns it with a
// reason shown to the user.
func (r *Relay) loop(ctx context.Context) (RelayState, string) {
	s := r.session
	if ctx.Err() != nil {
		return RelayEnded, "The quiz battle was stopped."
	}

	r.setState(RelayConnecting)
	r.render(ctx)
	if err := r.conn.Init(ctx); err != nil {
		slog.Warn("relay connect failed", "relay", r.ID, "user", r.UserID, "err", err)
		return RelayError, "Could not connect to the battle server."
	}

	r.setState(RelayJoining)
	if err := r.conn.Join(ctx, s.Code, s.DisplayName); err != nil {
		slog.Warn("relay join failed", "relay", r.ID, "user", r.UserID, "err", err)
		return RelayError, "Could not join the battle."
	}
	r.setState(RelayWaitingStart)
	r.render(ctx)

	// One mark subscription stays registered while the battle is active, so
	// a press that arrives while an event is handled is read on the next pass.
	var marks <-chan *chat.Event
	unsubscribe := func() *chat.Event { return nil }
	defer func() {
		r.ack(context.WithoutCancel(ctx), unsubscribe())
	}()

	events := r.conn.Events()
	for {
		if marks == nil && r.State() == RelayActive && !s.Crasher {
			marks, unsubscribe = r.b.collector.subscribe(componentOn(r.MessageID, r.UserID, idMarkCorrect, idMarkWrong))
		}

		select {
		case <-ctx.Done():
			if press := unsubscribe(); press != nil {
				unsubscribe = func() *chat.Event { return nil }
				r.applyLate(ctx, press)
			}
			return RelayEnded, "The quiz battle was stopped."

		case ev, ok := <-events:
			if !ok {
				return RelayError, "Connection to the battle server was lost."
			}
			switch ev.Type {
			case protocol.EventStart:
				if err := r.onStart(ctx, ev); err != nil {
					slog.Warn("relay start failed", "relay", r.ID, "user", r.UserID, "err", err)
					return RelayError, "Could not record the score."
				}
			case protocol.EventRank:
				s.ClassAvg = ev.ClassAvg
				r.render(ctx)
			case protocol.EventError:
				return RelayError, ev.Message
			case protocol.EventEnd:
				return RelayEnded, ""
			}

		case press := <-marks:
			marks, unsubscribe = nil, func() *chat.Event { return nil }
			r.ack(ctx, press)
			if err := r.mark(ctx, press.CustomID == idMarkCorrect); err != nil {
				slog.Warn("relay mark failed", "relay", r.ID, "user", r.UserID, "err", err)
				return RelayError, "Could not send the answer."
			}
			r.render(ctx)
		}
	}
}

func (r *Relay) onStart(ctx context.Context, ev protocol.Event) error {
	s := r.session
	if ev.Start != nil {
		questions := make([]model.Question, 0, len(ev.Start.Questions))
		for _, q := range ev.Start.Questions {
			questions = append(questions, model.Question{ID: q.ID, Weight: q.Weight})
		}
		s.Start(questions, ev.Start.RoundSize, ev.Start.ClassAvg)
	}
	if s.Crasher {
		// Recorded now, sent when the relay leaves.
		if err := r.conn.SetScore(ctx, model.CrasherScore, true); err != nil {
			return err
		}
		s.Score = model.CrasherScore
	}
	r.setState(RelayActive)
	r.render(ctx)
	return nil
}

// mark applies one answer to the session and reports it.
func (r *Relay) mark(ctx context.Context, correct bool) error {
	q, _ := r.session.Current()
	r.session.Mark(correct)
	return r.conn.Mark(ctx, q.ID, correct, r.session.Score)
}

// applyLate sends a mark pressed just before the relay was stopped.
func (r *Relay) applyLate(ctx context.Context, press *chat.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	r.ack(ctx, press)
	if err := r.mark(ctx, press.CustomID == idMarkCorrect); err != nil {
		slog.Debug("late mark failed", "relay", r.ID, "user", r.UserID, "err", err)
	}
}

// ack acknowledges a button press so the chat client stops waiting.
func (r *Relay) ack(ctx context.Context, press *chat.Event) {
	if press == nil {
		return
	}
	if err := r.b.gw.DeferUpdate(ctx, press); err != nil {
		slog.Debug("defer update failed", "relay", r.ID, "user", press.UserID, "err", err)
	}
}

func (r *Relay) render(ctx context.Context) {
	if err := r.b.gw.EditMessage(ctx, r.ChannelID, r.MessageID, r.panel()); err != nil {
		slog.Debug("relay render failed", "relay", r.ID, "user", r.UserID, "err", err)
	}
}

// panel renders the chat message for the current state.
func (r *Relay) panel() chat.Message {
	s := r.session
	switch r.State() {
	case RelayInit, RelayConnecting, RelayJoining:
		return waitMessage("Connecting to the battle server...")
	case RelayWaitingStart:
		return waitMessage(fmt.Sprintf("Joined battle %d as %s. Waiting for the battle to start...", s.Code, s.DisplayName))
	}
	if s.Crasher {
		return successMessage("Crasher score recorded", "The score is submitted when the battle ends.")
	}

	e := embed(fmt.Sprintf("Quiz battle %d", s.Code), colorAqua)
	e.Description = fmt.Sprintf(
		"Total: **%d**\nCorrect: **%d**\nWrong: **%d**\nScore: **%d**\nClass average: **%d**\nUntil rank refresh: **%d**",
		s.Total(), s.Correct, s.Wrong, s.Score, s.ClassAvg, s.Remaining)
	q, _ := s.Current()
	return chat.Message{
		Embeds: []*discordgo.MessageEmbed{e},
		Components: []discordgo.MessageComponent{
			row(
				button(idMarkCorrect, fmt.Sprintf("Correct (+%d)", model.PointsPerWeight*q.Weight), discordgo.SuccessButton, false),
				button(idMarkWrong, "Wrong", discordgo.DangerButton, false),
			),
		},
	}
}

// finish moves the relay to its terminal state, leaves the battle and
// replaces the panel with a notice that is removed after a delay.
func (r *Relay) finish(ctx context.Context, final RelayState, reason string) {
	b := r.b
	r.setState(final)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := r.conn.Leave(); err != nil {
		slog.Debug("relay leave failed", "relay", r.ID, "user", r.UserID, "err", err)
	}

	s := r.session
	var msg chat.Message
	if final == RelayError {
		b.metrics.RelaysErrored.Add(1)
		msg = errorMessage(errs.ExternalAPI(reason))
		msg.Embeds[0].Title = "❌ Quiz battle error"
		slog.Warn("relay failed", "relay", r.ID, "user", r.UserID, "reason", reason)
	} else {
		b.metrics.RelaysEnded.Add(1)
		summary := fmt.Sprintf("Correct: **%d**\nWrong: **%d**\nScore: **%d**", s.Correct, s.Wrong, s.Score)
		if reason != "" {
			summary = reason + "\n" + summary
		}
		msg = successMessage("The quiz battle has ended", summary)
		slog.Info("relay ended", "relay", r.ID, "user", r.UserID, "score", s.Score)
	}
	if err := b.gw.EditMessage(ctx, r.ChannelID, r.MessageID, msg); err != nil {
		slog.Debug("relay notice failed", "relay", r.ID, "user", r.UserID, "err", err)
	}
	b.deleteLater(r.ChannelID, r.MessageID, b.config().NoticeDelay.Std())
	b.relays.remove(r)
}

// RelayRegistry holds at most one relay per user.
type RelayRegistry struct {
	mu     sync.Mutex
	relays map[string]*Relay // userID -> relay
}

// NewRelayRegistry creates an empty registry.
func NewRelayRegistry() *RelayRegistry {
	return &RelayRegistry{relays: make(map[string]*Relay)}
}

// Start registers r and runs it. An existing relay of the same user is torn
// down first. r stops when ctx is done.
func (rr *RelayRegistry) Start(ctx context.Context, r *Relay) {
	rr.mu.Lock()
	old := rr.relays[r.UserID]
	rr.relays[r.UserID] = r
	rr.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	r.start(ctx)
}

// Get returns the user's relay.
func (rr *RelayRegistry) Get(userID string) (*Relay, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	r, ok := rr.relays[userID]
	return r, ok
}

// Stop tears down the user's relay, if any.
func (rr *RelayRegistry) Stop(userID string) bool {
	rr.mu.Lock()
	r, ok := rr.relays[userID]
	rr.mu.Unlock()
	if !ok {
		return false
	}
	r.Stop()
	return true
}

// StopAll tears down every relay.
func (rr *RelayRegistry) StopAll() {
	rr.mu.Lock()
	all := make([]*Relay, 0, len(rr.relays))
	for _, r := range rr.relays {
		all = append(all, r)
	}
	rr.mu.Unlock()
	for _, r := range all {
		r.Stop()
	}
}

// Count returns the number of registered relays.
func (rr *RelayRegistry) Count() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return len(rr.relays)
}

func (rr *RelayRegistry) remove(r *Relay) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.relays[r.UserID] == r {
		delete(rr.relays, r.UserID)
	}
}

// startBattle collects the battle code and display name in the ticket
// channel, then hands the prompt message to a new relay as its panel.
func (b *Bot) startBattle(ctx context.Context, r *request, crasher bool) error {
	userID, channelID := r.ev.UserID, r.ev.ChannelID
	if b.relays.Stop(userID) {
		slog.Info("relay replaced", "user", userID)
	}
	if _, err := b.respond(ctx, r, waitMessage("Answer the questions in this channel.")); err != nil {
		slog.Debug("battle reply failed", "user", userID, "err", err)
	}

	promptID, err := b.gw.SendMessage(ctx, channelID, questionMessage("Type the battle code."))
	if err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not ask for the battle code.", err)
	}
	raw, err := b.awaitText(ctx, channelID, promptID, userID)
	if err != nil {
		return err
	}
	code, err := strconv.Atoi(raw)
	if err != nil || code <= 0 {
		b.dropPrompt(ctx, channelID, promptID)
		return errs.Validation("The battle code must be a number.")
	}

	if err := b.gw.EditMessage(ctx, channelID, promptID, questionMessage("Type the display name to join with.")); err != nil {
		return errs.Wrap(errs.KindUnknown, "Could not ask for the display name.", err)
	}
	name, err := b.awaitText(ctx, channelID, promptID, userID)
	if err != nil {
		return err
	}
	if n := utf8.RuneCountInString(name); n == 0 || n > maxDisplayName {
		b.dropPrompt(ctx, channelID, promptID)
		return errs.Validation(fmt.Sprintf("The display name must be 1 to %d characters.", maxDisplayName))
	}

	relay := b.newRelay(userID, channelID, promptID, b.dialBattle(), model.NewQuizBattleSession(code, name, crasher))
	b.relays.Start(b.ctx, relay)
	slog.Info("relay started", "relay", relay.ID, "user", userID, "code", code, "crasher", crasher)

	_, err = b.respond(ctx, r, successMessage("Quiz battle started", fmt.Sprintf("Battle %d as **%s**.", code, name)))
	return err
}

func (b *Bot) dropPrompt(ctx context.Context, channelID, promptID string) {
	if err := b.gw.DeleteMessage(ctx, channelID, promptID); err != nil {
		slog.Debug("delete prompt failed", "channel", channelID, "message", promptID, "err", err)
	}
}
