package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/crypto"
	"github.com/NicolasHaas/ticketbot/pkg/errs"
	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/platform"
	"github.com/NicolasHaas/ticketbot/pkg/protocol"
	"github.com/NicolasHaas/ticketbot/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakePlatform is a scripted platform.Client shared by all users of a test.
type fakePlatform struct {
	mu       sync.Mutex
	password map[string]string // id -> password
	classes  []model.Named
	folders  []model.Named
	sets     map[int]model.Set
	totals   model.Totals
	progress platform.Progress
	scores   []int
	logins   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		password: map[string]string{"alice01": "secret1"},
		classes:  []model.Named{{ID: 7, Name: "Class 7"}},
		folders:  []model.Named{{ID: 0, Name: "mine"}},
		sets: map[int]model.Set{
			42: {ID: 42, Name: "Animals", Type: model.SetTypeWord, CardCount: 30},
			43: {ID: 43, Name: "Drills", Type: model.SetTypeDrill, CardCount: 5},
		},
		totals:   model.Totals{Memorize: 10, Recall: 20, Spell: 30, Test: []int{90}},
		progress: platform.Progress{Before: 10, After: 100},
	}
}

func (p *fakePlatform) factory() platform.Factory {
	return func() platform.Client { return &fakeClient{p: p} }
}

func (p *fakePlatform) setPassword(id, pw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.password[id] = pw
}

// fakeClient is one login session on a fakePlatform.
type fakeClient struct {
	p       *fakePlatform
	account string
}

func (c *fakeClient) Login(_ context.Context, id, password string) (model.Account, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.logins++
	if pw, ok := c.p.password[id]; !ok || pw != password {
		return model.Account{}, errs.Auth("wrong id or password")
	}
	c.account = id
	return model.Account{Name: "Name " + id}, nil
}

func (c *fakeClient) check() error {
	if c.account == "" {
		return errs.ExternalAPI("not logged in")
	}
	return nil
}

func (c *fakeClient) Classes(context.Context) ([]model.Named, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	return c.p.classes, c.check()
}

func (c *fakeClient) Folders(context.Context) ([]model.Named, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	return c.p.folders, c.check()
}

func (c *fakeClient) SetsFromClass(_ context.Context, classID int) ([]model.Named, error) {
	if classID != 7 {
		return nil, errs.ExternalAPI("no such class")
	}
	return []model.Named{{ID: 42, Name: "Animals"}}, c.check()
}

func (c *fakeClient) SetsFromFolder(context.Context, string) ([]model.Named, error) {
	return nil, c.check()
}

func (c *fakeClient) SetClass(_ context.Context, classID int) (model.Class, error) {
	if err := c.check(); err != nil {
		return model.Class{}, err
	}
	if classID != 7 {
		return model.Class{}, errs.ExternalAPI("no such class")
	}
	return model.Class{ID: 7, Name: "Class 7"}, nil
}

func (c *fakeClient) SetSet(_ context.Context, setID int) (model.Set, error) {
	if err := c.check(); err != nil {
		return model.Set{}, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	set, ok := c.p.sets[setID]
	if !ok {
		return model.Set{}, errs.ExternalAPI("no such set")
	}
	return set, nil
}

func (c *fakeClient) LearnAll(context.Context, model.LearningKind) (platform.Progress, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	return c.p.progress, c.check()
}

func (c *fakeClient) AddGameScore(_ context.Context, _ model.Activity, score int, _ bool) (platform.GameResult, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.scores = append(c.p.scores, score)
	all, class := 3, 1
	return platform.GameResult{Message: "ok", Rank: platform.Rank{All: &all, Class: &class}}, c.check()
}

func (c *fakeClient) PostTest(context.Context) (string, error) {
	return "", c.check()
}

func (c *fakeClient) Total(context.Context) (model.Totals, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	return c.p.totals, c.check()
}

// fakeBattle is a BattleConn driven by the test through push.
type fakeBattle struct {
	mu       sync.Mutex
	events   chan protocol.Event
	joined   string
	code     int
	marks    []markCall
	deferred int64
	flushed  int64
	left     bool
	initErr  error

	// joinPanic makes Join panic.
	joinPanic bool
}

type markCall struct {
	QuestionID int
	Correct    bool
	Score      int64
}

func newFakeBattle() *fakeBattle {
	return &fakeBattle{events: make(chan protocol.Event, 8)}
}

func (f *fakeBattle) Init(context.Context) error { return f.initErr }

func (f *fakeBattle) Events() <-chan protocol.Event { return f.events }

func (f *fakeBattle) Join(_ context.Context, code int, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinPanic {
		panic("battle join exploded")
	}
	f.code = code
	f.joined = name
	return nil
}

func (f *fakeBattle) Mark(_ context.Context, questionID int, correct bool, score int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, markCall{QuestionID: questionID, Correct: correct, Score: score})
	return nil
}

func (f *fakeBattle) SetScore(_ context.Context, score int64, deferFlush bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if deferFlush {
		f.deferred = score
	} else {
		f.flushed = score
	}
	return nil
}

func (f *fakeBattle) Leave() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deferred != 0 {
		f.flushed = f.deferred
	}
	f.left = true
	return nil
}

func (f *fakeBattle) push(ev protocol.Event) { f.events <- ev }

// battleCalls is what a fakeBattle has been asked to do.
type battleCalls struct {
	Code    int
	Joined  string
	Marks   []markCall
	Flushed int64
	Left    bool
}

func (f *fakeBattle) calls() battleCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return battleCalls{
		Code:    f.code,
		Joined:  f.joined,
		Marks:   append([]markCall(nil), f.marks...),
		Flushed: f.flushed,
		Left:    f.left,
	}
}

// testBot bundles a bot wired to fakes.
type testBot struct {
	*Bot
	gw       *chat.Fake
	st       *store.MemoryStore
	platform *fakePlatform
	battles  chan *fakeBattle
	ctx      context.Context
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	vault, err := crypto.NewVault(testSecret)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Token = "token"
	cfg.Owners = []string{"owner"}
	cfg.MetricsAddr = ""
	cfg.PromptTimeout = Duration(2 * time.Second)
	cfg.NoticeDelay = Duration(20 * time.Millisecond)
	cfg.SetupReplyDelay = Duration(20 * time.Millisecond)
	cfg.TicketCooldown = 0

	tb := &testBot{
		gw:       chat.NewFake(),
		st:       store.NewMemory(),
		platform: newFakePlatform(),
		battles:  make(chan *fakeBattle, 4),
	}
	tb.Bot = New(cfg, Dependencies{
		Gateway:  tb.gw,
		Store:    tb.st,
		Vault:    vault,
		Platform: tb.platform.factory(),
		Battle: func() BattleConn {
			fb := newFakeBattle()
			tb.battles <- fb
			return fb
		},
	})
	tb.ctx = tb.Bot.ctx
	if err := tb.gw.Open(tb.ctx, tb.handleEvent); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		tb.relays.StopAll()
		tb.cancel()
	})
	return tb
}

// addTicket registers a ticket channel and menu message for userID as if
// createTicket had run.
func (tb *testBot) addTicket(t *testing.T, userID string) (channelID, messageID string) {
	t.Helper()
	channelID = "ticket-" + userID
	tb.gw.AddChannel(chat.FakeChannel{ID: channelID, GuildID: "g", Topic: ticketTopic(tb.gw.BotName(), userID)})
	messageID, err := tb.gw.SendMessage(context.Background(), channelID, chat.Message{Content: "menu"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := tb.sessions.Update(userID, func(s *model.UserSession) error {
		s.ChannelID = channelID
		s.MessageID = messageID
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return channelID, messageID
}

// login links alice01 for userID, optionally with class 7 and set 42.
func (tb *testBot) login(t *testing.T, userID string, linked bool) {
	t.Helper()
	s, err := tb.sessions.Update(userID, func(s *model.UserSession) error {
		var err error
		if s.ExternalIDCipher, err = tb.vault.Encrypt("alice01"); err != nil {
			return err
		}
		if s.ExternalPasswordCipher, err = tb.vault.Encrypt("secret1"); err != nil {
			return err
		}
		if linked {
			s.ClassID, s.SetID = 7, 42
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tb.restoreAccount(context.Background(), userID, s); err != nil {
		t.Fatalf("restoreAccount: %v", err)
	}
}

func (tb *testBot) session(t *testing.T, userID string) model.UserSession {
	t.Helper()
	s, err := tb.sessions.Get(userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return s
}

func press(channelID, messageID, userID, customID string) *chat.Event {
	return &chat.Event{
		Kind:      chat.EventButton,
		CustomID:  customID,
		GuildID:   "g",
		ChannelID: channelID,
		MessageID: messageID,
		UserID:    userID,
		Username:  "User-" + userID,
	}
}

func say(channelID, userID, content string) *chat.Event {
	return &chat.Event{
		Kind:      chat.EventMessage,
		Content:   content,
		GuildID:   "g",
		ChannelID: channelID,
		MessageID: "said-" + content,
		UserID:    userID,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// lastReplyTitle returns the first embed title of the latest reply.
func (tb *testBot) lastReplyTitle(t *testing.T) string {
	t.Helper()
	r, ok := tb.gw.LastReply()
	if !ok {
		t.Fatal("no reply recorded")
	}
	if len(r.Message.Embeds) == 0 {
		return ""
	}
	return r.Message.Embeds[0].Title
}
