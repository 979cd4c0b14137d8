package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/protocol"
	"github.com/NicolasHaas/ticketbot/pkg/protocol/pb"
)

func startEvent(questions ...pb.Question) protocol.Event {
	return protocol.Event{Type: protocol.EventStart, Start: &pb.StartEvent{Questions: questions, RoundSize: 2, ClassAvg: 150}}
}

// runRelay starts a relay for userID on a fresh panel message in the
// user's ticket channel.
func (tb *testBot) runRelay(t *testing.T, userID string, crasher bool) (*Relay, *fakeBattle) {
	t.Helper()
	channelID := "ticket-" + userID
	if _, ok := tb.gw.Channel(channelID); !ok {
		channelID, _ = tb.addTicket(t, userID)
	}
	panelID, err := tb.gw.SendMessage(context.Background(), channelID, chat.Message{Content: "panel"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	fb := newFakeBattle()
	r := tb.newRelay(userID, channelID, panelID, fb, model.NewQuizBattleSession(1234, "Alice", crasher))
	tb.relays.Start(tb.ctx, r)
	return r, fb
}

func waitState(t *testing.T, r *Relay, want RelayState) {
	t.Helper()
	waitFor(t, "relay state "+want.String(), func() bool { return r.State() == want })
}

// markAnswer presses a mark button once the relay is listening for it.
func (tb *testBot) markAnswer(t *testing.T, r *Relay, fb *fakeBattle, id string) {
	t.Helper()
	before := len(fb.calls().Marks)
	waitFor(t, "mark subscription", func() bool { return tb.collector.Pending() == 1 })
	tb.gw.Emit(tb.ctx, press(r.ChannelID, r.MessageID, r.UserID, id))
	waitFor(t, "mark sent", func() bool { return len(fb.calls().Marks) == before+1 })
}

func TestStartBattleCollectsCodeAndName(t *testing.T) {
	tb := newTestBot(t)
	channelID, messageID := tb.addTicket(t, "u1")

	done := tb.gw.EmitAsync(tb.ctx, press(channelID, messageID, "u1", idQuizBattle))
	waitFor(t, "code prompt", func() bool { return tb.collector.Pending() == 1 })
	tb.gw.Emit(tb.ctx, say(channelID, "u1", "1234"))
	waitFor(t, "name prompt", func() bool { return tb.collector.Pending() == 1 })
	tb.gw.Emit(tb.ctx, say(channelID, "u1", "Alice"))
	<-done

	fb := <-tb.battles
	r, ok := tb.relays.Get("u1")
	if !ok {
		t.Fatal("no relay registered")
	}
	waitState(t, r, RelayWaitingStart)

	got := fb.calls()
	if got.Code != 1234 || got.Joined != "Alice" {
		t.Errorf("joined %d as %q, want 1234 as Alice", got.Code, got.Joined)
	}
	if got := tb.lastReplyTitle(t); got != "✅ Quiz battle started" {
		t.Errorf("reply title = %q", got)
	}
	for _, id := range []string{"said-1234", "said-Alice"} {
		if tb.gw.MessageExists(context.Background(), channelID, id) {
			t.Errorf("answer %s was not deleted", id)
		}
	}
	waitFor(t, "waiting panel", func() bool {
		panel, _ := tb.gw.Message(channelID, r.MessageID)
		return len(panel.Embeds) > 0 && strings.Contains(panel.Embeds[0].Title, "Waiting for the battle to start")
	})
}

func TestStartBattleRejectsBadInput(t *testing.T) {
	tests := map[string]struct {
		code     string
		name     string
		wantDesc string
	}{
		"code not a number": {code: "abc", wantDesc: "The battle code must be a number."},
		"name too long":     {code: "7", name: strings.Repeat("가", 21), wantDesc: "The display name must be 1 to 20 characters."},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tb := newTestBot(t)
			channelID, messageID := tb.addTicket(t, "u1")

			done := tb.gw.EmitAsync(tb.ctx, press(channelID, messageID, "u1", idQuizBattle))
			waitFor(t, "code prompt", func() bool { return tb.collector.Pending() == 1 })
			tb.gw.Emit(tb.ctx, say(channelID, "u1", tc.code))
			if tc.name != "" {
				waitFor(t, "name prompt", func() bool { return tb.collector.Pending() == 1 })
				tb.gw.Emit(tb.ctx, say(channelID, "u1", tc.name))
			}
			<-done

			r, _ := tb.gw.LastReply()
			if got := r.Message.Embeds[0]; got.Title != "❌ Invalid input" || got.Description != tc.wantDesc {
				t.Errorf("reply = %q / %q", got.Title, got.Description)
			}
			if diff := cmp.Diff([]string{messageID}, tb.gw.MessageIDs(channelID)); diff != "" {
				t.Errorf("prompt not removed (-want +got):\n%s", diff)
			}
			if n := tb.relays.Count(); n != 0 {
				t.Errorf("Count() = %d, want 0", n)
			}
		})
	}
}

func TestStartBattlePromptTimeout(t *testing.T) {
	tb := newTestBot(t)
	channelID, messageID := tb.addTicket(t, "u1")
	tb.updateConfig(func(c *Config) { c.PromptTimeout = Duration(30 * time.Millisecond) })

	tb.gw.Emit(tb.ctx, press(channelID, messageID, "u1", idQuizBattle))

	if got := tb.lastReplyTitle(t); got != "❌ Time expired" {
		t.Errorf("reply title = %q", got)
	}
	if n := tb.metrics.PromptTimeouts.Load(); n != 1 {
		t.Errorf("PromptTimeouts = %d, want 1", n)
	}
	waitFor(t, "expired prompt removal", func() bool {
		return len(tb.gw.MessageIDs(channelID)) == 1
	})
	if tb.relays.Count() != 0 {
		t.Error("relay started without a code")
	}
}

func TestRelayMarksScore(t *testing.T) {
	tb := newTestBot(t)
	r, fb := tb.runRelay(t, "u1", false)
	waitState(t, r, RelayWaitingStart)

	fb.push(startEvent(pb.Question{ID: 1, Weight: 2}, pb.Question{ID: 2, Weight: 3}))
	waitState(t, r, RelayActive)

	tb.markAnswer(t, r, fb, idMarkCorrect)
	tb.markAnswer(t, r, fb, idMarkWrong)
	tb.markAnswer(t, r, fb, idMarkCorrect)

	want := []markCall{
		{QuestionID: 1, Correct: true, Score: 200},
		{QuestionID: 2, Correct: false, Score: 200},
		{QuestionID: 1, Correct: true, Score: 400},
	}
	got := fb.calls().Marks
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("marks mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score < got[i-1].Score {
			t.Errorf("score decreased at mark %d: %d -> %d", i, got[i-1].Score, got[i].Score)
		}
	}
	if n := tb.gw.Deferred(); n != 3 {
		t.Errorf("Deferred() = %d, want every press acknowledged", n)
	}
}

func TestRelayKeepsPressDuringEvents(t *testing.T) {
	tb := newTestBot(t)
	r, fb := tb.runRelay(t, "u1", false)
	waitState(t, r, RelayWaitingStart)
	fb.push(startEvent(pb.Question{ID: 1, Weight: 1}))
	waitState(t, r, RelayActive)

	const presses = 50
	for i := 1; i <= presses; i++ {
		waitFor(t, "mark subscription", func() bool { return tb.collector.Pending() == 1 })
		fb.push(protocol.Event{Type: protocol.EventRank, ClassAvg: int64(i)})
		if !tb.collector.Offer(press(r.ChannelID, r.MessageID, "u1", idMarkCorrect)) {
			t.Fatalf("press %d was not taken by the relay", i)
		}
		waitFor(t, "mark sent", func() bool { return len(fb.calls().Marks) == i })
	}

	marks := fb.calls().Marks
	if got := marks[len(marks)-1].Score; got != presses*model.PointsPerWeight {
		t.Errorf("final score = %d, want %d", got, presses*model.PointsPerWeight)
	}
	if n := tb.gw.Deferred(); n != presses {
		t.Errorf("Deferred() = %d, want %d", n, presses)
	}
}

func TestRelayEnd(t *testing.T) {
	tb := newTestBot(t)
	tb.updateConfig(func(c *Config) { c.NoticeDelay = Duration(time.Hour) })
	r, fb := tb.runRelay(t, "u1", false)
	waitState(t, r, RelayWaitingStart)

	fb.push(startEvent(pb.Question{ID: 1, Weight: 1}))
	waitState(t, r, RelayActive)
	tb.markAnswer(t, r, fb, idMarkCorrect)
	fb.push(protocol.Event{Type: protocol.EventEnd})
	<-r.Done()

	if r.State() != RelayEnded {
		t.Errorf("state = %s, want ended", r.State())
	}
	if !fb.calls().Left {
		t.Error("relay did not leave the battle")
	}
	if tb.relays.Count() != 0 {
		t.Error("ended relay still registered")
	}
	panel, _ := tb.gw.Message(r.ChannelID, r.MessageID)
	want := successMessage("The quiz battle has ended", "Correct: **1**\nWrong: **0**\nScore: **100**")
	if diff := cmp.Diff(want, panel); diff != "" {
		t.Errorf("notice mismatch (-want +got):\n%s", diff)
	}
	if n := tb.metrics.RelaysEnded.Load(); n != 1 {
		t.Errorf("RelaysEnded = %d, want 1", n)
	}
}

func TestRelayErrors(t *testing.T) {
	tests := map[string]struct {
		setup    func(fb *fakeBattle)
		trigger  func(fb *fakeBattle)
		wantDesc string
	}{
		"server error": {
			trigger:  func(fb *fakeBattle) { fb.push(protocol.Event{Type: protocol.EventError, Message: "kicked"}) },
			wantDesc: "kicked",
		},
		"connection lost": {
			trigger:  func(fb *fakeBattle) { close(fb.events) },
			wantDesc: "Connection to the battle server was lost.",
		},
		"connect failed": {
			setup:    func(fb *fakeBattle) { fb.initErr = errors.New("dial refused") },
			wantDesc: "Could not connect to the battle server.",
		},
		"panic": {
			setup:    func(fb *fakeBattle) { fb.joinPanic = true },
			wantDesc: "The quiz battle relay crashed.",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.updateConfig(func(c *Config) { c.NoticeDelay = Duration(time.Hour) })
			channelID, _ := tb.addTicket(t, "u1")
			panelID, _ := tb.gw.SendMessage(context.Background(), channelID, chat.Message{Content: "panel"})
			fb := newFakeBattle()
			if tc.setup != nil {
				tc.setup(fb)
			}
			r := tb.newRelay("u1", channelID, panelID, fb, model.NewQuizBattleSession(1, "Alice", false))
			tb.relays.Start(tb.ctx, r)
			if tc.trigger != nil {
				waitState(t, r, RelayWaitingStart)
				tc.trigger(fb)
			}
			<-r.Done()

			if r.State() != RelayError {
				t.Errorf("state = %s, want error", r.State())
			}
			panel, _ := tb.gw.Message(channelID, panelID)
			if got := panel.Embeds[0]; got.Title != "❌ Quiz battle error" || got.Description != tc.wantDesc {
				t.Errorf("notice = %q / %q", got.Title, got.Description)
			}
			if n := tb.metrics.RelaysErrored.Load(); n != 1 {
				t.Errorf("RelaysErrored = %d, want 1", n)
			}
		})
	}
}

func TestRelayCrasherFlushesOnLeave(t *testing.T) {
	tb := newTestBot(t)
	r, fb := tb.runRelay(t, "u1", true)
	waitState(t, r, RelayWaitingStart)

	fb.push(startEvent())
	waitState(t, r, RelayActive)
	if n := tb.collector.Pending(); n != 0 {
		t.Errorf("crasher relay listens for marks: Pending() = %d", n)
	}
	if got := fb.calls().Flushed; got != 0 {
		t.Errorf("score flushed before leave: %d", got)
	}

	fb.push(protocol.Event{Type: protocol.EventEnd})
	<-r.Done()

	got := fb.calls()
	if got.Flushed != model.CrasherScore || !got.Left {
		t.Errorf("flushed %d, left %v; want %d after leave", got.Flushed, got.Left, model.CrasherScore)
	}
	if got.Joined != "Alice" {
		t.Errorf("joined as %q, want the typed name", got.Joined)
	}
	if len(got.Marks) != 0 {
		t.Errorf("crasher sent marks: %+v", got.Marks)
	}
}

func TestRelayRegistryReplacesUserRelay(t *testing.T) {
	tb := newTestBot(t)
	first, firstConn := tb.runRelay(t, "u1", false)
	waitState(t, first, RelayWaitingStart)

	second, _ := tb.runRelay(t, "u1", false)

	// Start returns after the old relay finished its teardown.
	if !first.State().Terminal() || !firstConn.calls().Left {
		t.Errorf("first relay state = %s, left = %v; want it torn down", first.State(), firstConn.calls().Left)
	}
	if got, _ := tb.relays.Get("u1"); got != second {
		t.Error("registry does not hold the new relay")
	}
	if n := tb.relays.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	if !tb.relays.Stop("u1") {
		t.Fatal("Stop found no relay")
	}
	if second.State() != RelayEnded || tb.relays.Count() != 0 {
		t.Errorf("after Stop: state %s, count %d", second.State(), tb.relays.Count())
	}
	if tb.relays.Stop("u1") {
		t.Error("second Stop reported a relay")
	}
}

func TestRelayStoppedBeforeStart(t *testing.T) {
	tb := newTestBot(t)
	channelID, _ := tb.addTicket(t, "u1")
	fb := newFakeBattle()
	r := tb.newRelay("u1", channelID, "panel", fb, model.NewQuizBattleSession(1, "Alice", false))

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	waitFor(t, "stop request", func() bool { return r.ctx.Err() != nil })
	tb.relays.Start(tb.ctx, r)

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return once the relay started")
	}
	if r.State() != RelayEnded {
		t.Errorf("state = %s, want ended", r.State())
	}
	if got := fb.calls().Joined; got != "" {
		t.Errorf("stopped relay joined as %q", got)
	}
	if n := tb.relays.Count(); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestStartBattleStopsPreviousRelay(t *testing.T) {
	tb := newTestBot(t)
	channelID, messageID := tb.addTicket(t, "u1")
	first, firstConn := tb.runRelay(t, "u1", false)
	waitState(t, first, RelayWaitingStart)

	done := tb.gw.EmitAsync(tb.ctx, press(channelID, messageID, "u1", idQuizBattle))
	waitFor(t, "code prompt", func() bool { return tb.collector.Pending() == 1 })

	// Torn down before the prompts are answered.
	if !first.State().Terminal() || !firstConn.calls().Left {
		t.Errorf("first relay state = %s, left = %v; want it torn down", first.State(), firstConn.calls().Left)
	}
	if n := tb.relays.Count(); n != 0 {
		t.Errorf("Count() = %d during the prompts, want 0", n)
	}

	tb.gw.Emit(tb.ctx, say(channelID, "u1", "99"))
	waitFor(t, "name prompt", func() bool { return tb.collector.Pending() == 1 })
	tb.gw.Emit(tb.ctx, say(channelID, "u1", "Bob"))
	<-done

	second, ok := tb.relays.Get("u1")
	if !ok || second == first {
		t.Fatal("new relay not registered")
	}
	if second.session.Code != 99 {
		t.Errorf("new relay code = %d, want 99", second.session.Code)
	}
}

func TestStaleMarkPress(t *testing.T) {
	tb := newTestBot(t)
	channelID, messageID := tb.addTicket(t, "u1")

	tb.gw.Emit(tb.ctx, press(channelID, messageID, "u1", idMarkCorrect))

	r, _ := tb.gw.LastReply()
	if got := r.Message.Embeds[0]; got.Title != "❌ Time expired" || got.Description != "This prompt is no longer active." {
		t.Errorf("reply = %q / %q", got.Title, got.Description)
	}
}

func TestRelayPanel(t *testing.T) {
	tb := newTestBot(t)
	s := model.NewQuizBattleSession(77, "Alice", false)
	s.Start([]model.Question{{ID: 1, Weight: 3}}, 5, 250)
	r := tb.newRelay("u1", "c", "m", newFakeBattle(), s)

	if got := r.panel().Embeds[0].Title; got != "⚙️ Connecting to the battle server..." {
		t.Errorf("init panel = %q", got)
	}

	r.setState(RelayActive)
	msg := r.panel()
	if got := msg.Embeds[0].Title; got != "Quiz battle 77" {
		t.Errorf("active title = %q", got)
	}
	if !strings.Contains(msg.Embeds[0].Description, "Class average: **250**") {
		t.Errorf("description = %q", msg.Embeds[0].Description)
	}
	got := buttons(t, msg.Components)
	if diff := cmp.Diff(map[string]bool{idMarkCorrect: false, idMarkWrong: false}, got); diff != "" {
		t.Errorf("buttons mismatch (-want +got):\n%s", diff)
	}
	correct := msg.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	if correct.Label != "Correct (+300)" {
		t.Errorf("correct label = %q", correct.Label)
	}
}
