package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pb "github.com/NicolasHaas/ticketbot/pkg/protocol/pb"
	"github.com/NicolasHaas/ticketbot/pkg/version"
)

const writeTimeout = 10 * time.Second

var ErrNotConnected = errors.New("protocol: not connected")

// EventType identifies a server push.
type EventType int

const (
	EventStart EventType = iota + 1
	EventRank
	EventError
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventRank:
		return "rank"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is a server push delivered on Client.Events.
type Event struct {
	Type     EventType
	Message  string         // EventError
	Start    *pb.StartEvent // EventStart
	ClassAvg int64          // EventRank
}

// Client is one player connection to a quiz battle server.
//
// Usage:
//
//	c := protocol.NewClient(url)
//	c.Init(ctx)
//	c.Join(ctx, code, name)
//	for ev := range c.Events() { ... }
//	c.Leave()
type Client struct {
	url    string
	dialer *websocket.Dialer

	writeMu sync.Mutex
	conn    *websocket.Conn

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	scoreMu     sync.Mutex
	deferred    int64
	hasDeferred bool
}

// NewClient creates a client for the battle server at url (ws:// or wss://).
func NewClient(url string) *Client {
	return &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Init connects to the server and starts delivering events.
func (c *Client) Init(ctx context.Context) error {
	header := http.Header{"User-Agent": {version.UserAgent()}}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("protocol: dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(MaxMessage)

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Events returns the push channel. It is closed once the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Join enters the battle identified by code under the given display name.
func (c *Client) Join(ctx context.Context, code int, displayName string) error {
	return c.write(ctx, &pb.BattleMessage{JoinRequest: &pb.JoinRequest{BattleCode: code, DisplayName: displayName}})
}

// Mark reports an answer and the resulting running score.
func (c *Client) Mark(ctx context.Context, questionID int, correct bool, score int64) error {
	return c.write(ctx, &pb.BattleMessage{MarkRequest: &pb.MarkRequest{QuestionID: questionID, Correct: correct, Score: score}})
}

// SetScore overrides the player's score. With deferFlush the value is only
// recorded and sent when the client leaves.
func (c *Client) SetScore(ctx context.Context, score int64, deferFlush bool) error {
	if deferFlush {
		c.scoreMu.Lock()
		c.deferred = score
		c.hasDeferred = true
		c.scoreMu.Unlock()
		return nil
	}
	return c.write(ctx, &pb.BattleMessage{ScoreRequest: &pb.ScoreRequest{Score: score}})
}

// Leave flushes any deferred score, leaves the battle and closes the
// connection. It is safe to call more than once.
func (c *Client) Leave() error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		c.scoreMu.Lock()
		score, flush := c.deferred, c.hasDeferred
		c.hasDeferred = false
		c.scoreMu.Unlock()
		if flush {
			if werr := c.write(ctx, &pb.BattleMessage{ScoreRequest: &pb.ScoreRequest{Score: score}}); werr != nil {
				err = werr
			}
		}
		if werr := c.write(ctx, &pb.BattleMessage{LeaveRequest: &pb.LeaveRequest{}}); werr != nil && !errors.Is(werr, ErrNotConnected) && err == nil {
			err = werr
		}

		close(c.done)

		c.writeMu.Lock()
		conn := c.conn
		c.writeMu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		}
	})
	return err
}

func (c *Client) write(ctx context.Context, msg *pb.BattleMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("protocol: write %s: %w", Kind(msg), err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.events)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Debug("battle connection closed", "err", err)
				c.emit(Event{Type: EventError, Message: "connection to the battle server was lost"})
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			slog.Debug("battle message dropped", "err", err)
			continue
		}
		switch {
		case msg.StartEvent != nil:
			c.emit(Event{Type: EventStart, Start: msg.StartEvent})
		case msg.RankEvent != nil:
			c.emit(Event{Type: EventRank, ClassAvg: msg.RankEvent.ClassAvg})
		case msg.ErrorEvent != nil:
			c.emit(Event{Type: EventError, Message: msg.ErrorEvent.Message})
		case msg.EndEvent != nil:
			c.emit(Event{Type: EventEnd})
		case msg.JoinedEvent != nil:
			slog.Debug("joined battle", "player", msg.JoinedEvent.PlayerID)
		}
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
