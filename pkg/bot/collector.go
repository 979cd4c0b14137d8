package bot

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/errs"
)

// waiter is a one-shot subscription for the next event matching a filter.
type waiter struct {
	match func(*chat.Event) bool
	ch    chan *chat.Event // buffered, receives at most one event
}

// Collector hands inbound events to whoever is waiting for them. Every event
// is offered to the collector before normal dispatch; a consumed event is
// not dispatched. Unmatched events are never buffered.
type Collector struct {
	mu      sync.Mutex
	waiters []*waiter
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Offer delivers ev to the oldest matching waiter. It reports whether the
// event was consumed.
func (c *Collector) Offer(ev *chat.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.match(ev) {
			c.waiters = slices.Delete(c.waiters, i, i+1)
			w.ch <- ev
			return true
		}
	}
	return false
}

// Pending returns the number of registered waiters.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// subscribe registers a waiter. Call cancel when no longer interested; it
// returns an event that was delivered after the caller stopped listening.
func (c *Collector) subscribe(match func(*chat.Event) bool) (ch <-chan *chat.Event, cancel func() *chat.Event) {
	w := &waiter{match: match, ch: make(chan *chat.Event, 1)}
	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	return w.ch, func() *chat.Event {
		c.mu.Lock()
		defer c.mu.Unlock()
		if i := slices.Index(c.waiters, w); i >= 0 {
			c.waiters = slices.Delete(c.waiters, i, i+1)
			return nil
		}
		select {
		case ev := <-w.ch:
			return ev
		default:
			return nil
		}
	}
}

// Await blocks until an event matches, ctx ends or timeout expires.
// A zero timeout waits without limit. Expiry yields a Timeout error.
func (c *Collector) Await(ctx context.Context, match func(*chat.Event) bool, timeout time.Duration) (*chat.Event, error) {
	ch, cancel := c.subscribe(match)

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case ev := <-ch:
		return ev, nil
	case <-expired:
		if ev := cancel(); ev != nil {
			return ev, nil
		}
		return nil, errs.Timeout("time expired.")
	case <-ctx.Done():
		if ev := cancel(); ev != nil {
			return ev, nil
		}
		return nil, ctx.Err()
	}
}

// messageFrom matches the next plain message by userID in channelID.
func messageFrom(channelID, userID string) func(*chat.Event) bool {
	return func(ev *chat.Event) bool {
		return ev.Kind == chat.EventMessage && ev.ChannelID == channelID && ev.UserID == userID
	}
}

// componentOn matches a button or select press by userID on messageID. With
// customIDs set, only those ids match.
func componentOn(messageID, userID string, customIDs ...string) func(*chat.Event) bool {
	return func(ev *chat.Event) bool {
		if ev.Kind != chat.EventButton && ev.Kind != chat.EventSelect {
			return false
		}
		if ev.MessageID != messageID || ev.UserID != userID {
			return false
		}
		return len(customIDs) == 0 || slices.Contains(customIDs, ev.CustomID)
	}
}
