// Package bot implements the ticket bot: per-user ticket channels with an
// account menu, study actions and the quiz battle relay.
package bot

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/crypto"
	"github.com/NicolasHaas/ticketbot/pkg/platform"
	"github.com/NicolasHaas/ticketbot/pkg/protocol"
	"github.com/NicolasHaas/ticketbot/pkg/store"
)

// BattleConn is one connection to the quiz battle server.
type BattleConn interface {
	Init(ctx context.Context) error
	Events() <-chan protocol.Event
	Join(ctx context.Context, code int, displayName string) error
	Mark(ctx context.Context, questionID int, correct bool, score int64) error
	SetScore(ctx context.Context, score int64, deferFlush bool) error
	Leave() error
}

// BattleDialer creates an unconnected BattleConn.
type BattleDialer func() BattleConn

// Dependencies holds external dependencies for the bot.
// Bot assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Gateway  chat.Gateway
	Store    store.SessionStore
	Vault    *crypto.Vault
	Platform platform.Factory // defaults to the HTTP client for cfg.PlatformURL
	Battle   BattleDialer     // defaults to the websocket client for cfg.BattleURL

	// ConfigPath is where setup writes the new channel ids. Empty skips saving.
	ConfigPath string
}

// Bot is the ticket bot.
type Bot struct {
	cfgMu   sync.RWMutex
	cfg     Config
	cfgPath string

	gw         chat.Gateway
	store      store.SessionStore
	vault      *crypto.Vault
	sessions   *SessionRegistry
	relays     *RelayRegistry
	collector  *Collector
	metrics    *Metrics
	dialBattle BattleDialer

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter // userID -> ticket creation limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Bot instance.
func New(cfg Config, deps Dependencies) *Bot {
	ctx, cancel := context.WithCancel(context.Background())

	newClient := deps.Platform
	if newClient == nil {
		newClient = platform.NewHTTPFactory(cfg.PlatformURL)
	}
	dial := deps.Battle
	if dial == nil {
		url := cfg.BattleURL
		dial = func() BattleConn { return protocol.NewClient(url) }
	}

	return &Bot{
		cfg:        cfg,
		cfgPath:    deps.ConfigPath,
		gw:         deps.Gateway,
		store:      deps.Store,
		vault:      deps.Vault,
		sessions:   NewSessionRegistry(deps.Store, newClient),
		relays:     NewRelayRegistry(),
		collector:  NewCollector(),
		metrics:    NewMetrics(),
		dialBattle: dial,
		limiters:   make(map[string]*rate.Limiter),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Sessions returns the session registry.
func (b *Bot) Sessions() *SessionRegistry {
	return b.sessions
}

// Relays returns the relay registry.
func (b *Bot) Relays() *RelayRegistry {
	return b.relays
}

// Metrics returns the bot metrics.
func (b *Bot) Metrics() *Metrics {
	return b.metrics
}

// config returns a copy of the current configuration.
func (b *Bot) config() Config {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg
}

// updateConfig applies fn to the configuration and returns the result.
func (b *Bot) updateConfig(fn func(*Config)) Config {
	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()
	fn(&b.cfg)
	return b.cfg
}

// allowTicket reports whether userID may create a ticket now.
func (b *Bot) allowTicket(userID string) bool {
	every := b.config().TicketCooldown.Std()
	if every <= 0 {
		return true
	}
	b.limMu.Lock()
	defer b.limMu.Unlock()
	l, ok := b.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(every), 1)
		b.limiters[userID] = l
	}
	return l.Allow()
}
