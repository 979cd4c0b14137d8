package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/ticketbot/pkg/crypto"
	"github.com/NicolasHaas/ticketbot/pkg/store"
)

// ErrConfigCreated is returned by LoadConfig after it wrote a template to a
// missing config path.
var ErrConfigCreated = errors.New("config file created, fill it in and restart")

// Duration is a time.Duration written as "30s" in every config format.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds bot configuration. Every field can be overridden by the
// TICKETBOT_* environment variable named in its env tag.
type Config struct {
	Token  string   `yaml:"token" json:"token" env:"TICKETBOT_TOKEN"`
	Owners []string `yaml:"owners" json:"owners" env:"TICKETBOT_OWNERS" envSeparator:","`
	Prefix string   `yaml:"prefix" json:"prefix" env:"TICKETBOT_PREFIX"`

	// Written back by the setup command.
	Guild          string `yaml:"guild" json:"guild" env:"TICKETBOT_GUILD"`
	TicketCategory string `yaml:"ticket_category" json:"ticketCategory" env:"TICKETBOT_TICKET_CATEGORY"`
	TicketChannel  string `yaml:"ticket_channel" json:"ticketChannel" env:"TICKETBOT_TICKET_CHANNEL"`

	Secret    string `yaml:"secret" json:"secret" env:"TICKETBOT_SECRET"`
	Store     string `yaml:"store" json:"store" env:"TICKETBOT_STORE"` // "json" or "sqlite"
	UsersFile string `yaml:"users_file" json:"usersFile" env:"TICKETBOT_USERS_FILE"`
	DBPath    string `yaml:"db_path" json:"dbPath" env:"TICKETBOT_DB_PATH"`

	PlatformURL string `yaml:"platform_url" json:"platformUrl" env:"TICKETBOT_PLATFORM_URL"`
	BattleURL   string `yaml:"battle_url" json:"battleUrl" env:"TICKETBOT_BATTLE_URL"`
	MetricsAddr string `yaml:"metrics_addr" json:"metricsAddr" env:"TICKETBOT_METRICS_ADDR"` // empty = disabled

	PromptTimeout   Duration `yaml:"prompt_timeout" json:"promptTimeout" env:"TICKETBOT_PROMPT_TIMEOUT"`
	NoticeDelay     Duration `yaml:"notice_delay" json:"noticeDelay" env:"TICKETBOT_NOTICE_DELAY"`
	SetupReplyDelay Duration `yaml:"setup_reply_delay" json:"setupReplyDelay" env:"TICKETBOT_SETUP_REPLY_DELAY"`
	TicketCooldown  Duration `yaml:"ticket_cooldown" json:"ticketCooldown" env:"TICKETBOT_TICKET_COOLDOWN"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:          "!",
		Store:           "json",
		UsersFile:       "users.json",
		DBPath:          "ticketbot.db",
		PlatformURL:     "http://localhost:8080/api",
		BattleURL:       "ws://localhost:8080/battle",
		MetricsAddr:     ":9602",
		PromptTimeout:   Duration(30 * time.Second),
		NoticeDelay:     Duration(10 * time.Second),
		SetupReplyDelay: Duration(5 * time.Second),
		TicketCooldown:  Duration(10 * time.Second),
	}
}

// IsOwner reports whether userID may run owner commands.
func (c Config) IsOwner(userID string) bool {
	return slices.Contains(c.Owners, userID)
}

// Validate checks fields the bot cannot run without.
func (c Config) Validate() error {
	if c.Token == "" {
		return errors.New("config: token is required")
	}
	if c.Prefix == "" {
		return errors.New("config: prefix must not be empty")
	}
	switch c.Store {
	case "json", "sqlite":
	default:
		return fmt.Errorf("config: unknown store %q (valid: json, sqlite)", c.Store)
	}
	return nil
}

func isJSONPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}

// LoadConfig reads a YAML or JSON (comments allowed) config file and applies
// environment overrides. A missing file is replaced by a template and
// ErrConfigCreated is returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if errors.Is(err, fs.ErrNotExist) {
		if err := SaveConfig(path, cfg); err != nil {
			return cfg, fmt.Errorf("write config template: %w", err)
		}
		return cfg, ErrConfigCreated
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if isJSONPath(path) {
		err = json.Unmarshal(jsonc.ToJSON(data), &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in the format implied by its extension.
func SaveConfig(path string, cfg Config) error {
	var (
		data []byte
		err  error
	)
	if isJSONPath(path) {
		data, err = json.MarshalIndent(cfg, "", "    ")
	} else {
		data, err = yaml.Marshal(&cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureSecret returns a usable vault secret. A secret of the wrong length is
// replaced by a random one for this run.
func EnsureSecret(secret string) (string, error) {
	if len(secret) == crypto.SecretSize {
		return secret, nil
	}
	generated, err := crypto.GenerateSecret()
	if err != nil {
		return "", err
	}
	slog.Warn("config secret is not 32 characters, using a random secret for this run; stored credentials will not decrypt",
		"length", len(secret))
	return generated, nil
}

// SessionYAML is one exported session. Credential blobs are never exported.
type SessionYAML struct {
	UserID         string `yaml:"user_id"`
	HasCredentials bool   `yaml:"has_credentials"`
	ClassID        int    `yaml:"class_id,omitempty"`
	SetID          int    `yaml:"set_id,omitempty"`
	ChannelID      string `yaml:"channel_id,omitempty"`
	MessageID      string `yaml:"message_id,omitempty"`
}

// SessionsExport is the top-level YAML for session export.
type SessionsExport struct {
	Sessions []SessionYAML `yaml:"sessions"`
}

// ExportSessionsYAML exports all stored sessions as YAML, sorted by user id.
func ExportSessionsYAML(st store.SessionStore) ([]byte, error) {
	all, err := st.List()
	if err != nil {
		return nil, err
	}

	export := SessionsExport{}
	for id, s := range all {
		export.Sessions = append(export.Sessions, SessionYAML{
			UserID:         id,
			HasCredentials: s.HasCredentials(),
			ClassID:        s.ClassID,
			SetID:          s.SetID,
			ChannelID:      s.ChannelID,
			MessageID:      s.MessageID,
		})
	}
	sort.Slice(export.Sessions, func(i, j int) bool {
		return export.Sessions[i].UserID < export.Sessions[j].UserID
	})
	return yaml.Marshal(&export)
}
