package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/NicolasHaas/ticketbot/pkg/bot"
	"github.com/NicolasHaas/ticketbot/pkg/chat"
	"github.com/NicolasHaas/ticketbot/pkg/crypto"
	"github.com/NicolasHaas/ticketbot/pkg/logging"
	"github.com/NicolasHaas/ticketbot/pkg/store"
	"github.com/NicolasHaas/ticketbot/pkg/version"
)

func main() {
	configPath := pflag.String("config", "config.yaml", "Config file (.yaml, .yml, .json or .jsonc)")
	storeKind := pflag.String("store", "", "Session store: json or sqlite (overrides config)")
	metricsAddr := pflag.String("metrics", "", "HTTP bind address for Prometheus /metrics (overrides config)")
	importUsers := pflag.String("import-users", "", "Copy sessions from a JSON users file into the configured store and exit")
	exportSessions := pflag.Bool("export-sessions", false, "Export all sessions as YAML (without credentials) and exit")
	showVersion := pflag.Bool("version", false, "Print the version and exit")
	logLevel := pflag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := pflag.String("log-format", "text", "Log format: text or json")
	pflag.Parse()

	if *showVersion {
		fmt.Println("ticketbot", version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := bot.LoadConfig(*configPath)
	if errors.Is(err, bot.ErrConfigCreated) {
		slog.Info("wrote config template, fill it in and restart", "path", *configPath)
		return
	}
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
	}
	if pflag.CommandLine.Changed("metrics") {
		cfg.MetricsAddr = *metricsAddr
	}

	st, err := openStore(cfg)
	if err != nil {
		slog.Error("open session store", "err", err)
		os.Exit(1)
	}

	// Handle one-shot commands (run and exit)
	if *importUsers != "" || *exportSessions {
		defer st.Close()
		if *importUsers != "" {
			src, err := store.NewJSON(*importUsers)
			if err != nil {
				slog.Error("open users file", "err", err)
				os.Exit(1)
			}
			n, err := store.Copy(st, src)
			_ = src.Close()
			if err != nil {
				slog.Error("import users", "err", err)
				os.Exit(1)
			}
			slog.Info("imported sessions", "count", n, "from", *importUsers)
		}
		if *exportSessions {
			data, err := bot.ExportSessionsYAML(st)
			if err != nil {
				slog.Error("export sessions", "err", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		_ = st.Close()
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	secret, err := bot.EnsureSecret(cfg.Secret)
	if err != nil {
		_ = st.Close()
		slog.Error("secret", "err", err)
		os.Exit(1)
	}
	vault, err := crypto.NewVault(secret)
	if err != nil {
		_ = st.Close()
		slog.Error("create vault", "err", err)
		os.Exit(1)
	}

	gw, err := chat.NewDiscord(cfg.Token)
	if err != nil {
		_ = st.Close()
		slog.Error("create discord session", "err", err)
		os.Exit(1)
	}

	b := bot.New(cfg, bot.Dependencies{
		Gateway:    gw,
		Store:      st,
		Vault:      vault,
		ConfigPath: *configPath,
	})
	if err := b.Run(); err != nil {
		slog.Error("bot error", "err", err)
		os.Exit(1)
	}
}

func openStore(cfg bot.Config) (store.SessionStore, error) {
	switch cfg.Store {
	case "sqlite":
		return store.New(cfg.DBPath)
	case "json", "":
		return store.NewJSON(cfg.UsersFile)
	default:
		return nil, fmt.Errorf("unknown store %q (valid: json, sqlite)", cfg.Store)
	}
}
