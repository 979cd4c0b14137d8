// Package logging configures the process-wide slog logger for ticketbot.
//
// The level can be changed while the bot runs (owner "diag level" command),
// and attributes whose key names a credential are redacted before output.
//
//	logging.Setup(logging.Options{Level: "debug", Format: "json"})
//	slog.Info("ticket created", "user", userID)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how logging is configured.
type Options struct {
	Level  string    // "debug", "info", "warn", "error" (default: "info")
	Format string    // "text" or "json" (default: "text")
	Output io.Writer // default: os.Stdout
}

const redacted = "[redacted]"

// sensitiveKeys are attribute keys never written in clear.
var sensitiveKeys = map[string]bool{
	"password": true,
	"secret":   true,
	"token":    true,
	"cipher":   true,
}

var level slog.LevelVar

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the default slog logger.
func Setup(opts Options) error {
	if err := Validate(opts.Level); err != nil {
		return err
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	level.Set(ParseLevel(opts.Level))

	handlerOpts := &slog.HandlerOptions{
		Level:       &level,
		AddSource:   level.Level() == slog.LevelDebug,
		ReplaceAttr: redact,
	}
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", opts.Format)
	}
	slog.SetDefault(slog.New(handler).With("app", "ticketbot"))
	return nil
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// SetLevel changes the level of the logger installed by Setup.
func SetLevel(name string) error {
	if err := Validate(name); err != nil {
		return err
	}
	level.Set(ParseLevel(name))
	return nil
}

// Level returns the current level name in lower case.
func Level() string {
	return strings.ToLower(level.Level().String())
}

// LevelNames returns all valid level names, useful for --help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Validate returns an error if the level string is not recognized.
func Validate(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "info", "warn", "warning", "error", "":
		return nil
	default:
		return fmt.Errorf("unknown log level %q (valid: %s)", name, LevelNames())
	}
}
