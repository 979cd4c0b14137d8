// Package store provides persistence for user sessions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/ticketbot/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store is the SQLite-backed SessionStore.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	// One connection keeps the per-connection pragmas below in effect for every query.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS user_sessions (
		user_id           TEXT    PRIMARY KEY CHECK(length(user_id) > 0),
		external_id       TEXT    NOT NULL DEFAULT '',
		external_password TEXT    NOT NULL DEFAULT '',
		class_id          INTEGER NOT NULL DEFAULT 0,
		set_id            INTEGER NOT NULL DEFAULT 0,
		channel_id        TEXT    NOT NULL DEFAULT '',
		message_id        TEXT    NOT NULL DEFAULT ''
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"ALTER TABLE user_sessions ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''",
			},
			ignoreErrors: true,
		},
		{
			version: 3,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_user_sessions_channel_id ON user_sessions(channel_id)",
			},
			ignoreErrors: true,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: count schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func (s *Store) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

// ---- Sessions ----

const sessionColumns = "external_id, external_password, class_id, set_id, channel_id, message_id"

// Get retrieves the session for userID.
func (s *Store) Get(userID string) (model.UserSession, bool, error) {
	var u model.UserSession
	err := s.db.QueryRowContext(context.Background(), "SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ?", userID).
		Scan(&u.ExternalIDCipher, &u.ExternalPasswordCipher, &u.ClassID, &u.SetID, &u.ChannelID, &u.MessageID)
	if err == sql.ErrNoRows {
		return model.UserSession{}, false, nil
	}
	if err != nil {
		return model.UserSession{}, false, fmt.Errorf("store: get session: %w", err)
	}
	return u, true, nil
}

// Put upserts the session for userID.
func (s *Store) Put(userID string, u model.UserSession) error {
	if err := validatePut(userID, u); err != nil {
		return fmt.Errorf("store: put session: %w", err)
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO user_sessions (user_id, `+sessionColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			external_id = excluded.external_id,
			external_password = excluded.external_password,
			class_id = excluded.class_id,
			set_id = excluded.set_id,
			channel_id = excluded.channel_id,
			message_id = excluded.message_id,
			updated_at = excluded.updated_at`,
		userID, u.ExternalIDCipher, u.ExternalPasswordCipher, u.ClassID, u.SetID, u.ChannelID, u.MessageID,
		formatDBTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store: put session: %w", err)
	}
	return nil
}

// List returns all sessions.
func (s *Store) List() (map[string]model.UserSession, error) {
	rows, err := s.db.QueryContext(context.Background(), "SELECT user_id, "+sessionColumns+" FROM user_sessions ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make(map[string]model.UserSession)
	for rows.Next() {
		var id string
		var u model.UserSession
		if err := rows.Scan(&id, &u.ExternalIDCipher, &u.ExternalPasswordCipher, &u.ClassID, &u.SetID, &u.ChannelID, &u.MessageID); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		sessions[id] = u
	}
	return sessions, rows.Err()
}
