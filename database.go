package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ============================================================================
// Database
// ============================================================================

const (
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDBMigrationFail     = "failed to migrate database: %w"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
		"PRAGMA foreign_keys=ON;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_setups (
			guild_id TEXT PRIMARY KEY,
			identifier TEXT NOT NULL,
			panel_channel_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			archive_category_id TEXT NOT NULL,
			support_role_id TEXT NOT NULL,
			advisor_role_id TEXT NOT NULL,
			logs_channel_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			identifier TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'created',
			claimed_by TEXT,
			claim_reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			claimed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS reaction_roles (
			identifier TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			title TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(guild_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reaction_role_mappings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL REFERENCES reaction_roles(identifier) ON DELETE CASCADE,
			emoji TEXT NOT NULL,
			role_id TEXT NOT NULL,
			UNIQUE(record_id, emoji)
		)`,
		`CREATE TABLE IF NOT EXISTS reaction_role_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id TEXT NOT NULL REFERENCES reaction_roles(identifier) ON DELETE CASCADE,
			entry_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			role_id TEXT NOT NULL,
			role_name TEXT,
			action TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS lobbies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(guild_id, channel_id)
		)`,
		`CREATE TABLE IF NOT EXISTS lobby_users (
			lobby_id INTEGER NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			UNIQUE(lobby_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS levels (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			xp INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 0,
			level_up_count INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS xp_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS stat_channels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			stat_type TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			template TEXT,
			last_name TEXT,
			UNIQUE(guild_id, stat_type)
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_guild_id ON tickets(guild_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_guild_user ON activities(guild_id, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_history_guild_user ON xp_history(guild_id, user_id)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE stat_channels ADD COLUMN last_name TEXT",
		"ALTER TABLE tickets ADD COLUMN claimed_at DATETIME",
		"ALTER TABLE reaction_roles ADD COLUMN title TEXT",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf(MsgDBMigrationFail, err)
			}
		}
	}

	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}
