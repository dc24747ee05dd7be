package sys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/mattn/go-sqlite3"
)

const (
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDBMigrationFail     = "failed to migrate database: %w"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
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
		`CREATE TABLE IF NOT EXISTS guild_music_settings (
			guild_id TEXT PRIMARY KEY,
			volume INTEGER DEFAULT 100,
			loop_mode TEXT DEFAULT 'off',
			autoplay_enabled INTEGER DEFAULT 0,
			autoplay_genre TEXT DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
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
		"ALTER TABLE guild_music_settings ADD COLUMN autoplay_genre TEXT DEFAULT ''",
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

// --- Bot Persistence ---

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

// --- Guild Music Settings ---

// GuildMusicSettings holds the per-guild playback preferences that survive
// restarts. They seed the queue state when a guild queue is created.
type GuildMusicSettings struct {
	Volume          int
	LoopMode        string
	AutoplayEnabled bool
	AutoplayGenre   string
}

func DefaultGuildMusicSettings() GuildMusicSettings {
	return GuildMusicSettings{Volume: 100, LoopMode: "off"}
}

func GetGuildMusicSettings(ctx context.Context, guildID snowflake.ID) (GuildMusicSettings, error) {
	s := DefaultGuildMusicSettings()
	if DB == nil {
		return s, nil
	}
	var autoplayEnabled int
	err := DB.QueryRowContext(ctx, `
		SELECT volume, loop_mode, autoplay_enabled, autoplay_genre
		FROM guild_music_settings WHERE guild_id = ?
	`, guildID.String()).Scan(&s.Volume, &s.LoopMode, &autoplayEnabled, &s.AutoplayGenre)
	if err == sql.ErrNoRows {
		return DefaultGuildMusicSettings(), nil
	}
	if err != nil {
		return DefaultGuildMusicSettings(), err
	}
	s.AutoplayEnabled = autoplayEnabled != 0
	return s, nil
}

func SaveGuildMusicSettings(ctx context.Context, guildID snowflake.ID, s GuildMusicSettings) error {
	if DB == nil {
		return nil
	}
	enabled := 0
	if s.AutoplayEnabled {
		enabled = 1
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_music_settings (guild_id, volume, loop_mode, autoplay_enabled, autoplay_genre)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			volume = excluded.volume,
			loop_mode = excluded.loop_mode,
			autoplay_enabled = excluded.autoplay_enabled,
			autoplay_genre = excluded.autoplay_genre,
			updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), s.Volume, s.LoopMode, enabled, s.AutoplayGenre)
	return err
}

func DeleteGuildMusicSettings(ctx context.Context, guildID snowflake.ID) error {
	if DB == nil {
		return nil
	}
	_, err := DB.ExecContext(ctx, "DELETE FROM guild_music_settings WHERE guild_id = ?", guildID.String())
	return err
}
