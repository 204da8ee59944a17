// Package sqlite implements store.Store on a SQLite database, for servers
// that prefer one data file over the JSON directory layout.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/store"
)

// Membership roles as stored in channel_members.
const (
	roleOwner     = "owner"
	roleModerator = "moderator"
	roleMember    = "member"
	roleBanned    = "banned"
	roleMuted     = "muted"
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	name               TEXT PRIMARY KEY,
	nick               TEXT NOT NULL DEFAULT '',
	color              TEXT NOT NULL DEFAULT '#FFFFFF',
	message_color      TEXT NOT NULL DEFAULT '',
	format             TEXT NOT NULL DEFAULT '',
	distance           INTEGER NOT NULL DEFAULT 0,
	worlds             TEXT NOT NULL DEFAULT '[]',
	password           TEXT NOT NULL DEFAULT '',
	quick_chat_symbol  TEXT NOT NULL DEFAULT '',
	quick_chat_enabled INTEGER NOT NULL DEFAULT 0,
	is_default         INTEGER NOT NULL DEFAULT 0,
	auto_join          INTEGER NOT NULL DEFAULT 0,
	focusable          INTEGER NOT NULL DEFAULT 1,
	verbose            INTEGER NOT NULL DEFAULT 1,
	description         TEXT NOT NULL DEFAULT '',
	description_enabled INTEGER NOT NULL DEFAULT 0,
	motd                TEXT NOT NULL DEFAULT '',
	motd_enabled        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel     TEXT NOT NULL,
	player_id   TEXT NOT NULL,
	player_name TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL,
	PRIMARY KEY (channel, player_id, role)
);

CREATE TABLE IF NOT EXISTS players (
	id                TEXT PRIMARY KEY,
	nickname          TEXT NOT NULL DEFAULT '',
	nick_color        TEXT NOT NULL DEFAULT '',
	nick_gradient_end TEXT NOT NULL DEFAULT '',
	msg_color         TEXT NOT NULL DEFAULT '',
	msg_gradient_end  TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *zerolog.Logger
}

// New opens the database, applies the schema and returns the store.
func New(dbPath string, logger *zerolog.Logger) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, logger, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup opens the database and runs a setup function first.
// Useful for tests to apply a custom schema without migrations.
func NewWithSetup(dbPath string, logger *zerolog.Logger, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, log: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadChannels reads all channel settings and membership rows. An empty
// database returns empty data so the caller can bootstrap defaults.
func (s *SQLiteStore) LoadChannels(ctx context.Context) (*store.ChannelData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, nick, color, message_color, format, distance, worlds,
		       password, quick_chat_symbol, quick_chat_enabled, is_default,
		       auto_join, focusable, verbose,
		       description, description_enabled, motd, motd_enabled
		FROM channels ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	data := &store.ChannelData{Members: make(map[string]store.ChannelMembers)}
	for rows.Next() {
		var rec store.ChannelRecord
		var worlds string
		if err := rows.Scan(
			&rec.Name, &rec.Nick, &rec.Color, &rec.MessageColor, &rec.Format,
			&rec.Distance, &worlds, &rec.Password, &rec.QuickChatSymbol,
			&rec.QuickChatEnabled, &rec.Default, &rec.AutoJoin, &rec.Focusable,
			&rec.Verbose, &rec.Description, &rec.DescriptionEnabled,
			&rec.Motd, &rec.MotdEnabled,
		); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		if worlds != "" {
			if err := json.Unmarshal([]byte(worlds), &rec.Worlds); err != nil {
				s.log.Warn().Str("channel", rec.Name).Msg("skipping unparseable world list")
			}
		}
		data.Channels = append(data.Channels, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	if err := s.loadMembers(ctx, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SQLiteStore) loadMembers(ctx context.Context, data *store.ChannelData) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, player_id, player_name, role FROM channel_members
	`)
	if err != nil {
		return fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var channel, playerID, playerName, role string
		if err := rows.Scan(&channel, &playerID, &playerName, &role); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		id, err := uuid.Parse(playerID)
		if err != nil {
			s.log.Warn().Str("channel", channel).Str("id", playerID).Msg("skipping member with invalid id")
			continue
		}

		entry := store.MemberEntry{ID: id, Name: playerName}
		members := data.Members[channel]
		switch role {
		case roleOwner:
			members.Owner = &entry
		case roleModerator:
			members.Moderators = append(members.Moderators, entry)
		case roleMember:
			members.Members = append(members.Members, entry)
		case roleBanned:
			members.Banned = append(members.Banned, entry)
		case roleMuted:
			members.Muted = append(members.Muted, entry)
		default:
			s.log.Warn().Str("channel", channel).Str("role", role).Msg("skipping member with unknown role")
			continue
		}
		data.Members[channel] = members
	}
	return rows.Err()
}

// SaveChannels replaces all persisted channel data in one transaction.
func (s *SQLiteStore) SaveChannels(ctx context.Context, channels []store.ChannelRecord, members map[string]store.ChannelMembers) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_members`); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}

	for _, rec := range channels {
		worlds, err := json.Marshal(rec.Worlds)
		if err != nil {
			return fmt.Errorf("encode worlds: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channels (
				name, nick, color, message_color, format, distance, worlds,
				password, quick_chat_symbol, quick_chat_enabled, is_default,
				auto_join, focusable, verbose,
				description, description_enabled, motd, motd_enabled
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.Name, rec.Nick, rec.Color, rec.MessageColor, rec.Format,
			rec.Distance, string(worlds), rec.Password, rec.QuickChatSymbol,
			rec.QuickChatEnabled, rec.Default, rec.AutoJoin, rec.Focusable,
			rec.Verbose, rec.Description, rec.DescriptionEnabled,
			rec.Motd, rec.MotdEnabled,
		); err != nil {
			return fmt.Errorf("insert channel %s: %w", rec.Name, err)
		}

		if err := insertMembers(ctx, tx, rec.Name, members[rec.Name]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, channel string, m store.ChannelMembers) error {
	insert := func(entries []store.MemberEntry, role string) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO channel_members (channel, player_id, player_name, role)
				VALUES (?, ?, ?, ?)
			`, channel, e.ID.String(), e.Name, role); err != nil {
				return fmt.Errorf("insert member %s/%s: %w", channel, role, err)
			}
		}
		return nil
	}

	if m.Owner != nil {
		if err := insert([]store.MemberEntry{*m.Owner}, roleOwner); err != nil {
			return err
		}
	}
	if err := insert(m.Moderators, roleModerator); err != nil {
		return err
	}
	if err := insert(m.Members, roleMember); err != nil {
		return err
	}
	if err := insert(m.Banned, roleBanned); err != nil {
		return err
	}
	return insert(m.Muted, roleMuted)
}

// LoadPlayers reads all persisted player attributes.
func (s *SQLiteStore) LoadPlayers(ctx context.Context) (map[uuid.UUID]store.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nickname, nick_color, nick_gradient_end, msg_color, msg_gradient_end
		FROM players
	`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]store.PlayerRecord)
	for rows.Next() {
		var rawID string
		var rec store.PlayerRecord
		if err := rows.Scan(&rawID, &rec.Nickname, &rec.NickColor,
			&rec.NickGradientEnd, &rec.MsgColor, &rec.MsgGradientEnd); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			s.log.Warn().Str("id", rawID).Msg("skipping player with invalid id")
			continue
		}
		out[id] = rec
	}
	return out, rows.Err()
}

// SavePlayers replaces all persisted player attributes.
func (s *SQLiteStore) SavePlayers(ctx context.Context, players map[uuid.UUID]store.PlayerRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM players`); err != nil {
		return fmt.Errorf("clear players: %w", err)
	}
	for id, rec := range players {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO players (id, nickname, nick_color, nick_gradient_end, msg_color, msg_gradient_end)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id.String(), rec.Nickname, rec.NickColor, rec.NickGradientEnd,
			rec.MsgColor, rec.MsgGradientEnd); err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
