// Package store defines the persistence records and interfaces for channel
// and player chat data. Backends live in subpackages.
package store

import (
	"context"

	"github.com/google/uuid"
)

// ChannelRecord is the persisted configuration of one channel. Membership
// is stored separately (see ChannelMembers) so the settings file stays
// small and diffable.
type ChannelRecord struct {
	Name               string   `json:"name"`
	Nick               string   `json:"nick"`
	Color              string   `json:"color"`
	MessageColor       string   `json:"messageColor"` // "" = inherit tag color
	Format             string   `json:"format"`
	Distance           int      `json:"distance"`
	Worlds             []string `json:"worlds"`
	Password           string   `json:"password"`
	QuickChatSymbol    string   `json:"quickChatSymbol"`
	QuickChatEnabled   bool     `json:"quickChatEnabled"`
	Default            bool     `json:"isDefault"`
	AutoJoin           bool     `json:"autoJoin"`
	Focusable          bool     `json:"focusable"`
	Verbose            bool     `json:"verbose"`
	Description        string   `json:"description,omitempty"`
	DescriptionEnabled bool     `json:"descriptionEnabled,omitempty"`
	Motd               string   `json:"motd,omitempty"`
	MotdEnabled        bool     `json:"motdEnabled,omitempty"`
}

// MemberEntry pairs a player id with the last display name it was seen
// under, kept so membership files remain readable when players are offline.
type MemberEntry struct {
	ID   uuid.UUID
	Name string
}

// ChannelMembers holds the membership and moderation sets of one channel.
type ChannelMembers struct {
	Owner      *MemberEntry
	Moderators []MemberEntry
	Members    []MemberEntry
	Banned     []MemberEntry
	Muted      []MemberEntry
}

// PlayerRecord holds the persisted per-player chat attributes. Transient
// fields (focus, cooldown, reply target) are intentionally absent.
type PlayerRecord struct {
	Nickname        string `json:"nickname,omitempty"`
	NickColor       string `json:"color,omitempty"`
	NickGradientEnd string `json:"gradientEnd,omitempty"`
	MsgColor        string `json:"msgColor,omitempty"`
	MsgGradientEnd  string `json:"msgGradientEnd,omitempty"`
}

// ShouldPersist reports whether the record carries anything worth writing.
func (r PlayerRecord) ShouldPersist() bool {
	return r.Nickname != "" || r.NickColor != "" || r.MsgColor != ""
}

// ChannelData is the result of a channel load: configuration records plus
// membership sets keyed by channel name. Legacy reports whether any record
// carried embedded membership data in the old single-file schema, in which
// case the caller should rewrite in the split schema.
type ChannelData struct {
	Channels []ChannelRecord
	Members  map[string]ChannelMembers
	Legacy   bool
}

// ChannelStore persists channel configuration and membership.
type ChannelStore interface {
	// LoadChannels reads all channel data. A missing backing file is not an
	// error: it returns empty data so the caller can bootstrap defaults.
	LoadChannels(ctx context.Context) (*ChannelData, error)

	// SaveChannels replaces all persisted channel data.
	SaveChannels(ctx context.Context, channels []ChannelRecord, members map[string]ChannelMembers) error
}

// PlayerStore persists per-player chat attributes.
type PlayerStore interface {
	LoadPlayers(ctx context.Context) (map[uuid.UUID]PlayerRecord, error)
	SavePlayers(ctx context.Context, players map[uuid.UUID]PlayerRecord) error
}

// Store aggregates all persistence interfaces.
type Store interface {
	ChannelStore
	PlayerStore

	// Close releases the backing resources.
	Close() error
}
