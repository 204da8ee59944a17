package core

import (
	"github.com/google/uuid"

	"github.com/werchat/werchat/internal/colortext"
)

// Permission keys the router checks beyond the per-channel nodes. Wildcard
// semantics (werchat.* and the universal *) are the permission provider's
// job, not the core's.
const (
	PermQuickChat      = "werchat.quickchat"
	PermAdmin          = "werchat.admin"
	PermCooldownBypass = "werchat.cooldown.bypass"
)

// Position is a 3D point in a world.
type Position struct {
	X, Y, Z float64
}

// Session is a live connected player as the core sees it. The core never
// keeps sessions around; it looks them up by id at the moment of delivery.
type Session interface {
	PlayerID() uuid.UUID
	Username() string

	// SendMessage delivers styled runs to the player. Best effort; a dead
	// connection must not panic or block the caller.
	SendMessage(msg colortext.Text)
}

// SessionDirectory resolves player ids and display names to live sessions.
type SessionDirectory interface {
	// Session returns the live session for a player id, if connected.
	Session(id uuid.UUID) (Session, bool)

	// Sessions enumerates all currently connected sessions.
	Sessions() []Session

	// SessionByName finds a connected session by display name,
	// case-insensitively.
	SessionByName(name string) (Session, bool)
}

// PermissionProvider answers permission checks, including wildcard grants.
type PermissionProvider interface {
	HasPermission(id uuid.UUID, permission string) bool
}

// WorldProvider reports where sessions are and resolves world names to
// world identities. Lookups happen per broadcast, never cached, because
// worlds can load and unload at runtime.
type WorldProvider interface {
	// PlayerWorld returns the world the session is currently in.
	PlayerWorld(s Session) (uuid.UUID, bool)

	// PlayerPosition returns the session's current position.
	PlayerPosition(s Session) (Position, bool)

	// ResolveWorld maps a world name to its identity.
	ResolveWorld(name string) (uuid.UUID, bool)
}

// RankInfoProvider supplies chat prefix/suffix strings for a player, such
// as rank tags from a permissions system. Values may contain inline color
// directives.
type RankInfoProvider interface {
	Prefix(id uuid.UUID) string
	Suffix(id uuid.UUID) string
}

// PlaceholderProvider substitutes external placeholders in text. All
// methods are best effort: on any failure implementations return the input
// unchanged.
type PlaceholderProvider interface {
	Substitute(actor Session, text string) string
	SubstituteRelational(actor, recipient Session, text string) string
}

// NopRankInfo is the default RankInfoProvider: no prefixes or suffixes.
type NopRankInfo struct{}

func (NopRankInfo) Prefix(uuid.UUID) string { return "" }
func (NopRankInfo) Suffix(uuid.UUID) string { return "" }

// NopPlaceholders is the default PlaceholderProvider: identity.
type NopPlaceholders struct{}

func (NopPlaceholders) Substitute(_ Session, text string) string { return text }
func (NopPlaceholders) SubstituteRelational(_, _ Session, text string) string {
	return text
}

// AllowAllPermissions grants everything; useful when no permission plugin
// is wired in and enforcement is off.
type AllowAllPermissions struct{}

func (AllowAllPermissions) HasPermission(uuid.UUID, string) bool { return true }

// BasicPermissions grants everything except admin and cooldown bypass, so
// servers without a permission backend still get cooldown and word-filter
// enforcement for regular players.
type BasicPermissions struct{}

func (BasicPermissions) HasPermission(_ uuid.UUID, permission string) bool {
	return permission != PermAdmin && permission != PermCooldownBypass
}
