package core

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultFormat is the message template applied to newly created channels.
const DefaultFormat = "[{nick}] {sender}: {msg}"

// Channel is a single chat channel: configuration plus membership and
// moderation sets. All methods are safe for concurrent use. Channels never
// touch storage directly; mutations fire the change hook the registry
// installs so saves can be debounced in one place.
type Channel struct {
	mu sync.RWMutex

	name         string
	nick         string
	color        string // "#RRGGBB" tag color
	messageColor string // "" = inherit tag color
	format       string
	distance     int
	password     string
	isDefault    bool
	focusable    bool
	verbose      bool
	autoJoin     bool

	description        string
	descriptionEnabled bool
	motd               string
	motdEnabled        bool

	members    map[uuid.UUID]struct{}
	banned     map[uuid.UUID]struct{}
	muted      map[uuid.UUID]struct{}
	moderators map[uuid.UUID]struct{}
	owner      *uuid.UUID

	joinPermission  string
	speakPermission string
	readPermission  string

	quickChatSymbol  string
	quickChatEnabled bool
	worlds           map[string]struct{}

	onChange func()
}

// NewChannel constructs a channel with the given name and default settings:
// white tag color, the standard format, global reach, focusable and verbose.
func NewChannel(name string) *Channel {
	c := &Channel{
		name:       name,
		color:      "#FFFFFF",
		format:     DefaultFormat,
		focusable:  true,
		verbose:    true,
		members:    make(map[uuid.UUID]struct{}),
		banned:     make(map[uuid.UUID]struct{}),
		muted:      make(map[uuid.UUID]struct{}),
		moderators: make(map[uuid.UUID]struct{}),
		worlds:     make(map[string]struct{}),
	}
	if name != "" {
		c.nick = strings.ToLower(string([]rune(name)[0]))
	}
	c.refreshPermissionNodes()
	return c
}

// SetChangeHook installs the registry's dirty notification. Not safe to
// swap while the channel is shared; the registry sets it before publishing.
func (c *Channel) SetChangeHook(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// notifyChanged must be called without holding c.mu.
func (c *Channel) notifyChanged() {
	c.mu.RLock()
	fn := c.onChange
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// AddMember inserts a player into the channel. Banned players cannot join;
// the call returns false and changes nothing.
func (c *Channel) AddMember(id uuid.UUID) bool {
	c.mu.Lock()
	if _, isBanned := c.banned[id]; isBanned {
		c.mu.Unlock()
		return false
	}
	if _, exists := c.members[id]; exists {
		c.mu.Unlock()
		return false
	}
	c.members[id] = struct{}{}
	c.mu.Unlock()

	c.notifyChanged()
	return true
}

func (c *Channel) RemoveMember(id uuid.UUID) bool {
	c.mu.Lock()
	_, exists := c.members[id]
	delete(c.members, id)
	c.mu.Unlock()

	if exists {
		c.notifyChanged()
	}
	return exists
}

func (c *Channel) IsMember(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

// Ban marks a player as banned and evicts any membership in one step so
// the banned/member sets can never overlap.
func (c *Channel) Ban(id uuid.UUID) bool {
	c.mu.Lock()
	_, wasMember := c.members[id]
	delete(c.members, id)
	_, wasBanned := c.banned[id]
	c.banned[id] = struct{}{}
	c.mu.Unlock()

	changed := wasMember || !wasBanned
	if changed {
		c.notifyChanged()
	}
	return changed
}

func (c *Channel) Unban(id uuid.UUID) bool {
	c.mu.Lock()
	_, exists := c.banned[id]
	delete(c.banned, id)
	c.mu.Unlock()

	if exists {
		c.notifyChanged()
	}
	return exists
}

func (c *Channel) IsBanned(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.banned[id]
	return ok
}

func (c *Channel) Mute(id uuid.UUID) bool {
	c.mu.Lock()
	_, exists := c.muted[id]
	c.muted[id] = struct{}{}
	c.mu.Unlock()

	if !exists {
		c.notifyChanged()
	}
	return !exists
}

func (c *Channel) Unmute(id uuid.UUID) bool {
	c.mu.Lock()
	_, exists := c.muted[id]
	delete(c.muted, id)
	c.mu.Unlock()

	if exists {
		c.notifyChanged()
	}
	return exists
}

func (c *Channel) IsMuted(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.muted[id]
	return ok
}

func (c *Channel) AddModerator(id uuid.UUID) bool {
	c.mu.Lock()
	_, exists := c.moderators[id]
	c.moderators[id] = struct{}{}
	c.mu.Unlock()

	if !exists {
		c.notifyChanged()
	}
	return !exists
}

func (c *Channel) RemoveModerator(id uuid.UUID) bool {
	c.mu.Lock()
	_, exists := c.moderators[id]
	delete(c.moderators, id)
	c.mu.Unlock()

	if exists {
		c.notifyChanged()
	}
	return exists
}

func (c *Channel) IsModerator(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.moderators[id]
	return ok
}

// CheckPassword returns true when the channel has no password, or the
// input matches it exactly.
func (c *Channel) CheckPassword(input string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.password == "" {
		return true
	}
	return c.password == input
}

func (c *Channel) HasPassword() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password != ""
}

// Name returns the channel's unique name.
func (c *Channel) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// setName is registry-only; renames must go through the registry so the
// index stays consistent.
func (c *Channel) setName(name string) {
	c.mu.Lock()
	if c.name == name {
		c.mu.Unlock()
		return
	}
	c.name = name
	c.refreshPermissionNodes()
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) Nick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nick
}

func (c *Channel) SetNick(nick string) {
	c.mu.Lock()
	if c.nick == nick {
		c.mu.Unlock()
		return
	}
	c.nick = nick
	c.mu.Unlock()
	c.notifyChanged()
}

// Color returns the channel tag color as "#RRGGBB".
func (c *Channel) Color() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.color
}

func (c *Channel) SetColor(hex string) {
	c.mu.Lock()
	if c.color == hex {
		c.mu.Unlock()
		return
	}
	c.color = hex
	c.mu.Unlock()
	c.notifyChanged()
}

// MessageColor returns the explicit message color, or "" when the channel
// inherits its tag color.
func (c *Channel) MessageColor() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messageColor
}

func (c *Channel) SetMessageColor(hex string) {
	c.mu.Lock()
	if c.messageColor == hex {
		c.mu.Unlock()
		return
	}
	c.messageColor = hex
	c.mu.Unlock()
	c.notifyChanged()
}

// EffectiveMessageColor returns the message color, falling back to the tag
// color when none is set.
func (c *Channel) EffectiveMessageColor() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.messageColor != "" {
		return c.messageColor
	}
	return c.color
}

func (c *Channel) Format() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format
}

func (c *Channel) SetFormat(format string) {
	c.mu.Lock()
	if c.format == format {
		c.mu.Unlock()
		return
	}
	c.format = format
	c.mu.Unlock()
	c.notifyChanged()
}

// Distance returns the delivery radius; 0 or less means global.
func (c *Channel) Distance() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.distance
}

func (c *Channel) SetDistance(distance int) {
	c.mu.Lock()
	if c.distance == distance {
		c.mu.Unlock()
		return
	}
	c.distance = distance
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) IsLocal() bool {
	return c.Distance() > 0
}

func (c *Channel) Password() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.password
}

func (c *Channel) SetPassword(password string) {
	c.mu.Lock()
	if c.password == password {
		c.mu.Unlock()
		return
	}
	c.password = password
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) IsDefault() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isDefault
}

func (c *Channel) setDefaultFlag(isDefault bool) {
	c.mu.Lock()
	if c.isDefault == isDefault {
		c.mu.Unlock()
		return
	}
	c.isDefault = isDefault
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) IsFocusable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.focusable
}

func (c *Channel) SetFocusable(focusable bool) {
	c.mu.Lock()
	if c.focusable == focusable {
		c.mu.Unlock()
		return
	}
	c.focusable = focusable
	c.mu.Unlock()
	c.notifyChanged()
}

// IsVerbose reports whether join/leave notices are broadcast to this channel.
func (c *Channel) IsVerbose() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verbose
}

func (c *Channel) SetVerbose(verbose bool) {
	c.mu.Lock()
	if c.verbose == verbose {
		c.mu.Unlock()
		return
	}
	c.verbose = verbose
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) IsAutoJoin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoJoin
}

func (c *Channel) SetAutoJoin(autoJoin bool) {
	c.mu.Lock()
	if c.autoJoin == autoJoin {
		c.mu.Unlock()
		return
	}
	c.autoJoin = autoJoin
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) Description() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.description
}

func (c *Channel) SetDescription(description string) {
	c.mu.Lock()
	if c.description == description {
		c.mu.Unlock()
		return
	}
	c.description = description
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) IsDescriptionEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descriptionEnabled
}

func (c *Channel) SetDescriptionEnabled(enabled bool) {
	c.mu.Lock()
	if c.descriptionEnabled == enabled {
		c.mu.Unlock()
		return
	}
	c.descriptionEnabled = enabled
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) Motd() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.motd
}

func (c *Channel) SetMotd(motd string) {
	c.mu.Lock()
	if c.motd == motd {
		c.mu.Unlock()
		return
	}
	c.motd = motd
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) IsMotdEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.motdEnabled
}

func (c *Channel) SetMotdEnabled(enabled bool) {
	c.mu.Lock()
	if c.motdEnabled == enabled {
		c.mu.Unlock()
		return
	}
	c.motdEnabled = enabled
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) HasMotd() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.motd != ""
}

// Members returns a copy of the member set.
func (c *Channel) Members() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyIDSet(c.members)
}

func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

func (c *Channel) Banned() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyIDSet(c.banned)
}

func (c *Channel) Muted() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyIDSet(c.muted)
}

func (c *Channel) Moderators() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyIDSet(c.moderators)
}

func (c *Channel) Owner() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.owner == nil {
		return uuid.Nil, false
	}
	return *c.owner, true
}

func (c *Channel) SetOwner(id uuid.UUID) {
	c.mu.Lock()
	if c.owner != nil && *c.owner == id {
		c.mu.Unlock()
		return
	}
	owner := id
	c.owner = &owner
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) ClearOwner() {
	c.mu.Lock()
	if c.owner == nil {
		c.mu.Unlock()
		return
	}
	c.owner = nil
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) JoinPermission() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joinPermission
}

func (c *Channel) SpeakPermission() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speakPermission
}

func (c *Channel) ReadPermission() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readPermission
}

func (c *Channel) QuickChatSymbol() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quickChatSymbol
}

func (c *Channel) SetQuickChatSymbol(symbol string) {
	c.mu.Lock()
	if c.quickChatSymbol == symbol {
		c.mu.Unlock()
		return
	}
	c.quickChatSymbol = symbol
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) HasQuickChatSymbol() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quickChatSymbol != ""
}

func (c *Channel) IsQuickChatEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quickChatEnabled
}

func (c *Channel) SetQuickChatEnabled(enabled bool) {
	c.mu.Lock()
	if c.quickChatEnabled == enabled {
		c.mu.Unlock()
		return
	}
	c.quickChatEnabled = enabled
	c.mu.Unlock()
	c.notifyChanged()
}

// Worlds returns a copy of the world-name restriction set; empty means the
// channel is available in every world.
func (c *Channel) Worlds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.worlds))
	for w := range c.worlds {
		out = append(out, w)
	}
	return out
}

func (c *Channel) AddWorld(world string) {
	if world == "" {
		return
	}
	c.mu.Lock()
	if _, exists := c.worlds[world]; exists {
		c.mu.Unlock()
		return
	}
	c.worlds[world] = struct{}{}
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) RemoveWorld(world string) {
	c.mu.Lock()
	if _, exists := c.worlds[world]; !exists {
		c.mu.Unlock()
		return
	}
	delete(c.worlds, world)
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) ClearWorlds() {
	c.mu.Lock()
	if len(c.worlds) == 0 {
		c.mu.Unlock()
		return
	}
	c.worlds = make(map[string]struct{})
	c.mu.Unlock()
	c.notifyChanged()
}

func (c *Channel) IsWorldRestricted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.worlds) > 0
}

// FormatMessage substitutes the given token values into a template. Tokens
// look like {sender}; tokens absent from the map are left untouched, and
// empty values render as empty strings. Pure string work, never fails.
func FormatMessage(template string, tokens map[string]string) string {
	if template == "" {
		return ""
	}

	var b strings.Builder
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			b.WriteString(template[i:])
			break
		}
		open += i
		closing := strings.IndexByte(template[open:], '}')
		if closing < 0 {
			b.WriteString(template[i:])
			break
		}
		closing += open

		b.WriteString(template[i:open])
		token := template[open : closing+1]
		if value, ok := tokens[token]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(token)
		}
		i = closing + 1
	}
	return b.String()
}

func (c *Channel) refreshPermissionNodes() {
	lower := strings.ToLower(c.name)
	c.joinPermission = "werchat.channel." + lower + ".join"
	c.speakPermission = "werchat.channel." + lower + ".speak"
	c.readPermission = "werchat.channel." + lower + ".read"
}

func copyIDSet(set map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
