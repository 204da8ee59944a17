package core

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/colortext"
	"github.com/werchat/werchat/internal/store"
)

// DefaultSaveDebounce is how long the registry waits after the last
// mutation before flushing to storage.
const DefaultSaveDebounce = 20 * time.Second

// RegistryOptions tunes registry behavior at construction time.
type RegistryOptions struct {
	// SaveDebounce overrides DefaultSaveDebounce when positive.
	SaveDebounce time.Duration

	// DefaultChannelName, when set and resolvable after load, is promoted
	// to the default channel.
	DefaultChannelName string
}

// Registry owns the channel collection: name/nick resolution, the
// exactly-one-default invariant, quick-chat symbol lookup, and debounced
// persistence. All public methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel // keyed by lower-case name
	order    []string            // registration order of lower-case names
	def      *Channel

	st   store.ChannelStore
	log  *zerolog.Logger
	opts RegistryOptions

	// knownName resolves a player id to a last-seen display name for
	// membership serialization. Optional.
	knownName func(uuid.UUID) string

	saveMu      sync.Mutex
	pendingSave *time.Timer
	suppress    bool
}

// NewRegistry constructs an empty registry backed by st. Call Load to
// populate it.
func NewRegistry(st store.ChannelStore, logger *zerolog.Logger, opts RegistryOptions) *Registry {
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = DefaultSaveDebounce
	}
	return &Registry{
		channels: make(map[string]*Channel),
		st:       st,
		log:      logger,
		opts:     opts,
	}
}

// SetNameResolver installs a lookup from player id to last-known display
// name, used to annotate persisted membership sets.
func (r *Registry) SetNameResolver(fn func(uuid.UUID) string) {
	r.mu.Lock()
	r.knownName = fn
	r.mu.Unlock()
}

// Load replaces in-memory state with persisted data. With nothing
// persisted it creates the stock channel set. Loading never triggers the
// debounced saver; one unconditional save follows a successful load so the
// on-disk format is normalized (including legacy-schema migration).
func (r *Registry) Load(ctx context.Context) error {
	r.setSuppressed(true)
	defer r.setSuppressed(false)

	r.mu.Lock()
	previous := r.channels
	previousOrder := r.order
	previousDefault := r.def
	for _, ch := range previous {
		ch.SetChangeHook(nil)
	}
	r.channels = make(map[string]*Channel)
	r.order = nil
	r.def = nil
	r.mu.Unlock()

	data, err := r.st.LoadChannels(ctx)
	if err != nil {
		if len(previous) > 0 {
			r.mu.Lock()
			r.channels = previous
			r.order = previousOrder
			r.def = previousDefault
			for _, ch := range previous {
				ch.SetChangeHook(r.markDirty)
			}
			r.mu.Unlock()
			r.log.Warn().Err(err).Msg("channel load failed, keeping previous in-memory data")
			return err
		}
		r.log.Warn().Err(err).Msg("channel load failed, bootstrapping defaults")
		data = &store.ChannelData{}
	}

	for _, rec := range data.Channels {
		ch := channelFromRecord(rec, r.log)
		if ch == nil {
			continue
		}
		if members, ok := data.Members[rec.Name]; ok {
			applyMembers(ch, members)
		}
		r.Register(ch)
		if rec.Default {
			r.mu.Lock()
			r.def = ch
			r.mu.Unlock()
		}
	}
	if data.Legacy {
		r.log.Info().Msg("migrating embedded channel membership to split schema")
	}

	if r.ChannelCount() == 0 {
		r.createDefaultChannels()
	}

	r.ensureDefault()
	if r.normalizeAutoGeneratedNicks() {
		r.log.Info().Msg("normalized auto-generated channel nick collisions")
	}

	r.log.Info().Int("channels", r.ChannelCount()).Msg("channels loaded")

	// Normalizing save: rewrites legacy layouts and fills in new fields.
	if err := r.Save(ctx); err != nil {
		r.log.Warn().Err(err).Msg("post-load channel save failed")
	}
	return nil
}

// ensureDefault guarantees exactly one default channel, preferring the
// configured name, then any channel already flagged, then the oldest.
func (r *Registry) ensureDefault() {
	r.mu.Lock()
	if r.def == nil {
		for _, key := range r.order {
			if ch := r.channels[key]; ch != nil && ch.IsDefault() {
				r.def = ch
				break
			}
		}
	}
	if r.def == nil && len(r.order) > 0 {
		r.def = r.channels[r.order[0]]
		r.def.setDefaultFlag(true)
	}
	configured := r.opts.DefaultChannelName
	current := r.def
	r.mu.Unlock()

	if configured == "" {
		return
	}
	if ch := r.GetChannel(configured); ch != nil {
		r.SetDefaultChannel(ch)
	} else {
		name := "none"
		if current != nil {
			name = current.Name()
		}
		r.log.Warn().
			Str("configured", configured).
			Str("using", name).
			Msg("configured default channel not found")
	}
}

func (r *Registry) createDefaultChannels() {
	global := NewChannel("Global")
	global.SetNick("Global")
	global.SetAutoJoin(true)
	global.SetQuickChatSymbol("!")
	global.SetQuickChatEnabled(true)
	global.SetDescription("Server-wide chat visible to everyone.")
	global.SetDescriptionEnabled(true)
	r.Register(global)
	r.SetDefaultChannel(global)

	local := NewChannel("Local")
	local.SetNick("Local")
	local.SetColor("#AAAAAA")
	local.SetDistance(100)
	local.SetAutoJoin(true)
	local.SetDescription("Nearby chat based on distance.")
	local.SetDescriptionEnabled(true)
	r.Register(local)

	trade := NewChannel("Trade")
	trade.SetNick("Trade")
	trade.SetColor("#FFD700")
	trade.SetAutoJoin(true)
	trade.SetQuickChatSymbol("~")
	trade.SetQuickChatEnabled(true)
	trade.SetDescription("Buying and selling channel.")
	trade.SetDescriptionEnabled(true)
	r.Register(trade)

	support := NewChannel("Support")
	support.SetNick("Support")
	support.SetColor("#00FF00")
	support.SetAutoJoin(true)
	support.SetDescription("Help and support channel.")
	support.SetDescriptionEnabled(true)
	r.Register(support)
}

// Register inserts a channel, failing when the case-insensitive name is
// already taken.
func (r *Registry) Register(ch *Channel) bool {
	if ch == nil || strings.TrimSpace(ch.Name()) == "" {
		return false
	}
	key := strings.ToLower(ch.Name())

	r.mu.Lock()
	if _, exists := r.channels[key]; exists {
		r.mu.Unlock()
		return false
	}
	ch.SetChangeHook(r.markDirty)
	r.channels[key] = ch
	r.order = append(r.order, key)
	r.mu.Unlock()

	r.markDirty()
	return true
}

// Unregister removes a channel by name. When the removed channel was the
// default, the default moves to any remaining flagged channel, else to the
// oldest remaining one.
func (r *Registry) Unregister(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	ch, exists := r.channels[key]
	if !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.channels, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	ch.SetChangeHook(nil)

	if r.def == ch {
		r.def = nil
		for _, k := range r.order {
			if other := r.channels[k]; other.IsDefault() {
				r.def = other
				break
			}
		}
		if r.def == nil && len(r.order) > 0 {
			r.def = r.channels[r.order[0]]
		}
	}
	r.mu.Unlock()

	r.markDirty()
	return true
}

// GetChannel resolves an exact name or exact nick, case-insensitively.
func (r *Registry) GetChannel(name string) *Channel {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ch, ok := r.channels[strings.ToLower(name)]; ok {
		return ch
	}
	for _, key := range r.order {
		if ch := r.channels[key]; strings.EqualFold(ch.Nick(), name) {
			return ch
		}
	}
	return nil
}

// FindChannel resolves user input to a channel: exact name, exact nick,
// name prefix, then nick prefix, all case-insensitive. First match in
// registration order wins.
func (r *Registry) FindChannel(input string) *Channel {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	lower := strings.ToLower(input)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if ch, ok := r.channels[lower]; ok {
		return ch
	}
	for _, key := range r.order {
		if ch := r.channels[key]; strings.EqualFold(ch.Nick(), input) {
			return ch
		}
	}
	for _, key := range r.order {
		if strings.HasPrefix(key, lower) {
			return r.channels[key]
		}
	}
	for _, key := range r.order {
		if ch := r.channels[key]; strings.HasPrefix(strings.ToLower(ch.Nick()), lower) {
			return ch
		}
	}
	return nil
}

// FindByQuickChatSymbol returns the channel whose quick-chat symbol is a
// literal prefix of message. With colliding symbols the longest wins;
// equal lengths break ties by case-insensitive channel name, so the result
// is deterministic for identical input.
func (r *Registry) FindByQuickChatSymbol(message string) *Channel {
	if message == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Channel
	bestLen := -1
	for _, key := range r.order {
		ch := r.channels[key]
		if !ch.IsQuickChatEnabled() {
			continue
		}
		symbol := ch.QuickChatSymbol()
		if symbol == "" || !strings.HasPrefix(message, symbol) {
			continue
		}
		switch {
		case len(symbol) > bestLen:
			best = ch
			bestLen = len(symbol)
		case len(symbol) == bestLen && best != nil &&
			strings.ToLower(ch.Name()) < strings.ToLower(best.Name()):
			best = ch
		}
	}
	return best
}

// CreateChannel makes a new channel owned and moderated by creator, with a
// generated unique nick. Returns nil when the name is taken or blank.
func (r *Registry) CreateChannel(name string, creator uuid.UUID) *Channel {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	if r.GetChannel(name) != nil {
		return nil
	}
	ch := NewChannel(name)
	ch.SetNick(r.generateUniqueAutoNick(name, r.usedNicksLower()))
	ch.SetOwner(creator)
	ch.AddModerator(creator)
	if !r.Register(ch) {
		return nil
	}
	return ch
}

// RenameChannel atomically re-keys a channel; there is no window where
// neither name resolves.
func (r *Registry) RenameChannel(oldName, newName string) bool {
	if strings.TrimSpace(oldName) == "" || strings.TrimSpace(newName) == "" {
		return false
	}
	oldKey := strings.ToLower(oldName)
	newKey := strings.ToLower(newName)

	r.mu.Lock()
	ch, exists := r.channels[oldKey]
	if !exists {
		// Maybe oldName was a nick.
		for _, key := range r.order {
			if strings.EqualFold(r.channels[key].Nick(), oldName) {
				ch = r.channels[key]
				oldKey = key
				exists = true
				break
			}
		}
	}
	if !exists {
		r.mu.Unlock()
		return false
	}
	if _, taken := r.channels[newKey]; taken && newKey != oldKey {
		r.mu.Unlock()
		return false
	}

	delete(r.channels, oldKey)
	r.channels[newKey] = ch
	for i, k := range r.order {
		if k == oldKey {
			r.order[i] = newKey
			break
		}
	}
	r.mu.Unlock()

	ch.setName(newName)
	r.markDirty()
	return true
}

// DeleteChannel removes a channel. The last remaining channel and the
// current default cannot be deleted.
func (r *Registry) DeleteChannel(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	ch := r.GetChannel(name)
	if ch == nil {
		return false
	}

	r.mu.RLock()
	tooFew := len(r.channels) <= 1
	isDefault := r.def == ch
	r.mu.RUnlock()
	if tooFew || isDefault {
		return false
	}
	return r.Unregister(ch.Name())
}

// SetDefaultChannel moves the default flag so exactly one channel holds it.
func (r *Registry) SetDefaultChannel(ch *Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	prev := r.def
	r.def = ch
	r.mu.Unlock()

	if prev != nil && prev != ch {
		prev.setDefaultFlag(false)
	}
	ch.setDefaultFlag(true)
	r.markDirty()
}

// DefaultChannel returns the current default, nil only when the registry
// is empty.
func (r *Registry) DefaultChannel() *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// AllChannels returns channels in registration order.
func (r *Registry) AllChannels() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.channels[key])
	}
	return out
}

func (r *Registry) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

func (r *Registry) ChannelExists(name string) bool {
	return r.GetChannel(name) != nil
}

// PlayerChannels returns every channel the player is a member of.
func (r *Registry) PlayerChannels(id uuid.UUID) []*Channel {
	var out []*Channel
	for _, ch := range r.AllChannels() {
		if ch.IsMember(id) {
			out = append(out, ch)
		}
	}
	return out
}

// markDirty coalesces mutation signals into one delayed save. Each signal
// resets the timer; only one flush runs per quiet period.
func (r *Registry) markDirty() {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	if r.suppress {
		return
	}
	if r.pendingSave != nil {
		r.pendingSave.Stop()
	}
	r.pendingSave = time.AfterFunc(r.opts.SaveDebounce, r.flushDebounced)
}

func (r *Registry) flushDebounced() {
	r.saveMu.Lock()
	r.pendingSave = nil
	r.saveMu.Unlock()

	if err := r.Save(context.Background()); err != nil {
		r.log.Warn().Err(err).Msg("debounced channel save failed")
	}
}

// FlushNow cancels any pending debounced save and writes synchronously.
// Used on shutdown and explicit admin save paths.
func (r *Registry) FlushNow(ctx context.Context) error {
	r.saveMu.Lock()
	if r.pendingSave != nil {
		r.pendingSave.Stop()
		r.pendingSave = nil
	}
	r.saveMu.Unlock()

	return r.Save(ctx)
}

// Close stops the debounced saver and flushes pending state.
func (r *Registry) Close(ctx context.Context) error {
	return r.FlushNow(ctx)
}

func (r *Registry) setSuppressed(v bool) {
	r.saveMu.Lock()
	r.suppress = v
	r.saveMu.Unlock()
}

// Save snapshots all channels and writes them through the store. Failures
// are returned to the caller and retried on the next debounce cycle.
func (r *Registry) Save(ctx context.Context) error {
	records, members := r.snapshot()
	if err := r.st.SaveChannels(ctx, records, members); err != nil {
		return err
	}
	r.log.Debug().Int("channels", len(records)).Msg("channels saved")
	return nil
}

// snapshot captures channel state sorted by name so saves are stable.
func (r *Registry) snapshot() ([]store.ChannelRecord, map[string]store.ChannelMembers) {
	r.mu.RLock()
	resolve := r.knownName
	channels := make([]*Channel, 0, len(r.order))
	for _, key := range r.order {
		channels = append(channels, r.channels[key])
	}
	r.mu.RUnlock()

	sort.Slice(channels, func(i, j int) bool {
		return strings.ToLower(channels[i].Name()) < strings.ToLower(channels[j].Name())
	})

	records := make([]store.ChannelRecord, 0, len(channels))
	members := make(map[string]store.ChannelMembers, len(channels))
	for _, ch := range channels {
		records = append(records, recordFromChannel(ch))
		members[ch.Name()] = membersFromChannel(ch, resolve)
	}
	return records, members
}

func recordFromChannel(ch *Channel) store.ChannelRecord {
	worlds := ch.Worlds()
	sort.Strings(worlds)
	return store.ChannelRecord{
		Name:               ch.Name(),
		Nick:               ch.Nick(),
		Color:              ch.Color(),
		MessageColor:       ch.MessageColor(),
		Format:             ch.Format(),
		Distance:           ch.Distance(),
		Worlds:             worlds,
		Password:           ch.Password(),
		QuickChatSymbol:    ch.QuickChatSymbol(),
		QuickChatEnabled:   ch.IsQuickChatEnabled(),
		Default:            ch.IsDefault(),
		AutoJoin:           ch.IsAutoJoin(),
		Focusable:          ch.IsFocusable(),
		Verbose:            ch.IsVerbose(),
		Description:        ch.Description(),
		DescriptionEnabled: ch.IsDescriptionEnabled(),
		Motd:               ch.Motd(),
		MotdEnabled:        ch.IsMotdEnabled(),
	}
}

func membersFromChannel(ch *Channel, resolve func(uuid.UUID) string) store.ChannelMembers {
	name := func(id uuid.UUID) string {
		if resolve == nil {
			return ""
		}
		return resolve(id)
	}
	entries := func(ids []uuid.UUID) []store.MemberEntry {
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		out := make([]store.MemberEntry, 0, len(ids))
		for _, id := range ids {
			out = append(out, store.MemberEntry{ID: id, Name: name(id)})
		}
		return out
	}

	cm := store.ChannelMembers{
		Moderators: entries(ch.Moderators()),
		Members:    entries(ch.Members()),
		Banned:     entries(ch.Banned()),
		Muted:      entries(ch.Muted()),
	}
	if owner, ok := ch.Owner(); ok {
		cm.Owner = &store.MemberEntry{ID: owner, Name: name(owner)}
	}
	return cm
}

// channelFromRecord rebuilds a channel from its persisted record. Invalid
// colors are logged and fall back to defaults rather than dropping the
// whole channel.
func channelFromRecord(rec store.ChannelRecord, logger *zerolog.Logger) *Channel {
	if strings.TrimSpace(rec.Name) == "" {
		logger.Warn().Msg("skipping channel record with empty name")
		return nil
	}

	ch := NewChannel(rec.Name)
	if rec.Nick != "" {
		ch.SetNick(rec.Nick)
	}
	if rec.Color != "" {
		if hex, err := colortext.NormalizeHex(rec.Color); err == nil {
			ch.SetColor(hex)
		} else {
			logger.Warn().Str("channel", rec.Name).Str("color", rec.Color).Msg("invalid channel color, using white")
		}
	}
	if rec.MessageColor != "" {
		if hex, err := colortext.NormalizeHex(rec.MessageColor); err == nil {
			ch.SetMessageColor(hex)
		} else {
			logger.Warn().Str("channel", rec.Name).Str("color", rec.MessageColor).Msg("invalid message color, inheriting tag color")
		}
	}
	if rec.Format != "" {
		ch.SetFormat(rec.Format)
	}
	ch.SetDistance(rec.Distance)
	for _, w := range rec.Worlds {
		ch.AddWorld(w)
	}
	ch.SetPassword(rec.Password)
	ch.SetQuickChatSymbol(rec.QuickChatSymbol)
	ch.SetQuickChatEnabled(rec.QuickChatEnabled)
	ch.setDefaultFlag(rec.Default)
	ch.SetAutoJoin(rec.AutoJoin)
	ch.SetFocusable(rec.Focusable)
	ch.SetVerbose(rec.Verbose)
	ch.SetDescription(rec.Description)
	ch.SetDescriptionEnabled(rec.DescriptionEnabled)
	ch.SetMotd(rec.Motd)
	ch.SetMotdEnabled(rec.MotdEnabled)
	return ch
}

func applyMembers(ch *Channel, members store.ChannelMembers) {
	if members.Owner != nil {
		ch.SetOwner(members.Owner.ID)
	}
	for _, e := range members.Moderators {
		ch.AddModerator(e.ID)
	}
	for _, e := range members.Members {
		ch.AddMember(e.ID)
	}
	for _, e := range members.Banned {
		ch.Ban(e.ID)
	}
	for _, e := range members.Muted {
		ch.Mute(e.ID)
	}
}

func (r *Registry) usedNicksLower() map[string]struct{} {
	used := make(map[string]struct{})
	for _, ch := range r.AllChannels() {
		if nick := ch.Nick(); strings.TrimSpace(nick) != "" {
			used[strings.ToLower(nick)] = struct{}{}
		}
	}
	return used
}

func autoNickBase(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "c"
	}
	return strings.ToLower(string([]rune(trimmed)[0]))
}

// generateUniqueAutoNick derives a short nick from the channel name,
// suffixing -2, -3, ... until it is unique. The used set is updated.
func (r *Registry) generateUniqueAutoNick(name string, used map[string]struct{}) string {
	base := autoNickBase(name)
	candidate := base
	for suffix := 2; ; suffix++ {
		if _, taken := used[strings.ToLower(candidate)]; !taken {
			break
		}
		candidate = base + "-" + strconv.Itoa(suffix)
	}
	used[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

func isAutoNickCandidate(ch *Channel) bool {
	nick := ch.Nick()
	if strings.TrimSpace(nick) == "" {
		return true
	}
	return strings.EqualFold(nick, autoNickBase(ch.Name()))
}

// normalizeAutoGeneratedNicks re-derives nicks for channels whose nick is
// (or looks like) auto-generated, so collisions introduced by old data get
// unique suffixes. Custom nicks are left alone.
func (r *Registry) normalizeAutoGeneratedNicks() bool {
	channels := r.AllChannels()
	sort.Slice(channels, func(i, j int) bool {
		return strings.ToLower(channels[i].Name()) < strings.ToLower(channels[j].Name())
	})

	used := make(map[string]struct{})
	var auto []*Channel
	for _, ch := range channels {
		if isAutoNickCandidate(ch) {
			auto = append(auto, ch)
			continue
		}
		if nick := ch.Nick(); strings.TrimSpace(nick) != "" {
			used[strings.ToLower(nick)] = struct{}{}
		}
	}

	changed := false
	for _, ch := range auto {
		normalized := r.generateUniqueAutoNick(ch.Name(), used)
		if !strings.EqualFold(normalized, ch.Nick()) {
			ch.SetNick(normalized)
			changed = true
		}
	}
	return changed
}
