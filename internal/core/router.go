package core

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/colortext"
)

// Word filter modes.
const (
	WordFilterCensor = "censor"
	WordFilterBlock  = "block"
)

const (
	defaultCooldownMessage   = "Please wait {seconds}s before chatting again."
	defaultFilterWarning     = "Watch your language."
	defaultMentionColor      = "#FFFF55"
	privateMessageToFormat   = "&d[PM] &7to &d{recipient}&7: &f{msg}"
	privateMessageFromFormat = "&d[PM] &7from &d{sender}&7: &f{msg}"
	joinNoticeFormat         = "&e{player} joined {channel}"
	leaveNoticeFormat        = "&e{player} left {channel}"
)

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// CooldownSettings gates how often a player may speak.
type CooldownSettings struct {
	Enabled  bool
	Duration time.Duration
	Message  string // may contain {seconds}
}

// WordFilterSettings configures the profanity filter.
type WordFilterSettings struct {
	Enabled        bool
	Mode           string // censor or block
	Words          []string
	Replacement    string
	NotifyPlayer   bool
	WarningMessage string
}

// MentionSettings configures @name highlighting.
type MentionSettings struct {
	Enabled bool
	Color   string
}

// RouterSettings is the behavior configuration of the chat pipeline.
type RouterSettings struct {
	EnforcePermissions bool
	AutoJoinDefault    bool
	ShowJoinLeave      bool
	Cooldown           CooldownSettings
	WordFilter         WordFilterSettings
	Mentions           MentionSettings
}

// RouterProviders are the external collaborators the router consults.
// Sessions is required; the rest fall back to permissive no-ops.
type RouterProviders struct {
	Sessions     SessionDirectory
	Permissions  PermissionProvider
	Worlds       WorldProvider
	Ranks        RankInfoProvider
	Placeholders PlaceholderProvider
}

// Outcome reports what a chat submission did.
type Outcome struct {
	Channel    *Channel
	Text       string // delivered text, after censoring
	Recipients int
	Dropped    bool // quick-chat prefix with empty remainder
}

type wordPattern struct {
	word string
	re   *regexp.Regexp
}

// Router is the chat pipeline: channel resolution, gating, recipient
// computation and per-recipient formatting.
type Router struct {
	registry *Registry
	players  *PlayerStateStore
	sessions SessionDirectory
	perms    PermissionProvider
	worlds   WorldProvider
	ranks    RankInfoProvider
	subst    PlaceholderProvider
	log      *zerolog.Logger

	settingsMu sync.RWMutex
	settings   RouterSettings
	filter     []wordPattern

	motdMu   sync.Mutex
	motdSeen map[uuid.UUID]map[string]struct{}

	// now is replaceable in tests.
	now func() time.Time
}

func NewRouter(registry *Registry, players *PlayerStateStore, providers RouterProviders, settings RouterSettings, logger *zerolog.Logger) *Router {
	if providers.Permissions == nil {
		providers.Permissions = AllowAllPermissions{}
	}
	if providers.Ranks == nil {
		providers.Ranks = NopRankInfo{}
	}
	if providers.Placeholders == nil {
		providers.Placeholders = NopPlaceholders{}
	}
	r := &Router{
		registry: registry,
		players:  players,
		sessions: providers.Sessions,
		perms:    providers.Permissions,
		worlds:   providers.Worlds,
		ranks:    providers.Ranks,
		subst:    providers.Placeholders,
		log:      logger,
		motdSeen: make(map[uuid.UUID]map[string]struct{}),
		now:      time.Now,
	}
	r.ApplySettings(settings)
	return r
}

// ApplySettings swaps the behavior configuration and recompiles the word
// filter. Safe to call while submissions are in flight.
func (r *Router) ApplySettings(settings RouterSettings) {
	if settings.Mentions.Color == "" {
		settings.Mentions.Color = defaultMentionColor
	}
	if settings.Cooldown.Message == "" {
		settings.Cooldown.Message = defaultCooldownMessage
	}
	if settings.WordFilter.WarningMessage == "" {
		settings.WordFilter.WarningMessage = defaultFilterWarning
	}
	if settings.WordFilter.Mode == "" {
		settings.WordFilter.Mode = WordFilterCensor
	}

	// Sorted for a deterministic censoring order when words overlap.
	words := make([]string, 0, len(settings.WordFilter.Words))
	for _, w := range settings.WordFilter.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	sort.Strings(words)
	filter := make([]wordPattern, 0, len(words))
	for _, w := range words {
		filter = append(filter, wordPattern{
			word: w,
			re:   regexp.MustCompile("(?i)" + regexp.QuoteMeta(w)),
		})
	}

	r.settingsMu.Lock()
	r.settings = settings
	r.filter = filter
	r.settingsMu.Unlock()
}

func (r *Router) currentSettings() RouterSettings {
	r.settingsMu.RLock()
	defer r.settingsMu.RUnlock()
	return r.settings
}

// HandleChatInput routes one raw chat submission from a player. It is the
// single entry point for live chat and programmatic relay alike. Gating
// failures come back as *CoreError; the registry is never left in a
// partial state.
func (r *Router) HandleChatInput(actorID uuid.UUID, raw string) (*Outcome, error) {
	settings := r.currentSettings()
	text := raw

	session, _ := r.sessions.Session(actorID)

	// Quick-chat detection.
	var channel *Channel
	if qc := r.registry.FindByQuickChatSymbol(raw); qc != nil &&
		r.perms.HasPermission(actorID, PermQuickChat) {
		remainder := strings.TrimSpace(strings.TrimPrefix(raw, qc.QuickChatSymbol()))
		if remainder == "" {
			return &Outcome{Dropped: true}, nil
		}
		channel = qc
		text = remainder
	}

	// Channel resolution: focused channel, then the registry default.
	if channel == nil {
		if focused := r.players.FocusedChannel(actorID); focused != "" {
			channel = r.registry.GetChannel(focused)
		}
		if channel == nil {
			channel = r.registry.DefaultChannel()
		}
		if channel == nil {
			return nil, coreError(ErrCodeNoChannel, "no channel available")
		}
	}

	// Permission gate.
	if settings.EnforcePermissions {
		if !r.perms.HasPermission(actorID, channel.SpeakPermission()) ||
			!r.perms.HasPermission(actorID, channel.ReadPermission()) {
			return nil, coreError(ErrCodePermissionDenied, "you may not speak in "+channel.Name())
		}
	}

	// World-restriction fallback to the default channel.
	if channel.IsWorldRestricted() && session != nil && r.worlds != nil {
		if !r.sessionInWorlds(session, channel) {
			def := r.registry.DefaultChannel()
			if def == nil || def == channel || def.IsWorldRestricted() && !r.sessionInWorlds(session, def) {
				return nil, coreError(ErrCodeWrongWorld, channel.Name()+" is not available in this world")
			}
			channel = def
		}
	}

	// Membership and moderation gates.
	if channel.IsBanned(actorID) {
		return nil, coreError(ErrCodeBanned, "you are banned from "+channel.Name())
	}
	if !channel.IsMember(actorID) {
		return nil, coreError(ErrCodeNotMember, "you are not a member of "+channel.Name())
	}
	if channel.IsMuted(actorID) {
		return nil, coreError(ErrCodeMuted, "you are muted in "+channel.Name())
	}

	// Cooldown gate. The timestamp is written only after every gate passes.
	isAdmin := r.perms.HasPermission(actorID, PermAdmin)
	if settings.Cooldown.Enabled && !isAdmin &&
		!r.perms.HasPermission(actorID, PermCooldownBypass) {
		elapsed := r.now().Sub(r.players.LastMessageAt(actorID))
		if elapsed < settings.Cooldown.Duration {
			remaining := int(math.Ceil((settings.Cooldown.Duration - elapsed).Seconds()))
			return nil, &CoreError{
				Code: ErrCodeOnCooldown,
				Message: FormatMessage(settings.Cooldown.Message,
					map[string]string{"{seconds}": strconv.Itoa(remaining)}),
				Seconds: remaining,
			}
		}
	}

	// Word filter.
	if settings.WordFilter.Enabled && !isAdmin {
		filtered, err := r.applyWordFilter(session, settings, text)
		if err != nil {
			return nil, err
		}
		text = filtered
	}

	r.players.SetLastMessageAt(actorID, r.now())

	recipients := r.broadcast(actorID, session, channel, text, settings)
	r.log.Debug().
		Str("channel", channel.Name()).
		Str("player", actorID.String()).
		Int("recipients", recipients).
		Msg("chat routed")
	return &Outcome{Channel: channel, Text: text, Recipients: recipients}, nil
}

// applyWordFilter censors or blocks filtered words. Censoring replaces each
// configured word independently, case-insensitively, in sorted word order.
func (r *Router) applyWordFilter(actor Session, settings RouterSettings, text string) (string, error) {
	r.settingsMu.RLock()
	filter := r.filter
	r.settingsMu.RUnlock()

	matched := false
	for _, p := range filter {
		if !p.re.MatchString(text) {
			continue
		}
		matched = true
		if settings.WordFilter.Mode == WordFilterBlock {
			return "", coreError(ErrCodeBlocked, settings.WordFilter.WarningMessage)
		}
		// Literal: a $ in the replacement is not a capture reference.
		text = p.re.ReplaceAllLiteralString(text, settings.WordFilter.Replacement)
	}
	if matched && settings.WordFilter.NotifyPlayer && actor != nil {
		actor.SendMessage(colortext.Parse(settings.WordFilter.WarningMessage))
	}
	return text, nil
}

// sessionInWorlds reports whether the session's current world is in the
// channel's allowed set. World names resolve per call; worlds load and
// unload at runtime so identities are never cached.
func (r *Router) sessionInWorlds(s Session, ch *Channel) bool {
	current, ok := r.worlds.PlayerWorld(s)
	if !ok {
		return false
	}
	for _, name := range ch.Worlds() {
		if id, ok := r.worlds.ResolveWorld(name); ok && id == current {
			return true
		}
	}
	return false
}

// broadcast fans text out to the channel's eligible recipients, rendering
// each recipient's message independently. A failed delivery to one
// recipient never aborts the rest; SendMessage is best effort.
func (r *Router) broadcast(actorID uuid.UUID, actorSession Session, ch *Channel, text string, settings RouterSettings) int {
	members := ch.Members()

	var (
		senderWorld uuid.UUID
		senderPos   Position
		haveWorld   bool
		havePos     bool
	)
	if actorSession != nil && r.worlds != nil {
		senderWorld, haveWorld = r.worlds.PlayerWorld(actorSession)
		senderPos, havePos = r.worlds.PlayerPosition(actorSession)
	}

	var allowedWorlds map[uuid.UUID]struct{}
	if ch.IsWorldRestricted() && r.worlds != nil {
		allowedWorlds = make(map[uuid.UUID]struct{})
		for _, name := range ch.Worlds() {
			if id, ok := r.worlds.ResolveWorld(name); ok {
				allowedWorlds[id] = struct{}{}
			}
		}
	}

	mentioned := r.mentionedPlayers(settings, text)
	senderName := r.senderDisplayName(actorID, actorSession)
	distance := float64(ch.Distance())

	delivered := 0
	for _, id := range members {
		s, online := r.sessions.Session(id)
		if !online {
			continue
		}
		if settings.EnforcePermissions && !r.perms.HasPermission(id, ch.ReadPermission()) {
			continue
		}
		if r.players.IsIgnoring(id, actorID) {
			continue
		}
		if allowedWorlds != nil {
			w, ok := r.worlds.PlayerWorld(s)
			if !ok {
				continue
			}
			if _, in := allowedWorlds[w]; !in {
				continue
			}
		}
		if ch.IsLocal() && id != actorID {
			if !haveWorld || !havePos {
				continue
			}
			w, ok := r.worlds.PlayerWorld(s)
			if !ok || w != senderWorld {
				continue
			}
			pos, ok := r.worlds.PlayerPosition(s)
			if !ok || euclidean(senderPos, pos) > distance {
				continue
			}
		}

		_, isMentioned := mentioned[id]
		s.SendMessage(r.renderMessage(ch, actorID, actorSession, senderName, s, text, isMentioned))
		delivered++
	}
	return delivered
}

// mentionedPlayers maps @word tokens to the ids of online players whose
// username matches, case-insensitively.
func (r *Router) mentionedPlayers(settings RouterSettings, text string) map[uuid.UUID]struct{} {
	if !settings.Mentions.Enabled {
		return nil
	}
	var out map[uuid.UUID]struct{}
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		if s, ok := r.sessions.SessionByName(m[1]); ok {
			if out == nil {
				out = make(map[uuid.UUID]struct{})
			}
			out[s.PlayerID()] = struct{}{}
		}
	}
	return out
}

func (r *Router) senderDisplayName(id uuid.UUID, s Session) string {
	fallback := r.players.KnownName(id)
	if s != nil {
		fallback = s.Username()
	}
	if fallback == "" {
		fallback = id.String()
	}
	return r.players.DisplayName(id, fallback)
}

// renderMessage renders the channel format template for one recipient.
// Literal segments pass through the placeholder provider and the inline
// color parser; the color a segment ends with carries into the next token.
func (r *Router) renderMessage(ch *Channel, actorID uuid.UUID, actorSession Session, senderName string, recipient Session, body string, highlightMention bool) colortext.Text {
	settings := r.currentSettings()
	format := ch.Format()
	cur := colortext.DefaultColor
	var out colortext.Text

	appendLiteral := func(literal string) {
		if literal == "" {
			return
		}
		literal = r.subst.SubstituteRelational(actorSession, recipient, literal)
		runs, next := colortext.ParseSegment(literal, cur)
		out = out.Append(runs)
		cur = next
	}

	i := 0
	for i < len(format) {
		open := strings.IndexByte(format[i:], '{')
		if open < 0 {
			appendLiteral(format[i:])
			break
		}
		open += i
		closing := strings.IndexByte(format[open:], '}')
		if closing < 0 {
			appendLiteral(format[i:])
			break
		}
		closing += open

		appendLiteral(format[i:open])
		switch token := format[open : closing+1]; token {
		case "{name}":
			out = out.Append(colortext.Solid(ch.Name(), cur))
		case "{nick}":
			out = out.Append(colortext.Solid(ch.Nick(), cur))
		case "{color}":
			cur = ch.Color()
		case "{sender}":
			out = out.Append(r.renderSenderName(actorID, senderName, cur))
		case "{msg}":
			out = out.Append(r.renderBody(ch, actorID, body, highlightMention, settings))
		case "{prefix}":
			runs, next := colortext.ParseSegment(r.ranks.Prefix(actorID), cur)
			out = out.Append(runs)
			cur = next
		case "{suffix}":
			runs, next := colortext.ParseSegment(r.ranks.Suffix(actorID), cur)
			out = out.Append(runs)
			cur = next
		default:
			out = out.Append(colortext.Solid(token, cur))
		}
		i = closing + 1
	}
	return out
}

// renderSenderName colors the sender's display name with their nick color
// or gradient, falling back to the surrounding color.
func (r *Router) renderSenderName(actorID uuid.UUID, name, fallbackColor string) colortext.Text {
	start, end := r.players.NickColor(actorID)
	switch {
	case start != "" && end != "":
		return colortext.Gradient(name, start, end)
	case start != "":
		return colortext.Solid(name, start)
	default:
		return colortext.Solid(name, fallbackColor)
	}
}

// renderBody colors the message body. A mentioned recipient sees the whole
// body bold in the mention color; otherwise the sender's message color or
// gradient applies, then the channel's effective message color.
func (r *Router) renderBody(ch *Channel, actorID uuid.UUID, body string, highlightMention bool, settings RouterSettings) colortext.Text {
	if highlightMention {
		return colortext.Text{{Text: body, Color: settings.Mentions.Color, Bold: true}}
	}
	start, end := r.players.MsgColor(actorID)
	switch {
	case start != "" && end != "":
		return colortext.Gradient(body, start, end)
	case start != "":
		return colortext.Solid(body, start)
	default:
		return colortext.Solid(body, ch.EffectiveMessageColor())
	}
}

// SendPrivateMessage delivers a direct message to a named online player and
// records the reply target on the recipient.
func (r *Router) SendPrivateMessage(fromID uuid.UUID, targetName, text string) error {
	target, ok := r.sessions.SessionByName(targetName)
	if !ok {
		return coreError(ErrCodeNotFound, "player "+targetName+" is not online")
	}
	return r.sendPrivateTo(fromID, target, text)
}

// SendReply delivers a direct message to whoever last messaged the sender.
func (r *Router) SendReply(fromID uuid.UUID, text string) error {
	targetID, ok := r.players.ReplyTarget(fromID)
	if !ok {
		return coreError(ErrCodeNotFound, "nobody to reply to")
	}
	target, online := r.sessions.Session(targetID)
	if !online {
		return coreError(ErrCodeNotFound, "that player is no longer online")
	}
	return r.sendPrivateTo(fromID, target, text)
}

func (r *Router) sendPrivateTo(fromID uuid.UUID, target Session, text string) error {
	targetID := target.PlayerID()
	if targetID == fromID {
		return coreError(ErrCodeInvalidInput, "you cannot message yourself")
	}
	if r.players.IsIgnoring(targetID, fromID) {
		return coreError(ErrCodeIgnored, "that player is ignoring you")
	}

	fromSession, _ := r.sessions.Session(fromID)

	// The word filter applies to private traffic too.
	settings := r.currentSettings()
	if settings.WordFilter.Enabled && !r.perms.HasPermission(fromID, PermAdmin) {
		filtered, err := r.applyWordFilter(fromSession, settings, text)
		if err != nil {
			return err
		}
		text = filtered
	}

	senderName := r.senderDisplayName(fromID, fromSession)
	recipientName := r.players.DisplayName(targetID, target.Username())

	target.SendMessage(colortext.Parse(FormatMessage(privateMessageFromFormat,
		map[string]string{"{sender}": senderName, "{msg}": text})))
	if fromSession != nil {
		fromSession.SendMessage(colortext.Parse(FormatMessage(privateMessageToFormat,
			map[string]string{"{recipient}": recipientName, "{msg}": text})))
	}

	r.players.SetLastMessageFrom(targetID, fromID)
	r.log.Debug().
		Str("from", fromID.String()).
		Str("to", targetID.String()).
		Msg("private message delivered")
	return nil
}

// HandleConnect runs the login-time chat bookkeeping: remember the display
// name, auto-join open channels, repair a dangling focus, announce the join
// and show the focused channel's message of the day.
func (r *Router) HandleConnect(s Session) {
	id := s.PlayerID()
	settings := r.currentSettings()
	r.players.RecordKnownName(id, s.Username())

	for _, ch := range r.registry.AllChannels() {
		autoJoin := ch.IsAutoJoin() || (settings.AutoJoinDefault && ch.IsDefault())
		if !autoJoin || ch.IsBanned(id) || ch.IsMember(id) {
			continue
		}
		if settings.EnforcePermissions && !r.perms.HasPermission(id, ch.JoinPermission()) {
			continue
		}
		ch.AddMember(id)
	}

	focused := r.registry.GetChannel(r.players.FocusedChannel(id))
	if focused == nil || !focused.IsMember(id) || !focused.IsFocusable() {
		if def := r.registry.DefaultChannel(); def != nil {
			r.players.SetFocusedChannel(id, def.Name())
			focused = def
		}
	}

	if settings.ShowJoinLeave {
		r.broadcastNotice(id, s.Username(), joinNoticeFormat)
	}
	if focused != nil {
		r.sendMotd(s, focused)
	}
}

// HandleDisconnect clears login-scoped state. Only the reply target is
// reset; focus and cooldown stamps survive reconnects.
func (r *Router) HandleDisconnect(s Session) {
	id := s.PlayerID()
	if r.currentSettings().ShowJoinLeave {
		r.broadcastNotice(id, s.Username(), leaveNoticeFormat)
	}

	r.motdMu.Lock()
	delete(r.motdSeen, id)
	r.motdMu.Unlock()

	r.players.ClearTransient(id)
	r.players.Untrack(id)
}

// broadcastNotice sends a join/leave notice to the online members of every
// verbose channel the player belongs to. The player themselves is skipped.
func (r *Router) broadcastNotice(playerID uuid.UUID, playerName, format string) {
	seen := make(map[uuid.UUID]struct{})
	for _, ch := range r.registry.PlayerChannels(playerID) {
		if !ch.IsVerbose() {
			continue
		}
		notice := colortext.Parse(FormatMessage(format,
			map[string]string{"{player}": playerName, "{channel}": ch.Name()}))
		for _, id := range ch.Members() {
			if id == playerID {
				continue
			}
			if _, already := seen[id]; already {
				continue
			}
			if s, online := r.sessions.Session(id); online {
				s.SendMessage(notice)
				seen[id] = struct{}{}
			}
		}
	}
}

// sendMotd shows a channel's message of the day at most once per login.
func (r *Router) sendMotd(s Session, ch *Channel) {
	if !ch.IsMotdEnabled() || !ch.HasMotd() {
		return
	}
	id := s.PlayerID()

	r.motdMu.Lock()
	seen, ok := r.motdSeen[id]
	if !ok {
		seen = make(map[string]struct{})
		r.motdSeen[id] = seen
	}
	key := strings.ToLower(ch.Name())
	if _, shown := seen[key]; shown {
		r.motdMu.Unlock()
		return
	}
	seen[key] = struct{}{}
	r.motdMu.Unlock()

	motd := r.subst.Substitute(s, ch.Motd())
	s.SendMessage(colortext.ParseWithDefault(motd, ch.Color()))
}

func euclidean(a, b Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
