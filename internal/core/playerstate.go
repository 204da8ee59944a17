package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/store"
)

// playerState is the per-player chat state. Focus, ignore list, reply
// target and cooldown stamp are runtime-only; nickname and color
// customizations persist through store.PlayerRecord.
type playerState struct {
	focusedChannel string
	ignored        map[uuid.UUID]struct{}
	lastFrom       *uuid.UUID
	lastMessageAt  time.Time
	knownName      string

	nickname        string
	nickColor       string
	nickGradientEnd string
	msgColor        string
	msgGradientEnd  string
}

func (p *playerState) record() store.PlayerRecord {
	return store.PlayerRecord{
		Nickname:        p.nickname,
		NickColor:       p.nickColor,
		NickGradientEnd: p.nickGradientEnd,
		MsgColor:        p.msgColor,
		MsgGradientEnd:  p.msgGradientEnd,
	}
}

// PlayerStateStore tracks chat state for every player the router has seen.
// Records are created lazily on first access and written back with the
// same debounce discipline the channel registry uses.
type PlayerStateStore struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*playerState

	st   store.PlayerStore
	log  *zerolog.Logger
	wait time.Duration

	saveMu      sync.Mutex
	pendingSave *time.Timer
}

func NewPlayerStateStore(st store.PlayerStore, logger *zerolog.Logger, debounce time.Duration) *PlayerStateStore {
	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	return &PlayerStateStore{
		players: make(map[uuid.UUID]*playerState),
		st:      st,
		log:     logger,
		wait:    debounce,
	}
}

// Load replaces in-memory player attributes with persisted ones. Runtime
// state (focus, ignores, cooldowns) always starts empty.
func (s *PlayerStateStore) Load(ctx context.Context) error {
	records, err := s.st.LoadPlayers(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("player data load failed, starting empty")
		return err
	}

	s.mu.Lock()
	s.players = make(map[uuid.UUID]*playerState, len(records))
	for id, rec := range records {
		s.players[id] = &playerState{
			ignored:         make(map[uuid.UUID]struct{}),
			nickname:        rec.Nickname,
			nickColor:       rec.NickColor,
			nickGradientEnd: rec.NickGradientEnd,
			msgColor:        rec.MsgColor,
			msgGradientEnd:  rec.MsgGradientEnd,
		}
	}
	s.mu.Unlock()

	s.log.Info().Int("players", len(records)).Msg("player data loaded")
	return nil
}

// Save writes every record worth persisting.
func (s *PlayerStateStore) Save(ctx context.Context) error {
	s.mu.RLock()
	out := make(map[uuid.UUID]store.PlayerRecord)
	for id, p := range s.players {
		if rec := p.record(); rec.ShouldPersist() {
			out[id] = rec
		}
	}
	s.mu.RUnlock()

	if err := s.st.SavePlayers(ctx, out); err != nil {
		return err
	}
	s.log.Debug().Int("players", len(out)).Msg("player data saved")
	return nil
}

func (s *PlayerStateStore) markDirty() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.pendingSave != nil {
		s.pendingSave.Stop()
	}
	s.pendingSave = time.AfterFunc(s.wait, func() {
		s.saveMu.Lock()
		s.pendingSave = nil
		s.saveMu.Unlock()
		if err := s.Save(context.Background()); err != nil {
			s.log.Warn().Err(err).Msg("debounced player save failed")
		}
	})
}

// FlushNow cancels any pending debounced save and writes synchronously.
func (s *PlayerStateStore) FlushNow(ctx context.Context) error {
	s.saveMu.Lock()
	if s.pendingSave != nil {
		s.pendingSave.Stop()
		s.pendingSave = nil
	}
	s.saveMu.Unlock()
	return s.Save(ctx)
}

func (s *PlayerStateStore) Close(ctx context.Context) error {
	return s.FlushNow(ctx)
}

// getLocked returns the state for id, creating it on first access. The
// caller must hold s.mu; mutations stay in the same critical section so a
// concurrent Untrack cannot drop the record mid-write.
func (s *PlayerStateStore) getLocked(id uuid.UUID) *playerState {
	p, ok := s.players[id]
	if !ok {
		p = &playerState{ignored: make(map[uuid.UUID]struct{})}
		s.players[id] = p
	}
	return p
}

func (s *PlayerStateStore) FocusedChannel(id uuid.UUID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[id]; ok {
		return p.focusedChannel
	}
	return ""
}

func (s *PlayerStateStore) SetFocusedChannel(id uuid.UUID, channel string) {
	s.mu.Lock()
	s.getLocked(id).focusedChannel = channel
	s.mu.Unlock()
}

func (s *PlayerStateStore) IgnorePlayer(id, target uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getLocked(id)
	if _, exists := p.ignored[target]; exists {
		return false
	}
	p.ignored[target] = struct{}{}
	return true
}

func (s *PlayerStateStore) UnignorePlayer(id, target uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getLocked(id)
	if _, exists := p.ignored[target]; !exists {
		return false
	}
	delete(p.ignored, target)
	return true
}

func (s *PlayerStateStore) IsIgnoring(id, target uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return false
	}
	_, ignoring := p.ignored[target]
	return ignoring
}

// SetLastMessageFrom records the sender of the most recent private message
// so /reply knows where to go.
func (s *PlayerStateStore) SetLastMessageFrom(id, from uuid.UUID) {
	s.mu.Lock()
	sender := from
	s.getLocked(id).lastFrom = &sender
	s.mu.Unlock()
}

func (s *PlayerStateStore) ReplyTarget(id uuid.UUID) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok || p.lastFrom == nil {
		return uuid.Nil, false
	}
	return *p.lastFrom, true
}

func (s *PlayerStateStore) LastMessageAt(id uuid.UUID) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[id]; ok {
		return p.lastMessageAt
	}
	return time.Time{}
}

func (s *PlayerStateStore) SetLastMessageAt(id uuid.UUID, t time.Time) {
	s.mu.Lock()
	s.getLocked(id).lastMessageAt = t
	s.mu.Unlock()
}

// RecordKnownName remembers the display name a player was last seen under,
// used when serializing membership sets for offline players.
func (s *PlayerStateStore) RecordKnownName(id uuid.UUID, name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	s.getLocked(id).knownName = name
	s.mu.Unlock()
}

func (s *PlayerStateStore) KnownName(id uuid.UUID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[id]; ok {
		return p.knownName
	}
	return ""
}

func (s *PlayerStateStore) Nickname(id uuid.UUID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[id]; ok {
		return p.nickname
	}
	return ""
}

func (s *PlayerStateStore) SetNickname(id uuid.UUID, nickname string) {
	s.mu.Lock()
	p := s.getLocked(id)
	changed := p.nickname != nickname
	p.nickname = nickname
	s.mu.Unlock()
	if changed {
		s.markDirty()
	}
}

// DisplayName returns the player's nickname, or fallback (normally the
// account name) when none is set.
func (s *PlayerStateStore) DisplayName(id uuid.UUID, fallback string) string {
	if nick := s.Nickname(id); nick != "" {
		return nick
	}
	return fallback
}

func (s *PlayerStateStore) NickColor(id uuid.UUID) (start, gradientEnd string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[id]; ok {
		return p.nickColor, p.nickGradientEnd
	}
	return "", ""
}

func (s *PlayerStateStore) SetNickColor(id uuid.UUID, start, gradientEnd string) {
	s.mu.Lock()
	p := s.getLocked(id)
	changed := p.nickColor != start || p.nickGradientEnd != gradientEnd
	p.nickColor = start
	p.nickGradientEnd = gradientEnd
	s.mu.Unlock()
	if changed {
		s.markDirty()
	}
}

func (s *PlayerStateStore) MsgColor(id uuid.UUID) (start, gradientEnd string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[id]; ok {
		return p.msgColor, p.msgGradientEnd
	}
	return "", ""
}

func (s *PlayerStateStore) SetMsgColor(id uuid.UUID, start, gradientEnd string) {
	s.mu.Lock()
	p := s.getLocked(id)
	changed := p.msgColor != start || p.msgGradientEnd != gradientEnd
	p.msgColor = start
	p.msgGradientEnd = gradientEnd
	s.mu.Unlock()
	if changed {
		s.markDirty()
	}
}

// ClearTransient resets only the reply target. Focus and cooldown stamps
// survive reconnects on purpose: focus is repaired on connect and the
// cooldown window must not reset by relogging.
func (s *PlayerStateStore) ClearTransient(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[id]; ok {
		p.lastFrom = nil
	}
}

// Untrack drops the in-memory record when it carries nothing persistent.
func (s *PlayerStateStore) Untrack(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[id]; ok && !p.record().ShouldPersist() && p.knownName == "" {
		delete(s.players, id)
	}
}
