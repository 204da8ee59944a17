// Package session tracks live player connections and where they are in the
// game world. The hub is the directory the chat core consults when it
// resolves ids to connected players and computes locality.
package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/colortext"
	"github.com/werchat/werchat/internal/core"
)

// ErrNameTaken is returned when a connecting player's name is already in
// use by another live session.
var ErrNameTaken = errors.New("username already connected")

const outboxSize = 64

// Player is one live connection. Outbound messages go through a buffered
// channel drained by the transport; a full buffer drops the message rather
// than blocking the router.
type Player struct {
	id       uuid.UUID
	username string
	hub      *Hub

	mu       sync.Mutex
	world    uuid.UUID
	hasWorld bool
	pos      core.Position

	outbox chan colortext.Text
	closed chan struct{}
	once   sync.Once
}

func (p *Player) PlayerID() uuid.UUID { return p.id }
func (p *Player) Username() string    { return p.username }

// SendMessage queues a message for delivery. Never blocks; a dead or slow
// connection loses messages instead of stalling a broadcast.
func (p *Player) SendMessage(msg colortext.Text) {
	select {
	case <-p.closed:
	case p.outbox <- msg:
	default:
		p.hub.log.Debug().Str("player", p.username).Msg("outbox full, dropping message")
	}
}

// Outbox is drained by the transport layer.
func (p *Player) Outbox() <-chan colortext.Text { return p.outbox }

// Closed is signalled when the session is disconnected.
func (p *Player) Closed() <-chan struct{} { return p.closed }

// SetLocation updates the player's world and position. The world is
// registered by name on first sight.
func (p *Player) SetLocation(world string, pos core.Position) {
	id := p.hub.worldID(world)
	p.mu.Lock()
	p.world = id
	p.hasWorld = true
	p.pos = pos
	p.mu.Unlock()
}

func (p *Player) location() (uuid.UUID, core.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.world, p.pos, p.hasWorld
}

func (p *Player) close() {
	p.once.Do(func() { close(p.closed) })
}

// Hub is the live session directory. It implements core.SessionDirectory
// and core.WorldProvider.
type Hub struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*Player
	byName  map[string]uuid.UUID // lower-case username -> id

	worldMu    sync.RWMutex
	worldIDs   map[string]uuid.UUID // lower-case world name -> identity
	worldNames map[uuid.UUID]string

	log *zerolog.Logger
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		players:    make(map[uuid.UUID]*Player),
		byName:     make(map[string]uuid.UUID),
		worldIDs:   make(map[string]uuid.UUID),
		worldNames: make(map[uuid.UUID]string),
		log:        logger,
	}
}

// Connect registers a live session. A reconnect under the same player id
// replaces the previous session; a name held by a different id is refused.
func (h *Hub) Connect(id uuid.UUID, username string) (*Player, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("empty username")
	}
	key := strings.ToLower(username)

	h.mu.Lock()
	if owner, taken := h.byName[key]; taken && owner != id {
		h.mu.Unlock()
		return nil, ErrNameTaken
	}
	if prev, ok := h.players[id]; ok {
		delete(h.byName, strings.ToLower(prev.username))
		prev.close()
	}
	p := &Player{
		id:       id,
		username: username,
		hub:      h,
		outbox:   make(chan colortext.Text, outboxSize),
		closed:   make(chan struct{}),
	}
	h.players[id] = p
	h.byName[key] = id
	h.mu.Unlock()

	h.log.Info().Str("player", username).Str("id", id.String()).Msg("session connected")
	return p, nil
}

// Disconnect removes a session. A stale session that was already replaced
// by a reconnect is left alone.
func (h *Hub) Disconnect(p *Player) {
	h.mu.Lock()
	if current, ok := h.players[p.id]; ok && current == p {
		delete(h.players, p.id)
		delete(h.byName, strings.ToLower(p.username))
	}
	h.mu.Unlock()

	p.close()
	h.log.Info().Str("player", p.username).Msg("session disconnected")
}

func (h *Hub) Session(id uuid.UUID) (core.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.players[id]
	if !ok {
		return nil, false
	}
	return p, true
}

func (h *Hub) Sessions() []core.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.Session, 0, len(h.players))
	for _, p := range h.players {
		out = append(out, p)
	}
	return out
}

func (h *Hub) SessionByName(name string) (core.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	p, ok := h.players[id]
	if !ok {
		return nil, false
	}
	return p, true
}

// PlayerWorld implements core.WorldProvider.
func (h *Hub) PlayerWorld(s core.Session) (uuid.UUID, bool) {
	p := h.lookup(s)
	if p == nil {
		return uuid.Nil, false
	}
	world, _, ok := p.location()
	return world, ok
}

// PlayerPosition implements core.WorldProvider.
func (h *Hub) PlayerPosition(s core.Session) (core.Position, bool) {
	p := h.lookup(s)
	if p == nil {
		return core.Position{}, false
	}
	_, pos, ok := p.location()
	return pos, ok
}

// ResolveWorld maps a world name to its identity. Unknown worlds resolve
// to nothing; identities are minted when a player first reports being in a
// world, not here.
func (h *Hub) ResolveWorld(name string) (uuid.UUID, bool) {
	h.worldMu.RLock()
	defer h.worldMu.RUnlock()
	id, ok := h.worldIDs[strings.ToLower(name)]
	return id, ok
}

// WorldName is the inverse of ResolveWorld, for diagnostics.
func (h *Hub) WorldName(id uuid.UUID) (string, bool) {
	h.worldMu.RLock()
	defer h.worldMu.RUnlock()
	name, ok := h.worldNames[id]
	return name, ok
}

// worldID returns the identity for a world name, minting one on first sight.
func (h *Hub) worldID(name string) uuid.UUID {
	key := strings.ToLower(name)
	h.worldMu.Lock()
	defer h.worldMu.Unlock()
	id, ok := h.worldIDs[key]
	if !ok {
		id = uuid.New()
		h.worldIDs[key] = id
		h.worldNames[id] = name
	}
	return id
}

func (h *Hub) lookup(s core.Session) *Player {
	if p, ok := s.(*Player); ok {
		return p
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.players[s.PlayerID()]
}
