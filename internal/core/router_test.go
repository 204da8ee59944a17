package core

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/werchat/werchat/internal/colortext"
)

type fakeSession struct {
	id   uuid.UUID
	name string

	mu    sync.Mutex
	inbox []colortext.Text
}

func (s *fakeSession) PlayerID() uuid.UUID { return s.id }
func (s *fakeSession) Username() string    { return s.name }

func (s *fakeSession) SendMessage(msg colortext.Text) {
	s.mu.Lock()
	s.inbox = append(s.inbox, msg)
	s.mu.Unlock()
}

func (s *fakeSession) received() []colortext.Text {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]colortext.Text(nil), s.inbox...)
}

func (s *fakeSession) lastPlain() string {
	msgs := s.received()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Plain()
}

type fakeDirectory struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*fakeSession
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{sessions: make(map[uuid.UUID]*fakeSession)}
}

func (d *fakeDirectory) connect(name string) *fakeSession {
	s := &fakeSession{id: uuid.New(), name: name}
	d.mu.Lock()
	d.sessions[s.id] = s
	d.mu.Unlock()
	return s
}

func (d *fakeDirectory) Session(id uuid.UUID) (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (d *fakeDirectory) Sessions() []Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out
}

func (d *fakeDirectory) SessionByName(name string) (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if strings.EqualFold(s.name, name) {
			return s, true
		}
	}
	return nil, false
}

type fakeWorlds struct {
	mu        sync.Mutex
	worlds    map[string]uuid.UUID
	inWorld   map[uuid.UUID]uuid.UUID
	positions map[uuid.UUID]Position
}

func newFakeWorlds() *fakeWorlds {
	return &fakeWorlds{
		worlds:    make(map[string]uuid.UUID),
		inWorld:   make(map[uuid.UUID]uuid.UUID),
		positions: make(map[uuid.UUID]Position),
	}
}

func (w *fakeWorlds) world(name string) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.worlds[name]
	if !ok {
		id = uuid.New()
		w.worlds[name] = id
	}
	return id
}

func (w *fakeWorlds) place(s Session, world string, pos Position) {
	id := w.world(world)
	w.mu.Lock()
	w.inWorld[s.PlayerID()] = id
	w.positions[s.PlayerID()] = pos
	w.mu.Unlock()
}

func (w *fakeWorlds) PlayerWorld(s Session) (uuid.UUID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.inWorld[s.PlayerID()]
	return id, ok
}

func (w *fakeWorlds) PlayerPosition(s Session) (Position, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pos, ok := w.positions[s.PlayerID()]
	return pos, ok
}

func (w *fakeWorlds) ResolveWorld(name string) (uuid.UUID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.worlds[name]
	return id, ok
}

type routerFixture struct {
	router   *Router
	registry *Registry
	players  *PlayerStateStore
	dir      *fakeDirectory
	worlds   *fakeWorlds
	global   *Channel
}

func newRouterFixture(t *testing.T, settings RouterSettings) *routerFixture {
	t.Helper()
	st := newMemStore()
	registry := newTestRegistry(t, st)
	players := newTestPlayers(st)
	dir := newFakeDirectory()
	worlds := newFakeWorlds()

	global := NewChannel("Global")
	registry.Register(global)
	registry.SetDefaultChannel(global)

	router := NewRouter(registry, players, RouterProviders{
		Sessions:    dir,
		Permissions: BasicPermissions{},
		Worlds:      worlds,
	}, settings, testLogger())

	return &routerFixture{
		router:   router,
		registry: registry,
		players:  players,
		dir:      dir,
		worlds:   worlds,
		global:   global,
	}
}

// join connects a named player and adds them to the global channel.
func (f *routerFixture) join(name string) *fakeSession {
	s := f.dir.connect(name)
	f.global.AddMember(s.id)
	f.players.SetFocusedChannel(s.id, f.global.Name())
	return s
}

func asCoreError(t *testing.T, err error, code string) *CoreError {
	t.Helper()
	var ce *CoreError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *CoreError", err)
	}
	if ce.Code != code {
		t.Fatalf("error code = %q, want %q", ce.Code, code)
	}
	return ce
}

func TestRouteToFocusedChannel(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")
	bob := f.join("Bob")

	out, err := f.router.HandleChatInput(alice.id, "hello")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if out.Channel != f.global {
		t.Error("message should route to the focused channel")
	}
	if out.Recipients != 2 {
		t.Errorf("Recipients = %d, want sender and Bob", out.Recipients)
	}
	if got := bob.lastPlain(); got != "[g] Alice: hello" {
		t.Errorf("Bob received %q", got)
	}
}

func TestNotMemberGate(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	stranger := f.dir.connect("Eve")

	_, err := f.router.HandleChatInput(stranger.id, "hi")
	asCoreError(t, err, ErrCodeNotMember)
}

func TestMuteGate(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")
	f.global.Mute(alice.id)

	_, err := f.router.HandleChatInput(alice.id, "hi")
	asCoreError(t, err, ErrCodeMuted)
}

func TestBannedGate(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")
	f.global.Ban(alice.id)

	_, err := f.router.HandleChatInput(alice.id, "hi")
	asCoreError(t, err, ErrCodeBanned)
}

func TestCooldownRemainingSeconds(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{
		Cooldown: CooldownSettings{Enabled: true, Duration: 3 * time.Second},
	})
	alice := f.join("Alice")

	base := time.Now()
	f.router.now = func() time.Time { return base }
	if _, err := f.router.HandleChatInput(alice.id, "first"); err != nil {
		t.Fatalf("first message: %v", err)
	}

	f.router.now = func() time.Time { return base.Add(2 * time.Second) }
	_, err := f.router.HandleChatInput(alice.id, "second")
	ce := asCoreError(t, err, ErrCodeOnCooldown)
	if ce.Seconds != 1 {
		t.Errorf("remaining seconds = %d, want 1", ce.Seconds)
	}

	f.router.now = func() time.Time { return base.Add(3 * time.Second) }
	if _, err := f.router.HandleChatInput(alice.id, "third"); err != nil {
		t.Errorf("message at the cooldown boundary: %v", err)
	}
}

func TestWordFilterCensor(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{
		WordFilter: WordFilterSettings{
			Enabled:     true,
			Mode:        WordFilterCensor,
			Words:       []string{"jerk"},
			Replacement: "***",
		},
	})
	alice := f.join("Alice")
	bob := f.join("Bob")

	out, err := f.router.HandleChatInput(alice.id, "you are a JERK")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if out.Text != "you are a ***" {
		t.Errorf("censored text = %q", out.Text)
	}
	if got := bob.lastPlain(); !strings.Contains(got, "***") || strings.Contains(strings.ToLower(got), "jerk") {
		t.Errorf("Bob received %q", got)
	}
}

func TestWordFilterReplacementIsLiteral(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{
		WordFilter: WordFilterSettings{
			Enabled:     true,
			Mode:        WordFilterCensor,
			Words:       []string{"jerk"},
			Replacement: "$tar$",
		},
	})
	alice := f.join("Alice")

	out, err := f.router.HandleChatInput(alice.id, "you are a jerk")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if out.Text != "you are a $tar$" {
		t.Errorf("censored text = %q, want the replacement verbatim", out.Text)
	}
}

func TestWordFilterBlock(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{
		WordFilter: WordFilterSettings{
			Enabled: true,
			Mode:    WordFilterBlock,
			Words:   []string{"jerk"},
		},
	})
	alice := f.join("Alice")
	bob := f.join("Bob")

	_, err := f.router.HandleChatInput(alice.id, "you are a jerk")
	asCoreError(t, err, ErrCodeBlocked)
	if len(bob.received()) != 0 {
		t.Error("blocked message must reach no recipients")
	}
}

func TestQuickChatRouting(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	trade := NewChannel("Trade")
	trade.SetQuickChatSymbol("!")
	trade.SetQuickChatEnabled(true)
	f.registry.Register(trade)

	alice := f.join("Alice")
	trade.AddMember(alice.id)

	out, err := f.router.HandleChatInput(alice.id, "!hello there")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if out.Channel != trade {
		t.Error("quick-chat symbol should route to Trade")
	}
	if out.Text != "hello there" {
		t.Errorf("quick-chat text = %q, want symbol stripped", out.Text)
	}
}

func TestQuickChatEmptyRemainderIsDropped(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	trade := NewChannel("Trade")
	trade.SetQuickChatSymbol("!")
	trade.SetQuickChatEnabled(true)
	f.registry.Register(trade)

	alice := f.join("Alice")
	trade.AddMember(alice.id)

	out, err := f.router.HandleChatInput(alice.id, "!")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if !out.Dropped || out.Recipients != 0 {
		t.Errorf("outcome = %+v, want silent drop", out)
	}
}

func TestDistanceBroadcast(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	f.global.SetDistance(10)

	alice := f.join("Alice")
	near := f.join("Near")
	far := f.join("Far")
	elsewhere := f.join("Elsewhere")

	f.worlds.place(alice, "overworld", Position{0, 0, 0})
	f.worlds.place(near, "overworld", Position{0, 0, 9})
	f.worlds.place(far, "overworld", Position{0, 0, 11})
	f.worlds.place(elsewhere, "nether", Position{0, 0, 5})

	out, err := f.router.HandleChatInput(alice.id, "anyone here?")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if out.Recipients != 2 {
		t.Errorf("Recipients = %d, want sender and Near", out.Recipients)
	}
	if len(near.received()) != 1 {
		t.Error("player within range must receive the message")
	}
	if len(far.received()) != 0 {
		t.Error("player out of range must not receive the message")
	}
	if len(elsewhere.received()) != 0 {
		t.Error("player in another world must not receive the message")
	}
	if len(alice.received()) != 1 {
		t.Error("sender must receive their own message")
	}
}

func TestWorldRestrictedChannelFallsBackToDefault(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	mining := NewChannel("Mining")
	mining.AddWorld("mining_world")
	f.registry.Register(mining)
	f.worlds.world("mining_world")

	alice := f.join("Alice")
	mining.AddMember(alice.id)
	f.players.SetFocusedChannel(alice.id, "Mining")
	f.worlds.place(alice, "overworld", Position{})

	out, err := f.router.HandleChatInput(alice.id, "hello")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if out.Channel != f.global {
		t.Error("message should fall back to the default channel")
	}
}

func TestIgnoredSenderIsFiltered(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")
	bob := f.join("Bob")
	f.players.IgnorePlayer(bob.id, alice.id)

	out, err := f.router.HandleChatInput(alice.id, "hi bob")
	if err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}
	if out.Recipients != 1 {
		t.Errorf("Recipients = %d, want only the sender", out.Recipients)
	}
	if len(bob.received()) != 0 {
		t.Error("ignoring player must not receive the message")
	}
}

func TestMentionHighlighting(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{
		Mentions: MentionSettings{Enabled: true},
	})
	alice := f.join("Alice")
	bob := f.join("Bob")
	carol := f.join("Carol")

	if _, err := f.router.HandleChatInput(alice.id, "hey @bob look"); err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}

	bobMsg := bob.received()[0]
	highlighted := false
	for _, run := range bobMsg {
		if run.Bold && run.Color == defaultMentionColor {
			highlighted = true
		}
	}
	if !highlighted {
		t.Error("mentioned recipient must see a bold highlighted body")
	}

	for _, run := range carol.received()[0] {
		if run.Bold && run.Color == defaultMentionColor {
			t.Error("unmentioned recipient must not see the highlight")
		}
	}
}

func TestSenderGradientRendering(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")
	bob := f.join("Bob")
	f.players.SetNickColor(alice.id, "#000000", "#FFFFFF")

	if _, err := f.router.HandleChatInput(alice.id, "hi"); err != nil {
		t.Fatalf("HandleChatInput: %v", err)
	}

	msg := bob.received()[0]
	// "Alice" renders one run per character under a gradient.
	perChar := 0
	for _, run := range msg {
		if len(run.Text) == 1 {
			perChar++
		}
	}
	if perChar < len("Alice") {
		t.Errorf("expected per-character gradient runs, got %+v", msg)
	}
}

func TestPrivateMessageAndReply(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")
	bob := f.join("Bob")

	if err := f.router.SendPrivateMessage(alice.id, "bob", "psst"); err != nil {
		t.Fatalf("SendPrivateMessage: %v", err)
	}
	if got := bob.lastPlain(); !strings.Contains(got, "psst") || !strings.Contains(got, "Alice") {
		t.Errorf("Bob received %q", got)
	}
	if got := alice.lastPlain(); !strings.Contains(got, "psst") {
		t.Errorf("Alice's echo = %q", got)
	}

	if err := f.router.SendReply(bob.id, "what"); err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if got := alice.lastPlain(); !strings.Contains(got, "what") {
		t.Errorf("reply did not reach Alice, last = %q", got)
	}
}

func TestPrivateMessageToIgnoringPlayer(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")
	bob := f.join("Bob")
	f.players.IgnorePlayer(bob.id, alice.id)

	err := f.router.SendPrivateMessage(alice.id, "Bob", "hello?")
	asCoreError(t, err, ErrCodeIgnored)
	if len(bob.received()) != 0 {
		t.Error("ignored sender must not reach the recipient")
	}
}

func TestReplyWithNoHistory(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	alice := f.join("Alice")

	err := f.router.SendReply(alice.id, "anyone?")
	asCoreError(t, err, ErrCodeNotFound)
}

func TestConnectAutoJoinAndFocusRepair(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{AutoJoinDefault: true})
	news := NewChannel("News")
	news.SetAutoJoin(true)
	f.registry.Register(news)

	banned := NewChannel("VIP")
	banned.SetAutoJoin(true)
	f.registry.Register(banned)

	s := f.dir.connect("Alice")
	banned.Ban(s.id)
	f.router.HandleConnect(s)

	if !f.global.IsMember(s.id) {
		t.Error("connect must join the default channel")
	}
	if !news.IsMember(s.id) {
		t.Error("connect must join auto-join channels")
	}
	if banned.IsMember(s.id) {
		t.Error("connect must not join channels the player is banned from")
	}
	if got := f.players.FocusedChannel(s.id); got != "Global" {
		t.Errorf("focus = %q, want the default channel", got)
	}
}

func TestMotdShownOncePerLogin(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{})
	f.global.SetMotd("&6Welcome!")
	f.global.SetMotdEnabled(true)

	s := f.dir.connect("Alice")
	f.router.HandleConnect(s)
	f.router.HandleConnect(s)

	motds := 0
	for _, msg := range s.received() {
		if strings.Contains(msg.Plain(), "Welcome!") {
			motds++
		}
	}
	if motds != 1 {
		t.Errorf("motd shown %d times in one login, want 1", motds)
	}

	f.router.HandleDisconnect(s)
	f.router.HandleConnect(s)
	seen := 0
	for _, msg := range s.received() {
		if strings.Contains(msg.Plain(), "Welcome!") {
			seen++
		}
	}
	if seen != 2 {
		t.Errorf("motd shown %d times across two logins, want 2", seen)
	}
}

func TestJoinNoticeBroadcast(t *testing.T) {
	f := newRouterFixture(t, RouterSettings{ShowJoinLeave: true, AutoJoinDefault: true})
	bob := f.join("Bob")

	s := f.dir.connect("Alice")
	f.router.HandleConnect(s)

	if got := bob.lastPlain(); !strings.Contains(got, "Alice joined") {
		t.Errorf("Bob saw %q, want a join notice", got)
	}
}
