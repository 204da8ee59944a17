package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/colortext"
	"github.com/werchat/werchat/internal/core"
)

func newTestHub() *Hub {
	logger := zerolog.Nop()
	return NewHub(&logger)
}

func TestConnectAndLookup(t *testing.T) {
	h := newTestHub()
	id := uuid.New()

	p, err := h.Connect(id, "Alice")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if s, ok := h.Session(id); !ok || s.PlayerID() != id {
		t.Error("Session lookup by id failed")
	}
	if s, ok := h.SessionByName("alice"); !ok || s.Username() != "Alice" {
		t.Error("SessionByName must be case-insensitive")
	}
	if len(h.Sessions()) != 1 {
		t.Error("Sessions should enumerate the connected player")
	}

	h.Disconnect(p)
	if _, ok := h.Session(id); ok {
		t.Error("disconnected session must not resolve")
	}
}

func TestConnectRefusesTakenName(t *testing.T) {
	h := newTestHub()
	if _, err := h.Connect(uuid.New(), "Alice"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := h.Connect(uuid.New(), "ALICE"); !errors.Is(err, ErrNameTaken) {
		t.Errorf("duplicate name: err = %v, want ErrNameTaken", err)
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	h := newTestHub()
	id := uuid.New()

	old, err := h.Connect(id, "Alice")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	replacement, err := h.Connect(id, "Alice")
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	select {
	case <-old.Closed():
	default:
		t.Error("replaced session must be closed")
	}

	// Disconnecting the stale session must not evict the replacement.
	h.Disconnect(old)
	if s, ok := h.Session(id); !ok || s.(*Player) != replacement {
		t.Error("stale disconnect evicted the live session")
	}
}

func TestSendMessageDropsWhenFull(t *testing.T) {
	h := newTestHub()
	p, err := h.Connect(uuid.New(), "Alice")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	msg := colortext.Solid("hi", "#FFFFFF")
	for i := 0; i < outboxSize+10; i++ {
		p.SendMessage(msg) // must never block
	}
	if got := len(p.Outbox()); got != outboxSize {
		t.Errorf("outbox length = %d, want %d", got, outboxSize)
	}
}

func TestWorldTracking(t *testing.T) {
	h := newTestHub()
	alice, _ := h.Connect(uuid.New(), "Alice")
	bob, _ := h.Connect(uuid.New(), "Bob")

	if _, ok := h.ResolveWorld("overworld"); ok {
		t.Fatal("unseen world must not resolve")
	}
	if _, ok := h.PlayerWorld(alice); ok {
		t.Fatal("player without a reported location has no world")
	}

	alice.SetLocation("overworld", core.Position{X: 1, Y: 2, Z: 3})
	bob.SetLocation("Overworld", core.Position{X: 4, Y: 5, Z: 6})

	id, ok := h.ResolveWorld("OVERWORLD")
	if !ok {
		t.Fatal("reported world must resolve by name")
	}
	aw, _ := h.PlayerWorld(alice)
	bw, _ := h.PlayerWorld(bob)
	if aw != id || bw != id {
		t.Error("world names must resolve case-insensitively to one identity")
	}

	pos, ok := h.PlayerPosition(alice)
	if !ok || pos != (core.Position{X: 1, Y: 2, Z: 3}) {
		t.Errorf("PlayerPosition = %+v", pos)
	}
}
