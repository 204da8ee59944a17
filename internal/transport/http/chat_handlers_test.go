package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestRelayChat(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	alice := uuid.New()
	bob := uuid.New()
	if _, err := env.hub.Connect(alice, "Alice"); err != nil {
		t.Fatalf("failed to connect alice: %v", err)
	}
	bobSession, err := env.hub.Connect(bob, "Bob")
	if err != nil {
		t.Fatalf("failed to connect bob: %v", err)
	}

	global := env.registry.GetChannel("Global")
	global.AddMember(alice)
	global.AddMember(bob)
	env.players.SetFocusedChannel(alice, "Global")

	body := `{"player_id":"` + alice.String() + `","text":"hello"}`
	resp := doJSON(t, env, token, http.MethodPost, "/api/chat", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var relay RelayResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &relay); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if relay.Channel != "Global" {
		t.Errorf("expected channel 'Global', got %q", relay.Channel)
	}
	if relay.Recipients != 2 {
		t.Errorf("expected 2 recipients, got %d", relay.Recipients)
	}

	select {
	case msg := <-bobSession.Outbox():
		if got := msg.Plain(); got != "[g] Alice: hello" {
			t.Errorf("expected '[g] Alice: hello', got %q", got)
		}
	default:
		t.Fatal("expected bob to receive the message")
	}
}

func TestRelayNotMember(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	alice := uuid.New()
	if _, err := env.hub.Connect(alice, "Alice"); err != nil {
		t.Fatalf("failed to connect alice: %v", err)
	}
	env.players.SetFocusedChannel(alice, "Trade")

	body := `{"player_id":"` + alice.String() + `","text":"hello"}`
	resp := doJSON(t, env, token, http.MethodPost, "/api/chat", body)
	if resp.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if errResp.Code != "not_member" {
		t.Errorf("expected code 'not_member', got %q", errResp.Code)
	}
}

func TestPrivateMessageEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	alice := uuid.New()
	bob := uuid.New()
	if _, err := env.hub.Connect(alice, "Alice"); err != nil {
		t.Fatalf("failed to connect alice: %v", err)
	}
	bobSession, err := env.hub.Connect(bob, "Bob")
	if err != nil {
		t.Fatalf("failed to connect bob: %v", err)
	}

	body := `{"from":"` + alice.String() + `","to":"bob","text":"psst"}`
	resp := doJSON(t, env, token, http.MethodPost, "/api/chat/pm", body)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}

	select {
	case msg := <-bobSession.Outbox():
		if got := msg.Plain(); got != "[PM] from Alice: psst" {
			t.Errorf("unexpected pm text %q", got)
		}
	default:
		t.Fatal("expected bob to receive the pm")
	}

	// Offline target is a 404.
	body = `{"from":"` + alice.String() + `","to":"nobody","text":"psst"}`
	resp = doJSON(t, env, token, http.MethodPost, "/api/chat/pm", body)
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d: %s", resp.Code, resp.Body.String())
	}
}
