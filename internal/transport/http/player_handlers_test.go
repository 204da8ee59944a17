package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestJoinChannelPassword(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	player := uuid.New()

	env.registry.GetChannel("Trade").SetPassword("sesame")

	body := `{"channel":"Trade"}`
	resp := doJSON(t, env, token, http.MethodPost, "/api/players/"+player.String()+"/channels", body)
	if resp.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}

	body = `{"channel":"Trade","password":"sesame"}`
	resp = doJSON(t, env, token, http.MethodPost, "/api/players/"+player.String()+"/channels", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !env.registry.GetChannel("Trade").IsMember(player) {
		t.Error("expected player to be a member of Trade")
	}
}

func TestFocusAddsMembership(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	player := uuid.New()

	resp := doJSON(t, env, token, http.MethodPost, "/api/players/"+player.String()+"/focus", `{"channel":"t"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// Channel was resolved by nick.
	if got := env.players.FocusedChannel(player); got != "Trade" {
		t.Errorf("expected focus 'Trade', got %q", got)
	}
	if !env.registry.GetChannel("Trade").IsMember(player) {
		t.Error("expected focusing to add membership")
	}
}

func TestFocusRefusedWhenBanned(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	player := uuid.New()

	env.registry.GetChannel("Trade").Ban(player)

	resp := doJSON(t, env, token, http.MethodPost, "/api/players/"+player.String()+"/focus", `{"channel":"Trade"}`)
	if resp.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestLeaveFocusedChannelFallsBackToDefault(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	player := uuid.New()

	env.registry.GetChannel("Trade").AddMember(player)
	env.players.SetFocusedChannel(player, "Trade")

	resp := doJSON(t, env, token, http.MethodDelete, "/api/players/"+player.String()+"/channels/Trade", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	if got := env.players.FocusedChannel(player); got != "Global" {
		t.Errorf("expected focus to fall back to 'Global', got %q", got)
	}
}

func TestUpdatePlayerColors(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	player := uuid.New()

	body := `{"nickname":"Shadow","nick_color":"#ff0000","nick_gradient_end":"#0000ff"}`
	resp := doJSON(t, env, token, http.MethodPatch, "/api/players/"+player.String(), body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var got PlayerResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if got.Nickname != "Shadow" {
		t.Errorf("expected nickname 'Shadow', got %q", got.Nickname)
	}
	if got.NickColor != "#FF0000" || got.NickGradientEnd != "#0000FF" {
		t.Errorf("expected normalized gradient colors, got %q..%q", got.NickColor, got.NickGradientEnd)
	}

	// A gradient end without a start color is refused.
	body = `{"msg_gradient_end":"#00FF00"}`
	resp = doJSON(t, env, token, http.MethodPatch, "/api/players/"+player.String(), body)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestIgnoreEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	player := uuid.New()
	target := uuid.New()

	body := `{"player_id":"` + target.String() + `"}`
	resp := doJSON(t, env, token, http.MethodPost, "/api/players/"+player.String()+"/ignores", body)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}
	if !env.players.IsIgnoring(player, target) {
		t.Error("expected player to be ignoring target")
	}

	// Self-ignore is rejected.
	body = `{"player_id":"` + player.String() + `"}`
	resp = doJSON(t, env, token, http.MethodPost, "/api/players/"+player.String()+"/ignores", body)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, env, token, http.MethodDelete, "/api/players/"+player.String()+"/ignores/"+target.String(), "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}
	if env.players.IsIgnoring(player, target) {
		t.Error("expected ignore to be lifted")
	}
}
