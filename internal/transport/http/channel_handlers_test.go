package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func doJSON(t *testing.T, env *testEnv, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	env.server.Handler.ServeHTTP(resp, req)
	return resp
}

func TestListChannelsRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := doJSON(t, env, "", http.MethodGet, "/api/channels", "")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", resp.Code)
	}

	resp = doJSON(t, env, env.login(t), http.MethodGet, "/api/channels", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var channels []ChannelResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &channels); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	// Fresh install boots with the stock channel set.
	names := make(map[string]bool)
	for _, ch := range channels {
		names[ch.Name] = true
	}
	for _, want := range []string{"Global", "Local", "Trade", "Support"} {
		if !names[want] {
			t.Errorf("expected channel %q in list", want)
		}
	}
}

func TestCreateChannel(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := doJSON(t, env, token, http.MethodPost, "/api/channels", `{"name":"Raids"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var ch ChannelResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &ch); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if ch.Name != "Raids" {
		t.Errorf("expected name 'Raids', got %q", ch.Name)
	}
	if ch.Nick != "r" {
		t.Errorf("expected auto nick 'r', got %q", ch.Nick)
	}

	// Duplicate name is refused.
	resp = doJSON(t, env, token, http.MethodPost, "/api/channels", `{"name":"raids"}`)
	if resp.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateChannelValidatesColor(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := doJSON(t, env, token, http.MethodPatch, "/api/channels/Trade", `{"color":"not-a-color"}`)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, env, token, http.MethodPatch, "/api/channels/Trade", `{"color":"#00ff00","distance":50}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var ch ChannelResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &ch); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if ch.Color != "#00FF00" {
		t.Errorf("expected normalized color '#00FF00', got %q", ch.Color)
	}
	if ch.Distance != 50 {
		t.Errorf("expected distance 50, got %d", ch.Distance)
	}
}

func TestDeleteChannelGuards(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	// The default channel cannot be deleted.
	resp := doJSON(t, env, token, http.MethodDelete, "/api/channels/Global", "")
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, env, token, http.MethodDelete, "/api/channels/Trade", "")
	if resp.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}
	if env.registry.GetChannel("Trade") != nil {
		t.Error("expected Trade to be gone")
	}

	resp = doJSON(t, env, token, http.MethodDelete, "/api/channels/Trade", "")
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.Code)
	}
}

func TestMakeDefault(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := doJSON(t, env, token, http.MethodPost, "/api/channels/Trade/default", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	if def := env.registry.DefaultChannel(); def == nil || def.Name() != "Trade" {
		t.Errorf("expected Trade to be the default channel")
	}
	if env.registry.GetChannel("Global").IsDefault() {
		t.Error("expected Global to lose its default flag")
	}
}

func TestBanEndpointEvictsMember(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	player := uuid.New()
	env.registry.GetChannel("Global").AddMember(player)

	body := `{"player_id":"` + player.String() + `"}`
	resp := doJSON(t, env, token, http.MethodPost, "/api/channels/Global/bans", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	ch := env.registry.GetChannel("Global")
	if ch.IsMember(player) {
		t.Error("expected banned player to be evicted from members")
	}
	if !ch.IsBanned(player) {
		t.Error("expected player to be banned")
	}

	resp = doJSON(t, env, token, http.MethodDelete, "/api/channels/Global/bans/"+player.String(), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if ch.IsBanned(player) {
		t.Error("expected player to be unbanned")
	}
}

func TestRenameChannel(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := doJSON(t, env, token, http.MethodPost, "/api/channels/Trade/rename", `{"name":"Market"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	if env.registry.GetChannel("Market") == nil {
		t.Error("expected channel to be reachable under the new name")
	}
	if env.registry.GetChannel("Trade") != nil {
		t.Error("expected old name to be released")
	}

	// Renaming onto an existing name is refused.
	resp = doJSON(t, env, token, http.MethodPost, "/api/channels/Market/rename", `{"name":"Global"}`)
	if resp.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}
