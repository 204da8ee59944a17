package core

import (
	"testing"

	"github.com/google/uuid"
)

func TestBanEvictsMembership(t *testing.T) {
	ch := NewChannel("Global")
	p := uuid.New()

	if !ch.AddMember(p) {
		t.Fatal("expected AddMember to succeed")
	}
	if !ch.Ban(p) {
		t.Fatal("expected Ban to report a change")
	}
	if ch.IsMember(p) {
		t.Error("banned player must not remain a member")
	}
	if !ch.IsBanned(p) {
		t.Error("player should be banned")
	}
}

func TestAddMemberWhileBannedFails(t *testing.T) {
	ch := NewChannel("Global")
	p := uuid.New()

	ch.Ban(p)
	if ch.AddMember(p) {
		t.Fatal("AddMember must fail for a banned player")
	}
	if ch.IsMember(p) {
		t.Error("banned player must not be a member")
	}

	ch.Unban(p)
	if !ch.AddMember(p) {
		t.Error("AddMember should succeed after unban")
	}
}

func TestAddMemberTwice(t *testing.T) {
	ch := NewChannel("Global")
	p := uuid.New()

	if !ch.AddMember(p) {
		t.Fatal("first AddMember should succeed")
	}
	if ch.AddMember(p) {
		t.Error("second AddMember should report no change")
	}
	if got := ch.MemberCount(); got != 1 {
		t.Errorf("MemberCount = %d, want 1", got)
	}
}

func TestCheckPassword(t *testing.T) {
	ch := NewChannel("Private")
	if !ch.CheckPassword("anything") {
		t.Error("channel without password must accept any input")
	}

	ch.SetPassword("hunter2")
	if ch.CheckPassword("wrong") {
		t.Error("wrong password accepted")
	}
	if !ch.CheckPassword("hunter2") {
		t.Error("exact password rejected")
	}
}

func TestEffectiveMessageColorFallsBackToTagColor(t *testing.T) {
	ch := NewChannel("Trade")
	ch.SetColor("#FFD700")
	if got := ch.EffectiveMessageColor(); got != "#FFD700" {
		t.Errorf("EffectiveMessageColor = %q, want tag color", got)
	}

	ch.SetMessageColor("#AAAAAA")
	if got := ch.EffectiveMessageColor(); got != "#AAAAAA" {
		t.Errorf("EffectiveMessageColor = %q, want explicit color", got)
	}
}

func TestPermissionNodesFollowRename(t *testing.T) {
	ch := NewChannel("Trade")
	if got := ch.SpeakPermission(); got != "werchat.channel.trade.speak" {
		t.Fatalf("SpeakPermission = %q", got)
	}
	ch.setName("Market")
	if got := ch.JoinPermission(); got != "werchat.channel.market.join" {
		t.Errorf("JoinPermission after rename = %q", got)
	}
}

func TestChangeHookFiresOnMutation(t *testing.T) {
	ch := NewChannel("Global")
	fired := 0
	ch.SetChangeHook(func() { fired++ })

	p := uuid.New()
	ch.AddMember(p)
	ch.SetColor("#123456")
	ch.SetColor("#123456") // no-op must not fire

	if fired != 2 {
		t.Errorf("change hook fired %d times, want 2", fired)
	}
}

func TestFormatMessage(t *testing.T) {
	got := FormatMessage("[{nick}] {sender}: {msg}", map[string]string{
		"{nick}":   "g",
		"{sender}": "Alice",
		"{msg}":    "hi",
	})
	if got != "[g] Alice: hi" {
		t.Errorf("FormatMessage = %q", got)
	}
}

func TestFormatMessageUnknownTokenIsLiteral(t *testing.T) {
	got := FormatMessage("{sender} {what} {msg}", map[string]string{
		"{sender}": "Alice",
		"{msg}":    "hi",
	})
	if got != "Alice {what} hi" {
		t.Errorf("FormatMessage = %q", got)
	}
}

func TestFormatMessageUnterminatedBrace(t *testing.T) {
	got := FormatMessage("hello {sender", map[string]string{"{sender}": "Alice"})
	if got != "hello {sender" {
		t.Errorf("FormatMessage = %q", got)
	}
}
