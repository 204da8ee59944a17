package sqlite

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := zerolog.Nop()
	s, err := New(":memory:", &logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadChannelsEmptyDatabase(t *testing.T) {
	s := newTestStore(t)

	data, err := s.LoadChannels(context.Background())
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if len(data.Channels) != 0 || data.Legacy {
		t.Errorf("empty database should load empty data, got %+v", data)
	}
}

func TestChannelRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := uuid.New()
	member := uuid.New()
	banned := uuid.New()

	channels := []store.ChannelRecord{
		{
			Name:             "Global",
			Nick:             "g",
			Color:            "#FFFFFF",
			Format:           "[{nick}] {sender}: {msg}",
			Default:          true,
			AutoJoin:         true,
			Focusable:        true,
			Verbose:          true,
			QuickChatSymbol:  "!",
			QuickChatEnabled: true,
		},
		{
			Name:     "Local",
			Nick:     "l",
			Color:    "#AAAAAA",
			Distance: 100,
			Worlds:   []string{"overworld", "nether"},
			Password: "secret",
			Motd:     "stay close",
			MotdEnabled: true,
		},
	}
	members := map[string]store.ChannelMembers{
		"Global": {
			Owner:      &store.MemberEntry{ID: owner, Name: "Alice"},
			Moderators: []store.MemberEntry{{ID: owner, Name: "Alice"}},
			Members:    []store.MemberEntry{{ID: owner, Name: "Alice"}, {ID: member, Name: "Bob"}},
			Banned:     []store.MemberEntry{{ID: banned, Name: "Griefer"}},
			Muted:      []store.MemberEntry{{ID: member, Name: "Bob"}},
		},
	}

	if err := s.SaveChannels(ctx, channels, members); err != nil {
		t.Fatalf("SaveChannels: %v", err)
	}

	data, err := s.LoadChannels(ctx)
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if len(data.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(data.Channels))
	}

	// LoadChannels orders by name: Global, Local.
	if !reflect.DeepEqual(data.Channels[0], channels[0]) {
		t.Errorf("Global did not round-trip:\n got %+v\nwant %+v", data.Channels[0], channels[0])
	}
	if !reflect.DeepEqual(data.Channels[1], channels[1]) {
		t.Errorf("Local did not round-trip:\n got %+v\nwant %+v", data.Channels[1], channels[1])
	}

	got := data.Members["Global"]
	if got.Owner == nil || got.Owner.ID != owner {
		t.Errorf("owner did not round-trip: %+v", got.Owner)
	}
	wantMembers := []uuid.UUID{owner, member}
	gotMembers := make([]uuid.UUID, 0, len(got.Members))
	for _, e := range got.Members {
		gotMembers = append(gotMembers, e.ID)
	}
	sortIDs(wantMembers)
	sortIDs(gotMembers)
	if !reflect.DeepEqual(gotMembers, wantMembers) {
		t.Errorf("members did not round-trip: %v", gotMembers)
	}
	if len(got.Banned) != 1 || got.Banned[0].ID != banned || got.Banned[0].Name != "Griefer" {
		t.Errorf("banned did not round-trip: %+v", got.Banned)
	}
	if len(got.Muted) != 1 || got.Muted[0].ID != member {
		t.Errorf("muted did not round-trip: %+v", got.Muted)
	}
}

func TestSaveChannelsReplacesPreviousData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []store.ChannelRecord{{Name: "Old"}}
	if err := s.SaveChannels(ctx, first, nil); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := []store.ChannelRecord{{Name: "New"}}
	if err := s.SaveChannels(ctx, second, nil); err != nil {
		t.Fatalf("second save: %v", err)
	}

	data, err := s.LoadChannels(ctx)
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if len(data.Channels) != 1 || data.Channels[0].Name != "New" {
		t.Errorf("save must replace previous channels, got %+v", data.Channels)
	}
}

func TestPlayerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	in := map[uuid.UUID]store.PlayerRecord{
		id: {
			Nickname:        "Ace",
			NickColor:       "#FF0000",
			NickGradientEnd: "#0000FF",
			MsgColor:        "#00FF00",
		},
	}
	if err := s.SavePlayers(ctx, in); err != nil {
		t.Fatalf("SavePlayers: %v", err)
	}

	out, err := s.LoadPlayers(ctx)
	if err != nil {
		t.Fatalf("LoadPlayers: %v", err)
	}
	if out[id] != in[id] {
		t.Errorf("player record = %+v, want %+v", out[id], in[id])
	}
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
