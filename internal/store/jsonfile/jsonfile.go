// Package jsonfile implements store.Store on flat JSON files: channels.json
// for channel settings, channel-members.json for membership sets and
// players.json for per-player attributes.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/werchat/werchat/internal/store"
)

const (
	channelsFile = "channels.json"
	membersFile  = "channel-members.json"
	playersFile  = "players.json"
)

// Store persists chat data as JSON files under one directory. All methods
// are safe for concurrent use; writes are atomic (temp file + rename).
type Store struct {
	mu  sync.Mutex
	dir string
	log *zerolog.Logger
}

// New creates the data directory if needed and returns a file store.
func New(dir string, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, log: logger}, nil
}

func (s *Store) Close() error { return nil }

// channelDoc is a channel record as stored on disk. The embedded membership
// fields belong to the old single-file schema; they are absorbed on load
// and never written back.
type channelDoc struct {
	store.ChannelRecord

	LegacyOwner      *memberDoc  `json:"owner,omitempty"`
	LegacyModerators []memberDoc `json:"moderators,omitempty"`
	LegacyMembers    []memberDoc `json:"members,omitempty"`
	LegacyBanned     []memberDoc `json:"banned,omitempty"`
	LegacyMuted      []memberDoc `json:"muted,omitempty"`
}

func (d channelDoc) hasEmbeddedMembers() bool {
	return d.LegacyOwner != nil || len(d.LegacyModerators) > 0 ||
		len(d.LegacyMembers) > 0 || len(d.LegacyBanned) > 0 || len(d.LegacyMuted) > 0
}

// memberDoc pairs a player id with the last display name it was seen under.
// Old files stored bare id strings, so both shapes unmarshal.
type memberDoc struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (m *memberDoc) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		m.ID = id
		return nil
	}
	type alias memberDoc
	var doc alias
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*m = memberDoc(doc)
	return nil
}

type membersDoc struct {
	Owner      *memberDoc  `json:"owner,omitempty"`
	Moderators []memberDoc `json:"moderators"`
	Members    []memberDoc `json:"members"`
	Banned     []memberDoc `json:"banned"`
	Muted      []memberDoc `json:"muted"`
}

// LoadChannels reads channel settings and membership. Missing files mean a
// fresh install and return empty data. Channels whose membership was still
// embedded in channels.json are absorbed and flagged legacy so the caller
// rewrites in the split schema.
func (s *Store) LoadChannels(ctx context.Context) (*store.ChannelData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []channelDoc
	if err := s.readFile(channelsFile, &docs); err != nil {
		return nil, err
	}

	split := make(map[string]membersDoc)
	if err := s.readFile(membersFile, &split); err != nil {
		return nil, err
	}

	data := &store.ChannelData{Members: make(map[string]store.ChannelMembers)}
	for _, doc := range docs {
		data.Channels = append(data.Channels, doc.ChannelRecord)

		members := store.ChannelMembers{}
		if md, ok := split[doc.Name]; ok {
			members = s.decodeMembers(doc.Name, md)
		}
		if doc.hasEmbeddedMembers() {
			data.Legacy = true
			embedded := s.decodeMembers(doc.Name, membersDoc{
				Owner:      doc.LegacyOwner,
				Moderators: doc.LegacyModerators,
				Members:    doc.LegacyMembers,
				Banned:     doc.LegacyBanned,
				Muted:      doc.LegacyMuted,
			})
			members = mergeMembers(members, embedded)
		}
		data.Members[doc.Name] = members
	}
	return data, ctx.Err()
}

// SaveChannels rewrites both channel files. Membership always goes to the
// split file, migrating any legacy layout on the first save.
func (s *Store) SaveChannels(ctx context.Context, channels []store.ChannelRecord, members map[string]store.ChannelMembers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]channelDoc, 0, len(channels))
	for _, rec := range channels {
		docs = append(docs, channelDoc{ChannelRecord: rec})
	}
	if err := s.writeFile(channelsFile, docs); err != nil {
		return err
	}

	out := make(map[string]membersDoc, len(members))
	for name, m := range members {
		out[name] = encodeMembers(m)
	}
	if err := s.writeFile(membersFile, out); err != nil {
		return err
	}
	return ctx.Err()
}

// LoadPlayers reads persisted player attributes keyed by player id.
// Records with an unparseable id are skipped with a warning.
func (s *Store) LoadPlayers(ctx context.Context) (map[uuid.UUID]store.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make(map[string]store.PlayerRecord)
	if err := s.readFile(playersFile, &raw); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]store.PlayerRecord, len(raw))
	for key, rec := range raw {
		id, err := uuid.Parse(key)
		if err != nil {
			s.log.Warn().Str("id", key).Msg("skipping player record with invalid id")
			continue
		}
		out[id] = rec
	}
	return out, ctx.Err()
}

func (s *Store) SavePlayers(ctx context.Context, players map[uuid.UUID]store.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := make(map[string]store.PlayerRecord, len(players))
	for id, rec := range players {
		raw[id.String()] = rec
	}
	if err := s.writeFile(playersFile, raw); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Store) decodeMembers(channel string, doc membersDoc) store.ChannelMembers {
	decode := func(entries []memberDoc) []store.MemberEntry {
		out := make([]store.MemberEntry, 0, len(entries))
		for _, e := range entries {
			id, err := uuid.Parse(e.ID)
			if err != nil {
				s.log.Warn().Str("channel", channel).Str("id", e.ID).Msg("skipping member with invalid id")
				continue
			}
			out = append(out, store.MemberEntry{ID: id, Name: e.Name})
		}
		return out
	}

	members := store.ChannelMembers{
		Moderators: decode(doc.Moderators),
		Members:    decode(doc.Members),
		Banned:     decode(doc.Banned),
		Muted:      decode(doc.Muted),
	}
	if doc.Owner != nil {
		if id, err := uuid.Parse(doc.Owner.ID); err == nil {
			members.Owner = &store.MemberEntry{ID: id, Name: doc.Owner.Name}
		} else {
			s.log.Warn().Str("channel", channel).Str("id", doc.Owner.ID).Msg("skipping owner with invalid id")
		}
	}
	return members
}

func encodeMembers(m store.ChannelMembers) membersDoc {
	encode := func(entries []store.MemberEntry) []memberDoc {
		out := make([]memberDoc, 0, len(entries))
		for _, e := range entries {
			out = append(out, memberDoc{ID: e.ID.String(), Name: e.Name})
		}
		return out
	}

	doc := membersDoc{
		Moderators: encode(m.Moderators),
		Members:    encode(m.Members),
		Banned:     encode(m.Banned),
		Muted:      encode(m.Muted),
	}
	if m.Owner != nil {
		doc.Owner = &memberDoc{ID: m.Owner.ID.String(), Name: m.Owner.Name}
	}
	return doc
}

func mergeMembers(a, b store.ChannelMembers) store.ChannelMembers {
	merge := func(x, y []store.MemberEntry) []store.MemberEntry {
		seen := make(map[uuid.UUID]struct{}, len(x))
		out := append([]store.MemberEntry(nil), x...)
		for _, e := range x {
			seen[e.ID] = struct{}{}
		}
		for _, e := range y {
			if _, dup := seen[e.ID]; !dup {
				out = append(out, e)
			}
		}
		return out
	}

	a.Moderators = merge(a.Moderators, b.Moderators)
	a.Members = merge(a.Members, b.Members)
	a.Banned = merge(a.Banned, b.Banned)
	a.Muted = merge(a.Muted, b.Muted)
	if a.Owner == nil {
		a.Owner = b.Owner
	}
	return a
}

// readFile unmarshals a JSON file into out. A missing file is not an error;
// out keeps its zero value.
func (s *Store) readFile(name string, out any) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// writeFile marshals v and replaces the target file atomically.
func (s *Store) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
