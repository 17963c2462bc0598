package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/wurt83ow/tablekeeper/pkg/logger"
	"github.com/wurt83ow/tablekeeper/pkg/models"
)

const (
	CacheKey     = "entryCache"
	TombstoneKey = "deletedEntryIds"
)

// ErrCacheRead marks persisted cache data that could not be decoded.
var ErrCacheRead = errors.New("malformed cache data")

// Snapshot is the decoded cache: known entries plus tombstoned ids.
type Snapshot struct {
	Entries []models.Entry
	Deleted map[int]struct{}
}

func (s *Snapshot) Find(id int) (models.Entry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return models.Entry{}, false
}

// Upsert merges fields into the cached entry with e's id, appending e if absent.
func (s *Snapshot) Upsert(e models.Entry) models.Entry {
	for i := range s.Entries {
		if s.Entries[i].ID == e.ID {
			s.Entries[i] = s.Entries[i].Merge(e.Fields)
			return s.Entries[i].Clone()
		}
	}
	e = e.Clone()
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	s.Entries = append(s.Entries, e)
	return e.Clone()
}

func (s *Snapshot) Remove(id int) {
	s.Entries = slices.DeleteFunc(s.Entries, func(e models.Entry) bool { return e.ID == id })
}

func (s *Snapshot) Tombstone(id int) {
	if s.Deleted == nil {
		s.Deleted = make(map[int]struct{})
	}
	s.Deleted[id] = struct{}{}
}

func (s *Snapshot) IsDeleted(id int) bool {
	_, ok := s.Deleted[id]
	return ok
}

// Live returns cached entries that are not tombstoned.
func (s *Snapshot) Live() []models.Entry {
	out := make([]models.Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if !s.IsDeleted(e.ID) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// MaxID is the highest id known to the cache, tombstoned ids included.
func (s *Snapshot) MaxID() int {
	highest := 0
	for _, e := range s.Entries {
		highest = max(highest, e.ID)
	}
	for id := range s.Deleted {
		highest = max(highest, id)
	}
	return highest
}

// Store persists the cache in a KV and serializes every read-modify-write on it.
type Store struct {
	kv  KV
	log logger.LoggerInterface
	mu  sync.Mutex
}

func New(kv KV, log logger.LoggerInterface) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{kv: kv, log: log}
}

// Load reads the cache. Malformed data degrades to an empty cache; only KV failures are returned.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Update runs fn on the current snapshot and writes the result back, holding the store lock throughout.
func (s *Store) Update(ctx context.Context, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&snap); err != nil {
		return err
	}
	return s.save(ctx, snap)
}

// ClearTombstones forgets every deleted id. Cached entries stay.
func (s *Store) ClearTombstones(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, TombstoneKey); err != nil {
		return fmt.Errorf("failed to clear tombstones: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Deleted: make(map[int]struct{})}

	raw, ok, err := s.kv.Get(ctx, CacheKey)
	if err != nil {
		return snap, fmt.Errorf("failed to read cache: %w", err)
	}
	if ok {
		entries, err := decodeEntries(raw)
		if err != nil {
			s.log.Warn("discarding cached entries", "err", err)
		}
		snap.Entries = entries
	}

	raw, ok, err = s.kv.Get(ctx, TombstoneKey)
	if err != nil {
		return snap, fmt.Errorf("failed to read tombstones: %w", err)
	}
	if ok {
		var ids []int
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			s.log.Warn("discarding tombstones", "err", fmt.Errorf("%w: %v", ErrCacheRead, err))
		}
		for _, id := range ids {
			snap.Deleted[id] = struct{}{}
		}
	}
	return snap, nil
}

// save writes tombstones before entries. A failure between the two writes
// leaves a removed entry hidden rather than resurrected.
func (s *Store) save(ctx context.Context, snap Snapshot) error {
	if len(snap.Deleted) > 0 {
		ids := make([]int, 0, len(snap.Deleted))
		for id := range snap.Deleted {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		data, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("failed to marshal tombstones: %w", err)
		}
		if err := s.kv.Put(ctx, TombstoneKey, string(data)); err != nil {
			return fmt.Errorf("failed to write tombstones: %w", err)
		}
	}

	entries := snap.Entries
	if entries == nil {
		entries = []models.Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := s.kv.Put(ctx, CacheKey, string(data)); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// decodeEntries keeps every well-formed entry and drops duplicates after the first.
func decodeEntries(raw string) ([]models.Entry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheRead, err)
	}
	entries := make([]models.Entry, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	var bad int
	for _, item := range items {
		var e models.Entry
		if err := json.Unmarshal(item, &e); err != nil {
			bad++
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		entries = append(entries, e)
	}
	if bad > 0 {
		return entries, fmt.Errorf("%w: %d unreadable entries", ErrCacheRead, bad)
	}
	return entries, nil
}
