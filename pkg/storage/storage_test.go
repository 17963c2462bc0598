package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wurt83ow/tablekeeper/pkg/models"
)

type failingKV struct{}

var errDisk = errors.New("disk on fire")

func (failingKV) Get(context.Context, string) (string, bool, error) { return "", false, errDisk }
func (failingKV) Put(context.Context, string, string) error { return errDisk }
func (failingKV) Delete(context.Context, string) error { return errDisk }

// keyFailKV rejects writes to a single key.
type keyFailKV struct {
	*MemoryKV
	key string
}

func (k keyFailKV) Put(ctx context.Context, key, value string) error {
	if key == k.key {
		return errDisk
	}
	return k.MemoryKV.Put(ctx, key, value)
}

func TestStore_EmptyByDefault(t *testing.T) {
	s := New(NewMemoryKV(), nil)

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
	assert.Empty(t, snap.Deleted)
	assert.Equal(t, 0, snap.MaxID())
}

func TestStore_UpdatePersists(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := New(kv, nil)

	err := s.Update(ctx, func(snap *Snapshot) error {
		snap.Upsert(models.NewEntry(1, map[string]string{"name": "A"}))
		snap.Upsert(models.NewEntry(2, map[string]string{"name": "B"}))
		snap.Remove(2)
		snap.Tombstone(2)
		return nil
	})
	require.NoError(t, err)

	raw, ok, _ := kv.Get(ctx, CacheKey)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":1,"name":"A"}]`, raw)
	raw, ok, _ = kv.Get(ctx, TombstoneKey)
	require.True(t, ok)
	assert.JSONEq(t, `[2]`, raw)

	snap, err := New(kv, nil).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1)
	assert.True(t, snap.IsDeleted(2))
	assert.Equal(t, 2, snap.MaxID())
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := New(kv, nil)

	boom := errors.New("boom")
	err := s.Update(ctx, func(snap *Snapshot) error {
		snap.Upsert(models.NewEntry(1, nil))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok, _ := kv.Get(ctx, CacheKey)
	assert.False(t, ok)
}

func TestStore_RemovedEntryNeverResurfacesOnPartialWrite(t *testing.T) {
	ctx := context.Background()
	removeOne := func(snap *Snapshot) error {
		snap.Remove(1)
		snap.Tombstone(1)
		return nil
	}

	t.Run("tombstone write fails", func(t *testing.T) {
		kv := keyFailKV{MemoryKV: NewMemoryKV(), key: TombstoneKey}
		s := New(kv, nil)
		require.NoError(t, s.Update(ctx, func(snap *Snapshot) error {
			snap.Upsert(models.NewEntry(1, map[string]string{"name": "Local"}))
			return nil
		}))

		err := s.Update(ctx, removeOne)
		assert.ErrorIs(t, err, errDisk)

		snap, err := s.Load(ctx)
		require.NoError(t, err)
		e, ok := snap.Find(1)
		require.True(t, ok)
		assert.Equal(t, "Local", e.Fields["name"])
	})

	t.Run("cache write fails", func(t *testing.T) {
		kv := keyFailKV{MemoryKV: NewMemoryKV(), key: CacheKey}
		require.NoError(t, kv.MemoryKV.Put(ctx, CacheKey, `[{"id":1,"name":"Local"}]`))
		s := New(kv, nil)

		err := s.Update(ctx, removeOne)
		assert.ErrorIs(t, err, errDisk)

		snap, err := s.Load(ctx)
		require.NoError(t, err)
		assert.True(t, snap.IsDeleted(1))
		assert.Empty(t, snap.Live())
	})
}

func TestStore_MalformedDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, CacheKey, "{not json"))
	require.NoError(t, kv.Put(ctx, TombstoneKey, `"nope"`))

	snap, err := New(kv, nil).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
	assert.Empty(t, snap.Deleted)
}

func TestStore_SkipsBadAndDuplicateEntries(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, CacheKey, `[{"id":1,"name":"A"},{"name":"no id"},{"id":1,"name":"dup"},{"id":4}]`))

	snap, err := New(kv, nil).Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "A", snap.Entries[0].Get("name"))
	assert.Equal(t, 4, snap.Entries[1].ID)
}

func TestStore_KVFailureIsReturned(t *testing.T) {
	s := New(failingKV{}, nil)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, errDisk)
}

func TestStore_ClearTombstonesKeepsCache(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV(), nil)
	require.NoError(t, s.Update(ctx, func(snap *Snapshot) error {
		snap.Upsert(models.NewEntry(1, map[string]string{"name": "A"}))
		snap.Tombstone(9)
		return nil
	}))

	require.NoError(t, s.ClearTombstones(ctx))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1)
	assert.False(t, snap.IsDeleted(9))
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryKV(), nil)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(ctx, func(snap *Snapshot) error {
				snap.Upsert(models.NewEntry(snap.MaxID()+1, nil))
				return nil
			})
		}()
	}
	wg.Wait()

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 50)
	assert.Equal(t, 50, snap.MaxID())
}

func TestSnapshot_UpsertMerges(t *testing.T) {
	var snap Snapshot
	snap.Upsert(models.NewEntry(1, map[string]string{"name": "A", "role": "User"}))
	got := snap.Upsert(models.NewEntry(1, map[string]string{"role": "Admin"}))

	assert.Equal(t, map[string]string{"name": "A", "role": "Admin"}, got.Fields)
	assert.Len(t, snap.Entries, 1)

	snap.Tombstone(1)
	assert.Empty(t, snap.Live())
}
