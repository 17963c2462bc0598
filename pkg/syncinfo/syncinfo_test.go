package syncinfo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSyncManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncinfo.json")

	sm, err := NewSyncManager(path)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return fixed }

	if err := sm.MarkSuccess(); err != nil {
		t.Fatalf("Failed to save sync info: %v", err)
	}

	sm.now = func() time.Time { return fixed.Add(time.Minute) }
	if err := sm.MarkFailure(errors.New("network unavailable")); err != nil {
		t.Fatalf("Failed to save sync info: %v", err)
	}

	// A fresh manager picks the data up from the file.
	loaded, err := NewSyncManager(path)
	if err != nil {
		t.Fatalf("Failed to load sync info from file: %v", err)
	}
	info := loaded.Get()
	if !info.LastSync.Equal(fixed) {
		t.Errorf("LastSync = %v, want %v", info.LastSync, fixed)
	}
	if !info.LastAttempt.Equal(fixed.Add(time.Minute)) {
		t.Errorf("LastAttempt = %v, want %v", info.LastAttempt, fixed.Add(time.Minute))
	}
	if !info.Offline() {
		t.Error("expected offline after a failed attempt")
	}
}

func TestSyncManager_InMemory(t *testing.T) {
	sm, err := NewSyncManager("")
	if err != nil {
		t.Fatal(err)
	}
	if err := sm.MarkSuccess(); err != nil {
		t.Fatal(err)
	}
	if sm.Get().LastSync.IsZero() || sm.Get().Offline() {
		t.Errorf("unexpected state: %+v", sm.Get())
	}
}

func TestSyncManager_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncinfo.json")
	if err := os.WriteFile(path, []byte("2024-01-01T00:00:00Z"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSyncManager(path); err == nil {
		t.Error("expected a parse error for a non-JSON file")
	}
}
