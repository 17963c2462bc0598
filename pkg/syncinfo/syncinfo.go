// Package syncinfo records when the table last reached the remote resource.
package syncinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// SyncInfo represents data about the last synchronization.
type SyncInfo struct {
	LastSync    time.Time `json:"last_sync"`    // last successful remote fetch
	LastAttempt time.Time `json:"last_attempt"` // last fetch attempt, successful or not
	LastError   string    `json:"last_error,omitempty"`
}

// Offline reports whether the latest attempt failed.
func (s SyncInfo) Offline() bool {
	return s.LastError != ""
}

// SyncManager manages access to and updates of synchronization data.
type SyncManager struct {
	fileMutex sync.Mutex   // serializes file writes
	mu        sync.RWMutex // guards info
	info      SyncInfo
	filename  string // empty keeps the data in memory only
	now       func() time.Time
}

// NewSyncManager creates a SyncManager and loads any data already stored in fileName.
func NewSyncManager(fileName string) (*SyncManager, error) {
	sm := &SyncManager{filename: fileName, now: func() time.Time { return time.Now().UTC() }}
	if fileName == "" {
		return sm, nil
	}
	if _, err := sm.LoadFromFile(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return sm, nil
}

// Get returns the current synchronization data.
func (sm *SyncManager) Get() SyncInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.info
}

// MarkSuccess stamps a successful fetch and saves it.
func (sm *SyncManager) MarkSuccess() error {
	now := sm.now()
	sm.mu.Lock()
	sm.info = SyncInfo{LastSync: now, LastAttempt: now}
	sm.mu.Unlock()
	return sm.SaveToFile()
}

// MarkFailure stamps a failed fetch and saves it. LastSync is kept.
func (sm *SyncManager) MarkFailure(cause error) error {
	sm.mu.Lock()
	sm.info.LastAttempt = sm.now()
	sm.info.LastError = cause.Error()
	sm.mu.Unlock()
	return sm.SaveToFile()
}

// SaveToFile saves synchronization data to a file.
func (sm *SyncManager) SaveToFile() error {
	if sm.filename == "" {
		return nil
	}
	sm.fileMutex.Lock()
	defer sm.fileMutex.Unlock()

	data, err := json.Marshal(sm.Get())
	if err != nil {
		return err
	}
	if err := os.WriteFile(sm.filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to save sync info: %w", err)
	}
	return nil
}

// LoadFromFile loads synchronization data from a file and makes it current.
func (sm *SyncManager) LoadFromFile() (SyncInfo, error) {
	sm.fileMutex.Lock()
	defer sm.fileMutex.Unlock()

	content, err := os.ReadFile(sm.filename)
	if err != nil {
		return SyncInfo{}, err
	}
	var info SyncInfo
	if len(content) > 0 {
		if err := json.Unmarshal(content, &info); err != nil {
			return SyncInfo{}, fmt.Errorf("failed to parse %s: %w", sm.filename, err)
		}
	}

	sm.mu.Lock()
	sm.info = info
	sm.mu.Unlock()
	return info, nil
}
