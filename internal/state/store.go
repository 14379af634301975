// Package state persists selection and processing progress across runs.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fileFormat is the JSON shape of the backing store.
type fileFormat struct {
	ProcessedIDs []string       `json:"processed_ids"`
	SelectedIDs  []string       `json:"selected_ids"`
	FailedIDs    []string       `json:"failed_ids"`
	DirUsage     map[string]int `json:"dir_usage"`
}

// Store tracks which item identities have been selected, processed, or have
// permanently failed, plus per-directory usage counts. All access is
// serialized by an internal mutex; workers never touch the backing file
// directly, only the checkpoint writer calls Save.
type Store struct {
	mu        sync.Mutex
	path      string
	processed map[string]struct{}
	selected  map[string]struct{}
	failed    map[string]struct{}
	dirUsage  map[string]int

	// claimed tracks ids claimed by this process. Never persisted: a
	// selection carried over from an interrupted run is claimable again,
	// while a second claim within one run is a duplicate.
	claimed map[string]struct{}
}

// Load reads the store from path. A missing or corrupt file yields an empty
// store, never an error: losing a checkpoint must not block a run.
func Load(path string) *Store {
	s := &Store{
		path:      path,
		processed: make(map[string]struct{}),
		selected:  make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		dirUsage:  make(map[string]int),
		claimed:   make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state file unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		slog.Warn("state file corrupt, starting empty", "path", path, "error", err)
		return s
	}

	for _, id := range ff.ProcessedIDs {
		s.processed[id] = struct{}{}
	}
	for _, id := range ff.SelectedIDs {
		s.selected[id] = struct{}{}
	}
	for _, id := range ff.FailedIDs {
		s.failed[id] = struct{}{}
	}
	if ff.DirUsage != nil {
		s.dirUsage = ff.DirUsage
	}
	return s
}

// Save atomically overwrites the backing file: marshal, write to a temp file
// in the same directory, rename over the target.
func (s *Store) Save() error {
	s.mu.Lock()
	ff := fileFormat{
		ProcessedIDs: sortedKeys(s.processed),
		SelectedIDs:  sortedKeys(s.selected),
		FailedIDs:    sortedKeys(s.failed),
		DirUsage:     make(map[string]int, len(s.dirUsage)),
	}
	for d, n := range s.dirUsage {
		ff.DirUsage[d] = n
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Claim records id as selected and owned by this process. Returns false
// when the id was already processed or already claimed this run; the caller
// must then skip remote work. An id left selected by an interrupted run is
// claimable, so recovered items are never demoted to duplicates. The
// test-and-set is atomic, which is what makes duplicate suppression correct
// under concurrent workers.
func (s *Store) Claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[id]; ok {
		return false
	}
	if _, ok := s.claimed[id]; ok {
		return false
	}
	s.claimed[id] = struct{}{}
	s.selected[id] = struct{}{}
	return true
}

// MarkProcessed records a durable completion for id.
func (s *Store) MarkProcessed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = struct{}{}
	delete(s.selected, id)
}

// MarkFailed records id as permanently failed. Failed items are also marked
// processed so they are not re-selected until the failed set is cleared.
func (s *Store) MarkFailed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = struct{}{}
	s.processed[id] = struct{}{}
	delete(s.selected, id)
}

// IsProcessed reports whether id has a durable completion.
func (s *Store) IsProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok
}

// IsFailed reports whether id is in the failed set.
func (s *Store) IsFailed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.failed[id]
	return ok
}

// Skip reports whether discovery should pass over id entirely.
func (s *Store) Skip(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[id]; ok {
		return true
	}
	if _, ok := s.selected[id]; ok {
		return true
	}
	return false
}

// PendingSelections returns ids that were selected by an earlier run but
// never reached processed — the interrupted work that must be retried before
// new items are drawn.
func (s *Store) PendingSelections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.selected)
}

// DirUsage returns how many items have been drawn from dir across runs.
func (s *Store) DirUsage(dir string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirUsage[dir]
}

// AddDirUsage bumps the usage counter for dir.
func (s *Store) AddDirUsage(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirUsage[dir]++
}

// ClearFailed empties the failed set and removes failed ids from processed,
// making them eligible for rediscovery.
func (s *Store) ClearFailed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.failed)
	for id := range s.failed {
		delete(s.processed, id)
	}
	s.failed = make(map[string]struct{})
	return n
}

// Counts returns (processed, selected, failed) set sizes.
func (s *Store) Counts() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed), len(s.selected), len(s.failed)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
