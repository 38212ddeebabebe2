package memory

import (
	"context"
	"sync"

	"github.com/knowvault/linkcycle/internal/links"
)

// HistoryStore keeps the append-only scrape audit trail in memory.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]links.ScrapeHistoryEntry
	seen    map[string]struct{}
}

// NewHistoryStore constructs a HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		entries: make(map[string][]links.ScrapeHistoryEntry),
		seen:    make(map[string]struct{}),
	}
}

// Append records one attempt. Entries are never mutated afterwards.
func (s *HistoryStore) Append(_ context.Context, entry links.ScrapeHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.LinkID] = append(s.entries[entry.LinkID], entry)
	s.seen[entry.LinkID+"/"+entry.JobID] = struct{}{}
	return nil
}

// HasJob reports whether the link/job pair was already recorded.
func (s *HistoryStore) HasJob(_ context.Context, linkID, jobID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[linkID+"/"+jobID]
	return ok, nil
}

// ListByLink returns the most recent entries for a link, newest first.
func (s *HistoryStore) ListByLink(_ context.Context, linkID string, limit int) ([]links.ScrapeHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.entries[linkID]
	out := make([]links.ScrapeHistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
