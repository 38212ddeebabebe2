// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/knowvault/linkcycle/internal/links"
)

// LinkStore is an in-memory link registry keyed by URL.
type LinkStore struct {
	mu    sync.RWMutex
	byID  map[string]links.LinkRecord
	byURL map[string]string
}

// NewLinkStore constructs a LinkStore.
func NewLinkStore() *LinkStore {
	return &LinkStore{
		byID:  make(map[string]links.LinkRecord),
		byURL: make(map[string]string),
	}
}

// Upsert inserts a new record or merges a rediscovery into the existing
// record for the same URL. Priority only ever goes up.
func (s *LinkStore) Upsert(_ context.Context, rec links.LinkRecord) (links.LinkRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byURL[rec.URL]; ok {
		existing := s.byID[id]
		if rec.Title != "" {
			existing.Title = rec.Title
		}
		if rec.ContentType != links.ContentTypeUnknown {
			existing.ContentType = rec.ContentType
		}
		if rec.Priority > existing.Priority {
			existing.Priority = rec.Priority
		}
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]any, len(rec.Metadata))
		}
		for k, v := range rec.Metadata {
			existing.Metadata[k] = v
		}
		existing.UpdatedAt = rec.UpdatedAt
		s.byID[id] = existing
		return existing, false, nil
	}

	s.byID[rec.ID] = rec
	s.byURL[rec.URL] = rec.ID
	return rec, true, nil
}

// Get fetches a record by ID.
func (s *LinkStore) Get(_ context.Context, id string) (links.LinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return links.LinkRecord{}, links.ErrNotFound
	}
	return rec, nil
}

// GetByURL fetches a record by its natural key.
func (s *LinkStore) GetByURL(_ context.Context, url string) (links.LinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	if !ok {
		return links.LinkRecord{}, links.ErrNotFound
	}
	return s.byID[id], nil
}

// SelectDue returns active records due at or before now, priority
// descending then earliest due time first (never-scraped links ahead of
// dated ones at equal priority).
func (s *LinkStore) SelectDue(_ context.Context, now time.Time, limit int) ([]links.LinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []links.LinkRecord
	for _, rec := range s.byID {
		if rec.Status != links.LinkStatusActive {
			continue
		}
		if rec.NextScrape != nil && rec.NextScrape.After(now) {
			continue
		}
		due = append(due, rec)
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return dueTime(due[i]).Before(dueTime(due[j]))
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// MarkScheduled reserves a link for the current interval.
func (s *LinkStore) MarkScheduled(_ context.Context, id string, lastScraped, nextScrape time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return links.ErrNotFound
	}
	last := lastScraped
	next := nextScrape
	rec.LastScraped = &last
	rec.NextScrape = &next
	rec.UpdatedAt = lastScraped
	s.byID[id] = rec
	return nil
}

// RecordOutcome applies a scrape outcome per the registry state machine.
func (s *LinkStore) RecordOutcome(
	_ context.Context,
	id string,
	success bool,
	errText string,
	at time.Time,
) (links.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return links.LinkRecord{}, links.ErrNotFound
	}
	if success {
		rec.SuccessCount++
		rec.LastError = ""
		rec.Status = links.LinkStatusActive
	} else {
		rec.ErrorCount++
		rec.LastError = errText
		if rec.ErrorCount >= links.ErrorThreshold {
			rec.Status = links.LinkStatusError
		}
	}
	rec.UpdatedAt = at
	s.byID[id] = rec
	return rec, nil
}

func dueTime(rec links.LinkRecord) time.Time {
	if rec.NextScrape == nil {
		// Never-scheduled links sort ahead of any dated due time.
		return time.Time{}
	}
	return *rec.NextScrape
}
