package store

import (
	"context"
	"sync"

	"github.com/recall-ai/recall/src/models"
)

// MemoryIndex is an exact brute-force in-memory implementation of
// models.VectorIndex. It backs the test suite and the "memory" dev backend;
// it is never the production source of truth.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]*models.CacheEntry),
	}
}

func (s *MemoryIndex) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyEntry(entry), nil
}

func (s *MemoryIndex) Insert(ctx context.Context, entry *models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Version = 1
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (s *MemoryIndex) Update(ctx context.Context, entry *models.CacheEntry, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[entry.ID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return models.ErrVersionConflict
	}

	// Archived always wins over a concurrent tier write.
	if stored.IsArchived {
		entry.IsArchived = true
		entry.Tier = models.TierArchived
	}

	entry.Version = expectedVersion + 1
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (s *MemoryIndex) BulkUpdate(ctx context.Context, entries []*models.CacheEntry) (int, error) {
	updated := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		err := s.Update(ctx, entry, entry.Version)
		if err == models.ErrVersionConflict || err == models.ErrNotFound {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *MemoryIndex) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SearchResult
	for _, entry := range s.entries {
		if entry.IsArchived || len(entry.Embedding) == 0 {
			continue
		}
		if !inScope(entry, req.Scope) {
			continue
		}
		sim := CosineSimilarity(req.Embedding, entry.Embedding)
		results = append(results, models.SearchResult{Entry: copyEntry(entry), Similarity: sim})
	}

	SortResults(results)

	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

func (s *MemoryIndex) List(ctx context.Context, filter models.ListFilter) ([]*models.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*models.CacheEntry
	for _, entry := range s.entries {
		if matchesFilter(entry, filter) {
			entries = append(entries, copyEntry(entry))
		}
	}
	return entries, nil
}

func (s *MemoryIndex) Count(ctx context.Context, filter models.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, entry := range s.entries {
		if matchesFilter(entry, filter) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryIndex) Close() error {
	return nil
}

func copyEntry(entry *models.CacheEntry) *models.CacheEntry {
	dup := *entry
	if entry.Embedding != nil {
		dup.Embedding = make([]float32, len(entry.Embedding))
		copy(dup.Embedding, entry.Embedding)
	}
	return &dup
}
