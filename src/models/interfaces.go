package models

import (
	"context"
)

// SearchRequest asks a VectorIndex for the nearest neighbors of an embedding.
type SearchRequest struct {
	Embedding []float32
	Scope     SearchScope
	Limit     int
}

// SearchResult pairs a candidate entry with its cosine similarity.
type SearchResult struct {
	Entry      *CacheEntry
	Similarity float64
}

// ListFilter narrows a full-population scan.
type ListFilter struct {
	IncludeArchived bool
	Tier            Tier // optional; empty matches all tiers
}

// VectorIndex is the narrow seam over the vector store. The engine's
// matching, tiering and prediction logic only ever talks to this, so it can
// run against Redis in production and an exact in-memory index in tests.
type VectorIndex interface {
	// Search returns non-archived candidates in scope, ordered by
	// descending similarity.
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
	Get(ctx context.Context, id string) (*CacheEntry, error)
	Insert(ctx context.Context, entry *CacheEntry) error
	// Update writes the entry back only if its stored Version still equals
	// expectedVersion, bumping Version on success. A concurrent write in
	// between surfaces as ErrVersionConflict.
	Update(ctx context.Context, entry *CacheEntry, expectedVersion int64) error
	// BulkUpdate applies conditional updates entry by entry and returns how
	// many were written. Entries that conflict are skipped, not retried.
	BulkUpdate(ctx context.Context, entries []*CacheEntry) (int, error)
	List(ctx context.Context, filter ListFilter) ([]*CacheEntry, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	Close() error
}

// Embedder turns text into a fixed-dimension vector. How is somebody
// else's problem.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// UpstreamClient obtains a fresh model answer, used on prewarm.
type UpstreamClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AccessRecorder is the scorer's seam seen from the matcher: notify that an
// entry was just served, with the monetary value of the hit.
type AccessRecorder interface {
	RecordAccess(ctx context.Context, entryID string, saving float64, tokens int) (float64, error)
}
