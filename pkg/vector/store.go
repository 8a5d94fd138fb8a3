// Package vector provides the store coordinating embedding generation, the
// ranked search backend, and the local fallback index behind one search
// contract.
//
// A query walks a fixed ladder: embed the query text; run the backend's
// ranked search; on backend failure, query the in-process index; with no
// embedding capability at all, fall back to substring search. Each rung
// degrades to weaker but still useful behavior — only a missing owner id is
// a hard failure.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/embeddings"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
	"github.com/engramhq/engram/pkg/vector/hnsw"
)

const (
	// DefaultLimit is the result cap applied when a query specifies none.
	DefaultLimit = 5

	// DefaultThreshold is the minimum similarity applied on the ranked
	// path when a query specifies none. It is ignored on the substring
	// fallback path.
	DefaultThreshold float32 = 0.7

	// DefaultIndexCapacity sizes the local fallback index when the
	// configuration gives no capacity.
	DefaultIndexCapacity = 10000

	// fallbackOverfetch widens local index queries so enough neighbors
	// survive the owner filter. The index is process-wide across owners;
	// the ranked backend filters server-side but the index cannot.
	fallbackOverfetch = 4

	// snippetLen bounds the content snippet carried on fallback results.
	snippetLen = 200
)

// SearchOptions tune a similarity search.
type SearchOptions struct {
	// Threshold is the minimum similarity in [0,1].
	// Zero means DefaultThreshold.
	Threshold float32

	// Limit caps the number of results. Zero means DefaultLimit.
	Limit int

	// Type optionally restricts results to one memory type.
	Type record.Type
}

// Config holds configuration for the store.
type Config struct {
	// IndexCapacity is the maximum number of vectors the local fallback
	// index will hold. Zero means DefaultIndexCapacity.
	IndexCapacity int

	// Dimensions is the embedding dimensionality.
	// Zero means embeddings.Dimensions.
	Dimensions int
}

// recordMeta is the sidecar the store keeps per mirrored record so fallback
// results can be owner-filtered and carry a content snippet even while the
// backend is down.
type recordMeta struct {
	ownerID  string
	snippet  string
	metadata map[string]any
}

// Store coordinates the embedder, the ranked backend, and the local
// fallback index.
type Store struct {
	backend  storage.Driver
	embedder embeddings.Embedder
	index    *hnsw.Index
	logger   *zap.Logger

	// mu guards meta.
	mu   sync.RWMutex
	meta map[string]recordMeta
}

// NewStore creates a store and rebuilds the local fallback index from the
// durable backend. The rebuild is required: the insert-time dual write is
// not transactional, so the index may be missing records after a crash and
// durable storage is the source of truth.
func NewStore(ctx context.Context, cfg Config, backend storage.Driver, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		return nil, errors.New("storage backend is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	capacity := cfg.IndexCapacity
	if capacity <= 0 {
		capacity = DefaultIndexCapacity
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = embeddings.Dimensions
	}

	index, err := hnsw.New(hnsw.Config{
		Capacity:   capacity,
		Dimensions: dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating local index: %w", err)
	}

	s := &Store{
		backend:  backend,
		embedder: embedder,
		index:    index,
		logger:   logger,
		meta:     make(map[string]recordMeta),
	}

	if err := s.rebuild(ctx); err != nil {
		return nil, fmt.Errorf("rebuilding local index: %w", err)
	}

	return s, nil
}

// rebuild mirrors every embedded record from the durable backend into the
// local index.
func (s *Store) rebuild(ctx context.Context) error {
	records, err := s.backend.ListAll(ctx)
	if err != nil {
		return err
	}

	mirrored := 0
	for _, mem := range records {
		if mem.Embedding == nil {
			continue
		}

		if err := s.mirror(mem); err != nil {
			if errors.Is(err, hnsw.ErrCapacityExceeded) {
				s.logger.Warn("local index full during rebuild, remaining records not mirrored",
					zap.Int("mirrored", mirrored),
					zap.Int("total", len(records)),
				)
				break
			}
			return err
		}
		mirrored++
	}

	s.logger.Info("local index rebuilt",
		zap.Int("mirrored", mirrored),
		zap.Int("records", len(records)),
	)

	return nil
}

// mirror inserts one embedded record into the local index and its sidecar.
func (s *Store) mirror(mem *record.Memory) error {
	if err := s.index.Insert(mem.Embedding, mem.ID); err != nil {
		return err
	}

	s.mu.Lock()
	s.meta[mem.ID] = recordMeta{
		ownerID:  mem.OwnerID,
		snippet:  snippet(mem.Content),
		metadata: mem.Metadata,
	}
	s.mu.Unlock()

	return nil
}

// Add embeds a record's content when possible, persists the record, and
// mirrors the embedding into the local index.
//
// The dual write is not transactional: the durable write always wins. When
// the local index is full the record is still persisted and Add returns the
// stored record together with an error wrapping hnsw.ErrCapacityExceeded so
// the caller sees the degraded mirror as a distinct condition.
func (s *Store) Add(ctx context.Context, mem *record.Memory) (*record.Memory, error) {
	if mem == nil {
		return nil, errors.New("cannot add nil record")
	}
	if mem.OwnerID == "" {
		return nil, ErrMissingOwner
	}

	embedding, err := s.embedder.Embed(ctx, mem.Content)
	switch {
	case err == nil:
		mem.Embedding = embedding
	case errors.Is(err, embeddings.ErrUnavailable):
		// Persist without an embedding; the record stays reachable via
		// substring search and is re-embeddable later.
		s.logger.Debug("embedding unavailable, storing without embedding",
			zap.String("owner_id", mem.OwnerID),
		)
		mem.Embedding = nil
	default:
		return nil, fmt.Errorf("embedding content: %w", err)
	}

	stored, err := s.backend.Insert(ctx, mem)
	if err != nil {
		return nil, fmt.Errorf("persisting record: %w", err)
	}

	if stored.Embedding != nil {
		if err := s.mirror(stored); err != nil {
			s.logger.Warn("failed to mirror record into local index",
				zap.String("id", stored.ID),
				zap.Error(err),
			)
			return stored, fmt.Errorf("mirroring record %s: %w", stored.ID, err)
		}
	}

	return stored, nil
}

// Search runs a similarity query for one owner.
//
// The result is always an ordered (possibly empty) sequence: backend and
// provider unavailability degrade the search, they never fail it. Only
// ErrMissingOwner and an empty query propagate as errors.
func (s *Store) Search(ctx context.Context, ownerID, query string, opts SearchOptions) ([]record.SearchResult, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, embeddings.ErrUnavailable) {
			return s.substringSearch(ctx, ownerID, query, limit)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.backend.RankedSearch(ctx, storage.RankedQuery{
		OwnerID:   ownerID,
		Embedding: embedding,
		Threshold: threshold,
		Limit:     limit,
		Type:      opts.Type,
	})
	if err == nil {
		return results, nil
	}

	s.logger.Warn("ranked search backend failed, falling back to local index",
		zap.String("owner_id", ownerID),
		zap.Error(err),
	)

	return s.localSearch(ownerID, embedding, limit), nil
}

// substringSearch is the degraded path when no embedding capability exists.
// The threshold does not apply here; results carry the sentinel score.
func (s *Store) substringSearch(ctx context.Context, ownerID, query string, limit int) ([]record.SearchResult, error) {
	results, err := s.backend.SubstringSearch(ctx, ownerID, query, limit)
	if err != nil {
		// No further fallback exists on this path; absorb the failure
		// into an empty result.
		s.logger.Warn("substring search failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		return []record.SearchResult{}, nil
	}

	return results, nil
}

// localSearch queries the fallback index and owner-filters the neighbors.
// Best effort: an empty or failing index yields an empty result, never an
// error.
func (s *Store) localSearch(ownerID string, embedding []float32, limit int) []record.SearchResult {
	neighbors, err := s.index.Search(embedding, limit*fallbackOverfetch)
	if err != nil {
		s.logger.Warn("local index search failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		return []record.SearchResult{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]record.SearchResult, 0, limit)
	for _, nb := range neighbors {
		meta, ok := s.meta[nb.Handle]
		if !ok || meta.ownerID != ownerID {
			continue
		}

		results = append(results, record.SearchResult{
			ID:         nb.Handle,
			Content:    meta.snippet,
			Metadata:   meta.metadata,
			Similarity: clampSimilarity(1.0 - nb.Distance),
		})
		if len(results) == limit {
			break
		}
	}

	return results
}

// IndexLen reports how many vectors the local fallback index holds.
func (s *Store) IndexLen() int {
	return s.index.Len()
}

func clampSimilarity(sim float32) float32 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// snippet bounds content for fallback results, which cannot reach the
// backend for the full text.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLen {
		return content
	}
	return string(runes[:snippetLen]) + "..."
}
