// Package inmemory provides a map-backed storage driver for tests and
// local development. Ranked search is a brute-force cosine scan, which is
// exact rather than approximate but honors the same contract as the real
// backends.
package inmemory

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu guards the records map.
	mu sync.RWMutex

	// records maps record id to the stored memory.
	records map[string]*record.Memory
}

// NewDriver creates a new in-memory storer.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]*record.Memory),
	}
}

// Insert persists a record, assigning an id and timestamps when missing.
func (s *Driver) Insert(_ context.Context, mem *record.Memory) (*record.Memory, error) {
	if mem == nil {
		return nil, errors.New("cannot store nil record")
	}
	if mem.OwnerID == "" {
		return nil, errors.New("record owner id is required")
	}

	stored := clone(mem)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}

	s.mu.Lock()
	s.records[stored.ID] = stored
	s.mu.Unlock()

	return clone(stored), nil
}

// Get retrieves a record by owner and id.
func (s *Driver) Get(_ context.Context, ownerID, id string) (*record.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mem, ok := s.records[id]
	if !ok || mem.OwnerID != ownerID {
		return nil, storage.NotFoundError{ID: id}
	}

	return clone(mem), nil
}

// RankedSearch brute-forces cosine similarity over the owner's embedded
// records.
func (s *Driver) RankedSearch(_ context.Context, q storage.RankedQuery) ([]record.SearchResult, error) {
	if q.OwnerID == "" {
		return nil, errors.New("ranked search requires an owner id")
	}
	if q.Limit <= 0 {
		return nil, errors.New("ranked search requires a positive limit")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]record.SearchResult, 0)
	for _, mem := range s.records {
		if mem.OwnerID != q.OwnerID || mem.Embedding == nil {
			continue
		}
		if q.Type != "" && mem.Type != q.Type {
			continue
		}

		sim := cosineSimilarity(q.Embedding, mem.Embedding)
		if sim < q.Threshold {
			continue
		}

		results = append(results, record.SearchResult{
			ID:         mem.ID,
			Content:    mem.Content,
			Metadata:   mem.Metadata,
			Similarity: sim,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results, nil
}

// SubstringSearch matches the query text against titles and content,
// case-insensitively, newest first.
func (s *Driver) SubstringSearch(_ context.Context, ownerID, query string, limit int) ([]record.SearchResult, error) {
	if ownerID == "" {
		return nil, errors.New("substring search requires an owner id")
	}
	if limit <= 0 {
		return nil, errors.New("substring search requires a positive limit")
	}

	needle := strings.ToLower(query)

	s.mu.RLock()
	matched := make([]*record.Memory, 0)
	for _, mem := range s.records {
		if mem.OwnerID != ownerID {
			continue
		}
		if strings.Contains(strings.ToLower(mem.Title), needle) ||
			strings.Contains(strings.ToLower(mem.Content), needle) {
			matched = append(matched, mem)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	results := make([]record.SearchResult, 0, len(matched))
	for _, mem := range matched {
		results = append(results, record.SearchResult{
			ID:         mem.ID,
			Content:    mem.Content,
			Metadata:   mem.Metadata,
			Similarity: storage.SubstringScore,
		})
	}

	return results, nil
}

// ListByOwner returns all records for one owner.
func (s *Driver) ListByOwner(_ context.Context, ownerID string) ([]*record.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*record.Memory, 0)
	for _, mem := range s.records {
		if mem.OwnerID == ownerID {
			out = append(out, clone(mem))
		}
	}

	return out, nil
}

// ListAll returns every stored record.
func (s *Driver) ListAll(_ context.Context) ([]*record.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*record.Memory, 0, len(s.records))
	for _, mem := range s.records {
		out = append(out, clone(mem))
	}

	return out, nil
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}

// clone copies a record so callers never share internal state.
func clone(mem *record.Memory) *record.Memory {
	out := *mem
	if mem.Tags != nil {
		out.Tags = append([]string(nil), mem.Tags...)
	}
	if mem.Embedding != nil {
		out.Embedding = append([]float32(nil), mem.Embedding...)
	}
	if mem.Metadata != nil {
		out.Metadata = make(map[string]any, len(mem.Metadata))
		for k, v := range mem.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	return float32(sim)
}

var _ storage.Driver = (*Driver)(nil)
