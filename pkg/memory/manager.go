// Package memory provides the record manager for the engram system.
//
// The Manager owns the memory lifecycle: it validates input, delegates
// embedding and search to the vector store, persists through the storage
// driver, and aggregates per-owner statistics. Every operation is
// owner-scoped and fails with vector.ErrMissingOwner before any other work
// when unscoped.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/eventstream"
	"github.com/engramhq/engram/pkg/eventstream/nop"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
	"github.com/engramhq/engram/pkg/vector"
	"github.com/engramhq/engram/pkg/vector/hnsw"
)

// recentWindow is the trailing wall-clock window for Stats.RecentlyAdded.
// A record exactly recentWindow old does not count.
const recentWindow = 24 * time.Hour

var (
	// ErrEmptyContent indicates a memory without content, which is the
	// unit that gets embedded.
	ErrEmptyContent = errors.New("memory content is required")

	// ErrEmptyQuery indicates a search without query text.
	ErrEmptyQuery = errors.New("search query is required")
)

// AddInput holds the caller-supplied fields of a new memory.
type AddInput struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Context  string         `json:"context,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Type     record.Type    `json:"type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Manager owns the memory record lifecycle.
type Manager struct {
	store  *vector.Store
	storer storage.Driver
	events eventstream.Publisher
	logger *zap.Logger

	// now is swappable for tests pinning the stats window boundary.
	now func() time.Time
}

// NewManager creates a manager. A nil publisher disables events via the
// no-op publisher.
func NewManager(store *vector.Store, storer storage.Driver, events eventstream.Publisher, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if storer == nil {
		return nil, errors.New("storage driver is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if events == nil {
		events = nop.NewPublisher()
	}

	return &Manager{
		store:  store,
		storer: storer,
		events: events,
		logger: logger,
		now:    time.Now,
	}, nil
}

// AddMemory creates a memory for one owner.
//
// The owner check runs before any other work so an unscoped call never
// spends an embedding call. When the local fallback index is full the
// memory is still persisted and the returned error wraps
// hnsw.ErrCapacityExceeded alongside the stored record.
func (m *Manager) AddMemory(ctx context.Context, ownerID string, in AddInput) (*record.Memory, error) {
	if ownerID == "" {
		return nil, vector.ErrMissingOwner
	}
	if in.Content == "" {
		return nil, ErrEmptyContent
	}

	typ := in.Type
	if typ == "" {
		typ = record.TypeGeneric
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown memory type: %q", typ)
	}

	mem := &record.Memory{
		OwnerID:  ownerID,
		Title:    in.Title,
		Content:  in.Content,
		Context:  in.Context,
		Tags:     in.Tags,
		Type:     typ,
		Metadata: in.Metadata,
	}

	stored, err := m.store.Add(ctx, mem)
	if err != nil && !errors.Is(err, hnsw.ErrCapacityExceeded) {
		return nil, err
	}

	m.publishCreated(ctx, stored)

	if err != nil {
		// Durable write succeeded; the local mirror did not. Surface the
		// distinct condition with the stored record.
		return stored, err
	}

	m.logger.Debug("memory added",
		zap.String("id", stored.ID),
		zap.String("owner_id", ownerID),
		zap.String("type", string(stored.Type)),
	)

	return stored, nil
}

// SearchMemories runs a similarity search for one owner. Defaults: limit 5,
// threshold 0.7 on the ranked path; the threshold is ignored on the
// substring fallback.
func (m *Manager) SearchMemories(ctx context.Context, ownerID, query string, opts vector.SearchOptions) ([]record.SearchResult, error) {
	if ownerID == "" {
		return nil, vector.ErrMissingOwner
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}

	return m.store.Search(ctx, ownerID, query, opts)
}

// GetMemory retrieves one memory by id.
func (m *Manager) GetMemory(ctx context.Context, ownerID, id string) (*record.Memory, error) {
	if ownerID == "" {
		return nil, vector.ErrMissingOwner
	}

	return m.storer.Get(ctx, ownerID, id)
}

// Stats aggregates an owner's stored memories. ByType values partition the
// total exactly; ByTag counts each tag occurrence, so its sum may exceed
// the total. RecentlyAdded counts records created strictly within the
// trailing 24 hours of wall clock.
func (m *Manager) Stats(ctx context.Context, ownerID string) (*record.Stats, error) {
	if ownerID == "" {
		return nil, vector.ErrMissingOwner
	}

	records, err := m.storer.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	stats := &record.Stats{
		Total:  len(records),
		ByType: make(map[string]int),
		ByTag:  make(map[string]int),
	}

	cutoff := m.now().Add(-recentWindow)
	for _, mem := range records {
		stats.ByType[string(mem.Type)]++
		for _, tag := range mem.Tags {
			stats.ByTag[tag]++
		}
		if mem.CreatedAt.After(cutoff) {
			stats.RecentlyAdded++
		}
	}

	return stats, nil
}

// Close releases the manager's event publisher. Storage and embedder
// lifecycles belong to whoever constructed them.
func (m *Manager) Close() error {
	return m.events.Close()
}

// publishCreated emits a creation event, best-effort.
func (m *Manager) publishCreated(ctx context.Context, mem *record.Memory) {
	if mem == nil {
		return
	}

	if err := m.events.PublishMemoryCreated(ctx, eventstream.NewMemoryCreated(mem)); err != nil {
		m.logger.Warn("failed to publish memory created event",
			zap.String("id", mem.ID),
			zap.Error(err),
		)
	}
}
