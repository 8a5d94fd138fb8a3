package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/eventstream"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
	"github.com/engramhq/engram/pkg/storage/inmemory"
	testutils "github.com/engramhq/engram/pkg/utils/test"
	"github.com/engramhq/engram/pkg/vector"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*eventstream.MemoryCreatedEvent
	fail   bool
}

func (p *capturePublisher) PublishMemoryCreated(_ context.Context, event *eventstream.MemoryCreatedEvent) error {
	if p.fail {
		return errors.New("publish failed")
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) Close() error { return nil }

var _ = Describe("Manager", func() {
	var (
		ctx      context.Context
		logger   *zap.Logger
		storer   storage.Driver
		embedder *testutils.MockEmbedder
		events   *capturePublisher
		manager  *Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = zap.NewNop()
		storer = inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder(3)
		embedder.Embeddings["the sky is blue"] = []float32{1, 0, 0}
		embedder.Embeddings["sky color"] = []float32{0.9, 0.1, 0}
		events = &capturePublisher{}

		store, err := vector.NewStore(ctx, vector.Config{Dimensions: 3}, storer, embedder, logger)
		Expect(err).NotTo(HaveOccurred())

		manager, err = NewManager(store, storer, events, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("AddMemory", func() {
		It("should reject a missing owner before anything else", func() {
			_, err := manager.AddMemory(ctx, "", AddInput{Content: "unscoped"})
			Expect(err).To(MatchError(vector.ErrMissingOwner))
			Expect(embedder.Calls).To(BeZero())
		})

		It("should reject empty content", func() {
			_, err := manager.AddMemory(ctx, "alice", AddInput{})
			Expect(err).To(MatchError(ErrEmptyContent))
		})

		It("should reject an unknown memory type", func() {
			_, err := manager.AddMemory(ctx, "alice", AddInput{
				Content: "the sky is blue",
				Type:    "telepathic",
			})
			Expect(err).To(HaveOccurred())
		})

		It("should default the type to generic", func() {
			stored, err := manager.AddMemory(ctx, "alice", AddInput{Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Type).To(Equal(record.TypeGeneric))
		})

		It("should store all caller-supplied fields", func() {
			stored, err := manager.AddMemory(ctx, "alice", AddInput{
				Title:    "sky",
				Content:  "the sky is blue",
				Context:  "observed at noon",
				Tags:     []string{"color", "nature"},
				Type:     record.TypeSemantic,
				Metadata: map[string]any{"source": "observation"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Title).To(Equal("sky"))
			Expect(stored.Context).To(Equal("observed at noon"))
			Expect(stored.Tags).To(ConsistOf("color", "nature"))
			Expect(stored.Type).To(Equal(record.TypeSemantic))
			Expect(stored.Metadata).To(HaveKeyWithValue("source", "observation"))
		})

		It("should publish a creation event", func() {
			stored, err := manager.AddMemory(ctx, "alice", AddInput{
				Content: "the sky is blue",
				Tags:    []string{"color"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(events.events).To(HaveLen(1))
			event := events.events[0]
			Expect(event.EventType).To(Equal(eventstream.EventTypeMemoryCreated))
			Expect(event.OwnerID).To(Equal("alice"))
			Expect(event.MemoryID).To(Equal(stored.ID))
			Expect(event.Embedded).To(BeTrue())
		})

		It("should not fail the add when publishing fails", func() {
			events.fail = true
			_, err := manager.AddMemory(ctx, "alice", AddInput{Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("SearchMemories", func() {
		BeforeEach(func() {
			_, err := manager.AddMemory(ctx, "alice", AddInput{Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject a missing owner", func() {
			_, err := manager.SearchMemories(ctx, "", "sky color", vector.SearchOptions{})
			Expect(err).To(MatchError(vector.ErrMissingOwner))
		})

		It("should reject an empty query", func() {
			_, err := manager.SearchMemories(ctx, "alice", "", vector.SearchOptions{})
			Expect(err).To(MatchError(ErrEmptyQuery))
		})

		It("should find semantically similar memories", func() {
			results, err := manager.SearchMemories(ctx, "alice", "sky color", vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal("the sky is blue"))
			Expect(results[0].Similarity).To(BeNumerically(">=", 0.7))
		})
	})

	Describe("GetMemory", func() {
		It("should reject a missing owner", func() {
			_, err := manager.GetMemory(ctx, "", "some-id")
			Expect(err).To(MatchError(vector.ErrMissingOwner))
		})

		It("should return NotFoundError for an unknown id", func() {
			_, err := manager.GetMemory(ctx, "alice", "missing")
			Expect(errors.As(err, &storage.NotFoundError{})).To(BeTrue())
		})

		It("should not return another owner's memory", func() {
			stored, err := manager.AddMemory(ctx, "alice", AddInput{Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())

			_, err = manager.GetMemory(ctx, "bob", stored.ID)
			Expect(errors.As(err, &storage.NotFoundError{})).To(BeTrue())
		})

		It("should return the stored memory", func() {
			stored, err := manager.AddMemory(ctx, "alice", AddInput{Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())

			got, err := manager.GetMemory(ctx, "alice", stored.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("the sky is blue"))
		})
	})

	Describe("Stats", func() {
		var now time.Time

		BeforeEach(func() {
			now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
			manager.now = func() time.Time { return now }
		})

		addAt := func(createdAt time.Time, typ record.Type, tags ...string) {
			_, err := storer.Insert(ctx, &record.Memory{
				OwnerID:   "alice",
				Content:   "memory",
				Type:      typ,
				Tags:      tags,
				CreatedAt: createdAt,
			})
			Expect(err).NotTo(HaveOccurred())
		}

		It("should reject a missing owner", func() {
			_, err := manager.Stats(ctx, "")
			Expect(err).To(MatchError(vector.ErrMissingOwner))
		})

		It("should return zero stats for an empty owner", func() {
			stats, err := manager.Stats(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(BeZero())
			Expect(stats.RecentlyAdded).To(BeZero())
		})

		It("should partition the total exactly by type", func() {
			addAt(now.Add(-time.Hour), record.TypeSemantic, "a")
			addAt(now.Add(-2*time.Hour), record.TypeSemantic, "a", "b")
			addAt(now.Add(-3*time.Hour), record.TypeEpisodic)

			stats, err := manager.Stats(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(Equal(3))

			sum := 0
			for _, n := range stats.ByType {
				sum += n
			}
			Expect(sum).To(Equal(stats.Total))
			Expect(stats.ByType).To(HaveKeyWithValue(string(record.TypeSemantic), 2))
			Expect(stats.ByType).To(HaveKeyWithValue(string(record.TypeEpisodic), 1))
		})

		It("should count each tag occurrence", func() {
			addAt(now.Add(-time.Hour), record.TypeGeneric, "a")
			addAt(now.Add(-2*time.Hour), record.TypeGeneric, "a", "b")

			stats, err := manager.Stats(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.ByTag).To(HaveKeyWithValue("a", 2))
			Expect(stats.ByTag).To(HaveKeyWithValue("b", 1))
		})

		It("should exclude records exactly at the 24h boundary", func() {
			addAt(now.Add(-24*time.Hour), record.TypeGeneric)
			addAt(now.Add(-24*time.Hour+time.Minute), record.TypeGeneric)
			addAt(now.Add(-25*time.Hour), record.TypeGeneric)

			stats, err := manager.Stats(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(Equal(3))
			Expect(stats.RecentlyAdded).To(Equal(1))
		})

		It("should not count other owners", func() {
			addAt(now.Add(-time.Hour), record.TypeGeneric)
			_, err := storer.Insert(ctx, &record.Memory{
				OwnerID:   "bob",
				Content:   "bob's memory",
				Type:      record.TypeGeneric,
				CreatedAt: now.Add(-time.Hour),
			})
			Expect(err).NotTo(HaveOccurred())

			stats, err := manager.Stats(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(Equal(1))
		})
	})
})
