package vector_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
	"github.com/engramhq/engram/pkg/storage/inmemory"
	testutils "github.com/engramhq/engram/pkg/utils/test"
	"github.com/engramhq/engram/pkg/vector"
	"github.com/engramhq/engram/pkg/vector/hnsw"
)

const testDims = 3

var _ = Describe("Store", func() {
	var (
		ctx      context.Context
		logger   *zap.Logger
		backend  *testutils.FlakyBackend
		embedder *testutils.MockEmbedder
		store    *vector.Store
	)

	newStore := func(cfg vector.Config) *vector.Store {
		s, err := vector.NewStore(ctx, cfg, backend, embedder, logger)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = zap.NewNop()
		backend = testutils.NewFlakyBackend(inmemory.NewDriver())
		embedder = testutils.NewMockEmbedder(testDims)
		embedder.Embeddings["the sky is blue"] = []float32{1, 0, 0}
		embedder.Embeddings["sky color"] = []float32{0.9, 0.1, 0}
		embedder.Embeddings["dogs bark loudly"] = []float32{0, 1, 0}
		store = newStore(vector.Config{Dimensions: testDims})
	})

	Describe("Add", func() {
		It("should reject a missing owner id before any other work", func() {
			_, err := store.Add(ctx, &record.Memory{Content: "unscoped"})
			Expect(err).To(MatchError(vector.ErrMissingOwner))
			Expect(embedder.Calls).To(BeZero())
		})

		It("should embed, persist, and mirror the record", func() {
			stored, err := store.Add(ctx, &record.Memory{
				OwnerID: "alice",
				Content: "the sky is blue",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).NotTo(BeEmpty())
			Expect(stored.Embedding).To(Equal([]float32{1, 0, 0}))
			Expect(store.IndexLen()).To(Equal(1))
		})

		Context("when the embedding provider is unavailable", func() {
			BeforeEach(func() {
				embedder.Unavailable = true
			})

			It("should persist the record without an embedding", func() {
				stored, err := store.Add(ctx, &record.Memory{
					OwnerID: "alice",
					Content: "the sky is blue",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Embedding).To(BeNil())
				Expect(store.IndexLen()).To(BeZero())
			})
		})

		Context("when the local index is full", func() {
			BeforeEach(func() {
				store = newStore(vector.Config{Dimensions: testDims, IndexCapacity: 1})
			})

			It("should persist the record and surface the capacity condition", func() {
				_, err := store.Add(ctx, &record.Memory{OwnerID: "alice", Content: "the sky is blue"})
				Expect(err).NotTo(HaveOccurred())

				stored, err := store.Add(ctx, &record.Memory{OwnerID: "alice", Content: "dogs bark loudly"})
				Expect(err).To(MatchError(hnsw.ErrCapacityExceeded))
				Expect(stored).NotTo(BeNil())

				// Durable storage has both, the index only the first.
				all, err := backend.ListAll(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(2))
				Expect(store.IndexLen()).To(Equal(1))
			})
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			_, err := store.Add(ctx, &record.Memory{OwnerID: "alice", Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Add(ctx, &record.Memory{OwnerID: "alice", Content: "dogs bark loudly"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject a missing owner id", func() {
			_, err := store.Search(ctx, "", "sky color", vector.SearchOptions{})
			Expect(err).To(MatchError(vector.ErrMissingOwner))
		})

		It("should return ranked matches above the threshold", func() {
			results, err := store.Search(ctx, "alice", "sky color", vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal("the sky is blue"))
			Expect(results[0].Similarity).To(BeNumerically(">=", 0.7))
		})

		It("should include weaker matches when the threshold is lowered", func() {
			results, err := store.Search(ctx, "alice", "sky color", vector.SearchOptions{Threshold: 0.05})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Content).To(Equal("the sky is blue"))
			Expect(results[1].Similarity).To(BeNumerically("<=", results[0].Similarity))
		})

		It("should return an empty result when nothing matches", func() {
			embedder.Embeddings["submarines"] = []float32{0, 0, 1}
			results, err := store.Search(ctx, "alice", "submarines", vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("should not see another owner's records", func() {
			results, err := store.Search(ctx, "bob", "sky color", vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		Context("when the embedding provider is unavailable", func() {
			BeforeEach(func() {
				embedder.Unavailable = true
			})

			It("should fall back to substring search with the sentinel score", func() {
				results, err := store.Search(ctx, "alice", "sky", vector.SearchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(1))
				Expect(results[0].Content).To(Equal("the sky is blue"))
				Expect(results[0].Similarity).To(Equal(storage.SubstringScore))
				Expect(backend.RankedCalls).To(BeZero())
			})

			It("should absorb a substring backend failure into an empty result", func() {
				backend.FailSubstring = true
				results, err := store.Search(ctx, "alice", "sky", vector.SearchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(BeEmpty())
			})
		})

		Context("when the ranked backend fails", func() {
			BeforeEach(func() {
				backend.FailRanked = true
			})

			It("should fall back to the local index", func() {
				results, err := store.Search(ctx, "alice", "sky color", vector.SearchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).NotTo(BeEmpty())
				Expect(results[0].Content).To(Equal("the sky is blue"))
			})

			It("should order local results by descending similarity", func() {
				results, err := store.Search(ctx, "alice", "sky color", vector.SearchOptions{})
				Expect(err).NotTo(HaveOccurred())
				for i := 1; i < len(results); i++ {
					Expect(results[i].Similarity).To(BeNumerically("<=", results[i-1].Similarity))
				}
			})

			It("should owner-filter local results", func() {
				results, err := store.Search(ctx, "bob", "sky color", vector.SearchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(BeEmpty())
			})
		})
	})

	Describe("rebuild on start", func() {
		It("should mirror embedded records from the backend", func() {
			_, err := store.Add(ctx, &record.Memory{OwnerID: "alice", Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())

			embedder.Unavailable = true
			_, err = store.Add(ctx, &record.Memory{OwnerID: "alice", Content: "no embedding"})
			Expect(err).NotTo(HaveOccurred())
			embedder.Unavailable = false

			// A fresh store over the same backend mirrors only the embedded record.
			rebuilt := newStore(vector.Config{Dimensions: testDims})
			Expect(rebuilt.IndexLen()).To(Equal(1))
		})

		It("should serve local fallback queries after a rebuild", func() {
			_, err := store.Add(ctx, &record.Memory{OwnerID: "alice", Content: "the sky is blue"})
			Expect(err).NotTo(HaveOccurred())

			rebuilt := newStore(vector.Config{Dimensions: testDims})
			backend.FailRanked = true

			results, err := rebuilt.Search(ctx, "alice", "sky color", vector.SearchOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal("the sky is blue"))
		})
	})
})
