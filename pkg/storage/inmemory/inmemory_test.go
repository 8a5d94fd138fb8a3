package inmemory_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
	"github.com/engramhq/engram/pkg/storage/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
	})

	Describe("Insert", func() {
		It("should reject a nil record", func() {
			_, err := driver.Insert(ctx, nil)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a record without an owner", func() {
			_, err := driver.Insert(ctx, &record.Memory{Content: "unowned"})
			Expect(err).To(HaveOccurred())
		})

		It("should assign an id and timestamps", func() {
			stored, err := driver.Insert(ctx, &record.Memory{OwnerID: "alice", Content: "hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).NotTo(BeEmpty())
			Expect(stored.CreatedAt).NotTo(BeZero())
			Expect(stored.UpdatedAt).To(Equal(stored.CreatedAt))
		})

		It("should preserve a caller-supplied creation time", func() {
			createdAt := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
			stored, err := driver.Insert(ctx, &record.Memory{
				OwnerID:   "alice",
				Content:   "hello",
				CreatedAt: createdAt,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.CreatedAt).To(Equal(createdAt))
		})

		It("should not share state with the caller's record", func() {
			mem := &record.Memory{
				OwnerID: "alice",
				Content: "hello",
				Tags:    []string{"one"},
			}
			stored, err := driver.Insert(ctx, mem)
			Expect(err).NotTo(HaveOccurred())

			mem.Tags[0] = "mutated"
			got, err := driver.Get(ctx, "alice", stored.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Tags).To(ConsistOf("one"))
		})
	})

	Describe("Get", func() {
		It("should return NotFoundError for an unknown id", func() {
			_, err := driver.Get(ctx, "alice", "missing")
			Expect(errors.As(err, &storage.NotFoundError{})).To(BeTrue())
		})

		It("should not return another owner's record", func() {
			stored, err := driver.Insert(ctx, &record.Memory{OwnerID: "alice", Content: "hello"})
			Expect(err).NotTo(HaveOccurred())

			_, err = driver.Get(ctx, "bob", stored.ID)
			Expect(errors.As(err, &storage.NotFoundError{})).To(BeTrue())
		})
	})

	Describe("RankedSearch", func() {
		BeforeEach(func() {
			for _, m := range []*record.Memory{
				{OwnerID: "alice", Content: "east", Type: record.TypeSemantic, Embedding: []float32{1, 0, 0}},
				{OwnerID: "alice", Content: "north", Type: record.TypeEpisodic, Embedding: []float32{0, 1, 0}},
				{OwnerID: "alice", Content: "unembedded"},
				{OwnerID: "bob", Content: "bob east", Embedding: []float32{1, 0, 0}},
			} {
				_, err := driver.Insert(ctx, m)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should require an owner id and a positive limit", func() {
			_, err := driver.RankedSearch(ctx, storage.RankedQuery{Limit: 5})
			Expect(err).To(HaveOccurred())

			_, err = driver.RankedSearch(ctx, storage.RankedQuery{OwnerID: "alice"})
			Expect(err).To(HaveOccurred())
		})

		It("should rank by descending similarity within one owner", func() {
			results, err := driver.RankedSearch(ctx, storage.RankedQuery{
				OwnerID:   "alice",
				Embedding: []float32{1, 0.2, 0},
				Threshold: 0.1,
				Limit:     10,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Content).To(Equal("east"))
			Expect(results[1].Content).To(Equal("north"))
		})

		It("should apply the threshold", func() {
			results, err := driver.RankedSearch(ctx, storage.RankedQuery{
				OwnerID:   "alice",
				Embedding: []float32{1, 0, 0},
				Threshold: 0.9,
				Limit:     10,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal("east"))
		})

		It("should filter by type", func() {
			results, err := driver.RankedSearch(ctx, storage.RankedQuery{
				OwnerID:   "alice",
				Embedding: []float32{1, 0.2, 0},
				Threshold: 0.1,
				Limit:     10,
				Type:      record.TypeEpisodic,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal("north"))
		})

		It("should never match records without embeddings", func() {
			results, err := driver.RankedSearch(ctx, storage.RankedQuery{
				OwnerID:   "alice",
				Embedding: []float32{1, 1, 1},
				Threshold: 0,
				Limit:     10,
			})
			Expect(err).NotTo(HaveOccurred())
			for _, r := range results {
				Expect(r.Content).NotTo(Equal("unembedded"))
			}
		})

		It("should cap results at the limit", func() {
			results, err := driver.RankedSearch(ctx, storage.RankedQuery{
				OwnerID:   "alice",
				Embedding: []float32{1, 0.2, 0},
				Threshold: 0.1,
				Limit:     1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})
	})

	Describe("SubstringSearch", func() {
		BeforeEach(func() {
			older := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
			newer := older.Add(time.Hour)

			for _, m := range []*record.Memory{
				{OwnerID: "alice", Title: "groceries", Content: "buy milk", CreatedAt: older},
				{OwnerID: "alice", Content: "the MILK was spoiled", CreatedAt: newer},
				{OwnerID: "bob", Content: "milk for bob", CreatedAt: newer},
			} {
				_, err := driver.Insert(ctx, m)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should match case-insensitively against title and content", func() {
			results, err := driver.SubstringSearch(ctx, "alice", "milk", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("should order newest first with the sentinel score", func() {
			results, err := driver.SubstringSearch(ctx, "alice", "milk", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Content).To(Equal("the MILK was spoiled"))
			for _, r := range results {
				Expect(r.Similarity).To(Equal(storage.SubstringScore))
			}
		})

		It("should scope to the owner", func() {
			results, err := driver.SubstringSearch(ctx, "bob", "milk", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal("milk for bob"))
		})
	})

	Describe("ListByOwner and ListAll", func() {
		BeforeEach(func() {
			for _, m := range []*record.Memory{
				{OwnerID: "alice", Content: "one"},
				{OwnerID: "alice", Content: "two"},
				{OwnerID: "bob", Content: "three"},
			} {
				_, err := driver.Insert(ctx, m)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should list only the owner's records", func() {
			records, err := driver.ListByOwner(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		It("should list every record across owners", func() {
			records, err := driver.ListAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
		})
	})
})
