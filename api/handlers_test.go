package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage/inmemory"
	testutils "github.com/engramhq/engram/pkg/utils/test"
	"github.com/engramhq/engram/pkg/vector"
)

var _ = Describe("Server", func() {
	var (
		server   *Server
		embedder *testutils.MockEmbedder
	)

	BeforeEach(func() {
		logger := zap.NewNop()
		storer := inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder(3)
		embedder.Embeddings["the sky is blue"] = []float32{1, 0, 0}
		embedder.Embeddings["sky color"] = []float32{0.9, 0.1, 0}

		store, err := vector.NewStore(context.Background(), vector.Config{Dimensions: 3}, storer, embedder, logger)
		Expect(err).NotTo(HaveOccurred())

		manager, err := memory.NewManager(store, storer, nil, logger)
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{ListenAddr: ":0"}, manager, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	do := func(req *http.Request) *http.Response {
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, out any) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, out)).To(Succeed())
	}

	addMemory := func(owner, content string) AddMemoryResponse {
		body, err := json.Marshal(memory.AddInput{Content: content})
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, "/memories", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(OwnerHeader, owner)

		resp := do(req)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var created AddMemoryResponse
		decode(resp, &created)
		return created
	}

	Describe("GET /ping", func() {
		It("should respond with pong", func() {
			resp := do(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /memories", func() {
		It("should require the owner header", func() {
			body, _ := json.Marshal(memory.AddInput{Content: "unscoped"})
			req := httptest.NewRequest(http.MethodPost, "/memories", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject empty content", func() {
			body, _ := json.Marshal(memory.AddInput{})
			req := httptest.NewRequest(http.MethodPost, "/memories", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(OwnerHeader, "alice")

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should create a memory", func() {
			created := addMemory("alice", "the sky is blue")
			Expect(created.Memory).NotTo(BeNil())
			Expect(created.Memory.ID).NotTo(BeEmpty())
			Expect(created.Memory.OwnerID).To(Equal("alice"))
			Expect(created.Warning).To(BeEmpty())
		})
	})

	Describe("GET /memories/search", func() {
		BeforeEach(func() {
			addMemory("alice", "the sky is blue")
		})

		It("should require the owner header", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/search?query=sky", nil)
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should require a query", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/search", nil)
			req.Header.Set(OwnerHeader, "alice")
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a non-positive limit", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/search?query=sky&limit=0", nil)
			req.Header.Set(OwnerHeader, "alice")
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject an out-of-range threshold", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/search?query=sky&threshold=1.5", nil)
			req.Header.Set(OwnerHeader, "alice")
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject an unknown type", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/search?query=sky&type=telepathic", nil)
			req.Header.Set(OwnerHeader, "alice")
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return ranked matches", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/search?query="+
				"sky+color", nil)
			req.Header.Set(OwnerHeader, "alice")

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Count).To(Equal(1))
			Expect(out.Results[0].Content).To(Equal("the sky is blue"))
		})

		It("should not leak other owners' memories", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/search?query=sky+color", nil)
			req.Header.Set(OwnerHeader, "bob")

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out SearchResponse
			decode(resp, &out)
			Expect(out.Count).To(BeZero())
		})
	})

	Describe("GET /memories/stats", func() {
		It("should require the owner header", func() {
			resp := do(httptest.NewRequest(http.MethodGet, "/memories/stats", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should aggregate the owner's memories", func() {
			for i := 0; i < 3; i++ {
				addMemory("alice", fmt.Sprintf("memory %d", i))
			}
			addMemory("bob", "bob's memory")

			req := httptest.NewRequest(http.MethodGet, "/memories/stats", nil)
			req.Header.Set(OwnerHeader, "alice")

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var stats record.Stats
			decode(resp, &stats)
			Expect(stats.Total).To(Equal(3))
			Expect(stats.RecentlyAdded).To(Equal(3))
		})
	})

	Describe("GET /memories/:id", func() {
		It("should return 404 for an unknown id", func() {
			req := httptest.NewRequest(http.MethodGet, "/memories/missing", nil)
			req.Header.Set(OwnerHeader, "alice")
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return the stored memory", func() {
			created := addMemory("alice", "the sky is blue")

			req := httptest.NewRequest(http.MethodGet, "/memories/"+created.Memory.ID, nil)
			req.Header.Set(OwnerHeader, "alice")

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var mem record.Memory
			decode(resp, &mem)
			Expect(mem.Content).To(Equal("the sky is blue"))
		})

		It("should not serve another owner's memory", func() {
			created := addMemory("alice", "the sky is blue")

			req := httptest.NewRequest(http.MethodGet, "/memories/"+created.Memory.ID, nil)
			req.Header.Set(OwnerHeader, "bob")

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
