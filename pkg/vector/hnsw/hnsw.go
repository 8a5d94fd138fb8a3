// Package hnsw provides an in-process approximate nearest-neighbor index
// over cosine distance, used as the local fallback when the ranked search
// backend is unreachable.
//
// The index is capacity-bounded: storage is sized up front and inserts past
// capacity are rejected with ErrCapacityExceeded rather than silently
// dropped. It supports one-writer-many-readers concurrency; the capacity
// check is atomic with the insert it guards.
//
// Vectors are normalized at insert time. A zero vector cannot be normalized
// and is pinned to the maximal cosine distance of 1.0 (similarity 0) against
// every query, including another zero vector.
package hnsw

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

var (
	// ErrCapacityExceeded is returned when an insert would grow the index
	// past its configured capacity. The caller's durable write is
	// unaffected; only the local mirror is missing the record.
	ErrCapacityExceeded = errors.New("local index capacity exceeded")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

const (
	defaultM              = 16
	defaultEfConstruction = 200
	defaultEfSearch       = 64
)

// Result is a single nearest-neighbor match.
type Result struct {
	// Handle is the opaque handle supplied at insert time.
	Handle string

	// Distance is the cosine distance to the query, in [0, 2].
	Distance float32
}

// Config holds configuration for the index.
type Config struct {
	// Capacity is the maximum number of vectors the index will hold.
	Capacity int

	// Dimensions is the vector dimensionality.
	Dimensions int

	// M is the number of bidirectional links per node. Zero means default.
	M int

	// EfConstruction is the candidate list size during insertion.
	// Zero means default.
	EfConstruction int

	// EfSearch is the candidate list size during search. Zero means default.
	EfSearch int
}

type indexNode struct {
	handle string

	// vec is the unit-normalized vector, or nil for a zero vector.
	vec []float32

	// neighbors holds neighbor node ids per layer, layer 0 first.
	neighbors [][]int
}

// Index is a hierarchical navigable small world graph.
type Index struct {
	mu sync.RWMutex

	capacity       int
	dimensions     int
	m              int
	maxM0          int
	efConstruction int
	efSearch       int
	levelMult      float64

	rng      *rand.Rand
	entry    int
	maxLevel int
	nodes    []*indexNode
}

// New creates an index pre-sized for cfg.Capacity vectors.
func New(cfg Config) (*Index, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("index capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("index dimensions must be positive, got %d", cfg.Dimensions)
	}

	m := cfg.M
	if m <= 0 {
		m = defaultM
	}
	efC := cfg.EfConstruction
	if efC <= 0 {
		efC = defaultEfConstruction
	}
	efS := cfg.EfSearch
	if efS <= 0 {
		efS = defaultEfSearch
	}

	return &Index{
		capacity:       cfg.Capacity,
		dimensions:     cfg.Dimensions,
		m:              m,
		maxM0:          2 * m,
		efConstruction: efC,
		efSearch:       efS,
		levelMult:      1.0 / math.Log(float64(m)),
		// Fixed seed keeps layer assignment reproducible across runs.
		rng:      rand.New(rand.NewSource(1)),
		entry:    -1,
		nodes:    make([]*indexNode, 0, cfg.Capacity),
		maxLevel: 0,
	}, nil
}

// Len returns the number of vectors currently held.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// Capacity returns the configured maximum number of vectors.
func (ix *Index) Capacity() int {
	return ix.capacity
}

// Insert adds a vector under an opaque handle.
//
// Insertion is not idempotent: re-inserting the same logical record is the
// caller's responsibility to avoid. Returns ErrCapacityExceeded when the
// index is full and ErrDimensionMismatch when the vector has the wrong
// length.
func (ix *Index) Insert(vec []float32, handle string) error {
	if len(vec) != ix.dimensions {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dimensions)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(ix.nodes) >= ix.capacity {
		return fmt.Errorf("%w: capacity %d", ErrCapacityExceeded, ix.capacity)
	}

	level := ix.randomLevel()
	n := &indexNode{
		handle:    handle,
		vec:       normalize(vec),
		neighbors: make([][]int, level+1),
	}

	id := len(ix.nodes)
	ix.nodes = append(ix.nodes, n)

	if ix.entry < 0 {
		ix.entry = id
		ix.maxLevel = level
		return nil
	}

	// Greedy descent through layers above the new node's level.
	cur := ix.entry
	for l := ix.maxLevel; l > level; l-- {
		cur = ix.greedyClosest(n.vec, cur, l)
	}

	// Link into each layer from the node's level down to 0.
	top := level
	if top > ix.maxLevel {
		top = ix.maxLevel
	}
	for l := top; l >= 0; l-- {
		cands := ix.searchLayer(n.vec, cur, ix.efConstruction, l)

		maxLinks := ix.m
		if l == 0 {
			maxLinks = ix.maxM0
		}

		for i, c := range cands {
			if i >= ix.m {
				break
			}
			n.neighbors[l] = append(n.neighbors[l], c.id)
			other := ix.nodes[c.id]
			other.neighbors[l] = append(other.neighbors[l], id)
			if len(other.neighbors[l]) > maxLinks {
				ix.pruneNeighbors(other, l, maxLinks)
			}
		}

		if len(cands) > 0 {
			cur = cands[0].id
		}
	}

	if level > ix.maxLevel {
		ix.maxLevel = level
		ix.entry = id
	}

	return nil
}

// Search returns up to k nearest neighbors ordered by ascending cosine
// distance. Fewer than k results are returned when the index holds fewer
// than k vectors; an empty index yields an empty result, not an error.
func (ix *Index) Search(vec []float32, k int) ([]Result, error) {
	if len(vec) != ix.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.nodes) == 0 {
		return nil, nil
	}

	q := normalize(vec)

	cur := ix.entry
	for l := ix.maxLevel; l > 0; l-- {
		cur = ix.greedyClosest(q, cur, l)
	}

	ef := ix.efSearch
	if k > ef {
		ef = k
	}
	cands := ix.searchLayer(q, cur, ef, 0)

	if len(cands) > k {
		cands = cands[:k]
	}

	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		results = append(results, Result{
			Handle:   ix.nodes[c.id].handle,
			Distance: c.dist,
		})
	}

	return results, nil
}

// randomLevel draws a layer for a new node from the standard exponentially
// decaying distribution.
func (ix *Index) randomLevel() int {
	return int(-math.Log(ix.rng.Float64()) * ix.levelMult)
}

// greedyClosest walks a single layer toward the query until no neighbor is
// closer than the current node.
func (ix *Index) greedyClosest(q []float32, start, level int) int {
	cur := start
	curDist := ix.distanceTo(q, cur)

	for {
		improved := false
		for _, nb := range ix.nodes[cur].neighbors[level] {
			if d := ix.distanceTo(q, nb); d < curDist {
				cur = nb
				curDist = d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer runs a best-first search over one layer, returning up to ef
// candidates ordered by ascending distance (ties broken by node id).
func (ix *Index) searchLayer(q []float32, start, ef, level int) []candidate {
	visited := map[int]bool{start: true}

	startCand := candidate{id: start, dist: ix.distanceTo(q, start)}
	cands := &candMinHeap{startCand}
	results := &candMaxHeap{startCand}

	for cands.Len() > 0 {
		nearest := heap.Pop(cands).(candidate)
		if results.Len() >= ef && nearest.dist > (*results)[0].dist {
			break
		}

		for _, nb := range ix.nodes[nearest.id].neighbors[level] {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			d := ix.distanceTo(q, nb)
			if results.Len() < ef || d < (*results)[0].dist {
				c := candidate{id: nb, dist: d}
				heap.Push(cands, c)
				heap.Push(results, c)
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].id < out[j].id
	})

	return out
}

// pruneNeighbors trims a node's neighbor list on one layer to the closest
// maxLinks entries.
func (ix *Index) pruneNeighbors(n *indexNode, level, maxLinks int) {
	nbs := n.neighbors[level]
	sort.Slice(nbs, func(i, j int) bool {
		di := ix.distance(n, ix.nodes[nbs[i]])
		dj := ix.distance(n, ix.nodes[nbs[j]])
		if di != dj {
			return di < dj
		}
		return nbs[i] < nbs[j]
	})
	n.neighbors[level] = nbs[:maxLinks]
}

// distanceTo computes cosine distance between a normalized query (possibly
// nil for a zero vector) and a stored node.
func (ix *Index) distanceTo(q []float32, id int) float32 {
	n := ix.nodes[id]
	if q == nil || n.vec == nil {
		return 1.0
	}
	return 1.0 - dot(q, n.vec)
}

func (ix *Index) distance(a, b *indexNode) float32 {
	if a.vec == nil || b.vec == nil {
		return 1.0
	}
	return 1.0 - dot(a.vec, b.vec)
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize returns a unit-length copy of vec, or nil for a zero vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

type candidate struct {
	id   int
	dist float32
}

// candMinHeap pops the closest candidate first.
type candMinHeap []candidate

func (h candMinHeap) Len() int { return len(h) }
func (h candMinHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].id < h[j].id
}
func (h candMinHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candMinHeap) Push(x any) { *h = append(*h, x.(candidate)) }
func (h *candMinHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// candMaxHeap pops the furthest candidate first, bounding the result set.
type candMaxHeap []candidate

func (h candMaxHeap) Len() int { return len(h) }
func (h candMaxHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].id > h[j].id
}
func (h candMaxHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candMaxHeap) Push(x any) { *h = append(*h, x.(candidate)) }
func (h *candMaxHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
