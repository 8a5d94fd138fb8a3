// Package storage defines the durable store contract for engram memories.
//
// The durable store is the source of truth for records and their
// embeddings. It also hosts the ranked similarity tier: RankedSearch runs
// server-side against all of an owner's stored embeddings, which is why a
// backend fault there triggers the in-process fallback index rather than a
// hard failure.
package storage

import (
	"context"

	"github.com/engramhq/engram/pkg/record"
)

// SubstringScore is the sentinel similarity attached to substring-search
// results. It is not a true similarity score: substring search runs only
// when no embedding capability exists at all, so there is no vector to
// score against. Never compare it numerically with real scores.
const SubstringScore float32 = 0.8

// RankedQuery describes a server-side ranked similarity search.
type RankedQuery struct {
	// OwnerID scopes the search to one user's records. Required.
	OwnerID string

	// Embedding is the query vector.
	Embedding []float32

	// Threshold is the minimum similarity in [0,1] for a result to be
	// eligible.
	Threshold float32

	// Limit caps the number of results. Must be positive.
	Limit int

	// Type optionally restricts results to one memory type.
	// Empty means all types.
	Type record.Type
}

// Driver defines the interface for persisting and querying memories in a
// durable backend.
type Driver interface {
	// Insert persists a record and returns the stored copy. A missing ID
	// is assigned by the driver; CreatedAt/UpdatedAt are set when zero.
	// Records without an embedding are stored but excluded from ranked
	// search.
	Insert(ctx context.Context, mem *record.Memory) (*record.Memory, error)

	// Get retrieves one record by owner and id.
	// Returns NotFoundError when absent.
	Get(ctx context.Context, ownerID, id string) (*record.Memory, error)

	// RankedSearch returns matches with similarity >= q.Threshold, ordered
	// by descending similarity, at most q.Limit of them. Records without
	// embeddings never match.
	RankedSearch(ctx context.Context, q RankedQuery) ([]record.SearchResult, error)

	// SubstringSearch returns records whose title or content contains the
	// query text, newest first, with similarity fixed at SubstringScore.
	SubstringSearch(ctx context.Context, ownerID, query string, limit int) ([]record.SearchResult, error)

	// ListByOwner returns all of an owner's records. Used for stats.
	ListByOwner(ctx context.Context, ownerID string) ([]*record.Memory, error)

	// ListAll returns every stored record with embeddings hydrated. Used
	// to rebuild the local fallback index after a restart.
	ListAll(ctx context.Context) ([]*record.Memory, error)

	// Close closes the store and releases any resources.
	Close() error
}
