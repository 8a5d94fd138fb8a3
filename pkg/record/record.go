// Package record defines the core data types of the engram memory system.
// It is the leaf package shared by the storage, vector, and memory layers.
package record

import "time"

// Type is the categorical kind of a memory.
type Type string

const (
	TypeEpisodic    Type = "episodic"
	TypeSemantic    Type = "semantic"
	TypeProcedural  Type = "procedural"
	TypeDeclarative Type = "declarative"
	TypeImplicit    Type = "implicit"
	TypeAssociative Type = "associative"

	// TypeGeneric is the default when no type is given.
	TypeGeneric Type = "generic"
)

// Types lists every valid memory type.
var Types = []Type{
	TypeEpisodic,
	TypeSemantic,
	TypeProcedural,
	TypeDeclarative,
	TypeImplicit,
	TypeAssociative,
	TypeGeneric,
}

// Valid reports whether t is one of the known memory types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Memory is a single user-owned note.
//
// Content is the unit that gets embedded. Embedding is nil when the
// embedding provider was unavailable at insert time; such records are only
// reachable via substring search and are never mirrored into the local
// fallback index.
type Memory struct {
	// ID is assigned at creation and immutable afterwards.
	ID string `json:"id"`

	// OwnerID identifies the owning user. Required for every mutating and
	// query operation.
	OwnerID string `json:"owner_id"`

	Title   string `json:"title"`
	Content string `json:"content"`

	// Context is optional free-text context for the memory.
	Context string `json:"context,omitempty"`

	Tags []string `json:"tags,omitempty"`

	Type Type `json:"type"`

	// Metadata is an open key-value map, passed through unchanged.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Embedding is the vector representation of Content, or nil.
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult is a single similarity match.
//
// Similarity is in [0,1]: 1.0 means identical, 0.0 maximally dissimilar
// under cosine distance. Results produced by substring search carry a fixed
// sentinel score (see storage.SubstringScore) that is not a true similarity
// and must not be compared numerically against real scores.
type SearchResult struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float32        `json:"similarity"`
}

// Stats aggregates an owner's stored memories.
type Stats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
	ByTag  map[string]int `json:"by_tag"`

	// RecentlyAdded counts records created within the trailing 24 hours
	// from call time (wall clock). A record exactly 24h old is excluded.
	RecentlyAdded int `json:"recently_added"`
}
