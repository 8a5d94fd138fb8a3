package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/pkg/record"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryCreated is emitted after a memory is persisted.
	EventTypeMemoryCreated = "engram.memory.created"
)

// MemoryCreatedEvent is a transport-neutral event payload for a persisted
// memory. It carries identifiers and shape, never the content or the
// embedding.
type MemoryCreatedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	OwnerID       string    `json:"owner_id"`
	MemoryID      string    `json:"memory_id"`
	MemoryType    string    `json:"memory_type"`
	Tags          []string  `json:"tags,omitempty"`

	// Embedded reports whether an embedding was produced at insert time.
	Embedded bool `json:"embedded"`
}

// NewMemoryCreated builds a v1 creation event for a stored memory.
func NewMemoryCreated(mem *record.Memory) *MemoryCreatedEvent {
	return &MemoryCreatedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMemoryCreated,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		OwnerID:       mem.OwnerID,
		MemoryID:      mem.ID,
		MemoryType:    string(mem.Type),
		Tags:          mem.Tags,
		Embedded:      mem.Embedding != nil,
	}
}
