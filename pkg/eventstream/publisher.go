// Package eventstream publishes memory lifecycle events to an event stream
// backend. Publishing is best-effort: a failed publish is logged by the
// caller and never fails the originating operation.
package eventstream

import "context"

// Publisher publishes memory events to an event stream backend.
type Publisher interface {
	PublishMemoryCreated(ctx context.Context, event *MemoryCreatedEvent) error
	Close() error
}
