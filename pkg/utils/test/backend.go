package testutils

import (
	"context"
	"errors"

	"github.com/engramhq/engram/pkg/record"
	"github.com/engramhq/engram/pkg/storage"
)

// ErrBackendDown is the fault injected by FlakyBackend.
var ErrBackendDown = errors.New("backend down")

// FlakyBackend wraps a storage driver with per-operation fault injection
// and call counters, for exercising the coordinator's fallback ladder.
type FlakyBackend struct {
	Inner storage.Driver

	// FailRanked makes RankedSearch fail with ErrBackendDown.
	FailRanked bool

	// FailSubstring makes SubstringSearch fail with ErrBackendDown.
	FailSubstring bool

	// RankedCalls and SubstringCalls count invocations, including failed
	// ones.
	RankedCalls    int
	SubstringCalls int
}

func NewFlakyBackend(inner storage.Driver) *FlakyBackend {
	return &FlakyBackend{Inner: inner}
}

func (b *FlakyBackend) Insert(ctx context.Context, mem *record.Memory) (*record.Memory, error) {
	return b.Inner.Insert(ctx, mem)
}

func (b *FlakyBackend) Get(ctx context.Context, ownerID, id string) (*record.Memory, error) {
	return b.Inner.Get(ctx, ownerID, id)
}

func (b *FlakyBackend) RankedSearch(ctx context.Context, q storage.RankedQuery) ([]record.SearchResult, error) {
	b.RankedCalls++
	if b.FailRanked {
		return nil, ErrBackendDown
	}
	return b.Inner.RankedSearch(ctx, q)
}

func (b *FlakyBackend) SubstringSearch(ctx context.Context, ownerID, query string, limit int) ([]record.SearchResult, error) {
	b.SubstringCalls++
	if b.FailSubstring {
		return nil, ErrBackendDown
	}
	return b.Inner.SubstringSearch(ctx, ownerID, query, limit)
}

func (b *FlakyBackend) ListByOwner(ctx context.Context, ownerID string) ([]*record.Memory, error) {
	return b.Inner.ListByOwner(ctx, ownerID)
}

func (b *FlakyBackend) ListAll(ctx context.Context) ([]*record.Memory, error) {
	return b.Inner.ListAll(ctx)
}

func (b *FlakyBackend) Close() error {
	return b.Inner.Close()
}

var _ storage.Driver = (*FlakyBackend)(nil)
