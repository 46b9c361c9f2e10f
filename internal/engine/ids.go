package engine

import (
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// UUIDv7Generator generates time-sortable transaction ids.
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ULIDGenerator generates lexically sortable ULID transaction ids.
// Safe for concurrent use.
type ULIDGenerator struct{}

// Generate returns a new ULID.
func (ULIDGenerator) Generate() string {
	return ulid.Make().String()
}

// FixedGenerator returns predetermined ids, for deterministic tests and
// golden journals.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator handing out ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id. Panics once all ids are consumed, which
// means the test opened more transactions than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
