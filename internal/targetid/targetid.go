// Package targetid allocates TargetIds for the Sync Engine's own use
// (limbo resolutions), from a range disjoint from the Local Store's
// user-listen range.
package targetid

import (
	"sync"

	"github.com/docsync/syncengine/internal/model"
)

// Generator is a monotonic TargetId allocator using alternating
// parity to keep its range disjoint from the Local Store's allocator:
// the Local Store is assumed to hand out even TargetIds, so this
// generator only ever hands out odd ones. That scheme (rather than a
// fixed numeric offset) keeps both ranges dense and avoids having to
// agree on a split point in advance.
type Generator struct {
	mu   sync.Mutex
	next model.TargetId
}

// NewGenerator returns a Generator that allocates the Sync Engine's
// (odd-numbered) half of the TargetId space.
func NewGenerator() *Generator {
	return &Generator{next: 1}
}

// Next returns the next TargetId in the Sync Engine's range.
func (g *Generator) Next() model.TargetId {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	g.next += 2
	return id
}

// IsSyncEngineRange reports whether id falls in the Sync Engine's
// allocator range (as opposed to the Local Store's).
func IsSyncEngineRange(id model.TargetId) bool {
	return id%2 == 1
}
