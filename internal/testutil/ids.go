package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates request ids "<prefix>-1", "<prefix>-2", ...
//
// Unlike loop.FixedGenerator it never runs out, which suits harness
// scenarios whose request count is data driven.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. An empty prefix means "req".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "req"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
