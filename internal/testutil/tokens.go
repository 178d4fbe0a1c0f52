package testutil

import (
	"fmt"
	"sync"
)

// FixedTokenGenerator returns the same token every time. The same input
// dataset with the same FixedTokenGenerator produces byte-identical
// snapshots, which golden comparisons depend on.
//
// Thread-safety: stateless, safe for concurrent use.
type FixedTokenGenerator struct {
	Token string
}

// Generate returns the fixed token, or "test-token" when unset.
func (g FixedTokenGenerator) Generate() string {
	if g.Token == "" {
		return "test-token"
	}
	return g.Token
}

// SequenceTokenGenerator returns "tok-000001", "tok-000002", ... in order.
// The zero-padded counter keeps lexicographic order equal to generation
// order, mirroring the UUIDv7 property the production generator has.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceTokenGenerator struct {
	mu sync.Mutex
	n  int
}

// Generate returns the next token in the sequence.
func (g *SequenceTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tok-%06d", g.n)
}
