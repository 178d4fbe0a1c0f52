package testutil

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedClock_FrozenUntilAdvanced(t *testing.T) {
	start := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "repeated reads do not advance")

	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestFixedTokenGenerator(t *testing.T) {
	assert.Equal(t, "tok-1", FixedTokenGenerator{Token: "tok-1"}.Generate())
	assert.Equal(t, "test-token", FixedTokenGenerator{}.Generate())
}

func TestSequenceTokenGenerator_LexicographicOrder(t *testing.T) {
	g := &SequenceTokenGenerator{}

	var tokens []string
	for i := 0; i < 10; i++ {
		tokens = append(tokens, g.Generate())
	}

	require.Equal(t, "tok-000001", tokens[0])
	assert.True(t, sort.StringsAreSorted(tokens))
}

func TestSequenceTokenGenerator_ConcurrentUnique(t *testing.T) {
	g := &SequenceTokenGenerator{}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tok := g.Generate()
				mu.Lock()
				assert.False(t, seen[tok])
				seen[tok] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}
