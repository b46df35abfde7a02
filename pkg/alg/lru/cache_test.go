package lru_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lru"
)

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := lru.New(lru.WithMaxEntries[string, int](2))
	c.Put("a", 1)
	c.Put("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Replace(t *testing.T) {
	t.Parallel()

	c := lru.New(lru.WithMaxEntries[string, int](2))
	c.Put("a", 1)
	c.Put("a", 10)

	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, c.Len())

	c.Remove("a")
	c.Remove("missing")
	assert.Zero(t, c.Len())
}

func TestCache_MaxBytes(t *testing.T) {
	t.Parallel()

	size := func(v []byte) int64 { return int64(len(v)) }
	c := lru.New(lru.WithMaxBytes[string](10, size))

	c.Put("a", make([]byte, 4))
	c.Put("b", make([]byte, 4))
	c.Put("c", make([]byte, 4))

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, int64(8), c.Stats().CurrentSize)

	c.Put("huge", make([]byte, 11))

	_, ok = c.Get("huge")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := lru.New(
		lru.WithMaxEntries[string, string](4),
		lru.WithMaxBytes[string](64, func(v string) int64 { return int64(len(v)) }),
	)
	assert.Equal(t, lru.Stats{}, c.Stats())

	c.Put("a", "xyz")
	c.Put("b", "hello")
	c.Remove("a")

	assert.Equal(t, lru.Stats{Entries: 1, CurrentSize: 5}, c.Stats())
}

func TestCache_RequiresLimit(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { lru.New[string, int]() })
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := lru.New(lru.WithMaxEntries[int, int](16))

	var wg sync.WaitGroup

	for g := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 200 {
				c.Put(g*1000+i, i)
				c.Get(g*1000 + i/2)
			}
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
