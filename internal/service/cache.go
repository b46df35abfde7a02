package service

import (
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lru"
)

// eventSize is the in-memory size of one lcs.Event.
const eventSize = int64(unsafe.Sizeof(lcs.Event{}))

// alignKey identifies an alignment by the content of both sides.
type alignKey struct {
	left, right       uint64
	leftLen, rightLen int
}

// scriptCache remembers edit scripts by content hash. A hit is checked
// against the inputs before it is returned, so a hash collision degrades to
// a miss.
type scriptCache struct {
	entries *lru.Cache[alignKey, lcs.Script]
}

func newScriptCache(entries int, maxBytes int64) *scriptCache {
	if entries <= 0 {
		return nil
	}

	return &scriptCache{entries: lru.New(
		lru.WithMaxEntries[alignKey, lcs.Script](entries),
		lru.WithMaxBytes[alignKey](maxBytes, func(s lcs.Script) int64 { return int64(len(s)) * eventSize }),
	)}
}

func keyOf(left, right []string) alignKey {
	return alignKey{left: hashLines(left), right: hashLines(right), leftLen: len(left), rightLen: len(right)}
}

func hashLines(seq []string) uint64 {
	digest := xxhash.New()

	for _, line := range seq {
		_, _ = digest.WriteString(line)
		_, _ = digest.Write([]byte{'\n'})
	}

	return digest.Sum64()
}

// get is safe on a nil cache.
func (c *scriptCache) get(key alignKey, left, right []string) (lcs.Script, bool) {
	if c == nil {
		return nil, false
	}

	script, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}

	if !consistent(script, left, right) {
		c.entries.Remove(key)

		return nil, false
	}

	return script, true
}

func (c *scriptCache) put(key alignKey, script lcs.Script) {
	if c != nil {
		c.entries.Put(key, script)
	}
}

// stats is safe on a nil cache.
func (c *scriptCache) stats() lru.Stats {
	if c == nil {
		return lru.Stats{}
	}

	return c.entries.Stats()
}

// consistent reports whether script walks left and right in order and only
// keeps equal lines.
func consistent(script lcs.Script, left, right []string) bool {
	l, r := 0, 0

	for _, ev := range script {
		switch ev.Kind {
		case lcs.Unchanged:
			if ev.Left != l || ev.Right != r || l >= len(left) || r >= len(right) || left[l] != right[r] {
				return false
			}

			l++
			r++
		case lcs.Deleted:
			if ev.Left != l || l >= len(left) {
				return false
			}

			l++
		case lcs.Inserted:
			if ev.Right != r || r >= len(right) {
				return false
			}

			r++
		}
	}

	return l == len(left) && r == len(right)
}
