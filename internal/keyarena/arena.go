// Package keyarena provides a chunked append-only byte arena used to extend
// the lifetime of serialized composite keys.
//
// An arena belongs to a single update unit. Allocation is single-writer (the
// thread constructing or processing the unit); once the unit completes, the
// arena becomes read-only and is released together with the unit. There is
// no Free: dropping the arena drops all chunks at once.
package keyarena

import "unsafe"

// DefaultChunkSize is the allocation granularity. Composite keys are short,
// so a few KiB per chunk keeps waste low without chasing many allocations.
const DefaultChunkSize = 4096

type Arena struct {
	chunkSize int
	chunks    [][]byte
	off       int // write offset into the last chunk
	used      int
}

func New() *Arena { return NewSize(DefaultChunkSize) }

func NewSize(chunkSize int) *Arena {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Arena{chunkSize: chunkSize}
}

// Alloc returns a zeroed slice of n bytes backed by the arena. The slice has
// capacity exactly n, so appending to it cannot clobber neighbors.
func (a *Arena) Alloc(n int) []byte {
	if n == 0 {
		return nil
	}
	if len(a.chunks) == 0 || a.off+n > len(a.chunks[len(a.chunks)-1]) {
		size := a.chunkSize
		if n > size {
			size = n
		}
		a.chunks = append(a.chunks, make([]byte, size))
		a.off = 0
	}
	chunk := a.chunks[len(a.chunks)-1]
	b := chunk[a.off : a.off+n : a.off+n]
	a.off += n
	a.used += n
	return b
}

// Copy stores a copy of b in the arena and returns it. The returned slice
// stays valid for the arena's lifetime regardless of what happens to b.
func (a *Arena) Copy(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	dst := a.Alloc(len(b))
	copy(dst, b)
	return dst
}

// InternString copies b into the arena and returns a string view over the
// arena bytes without a second allocation. The arena must not be written
// through any alias of those bytes afterwards.
func (a *Arena) InternString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	c := a.Copy(b)
	return unsafe.String(&c[0], len(c))
}

// Len reports total bytes handed out (not counting chunk slack).
func (a *Arena) Len() int { return a.used }
