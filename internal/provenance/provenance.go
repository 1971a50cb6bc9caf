// Package provenance implements the six per-address-class chunk lists
// used at summary time to explain a tainted range by the chunk that
// owns it.
package provenance

import (
	"fmt"

	"github.com/secretgrind/secretgrind/internal/alloc"
)

type node struct {
	chunk *alloc.Chunk
	next  *node
}

// Registry holds six singly-linked lists, one per alloc.AddrClass.
// Insertion is O(1) head-insert; deletion is O(n), acceptable since a
// chunk is removed at most once in its lifetime.
type Registry struct {
	heads [alloc.NumClasses]*node
	cur   [alloc.NumClasses]*node // resettable per-class iterator cursor

	heapMin, heapMax uint64
	haveHeap         bool
}

// New returns an empty provenance registry.
func New() *Registry {
	return &Registry{}
}

// Insert head-inserts c into its class's list.
func (r *Registry) Insert(c *alloc.Chunk) {
	n := &node{chunk: c}
	n.next = r.heads[c.Class]
	r.heads[c.Class] = n
	if c.Class == alloc.ClassHeapMalloc {
		r.touchHeap(c.Data, c.End())
	}
}

func (r *Registry) touchHeap(lo, hi uint64) {
	if !r.haveHeap {
		r.heapMin, r.heapMax, r.haveHeap = lo, hi, true
		return
	}
	if lo < r.heapMin {
		r.heapMin = lo
	}
	if hi > r.heapMax {
		r.heapMax = hi
	}
}

// Remove deletes c from its class's list, if present. O(n).
func (r *Registry) Remove(c *alloc.Chunk) {
	class := c.Class
	var prev *node
	for n := r.heads[class]; n != nil; n = n.next {
		if n.chunk == c {
			if prev == nil {
				r.heads[class] = n.next
			} else {
				prev.next = n.next
			}
			return
		}
		prev = n
	}
}

// ResetIterator rewinds class's iterator to the head of its list, for
// a fresh summary traversal of that class.
func (r *Registry) ResetIterator(class alloc.AddrClass) {
	r.cur[class] = r.heads[class]
}

// Next advances class's iterator and returns the chunk it was pointing
// at, or (nil,false) once exhausted.
func (r *Registry) Next(class alloc.AddrClass) (*alloc.Chunk, bool) {
	n := r.cur[class]
	if n == nil {
		return nil, false
	}
	r.cur[class] = n.next
	return n.chunk, true
}

// All returns every chunk currently registered in class, head-to-tail
// order (most recently inserted first). Does not disturb the class's
// iterator cursor.
func (r *Registry) All(class alloc.AddrClass) []*alloc.Chunk {
	var out []*alloc.Chunk
	for n := r.heads[class]; n != nil; n = n.next {
		out = append(out, n.chunk)
	}
	return out
}

// ErrStraddle is returned by GetParentBlock when a range overlaps a
// master chunk without being fully contained in it — an invariant
// violation: a range attributed to a chunk must lie entirely within it.
type ErrStraddle struct {
	Addr, Length uint64
	Chunk        *alloc.Chunk
}

func (e *ErrStraddle) Error() string {
	return fmt.Sprintf("provenance: range [0x%x,0x%x) straddles chunk [0x%x,0x%x)",
		e.Addr, e.Addr+e.Length, e.Chunk.Data, e.Chunk.End())
}

// GetParentBlock returns the first master chunk in class whose range
// strictly contains [addr, addr+length). If a chunk overlaps the range
// without fully containing it, that is a straddle: an invariant
// violation is reported via ErrStraddle rather than silently picking a
// partial match.
func (r *Registry) GetParentBlock(class alloc.AddrClass, addr, length uint64) (*alloc.Chunk, error) {
	for n := r.heads[class]; n != nil; n = n.next {
		c := n.chunk
		if !c.Master {
			continue
		}
		overlaps := addr < c.End() && addr+length > c.Data
		if !overlaps {
			continue
		}
		if c.Contains(addr, length) {
			return c, nil
		}
		return nil, &ErrStraddle{Addr: addr, Length: length, Chunk: c}
	}
	return nil, nil
}

// HeapBounds returns the smallest and largest heap address this registry
// has observed via Insert, for an O(1) is-heap predicate maintained
// independently of internal/alloc's own copy.
func (r *Registry) HeapBounds() (min, max uint64, ok bool) {
	return r.heapMin, r.heapMax, r.haveHeap
}

// IsHeapAddr reports whether addr falls within the observed heap bounds.
func (r *Registry) IsHeapAddr(addr uint64) bool {
	return r.haveHeap && addr >= r.heapMin && addr < r.heapMax
}
