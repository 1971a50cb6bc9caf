package alloc

import "github.com/secretgrind/secretgrind/internal/hostapi"

// TaintChecker reports whether any byte in [addr, addr+length) is
// currently tainted. The registry never touches shadow memory directly —
// it is handed this predicate (backed by shadow.Memory.IsRangeTainted in
// production) so the two packages stay decoupled.
type TaintChecker func(addr, length uint64) bool

// Registry tracks every live and retained chunk, keyed by base address,
// plus the running heap bounds needed for an O(1) is-heap predicate.
// A thin typed wrapper the host hands addresses to, which the consumer
// tracks by handle rather than owning the underlying storage.
type Registry struct {
	live     map[uint64]*Chunk
	retained map[uint64]*Chunk // freed but HasChild: kept until children release

	heapMin, heapMax uint64
	haveHeap         bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		live:     make(map[uint64]*Chunk),
		retained: make(map[uint64]*Chunk),
	}
}

// record is the shared tail of every allocation entry point: install the
// chunk, update heap bounds if it is heap-classed, and return it.
func (r *Registry) record(c *Chunk) *Chunk {
	r.live[c.Data] = c
	if c.Class == ClassHeapMalloc {
		r.touchHeapBounds(c.Data, c.End())
	}
	return c
}

func (r *Registry) touchHeapBounds(lo, hi uint64) {
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

// Malloc records a fresh master heap chunk.
func (r *Registry) Malloc(addr, size, slop uint64, trace hostapi.Stack) *Chunk {
	return r.record(&Chunk{
		Data: addr, ReqSize: size, SlopSize: slop,
		Class: ClassHeapMalloc, Master: true, AllocTrace: trace,
	})
}

// Calloc records a fresh master heap chunk sized nmemb*size; zero-fill is
// the host allocator's concern, not the registry's.
func (r *Registry) Calloc(addr, nmemb, size, slop uint64, trace hostapi.Stack) *Chunk {
	return r.Malloc(addr, nmemb*size, slop, trace)
}

// Memalign records a fresh master heap chunk obtained via an
// alignment-aware allocator.
func (r *Registry) Memalign(addr, size, slop uint64, trace hostapi.Stack) *Chunk {
	return r.Malloc(addr, size, slop, trace)
}

// New records a C++ `new` allocation (single object).
func (r *Registry) New(addr, size, slop uint64, trace hostapi.Stack) *Chunk {
	return r.Malloc(addr, size, slop, trace)
}

// NewArray records a C++ `new[]` allocation.
func (r *Registry) NewArray(addr, size, slop uint64, trace hostapi.Stack) *Chunk {
	return r.Malloc(addr, size, slop, trace)
}

// Mmap records a master mmap chunk (file-backed or anonymous).
func (r *Registry) Mmap(addr, size uint64, class AddrClass, trace hostapi.Stack) *Chunk {
	return r.record(&Chunk{
		Data: addr, ReqSize: size, Class: class, Master: true, AllocTrace: trace,
	})
}

// Global records a non-heap, non-mapped region (a guest global variable)
// discovered via debug info or an explicit client request.
func (r *Registry) Global(addr, size uint64, name string) *Chunk {
	return r.record(&Chunk{Data: addr, ReqSize: size, Class: ClassGlobal, Master: true, VName: name})
}

// Lookup returns the live chunk containing addr, if any.
func (r *Registry) Lookup(addr uint64) (*Chunk, bool) {
	c, ok := r.live[addr]
	return c, ok
}

// FindContaining returns the live chunk whose range contains
// [addr,addr+length), if any. O(n) in the number of live chunks; callers
// needing speed at summary time should prefer internal/provenance's
// per-class lists instead.
func (r *Registry) FindContaining(addr, length uint64) (*Chunk, bool) {
	for _, c := range r.live {
		if c.Contains(addr, length) {
			return c, true
		}
	}
	return nil, false
}

// FreeResult reports what happened to a Free call, for the caller
// (syscall hooks / client-request dispatch) to act on: whether the
// region held taint and, per configuration, whether it should now be
// untainted in shadow memory.
type FreeResult struct {
	Chunk       *Chunk
	Found       bool
	WasTainted  bool
	ShouldWarn  bool
	ShouldUntaint bool
}

// FreeConfig carries the two release-time options.
type FreeConfig struct {
	WarnOnRelease  bool
	RemoveOnRelease bool
}

// Free looks up addr's chunk and applies the release rules. A bogus
// free of an address never observed returns silently (Found=false).
// Freeing a still-tainted block is a soft warning, never fatal. A chunk
// with HasChild is moved to the retention list instead of destroyed.
func (r *Registry) Free(addr uint64, trace hostapi.Stack, tainted TaintChecker, cfg FreeConfig) FreeResult {
	c, ok := r.live[addr]
	if !ok {
		return FreeResult{Found: false}
	}
	was := tainted(c.Data, c.ReqSize)
	res := FreeResult{Chunk: c, Found: true, WasTainted: was}
	if was {
		res.ShouldWarn = cfg.WarnOnRelease
		res.ShouldUntaint = cfg.RemoveOnRelease
	}
	c.ReleaseTrace = trace
	delete(r.live, addr)
	if c.HasChild {
		r.retained[addr] = c
	}
	return res
}

// ReleaseChild is called when a child chunk itself is released: if its
// parent is sitting in the retention list and has no remaining live
// children, the parent is finally destroyed: retained-with-children ->
// (children released) -> destroyed.
func (r *Registry) ReleaseChild(child *Chunk, stillHasLiveChildren func(parent *Chunk) bool) {
	p := child.Parent
	if p == nil {
		return
	}
	if _, retained := r.retained[p.Data]; !retained {
		return
	}
	if stillHasLiveChildren(p) {
		return
	}
	p.HasChild = false
	delete(r.retained, p.Data)
}

// Realloc records a brand-new chunk at newAddr (the host allocator always
// allocates fresh), lets the caller copy bytes/shadow state for the
// overlapping prefix via copyShadow, and releases the old chunk per the
// normal free rules. Because newAddr differs from the old chunk's
// address, the new Chunk is automatically a fresh provenance entry, with
// no extra bookkeeping required.
func (r *Registry) Realloc(oldAddr, newAddr, newSize uint64, trace hostapi.Stack,
	tainted TaintChecker, cfg FreeConfig, copyShadow func(src, dst, length uint64)) (*Chunk, FreeResult) {

	old, hadOld := r.live[oldAddr]
	copyLen := newSize
	if hadOld && old.ReqSize < copyLen {
		copyLen = old.ReqSize
	}
	if hadOld && copyLen > 0 {
		// Only the bytes that survive truncation are copied; a shrunk
		// tail's taint is dropped rather than carried into the new block.
		copyShadow(oldAddr, newAddr, copyLen)
	}

	fresh := r.Malloc(newAddr, newSize, 0, trace)

	var freeRes FreeResult
	if hadOld {
		freeRes = r.Free(oldAddr, trace, tainted, cfg)
	}
	return fresh, freeRes
}

// MallocUsableSize returns the usable size (request + slop) of the chunk
// at addr, or 0 if unknown.
func (r *Registry) MallocUsableSize(addr uint64) uint64 {
	if c, ok := r.live[addr]; ok {
		return c.ReqSize + c.SlopSize
	}
	return 0
}

// HeapBounds returns the smallest and largest heap address ever observed.
func (r *Registry) HeapBounds() (min, max uint64, ok bool) {
	return r.heapMin, r.heapMax, r.haveHeap
}

// IsHeapAddr is the O(1) "is-heap" predicate the classifier uses.
func (r *Registry) IsHeapAddr(addr uint64) bool {
	return r.haveHeap && addr >= r.heapMin && addr < r.heapMax
}

// Live returns every currently-live chunk; order is unspecified.
func (r *Registry) Live() []*Chunk {
	out := make([]*Chunk, 0, len(r.live))
	for _, c := range r.live {
		out = append(out, c)
	}
	return out
}

// Retained returns every chunk held past free() because HasChild was set.
func (r *Registry) Retained() []*Chunk {
	out := make([]*Chunk, 0, len(r.retained))
	for _, c := range r.retained {
		out = append(out, c)
	}
	return out
}
