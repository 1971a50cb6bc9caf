package ir

import (
	"fmt"

	"github.com/secretgrind/secretgrind/internal/hostapi"
	"github.com/secretgrind/secretgrind/internal/shadow"
)

// simdPending remembers one in-flight prepare/commit pair's fields so
// the commit call can validate it matches.
type simdPending struct {
	addrTmp int
	addr    hostapi.Addr
	size    int
}

// SIMDHelper implements the two-stage wide-load protocol needed for
// 128/256-bit SSE/AVX loads: the IR cannot pass a structured operand to
// a single helper, so the host emits a Prepare call capturing the
// address-tmp and offset, immediately followed by a Commit call that
// performs the actual shadow load. The two calls are linked by the
// invariant that their captured fields must match; a mismatch is a
// fatal assertion.
type SIMDHelper struct {
	Mem     *shadow.Memory
	pending *simdPending
}

// NewSIMDHelper returns a helper over the given shadow memory.
func NewSIMDHelper(mem *shadow.Memory) *SIMDHelper {
	return &SIMDHelper{Mem: mem}
}

// Prepare records the address-producing temp and its resolved address
// for an upcoming wide load/store of size bytes (16 or 32).
func (h *SIMDHelper) Prepare(addrTmp int, addr hostapi.Addr, size int) {
	h.pending = &simdPending{addrTmp: addrTmp, addr: addr, size: size}
}

// CommitLoad performs the shadow load the preceding Prepare staged,
// returning whether any byte of the region is tainted. It panics if
// no Prepare call is pending or its fields disagree with this commit.
func (h *SIMDHelper) CommitLoad(addrTmp int, addr hostapi.Addr, size int) bool {
	h.mustMatch(addrTmp, addr, size)
	defer h.clear()

	for i := 0; i < size; i++ {
		if h.Mem.IsByteTainted(uint64(addr) + uint64(i)) {
			return true
		}
	}
	return false
}

// CommitStore performs the shadow store the preceding Prepare staged.
func (h *SIMDHelper) CommitStore(addrTmp int, addr hostapi.Addr, size int, tainted bool) {
	h.mustMatch(addrTmp, addr, size)
	defer h.clear()

	st := shadow.Untainted
	if tainted {
		st = shadow.Tainted
	}
	h.Mem.SetRange(uint64(addr), uint64(size), st)
}

func (h *SIMDHelper) mustMatch(addrTmp int, addr hostapi.Addr, size int) {
	if h.pending == nil {
		panic("ir: SIMD commit with no matching prepare call")
	}
	if h.pending.addrTmp != addrTmp || h.pending.addr != addr || h.pending.size != size {
		panic(fmt.Sprintf("ir: SIMD prepare/commit mismatch: prepared %+v, committed {%d %x %d}",
			*h.pending, addrTmp, uint64(addr), size))
	}
}

func (h *SIMDHelper) clear() { h.pending = nil }
