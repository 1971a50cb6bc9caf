// Package alloc implements the allocation registry: one record (a
// "chunk") per dynamically acquired memory region, wrapping the host's
// malloc/realloc/free and mmap/munmap so tainted regions can be
// explained by provenance at summary time.
package alloc

import (
	"encoding/binary"
	"fmt"

	"github.com/secretgrind/secretgrind/internal/hostapi"
	"golang.org/x/crypto/blake2b"
)

// AddrClass classifies the address range a chunk covers, mirroring the
// pattern of nevermosby-ebpf's types.go: an int enum with a String().
type AddrClass int

const (
	ClassGlobal AddrClass = iota
	ClassHeapMalloc
	ClassMmapFile
	ClassMmapAnon
	ClassStack
	ClassOther
)

func (c AddrClass) String() string {
	switch c {
	case ClassGlobal:
		return "global"
	case ClassHeapMalloc:
		return "malloc"
	case ClassMmapFile:
		return "mmap_file"
	case ClassMmapAnon:
		return "mmap_anon"
	case ClassStack:
		return "stack"
	default:
		return "other"
	}
}

// NumClasses is the number of distinct AddrClass values, used to size
// per-class tables in internal/provenance.
const NumClasses = int(ClassOther) + 1

// Inst describes the IR-level instruction that produced a taint event.
type Inst struct {
	Addr     hostapi.Addr
	Length   int
	RawBytes []byte
	Mnemonic string
	ID       uint64
}

// Chunk is one recorded allocation or mapping.
type Chunk struct {
	Data     uint64
	ReqSize  uint64
	SlopSize uint64
	Class    AddrClass

	VName         string
	vdetailedName string // memoized; computed lazily by DetailedName

	AllocTrace   hostapi.Stack
	ReleaseTrace hostapi.Stack

	Parent   *Chunk
	HasChild bool
	Master   bool

	API bool // tainted via an explicit client request rather than a syscall

	Inst Inst
}

// End returns the address one past the chunk's last byte.
func (c *Chunk) End() uint64 { return c.Data + c.ReqSize }

// Contains reports whether [addr, addr+length) lies entirely within the
// chunk.
func (c *Chunk) Contains(addr, length uint64) bool {
	return addr >= c.Data && addr+length <= c.End()
}

// SetParent installs p as c's parent, enforcing the invariant that a
// chunk is never its own parent and that non-master chunks always
// point at a master.
func (c *Chunk) SetParent(p *Chunk) {
	if p == c {
		panic("alloc: chunk cannot be its own parent")
	}
	if !p.Master {
		panic("alloc: chunk parent must be a master chunk")
	}
	if c.Data < p.Data || c.End() > p.End() {
		panic("alloc: child chunk is not contained within its parent")
	}
	c.Parent = p
	p.HasChild = true
}

// DisplayName resolves the three-tier name fallback: a user-assigned
// name, else a symbol the host can resolve, else the synthesized
// anonymous form. describe may be nil (no debug info available).
func (c *Chunk) DisplayName(describe func(addr uint64) (string, bool), pid, tid uint64) string {
	if c.VName != "" {
		return c.VName
	}
	if describe != nil {
		if name, ok := describe(c.Data); ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("@0x%x_%s_%d_%d", c.Data, c.Class, pid, tid)
}

// DetailedName synthesizes summary-verbose's detailed identity string: the
// display name plus an 8-hex-digit content fingerprint of the allocation
// stack, so two chunks allocated at the same call site but at different
// times remain distinguishable without printing the whole stack inline
// every time.
func (c *Chunk) DetailedName(describe func(addr uint64) (string, bool), pid, tid uint64) string {
	if c.vdetailedName != "" {
		return c.vdetailedName
	}
	base := c.DisplayName(describe, pid, tid)
	fp := fingerprint(c.AllocTrace)
	c.vdetailedName = fmt.Sprintf("%s#%08x", base, fp)
	return c.vdetailedName
}

func fingerprint(s hostapi.Stack) uint32 {
	if len(s) == 0 {
		return 0
	}
	buf := make([]byte, 8*len(s))
	for i, f := range s {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(f.PC))
	}
	sum := blake2b.Sum256(buf)
	return binary.LittleEndian.Uint32(sum[:4])
}
