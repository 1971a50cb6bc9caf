// Package hostapi declares the collaborator interfaces the core depends on
// but never implements: the dynamic binary instrumentation (DBI) host, the
// disassembler used to render mnemonics, and the handful of generic data
// structures the original tool borrows from its host's utility layer.
//
// Everything here is a contract, not a behavior. cmd/secretgrind provides a
// process-local stack tracer, name resolver and allocator sufficient to
// drive the engine end to end; a real DBI binding would replace only that
// command.
package hostapi

import "fmt"

// Addr is a guest virtual address.
type Addr uint64

// ThreadID identifies one guest thread as the host numbers them. It is
// opaque to the core: used only to key the per-thread fd taint table.
type ThreadID uint64

// PID is the guest process id the host reports, used only to format
// trace/summary output ("==<pid>==").
type PID uint64

// SectKind classifies a symbolized address the way the host's
// address-description API does.
type SectKind int

const (
	SectUnknown SectKind = iota
	SectText
	SectData
	SectBSS
	SectStack
	SectHeap
	SectMapped
)

// AddrDescription is the result of symbolizing an address through the
// host: section kind plus whatever names the host's debug-info reader
// could recover.
type AddrDescription struct {
	Kind     SectKind
	Block    string // containing symbol/function, if any
	Variable string // containing variable name, if any (debug info)
	DataSym  string // nearest preceding data symbol, if any
}

// StackFrame is one frame of a captured execution context.
type StackFrame struct {
	PC   Addr
	Name string // symbol name, may be empty
	File string // source file, may be empty
	Line int
}

// Stack is a captured execution context (allocation site, taint site, or
// release site), most-recent frame first.
type Stack []StackFrame

// String renders a stack one frame per line, indented, as
// "at 0xADDR: NAME (FILE:LINE)"; the name and file parts are omitted
// when empty.
func (s Stack) String() string {
	out := ""
	for _, f := range s {
		out += fmt.Sprintf("   at 0x%x", uint64(f.PC))
		if f.Name != "" {
			out += fmt.Sprintf(": %s", f.Name)
		}
		if f.File != "" {
			out += fmt.Sprintf(" (%s:%d)", f.File, f.Line)
		}
		out += "\n"
	}
	return out
}

// StackTracer captures the current execution context on demand. The host
// provides one implementation; the core never constructs a Stack itself
// except in tests.
type StackTracer interface {
	CaptureStack() Stack
}

// AddressDescriber symbolizes a guest address. Used by the summary engine
// and by allocation-registry detailed-name synthesis.
type AddressDescriber interface {
	Describe(addr Addr) AddrDescription
}

// Disassembler renders a mnemonic for one instruction. Only consulted when
// the `mnemonics` option is enabled.
type Disassembler interface {
	Mnemonic(addr Addr, rawBytes []byte) string
}

// CurrentIPProvider reports the host's notion of "current instruction
// pointer" for the thread currently running instrumented code. Used to
// detect the end-of-main transition that triggers a summary.
type CurrentIPProvider interface {
	CurrentIP(thread ThreadID) Addr
	// InMain reports whether the given IP lies inside the guest's main
	// function, per the host's symbol table. The summary engine uses a
	// falling edge of this (true -> false on return) to detect
	// end-of-main.
	InMain(ip Addr) bool
}

// IRHost is the subset of the DBI host's API the core relies on for
// allocation traces and summary triggers: stack capture plus the
// current-IP/in-main queries. It carries no basic-block or address-reading
// methods; IR statements reach the core with addresses already resolved
// (see internal/ir.Expr).
type IRHost interface {
	StackTracer
	CurrentIPProvider
}

// ReplacementAllocator is the host's concrete allocator: the implementation
// the malloc/calloc/memalign/free replacement entry points actually forward
// to once this package's bookkeeping (Registry.Malloc, Registry.Free, ...)
// has run. Modeled on Taintgrind's VG_REPLACE_FUNCTION wrapping of the
// host's own dlmalloc-derived allocator — the core never allocates guest
// memory itself, it only records what the host's allocator handed back.
type ReplacementAllocator interface {
	Alloc(size uint64) (Addr, error)
	AlignedAlloc(alignment, size uint64) (Addr, error)
	Free(addr Addr)
}

// OrderedAddrSet is a sorted set of addresses, standing in for the host's
// ordered-set primitive. Modeled on junegunn-fzf's util.ConcurrentSet,
// with the mutex removed: the core's single-threaded cooperative model
// means nothing here is ever accessed concurrently.
type OrderedAddrSet struct {
	items map[Addr]struct{}
	order []Addr // kept sorted; rebuilt lazily
	dirty bool
}

// NewOrderedAddrSet returns an empty set.
func NewOrderedAddrSet() *OrderedAddrSet {
	return &OrderedAddrSet{items: make(map[Addr]struct{})}
}

// Add inserts addr if not already present.
func (s *OrderedAddrSet) Add(addr Addr) {
	if _, ok := s.items[addr]; ok {
		return
	}
	s.items[addr] = struct{}{}
	s.dirty = true
}

// Remove deletes addr if present.
func (s *OrderedAddrSet) Remove(addr Addr) {
	if _, ok := s.items[addr]; !ok {
		return
	}
	delete(s.items, addr)
	s.dirty = true
}

// Contains reports whether addr is in the set.
func (s *OrderedAddrSet) Contains(addr Addr) bool {
	_, ok := s.items[addr]
	return ok
}

// Len reports the number of elements.
func (s *OrderedAddrSet) Len() int {
	return len(s.items)
}

// Ascending returns the set's elements in ascending order. The slice is
// owned by the set and must not be mutated by the caller.
func (s *OrderedAddrSet) Ascending() []Addr {
	if s.dirty {
		s.order = s.order[:0]
		for a := range s.items {
			s.order = append(s.order, a)
		}
		insertionSortAddrs(s.order)
		s.dirty = false
	}
	return s.order
}

// insertionSortAddrs sorts small slices without pulling in sort's
// interface-dispatch overhead; the auxiliary L2 set is expected to
// stay small since most addresses are served by the low primary map.
func insertionSortAddrs(a []Addr) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
