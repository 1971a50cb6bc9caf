// Package syscallhooks implements the syscall-boundary taint sources:
// open/close classify descriptors via the file filter, and
// read/pread/mmap intersect the bytes a syscall actually moved against
// a configurable file-offset taint window before marking shadow
// memory. The per-fd bookkeeping is shaped after junegunn-fzf's
// reader.go post-read buffering.
package syscallhooks

import (
	"io"

	"github.com/secretgrind/secretgrind/internal/hostapi"
	"github.com/secretgrind/secretgrind/internal/shadow"
)

// Window is the configured file-offset range that should be treated
// as tainted ("--file-taint-start"/"--file-taint-len").
type Window struct {
	Offset uint64
	Length uint64
	// TaintAll, when set, taints every byte any hook touches
	// regardless of Offset/Length (clo_taint_all).
	TaintAll bool
}

// DefaultWindowLength is LEN_DEFAULT from tnt_main.c: with no explicit
// --file-taint-len, the window runs from Offset to Offset+this length.
const DefaultWindowLength = 0x800000

// IsDefault reports whether w has never been narrowed from its
// out-of-the-box value (tnt_main.c's taint_file_params_are_default,
// used to decide whether mmap'd taint should be block-aligned).
func (w Window) IsDefault() bool {
	return w.Offset == 0 && w.Length == DefaultWindowLength
}

// Hooks wires the syscall entry points to a descriptor table and a
// shadow memory instance. OnReceive, if set, is notified whenever a
// hook taints a region, so a summary/provenance layer can record
// "file" as the taint's origin.
type Hooks struct {
	FDs    *FDTable
	Memory *shadow.Memory
	Window Window

	OnReceive func(addr, length uint64, source string)
}

// NewHooks returns a Hooks using a fresh descriptor table.
func NewHooks(mem *shadow.Memory, window Window) *Hooks {
	return &Hooks{FDs: NewFDTable(), Memory: mem, Window: window}
}

func (h *Hooks) notify(addr, length uint64, source string) {
	if h.OnReceive != nil && length > 0 {
		h.OnReceive(addr, length, source)
	}
}

// HandleOpen classifies a freshly opened descriptor: tainted if
// classify(path) says the file filter matches it.
func (h *Hooks) HandleOpen(tid hostapi.ThreadID, fd int, path string, classify func(path string) bool) {
	h.FDs.Open(tid, fd, classify(path))
	h.FDs.SetReadOffset(tid, fd, 0)
}

// HandleClose forgets fd's taint classification and read cursor.
func (h *Hooks) HandleClose(tid hostapi.ThreadID, fd int) {
	h.FDs.Close(tid, fd)
}

// HandleLseek updates fd's read cursor to match a completed lseek.
// newOffset is the syscall's return value (the resulting absolute
// offset) — SEEK_END requires knowing the file size, which only the
// caller's syscall result carries, so this takes the resolved value
// rather than reinterpreting whence itself (tnt_syswrap.c's
// TNT_(syscall_lseek) does the equivalent against its local offset
// tracking).
func (h *Hooks) HandleLseek(tid hostapi.ThreadID, fd int, newOffset uint64) {
	h.FDs.SetReadOffset(tid, fd, newOffset)
}

// SeekWhence names are re-exported from io for callers translating a
// raw whence argument before calling HandleLseek.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

// HandleRead processes a completed read(2): the destination buffer is
// untainted in full first (a read always overwrites its buffer), then
// retainted over whatever portion of [buf, buf+n) falls inside the
// configured taint window, if fd is a taint source. The fd's read
// cursor is advanced by n either way.
func (h *Hooks) HandleRead(tid hostapi.ThreadID, fd int, buf hostapi.Addr, n int) {
	if n <= 0 {
		return
	}
	h.Memory.SetRange(uint64(buf), uint64(n), shadow.Untainted)

	currOffset := h.FDs.ReadOffset(tid, fd)
	if h.FDs.IsTainted(tid, fd) {
		if rel, length, ok := rangeCommon(h.Window, currOffset, uint64(n)); ok {
			addr := uint64(buf) + rel
			h.Memory.SetRange(addr, length, shadow.Tainted)
			h.notify(addr, length, "file")
		}
	}
	h.FDs.AdvanceReadOffset(tid, fd, uint64(n))
}

// HandlePread is HandleRead's pread(2) counterpart: it taints against
// an explicit file offset instead of fd's read cursor, and does not
// advance that cursor, matching pread's defined behavior of leaving
// the file position unchanged.
func (h *Hooks) HandlePread(tid hostapi.ThreadID, fd int, buf hostapi.Addr, n int, fileOffset uint64) {
	if n <= 0 {
		return
	}
	h.Memory.SetRange(uint64(buf), uint64(n), shadow.Untainted)

	if h.FDs.IsTainted(tid, fd) {
		if rel, length, ok := rangeCommon(h.Window, fileOffset, uint64(n)); ok {
			addr := uint64(buf) + rel
			h.Memory.SetRange(addr, length, shadow.Tainted)
			h.notify(addr, length, "file")
		}
	}
}

// Iovec is one entry of a readv/preadv scatter list.
type Iovec struct {
	Base hostapi.Addr
	Len  int
}

// HandleReadv processes a completed readv(2)/preadv(2) by replaying
// HandleRead/HandlePread across each iovec in order, since the kernel
// fills them sequentially from one contiguous file region — a
// detail left to the DBI host's generic syscall wrapping rather than
// naming explicitly.
func (h *Hooks) HandleReadv(tid hostapi.ThreadID, fd int, iov []Iovec, total int, pread bool, fileOffset uint64) {
	remaining := total
	offset := fileOffset
	for _, v := range iov {
		if remaining <= 0 {
			h.Memory.SetRange(uint64(v.Base), uint64(v.Len), shadow.Untainted)
			continue
		}
		n := v.Len
		if n > remaining {
			n = remaining
		}
		if pread {
			h.HandlePread(tid, fd, v.Base, n, offset)
			offset += uint64(n)
		} else {
			h.HandleRead(tid, fd, v.Base, n)
		}
		remaining -= n
		if n < v.Len {
			h.Memory.SetRange(uint64(v.Base)+uint64(n), uint64(v.Len-n), shadow.Untainted)
		}
	}
}

// HandleMmapFile processes a file-backed mmap(2): like HandleRead, it
// intersects the mapped region's file-offset range against the taint
// window, but when the window is still at its out-of-the-box default
// the tainted region is rounded out to whole pageSize-aligned pages
// (tnt_syswrap.c's block-alignment step, gated on
// taint_file_params_are_default so an explicit --file-taint-* request
// is honored byte-exactly).
func (h *Hooks) HandleMmapFile(addr hostapi.Addr, length int, fileOffset uint64, pageSize uint64) {
	if length <= 0 {
		return
	}
	rel, n, ok := rangeCommon(h.Window, fileOffset, uint64(length))
	if !ok {
		return
	}
	start := uint64(addr) + rel
	if h.Window.IsDefault() && pageSize > 1 {
		end := start + n
		start &^= pageSize - 1
		n = pageSize * ((end - start + pageSize - 1) / pageSize)
	}
	h.Memory.SetRange(start, n, shadow.Tainted)
	h.notify(start, n, "file")
}

// rangeCommon intersects the configured taint window with the
// [currOffset, currOffset+currLen) region a syscall just touched,
// returning the overlap as an offset relative to that region's start
// plus a length, or ok=false if there is no overlap. It is the direct
// translation of tnt_syswrap.c's range_common four-case analysis.
func rangeCommon(w Window, currOffset, currLen uint64) (relOffset, length uint64, ok bool) {
	if w.TaintAll {
		return 0, currLen, true
	}
	taintOffset, taintLen := w.Offset, w.Length
	taintEnd := taintOffset + taintLen
	currEnd := currOffset + currLen

	switch {
	case taintOffset >= currOffset && taintOffset <= currEnd:
		if taintEnd <= currEnd {
			// Case 1: the whole taint window sits inside this read.
			return taintOffset - currOffset, taintLen, true
		}
		// Case 2: the window starts inside this read but runs past it.
		return taintOffset - currOffset, currEnd - taintOffset, true
	case taintEnd >= currOffset && taintEnd <= currEnd:
		// Case 3: the window ends inside this read but started before it.
		return 0, taintEnd - currOffset, true
	case taintOffset <= currOffset && taintEnd >= currEnd:
		// Case 4: this entire read falls inside the window.
		return 0, currLen, true
	default:
		return 0, 0, false
	}
}
