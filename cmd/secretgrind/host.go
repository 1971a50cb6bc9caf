package main

import (
	"runtime"
	"unsafe"

	"github.com/secretgrind/secretgrind/internal/hostapi"
)

// processHost is the local stack tracer used for allocation and release
// traces: the process's own Go call stack stands in for the guest's.
type processHost struct{}

func (processHost) CaptureStack() hostapi.Stack {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var out hostapi.Stack
	for {
		f, more := frames.Next()
		out = append(out, hostapi.StackFrame{
			PC:   hostapi.Addr(f.PC),
			Name: f.Function,
			File: f.File,
			Line: f.Line,
		})
		if !more {
			break
		}
	}
	return out
}

// describe never resolves a name: this process-local host carries no
// debug-info reader, so every chunk falls through to the synthesized
// anonymous form (internal/alloc.Chunk.DisplayName's third tier).
func describe(uint64) (string, bool) {
	return "", false
}

// processAllocator implements hostapi.ReplacementAllocator against the Go
// heap: the "replacement" malloc/free pair a real DBI binding would route
// through its own interposed allocator. Allocations are retained by address
// until Free so the demo's synthesized guest addresses stay valid for as
// long as the engine's chunk tracks them; there is no concurrent access to
// guard against, since this command drives the engine from one goroutine.
type processAllocator struct {
	live map[hostapi.Addr][]byte
}

func newProcessAllocator() *processAllocator {
	return &processAllocator{live: make(map[hostapi.Addr][]byte)}
}

func (a *processAllocator) Alloc(size uint64) (hostapi.Addr, error) {
	if size == 0 {
		return 0, nil
	}
	buf := make([]byte, size)
	addr := hostapi.Addr(uintptr(unsafe.Pointer(&buf[0])))
	a.live[addr] = buf
	return addr, nil
}

// AlignedAlloc over-allocates by alignment and retains the oversized slice
// under the rounded-up address, since Go offers no aligned heap allocation
// primitive of its own.
func (a *processAllocator) AlignedAlloc(alignment, size uint64) (hostapi.Addr, error) {
	if size == 0 {
		return 0, nil
	}
	buf := make([]byte, size+alignment)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
	addr := hostapi.Addr(aligned)
	a.live[addr] = buf
	return addr, nil
}

func (a *processAllocator) Free(addr hostapi.Addr) {
	delete(a.live, addr)
}
