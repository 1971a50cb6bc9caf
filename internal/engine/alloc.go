package engine

import (
	"github.com/secretgrind/secretgrind/internal/alloc"
	"github.com/secretgrind/secretgrind/internal/hostapi"
	"github.com/secretgrind/secretgrind/internal/shadow"
)

// RecordMalloc registers a fresh heap chunk and inserts it into
// provenance — a chunk is useless for summary explanation until it is
// also in the provenance registry.
func (e *Engine) RecordMalloc(addr, size, slop uint64, trace hostapi.Stack) *alloc.Chunk {
	c := e.Alloc.Malloc(addr, size, slop, trace)
	e.Provenance.Insert(c)
	return c
}

// RecordMmap registers a fresh mmap chunk (file-backed or anonymous) and
// inserts it into provenance.
func (e *Engine) RecordMmap(addr, size uint64, class alloc.AddrClass, trace hostapi.Stack) *alloc.Chunk {
	c := e.Alloc.Mmap(addr, size, class, trace)
	e.Provenance.Insert(c)
	return c
}

// RecordFree releases addr per the taint-remove-on-release /
// taint-warn-on-release options, applying shadow memory's own untaint
// when the configuration calls for it. warn is true when the release
// should have been reported to the caller (a host binding prints it;
// this package only computes whether to). A chunk that is fully
// destroyed (no retained children) is also unlinked from provenance,
// so a future reused address can't be attributed to it.
func (e *Engine) RecordFree(addr uint64, trace hostapi.Stack) (res alloc.FreeResult, warn bool) {
	cfg := alloc.FreeConfig{
		WarnOnRelease:   e.Options.TaintWarnOnRelease,
		RemoveOnRelease: e.Options.TaintRemoveOnRelease,
	}
	res = e.Alloc.Free(addr, trace, e.Shadow.IsRangeTainted, cfg)
	if res.Found {
		if res.ShouldUntaint {
			e.Shadow.SetRange(res.Chunk.Data, res.Chunk.ReqSize, shadow.Untainted)
		}
		if !res.Chunk.HasChild {
			e.Provenance.Remove(res.Chunk)
		}
	}
	return res, res.ShouldWarn
}
