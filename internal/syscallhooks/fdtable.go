package syscallhooks

import "github.com/secretgrind/secretgrind/internal/hostapi"

// MaxFDs bounds the per-thread descriptor table, matching the
// original's fixed FD_MAX of 256.
const MaxFDs = 256

type fdState struct {
	tainted    bool
	readOffset uint64
}

// FDTable tracks, per thread and file descriptor, whether the
// descriptor is a taint source and the read cursor a read syscall uses
// to compute the file-offset window it overlaps with the configured
// taint window.
type FDTable struct {
	threads map[hostapi.ThreadID]*[MaxFDs]fdState
}

// NewFDTable returns an empty descriptor table.
func NewFDTable() *FDTable {
	return &FDTable{threads: make(map[hostapi.ThreadID]*[MaxFDs]fdState)}
}

func (t *FDTable) row(tid hostapi.ThreadID) *[MaxFDs]fdState {
	r, ok := t.threads[tid]
	if !ok {
		r = &[MaxFDs]fdState{}
		t.threads[tid] = r
	}
	return r
}

// Open records fd as newly opened for tid, tainted per the caller's
// classification (typically internal/filefilter's verdict on the
// opened path).
func (t *FDTable) Open(tid hostapi.ThreadID, fd int, tainted bool) {
	if fd < 0 || fd >= MaxFDs {
		return
	}
	t.row(tid)[fd] = fdState{tainted: tainted}
}

// Close forgets fd's state for tid so a reused descriptor number
// starts clean on its next Open.
func (t *FDTable) Close(tid hostapi.ThreadID, fd int) {
	if fd < 0 || fd >= MaxFDs {
		return
	}
	t.row(tid)[fd] = fdState{}
}

// IsTainted reports whether fd is currently a taint source for tid.
func (t *FDTable) IsTainted(tid hostapi.ThreadID, fd int) bool {
	if fd < 0 || fd >= MaxFDs {
		return false
	}
	return t.row(tid)[fd].tainted
}

// ReadOffset returns the current read cursor recorded for fd.
func (t *FDTable) ReadOffset(tid hostapi.ThreadID, fd int) uint64 {
	if fd < 0 || fd >= MaxFDs {
		return 0
	}
	return t.row(tid)[fd].readOffset
}

// SetReadOffset overwrites fd's read cursor, as lseek does.
func (t *FDTable) SetReadOffset(tid hostapi.ThreadID, fd int, offset uint64) {
	if fd < 0 || fd >= MaxFDs {
		return
	}
	t.row(tid)[fd].readOffset = offset
}

// AdvanceReadOffset bumps fd's read cursor by n, as a completed read
// does (pread leaves the cursor where it is).
func (t *FDTable) AdvanceReadOffset(tid hostapi.ThreadID, fd int, n uint64) {
	if fd < 0 || fd >= MaxFDs {
		return
	}
	t.row(tid)[fd].readOffset += n
}
