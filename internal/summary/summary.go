// Package summary implements the taint summary engine: it walks
// shadow memory for tainted spans, splits those spans at
// address-class boundaries, and explains each resulting span with its
// owning chunk's provenance chain. The per-class coalescing is shaped
// after junegunn-fzf's merger.go, whose job of merging several
// independently-sorted chunked sources into one ordered view
// generalizes directly to this.
package summary

import (
	"github.com/secretgrind/secretgrind/internal/alloc"
	"github.com/secretgrind/secretgrind/internal/provenance"
	"github.com/secretgrind/secretgrind/internal/shadow"
)

// Span is one coalesced, single-address-class run of tainted bytes,
// together with every chunk from that class overlapping it.
type Span struct {
	Start, Length uint64
	Class         alloc.AddrClass
	Chunks        []*alloc.Chunk
}

// End returns the exclusive upper bound of the span.
func (s Span) End() uint64 { return s.Start + s.Length }

// Classifier maps an address to the address class it belongs to, the
// job internal/alloc + internal/provenance jointly perform (heap
// bounds from the registry, mmap/global/stack/other from whichever
// chunk, if any, contains the address). ClassOther is the default for
// addresses no collaborator recognizes.
type Classifier func(addr uint64) alloc.AddrClass

// Walk scans mem for tainted bytes and returns one Span per maximal
// contiguous run that does not cross an address-class boundary,
// together with the provenance chunks overlapping each span.
func Walk(mem *shadow.Memory, classify Classifier, prov *provenance.Registry) []Span {
	var spans []Span

	mem.ScanTaintedRanges(func(start, length uint64) {
		spans = append(spans, splitByClass(start, length, classify)...)
	})

	for i := range spans {
		spans[i].Chunks = overlappingChunks(prov, spans[i])
	}
	return spans
}

// splitByClass breaks [start, start+length) into sub-spans wherever
// consecutive bytes classify differently, preserving order.
func splitByClass(start, length uint64, classify Classifier) []Span {
	if length == 0 {
		return nil
	}
	var out []Span
	runStart := start
	runClass := classify(start)

	for a := start + 1; a < start+length; a++ {
		c := classify(a)
		if c != runClass {
			out = append(out, Span{Start: runStart, Length: a - runStart, Class: runClass})
			runStart = a
			runClass = c
		}
	}
	out = append(out, Span{Start: runStart, Length: start + length - runStart, Class: runClass})
	return out
}

func overlappingChunks(prov *provenance.Registry, span Span) []*alloc.Chunk {
	var out []*alloc.Chunk
	for _, c := range prov.All(span.Class) {
		if c.Data < span.End() && span.Start < c.End() {
			out = append(out, c)
		}
	}
	return out
}

// TotalBytes sums every span's length, for the "Total bytes tainted:
// N" footer.
func TotalBytes(spans []Span) uint64 {
	var total uint64
	for _, s := range spans {
		total += s.Length
	}
	return total
}
