package summary

import (
	"bytes"
	"testing"

	"github.com/secretgrind/secretgrind/internal/alloc"
	"github.com/secretgrind/secretgrind/internal/provenance"
	"github.com/secretgrind/secretgrind/internal/shadow"
)

const testPrefix = 4 << 20

func classifyFixed(class alloc.AddrClass) Classifier {
	return func(uint64) alloc.AddrClass { return class }
}

func TestWalkSingleSpanSingleClass(t *testing.T) {
	mem := shadow.New(testPrefix)
	mem.SetRange(0x100, 16, shadow.Tainted)
	prov := provenance.New()

	spans := Walk(mem, classifyFixed(alloc.ClassHeapMalloc), prov)
	if len(spans) != 1 || spans[0].Start != 0x100 || spans[0].Length != 16 {
		t.Fatalf("unexpected spans: %+v", spans)
	}
	if spans[0].Class != alloc.ClassHeapMalloc {
		t.Fatalf("unexpected class: %v", spans[0].Class)
	}
}

func TestWalkSplitsRunAtClassBoundary(t *testing.T) {
	mem := shadow.New(testPrefix)
	mem.SetRange(0x100, 16, shadow.Tainted)
	prov := provenance.New()

	classify := func(addr uint64) alloc.AddrClass {
		if addr < 0x108 {
			return alloc.ClassHeapMalloc
		}
		return alloc.ClassGlobal
	}
	spans := Walk(mem, classify, prov)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans split at the class boundary, got %+v", spans)
	}
	if spans[0].Length != 8 || spans[1].Length != 8 {
		t.Fatalf("unexpected split lengths: %+v", spans)
	}
}

func TestWalkAttachesOverlappingChunks(t *testing.T) {
	mem := shadow.New(testPrefix)
	mem.SetRange(0x1000, 8, shadow.Tainted)
	prov := provenance.New()
	c := &alloc.Chunk{Data: 0x1000, ReqSize: 64, Class: alloc.ClassHeapMalloc, Master: true}
	prov.Insert(c)

	spans := Walk(mem, classifyFixed(alloc.ClassHeapMalloc), prov)
	if len(spans) != 1 || len(spans[0].Chunks) != 1 || spans[0].Chunks[0] != c {
		t.Fatalf("expected span to reference the overlapping chunk, got %+v", spans)
	}
}

func TestTotalBytesSums(t *testing.T) {
	spans := []Span{{Length: 5}, {Length: 3}}
	if TotalBytes(spans) != 8 {
		t.Fatal("expected total of 8")
	}
}

func TestFormatterNoBytesTainted(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(1, &buf)
	f.Print(nil, "end of main")
	if got := buf.String(); got == "" {
		t.Fatal("expected header output")
	}
	if !bytes.Contains(buf.Bytes(), []byte("No bytes tainted")) {
		t.Fatalf("expected 'No bytes tainted' footer, got %q", buf.String())
	}
}

func TestFormatterTotalOnlySuppressesSpanDetail(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(1, &buf)
	f.TotalOnly = true
	f.Print([]Span{{Start: 0, Length: 4, Class: alloc.ClassGlobal}}, "exit")
	if bytes.Contains(buf.Bytes(), []byte("***")) {
		t.Fatal("expected summary-total-only to suppress per-span lines")
	}
	if !bytes.Contains(buf.Bytes(), []byte("Total bytes tainted: 4")) {
		t.Fatalf("expected byte total, got %q", buf.String())
	}
}

func TestFormatterPrintsSpanHeader(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(7, &buf)
	f.Print([]Span{{Start: 0x10, Length: 8, Class: alloc.ClassGlobal}}, "exit")
	if !bytes.Contains(buf.Bytes(), []byte("*** (1) (global) range [0x10 - 0x17] (8 bytes) is tainted")) {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
