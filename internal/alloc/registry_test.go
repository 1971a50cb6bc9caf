package alloc

import "testing"

func alwaysUntainted(addr, length uint64) bool { return false }

func TestMallocAndFree(t *testing.T) {
	r := New()
	c := r.Malloc(0x1000, 64, 0, nil)
	if !c.Master {
		t.Fatal("malloc chunk must be a master")
	}
	if _, ok := r.Lookup(0x1000); !ok {
		t.Fatal("chunk not recorded")
	}
	res := r.Free(0x1000, nil, alwaysUntainted, FreeConfig{})
	if !res.Found || res.WasTainted {
		t.Fatalf("unexpected free result: %+v", res)
	}
	if _, ok := r.Lookup(0x1000); ok {
		t.Fatal("chunk still live after free")
	}
}

func TestFreeUnknownAddrIsSilent(t *testing.T) {
	r := New()
	res := r.Free(0xdeadbeef, nil, alwaysUntainted, FreeConfig{})
	if res.Found {
		t.Fatal("expected Found=false for a bogus free")
	}
}

func TestFreeTaintedWarnsAndUntaints(t *testing.T) {
	r := New()
	r.Malloc(0x2000, 64, 0, nil)
	tainted := func(addr, length uint64) bool { return true }
	res := r.Free(0x2000, nil, tainted, FreeConfig{WarnOnRelease: true, RemoveOnRelease: true})
	if !res.WasTainted || !res.ShouldWarn || !res.ShouldUntaint {
		t.Fatalf("expected warn+untaint, got %+v", res)
	}
}

func TestHasChildRetainsChunkUntilChildReleased(t *testing.T) {
	r := New()
	parent := r.Malloc(0x3000, 128, 0, nil)
	child := &Chunk{Data: 0x3000, ReqSize: 32}
	child.SetParent(parent)

	r.Free(0x3000, nil, alwaysUntainted, FreeConfig{})
	if _, ok := r.Lookup(0x3000); ok {
		t.Fatal("parent should leave the live table on free")
	}
	retained := r.Retained()
	if len(retained) != 1 || retained[0] != parent {
		t.Fatalf("expected parent retained, got %v", retained)
	}

	r.ReleaseChild(child, func(p *Chunk) bool { return false })
	if len(r.Retained()) != 0 {
		t.Fatal("parent should be destroyed once its only child is released")
	}
}

func TestChunkCannotBeOwnParent(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for self-parenting chunk")
		}
	}()
	c := &Chunk{Data: 0x4000, ReqSize: 16, Master: true}
	c.SetParent(c)
}

func TestNonMasterParentRejected(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when parent is not a master chunk")
		}
	}()
	notMaster := &Chunk{Data: 0x5000, ReqSize: 16}
	child := &Chunk{Data: 0x5000, ReqSize: 8}
	child.SetParent(notMaster)
}

func TestReallocPreservesTaintedByteCount(t *testing.T) {
	r := New()
	r.Malloc(0x6000, 64, 0, nil)

	var copied []uint64
	copyShadow := func(src, dst, length uint64) {
		copied = append(copied, src, dst, length)
	}
	fresh, freeRes := r.Realloc(0x6000, 0x7000, 128, nil, alwaysUntainted, FreeConfig{}, copyShadow)
	if !freeRes.Found {
		t.Fatal("expected old chunk to be found and freed")
	}
	if fresh.Data != 0x7000 || fresh.ReqSize != 128 {
		t.Fatalf("unexpected fresh chunk: %+v", fresh)
	}
	if len(copied) != 3 || copied[2] != 64 {
		t.Fatalf("expected copy of min(old,new)=64 bytes, got %v", copied)
	}
}

func TestReallocShrinkCopiesOnlySurvivingBytes(t *testing.T) {
	r := New()
	r.Malloc(0x8000, 64, 0, nil)

	var copyLen uint64
	copyShadow := func(src, dst, length uint64) { copyLen = length }
	r.Realloc(0x8000, 0x9000, 8, nil, alwaysUntainted, FreeConfig{}, copyShadow)
	if copyLen != 8 {
		t.Fatalf("expected shrink to copy only 8 bytes, got %d", copyLen)
	}
}

func TestHeapBounds(t *testing.T) {
	r := New()
	r.Malloc(0x1000, 16, 0, nil)
	r.Malloc(0x5000, 16, 0, nil)
	r.Mmap(0x9000, 16, ClassMmapAnon, nil) // must not affect heap bounds

	min, max, ok := r.HeapBounds()
	if !ok || min != 0x1000 || max != 0x5010 {
		t.Fatalf("unexpected heap bounds: min=%#x max=%#x ok=%v", min, max, ok)
	}
	if !r.IsHeapAddr(0x1008) || r.IsHeapAddr(0x9000) {
		t.Fatal("IsHeapAddr classification wrong")
	}
}

func TestDisplayNameFallbackChain(t *testing.T) {
	c := &Chunk{Data: 0xabc, Class: ClassHeapMalloc}
	if got := c.DisplayName(nil, 1, 2); got != "@0xabc_malloc_1_2" {
		t.Fatalf("unexpected synthesized name: %s", got)
	}
	describe := func(addr uint64) (string, bool) { return "buf", true }
	if got := c.DisplayName(describe, 1, 2); got != "buf" {
		t.Fatalf("expected symbol name, got %s", got)
	}
	c.VName = "secret_key"
	if got := c.DisplayName(describe, 1, 2); got != "secret_key" {
		t.Fatalf("user-assigned name should win, got %s", got)
	}
}
