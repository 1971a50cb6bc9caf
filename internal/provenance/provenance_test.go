package provenance

import (
	"errors"
	"testing"

	"github.com/secretgrind/secretgrind/internal/alloc"
)

func TestInsertHeadOrder(t *testing.T) {
	r := New()
	a := &alloc.Chunk{Data: 1, ReqSize: 8, Class: alloc.ClassGlobal, Master: true}
	b := &alloc.Chunk{Data: 2, ReqSize: 8, Class: alloc.ClassGlobal, Master: true}
	r.Insert(a)
	r.Insert(b)
	got := r.All(alloc.ClassGlobal)
	if len(got) != 2 || got[0] != b || got[1] != a {
		t.Fatalf("expected head-insert order [b,a], got %v", got)
	}
}

func TestRemoveAndIterator(t *testing.T) {
	r := New()
	a := &alloc.Chunk{Data: 1, ReqSize: 8, Class: alloc.ClassStack, Master: true}
	b := &alloc.Chunk{Data: 2, ReqSize: 8, Class: alloc.ClassStack, Master: true}
	r.Insert(a)
	r.Insert(b)
	r.Remove(a)

	r.ResetIterator(alloc.ClassStack)
	c, ok := r.Next(alloc.ClassStack)
	if !ok || c != b {
		t.Fatalf("expected b after removing a, got %v ok=%v", c, ok)
	}
	if _, ok := r.Next(alloc.ClassStack); ok {
		t.Fatal("expected iterator exhausted")
	}
}

func TestGetParentBlockFound(t *testing.T) {
	r := New()
	master := &alloc.Chunk{Data: 0x1000, ReqSize: 256, Class: alloc.ClassHeapMalloc, Master: true}
	r.Insert(master)

	got, err := r.GetParentBlock(alloc.ClassHeapMalloc, 0x1010, 16)
	if err != nil || got != master {
		t.Fatalf("expected master, got %v err=%v", got, err)
	}
}

func TestGetParentBlockStraddleIsInvariantViolation(t *testing.T) {
	r := New()
	master := &alloc.Chunk{Data: 0x1000, ReqSize: 16, Class: alloc.ClassHeapMalloc, Master: true}
	r.Insert(master)

	_, err := r.GetParentBlock(alloc.ClassHeapMalloc, 0x1008, 32) // extends past chunk end
	var straddle *ErrStraddle
	if !errors.As(err, &straddle) {
		t.Fatalf("expected ErrStraddle, got %v", err)
	}
}

func TestGetParentBlockNotFound(t *testing.T) {
	r := New()
	got, err := r.GetParentBlock(alloc.ClassHeapMalloc, 0x1000, 16)
	if err != nil || got != nil {
		t.Fatalf("expected (nil,nil), got %v %v", got, err)
	}
}

func TestHeapBoundsTracking(t *testing.T) {
	r := New()
	r.Insert(&alloc.Chunk{Data: 0x2000, ReqSize: 32, Class: alloc.ClassHeapMalloc, Master: true})
	r.Insert(&alloc.Chunk{Data: 0x1000, ReqSize: 16, Class: alloc.ClassHeapMalloc, Master: true})
	min, max, ok := r.HeapBounds()
	if !ok || min != 0x1000 || max != 0x2020 {
		t.Fatalf("unexpected bounds: min=%#x max=%#x", min, max)
	}
	if !r.IsHeapAddr(0x1500) || r.IsHeapAddr(0x3000) {
		t.Fatal("IsHeapAddr classification wrong")
	}
}
