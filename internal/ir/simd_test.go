package ir

import (
	"testing"

	"github.com/secretgrind/secretgrind/internal/shadow"
)

func TestSIMDCommitLoadMatchesPrepare(t *testing.T) {
	mem := shadow.New(testPrefix)
	mem.SetRange(0x1000, 16, shadow.Tainted)
	h := NewSIMDHelper(mem)

	h.Prepare(3, 0x1000, 16)
	if !h.CommitLoad(3, 0x1000, 16) {
		t.Fatal("expected tainted wide load to report tainted")
	}
}

func TestSIMDCommitWithoutPreparePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for commit with no pending prepare")
		}
	}()
	h := NewSIMDHelper(shadow.New(testPrefix))
	h.CommitLoad(0, 0x2000, 16)
}

func TestSIMDMismatchedCommitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for mismatched prepare/commit pair")
		}
	}()
	h := NewSIMDHelper(shadow.New(testPrefix))
	h.Prepare(3, 0x1000, 16)
	h.CommitLoad(3, 0x2000, 16) // different address than prepared
}

func TestSIMDCommitStoreWritesShadow(t *testing.T) {
	mem := shadow.New(testPrefix)
	h := NewSIMDHelper(mem)
	h.Prepare(1, 0x3000, 32)
	h.CommitStore(1, 0x3000, 32, true)
	if !mem.IsByteTainted(0x3000) || !mem.IsByteTainted(0x301f) {
		t.Fatal("expected full 32-byte region tainted")
	}
}

func TestSIMDPendingClearedAfterCommit(t *testing.T) {
	mem := shadow.New(testPrefix)
	h := NewSIMDHelper(mem)
	h.Prepare(1, 0x4000, 16)
	h.CommitLoad(1, 0x4000, 16)
	if h.pending != nil {
		t.Fatal("expected pending state cleared after a successful commit")
	}
}
