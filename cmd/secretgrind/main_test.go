package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunTaintsFilteredFileContents(t *testing.T) {
	dir := t.TempDir()
	secret := writeTempFile(t, dir, "secret.txt", []byte("hunter2"))

	var out bytes.Buffer
	args := []string{"--file-filter=" + secret, secret}
	if err := run(args, "", &out); err != nil {
		t.Fatal(err)
	}

	if !bytes.Contains(out.Bytes(), []byte("Total bytes tainted: 7")) {
		t.Fatalf("expected a taint summary, got %q", out.String())
	}
}

func TestRunReportsNoTaintWhenFileNotFiltered(t *testing.T) {
	dir := t.TempDir()
	plain := writeTempFile(t, dir, "plain.txt", []byte("hello"))

	var out bytes.Buffer
	if err := run([]string{plain}, "", &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out.Bytes(), []byte("No bytes tainted")) {
		t.Fatalf("expected no taint without a matching filter, got %q", out.String())
	}
}

func TestRunErrorsOnMissingFile(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"/nonexistent/path/does/not/exist"}, "", &out); err == nil {
		t.Fatal("expected an error opening a nonexistent file")
	}
}

func TestProcessAllocatorRoundTrip(t *testing.T) {
	a := newProcessAllocator()
	addr, err := a.Alloc(32)
	if err != nil {
		t.Fatal(err)
	}
	if addr == 0 {
		t.Fatal("expected a nonzero address for a nonzero-size allocation")
	}
	if _, ok := a.live[addr]; !ok {
		t.Fatal("expected the allocation to be retained until Free")
	}
	a.Free(addr)
	if _, ok := a.live[addr]; ok {
		t.Fatal("expected Free to release the retained buffer")
	}
}

func TestProcessAllocatorAlignedAllocIsAligned(t *testing.T) {
	a := newProcessAllocator()
	addr, err := a.AlignedAlloc(64, 16)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(addr)%64 != 0 {
		t.Fatalf("expected a 64-byte aligned address, got 0x%x", addr)
	}
}
