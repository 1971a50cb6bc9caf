// Command secretgrind is a minimal process-local stand-in for the DBI
// host internal/hostapi abstracts away: it instruments its own reads of
// the files named on the command line, using each buffer's real Go
// heap address as the "guest address" the engine tracks. A real DBI
// binding replaces only this command; every package under internal/
// is unchanged.
package main

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/secretgrind/secretgrind/internal/alloc"
	"github.com/secretgrind/secretgrind/internal/config"
	"github.com/secretgrind/secretgrind/internal/engine"
	"github.com/secretgrind/secretgrind/internal/hostapi"
)

const demoThread = hostapi.ThreadID(1)

func main() {
	if err := run(os.Args[1:], os.Getenv("SECRETGRIND_OPTS"), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "secretgrind:", err)
		os.Exit(1)
	}
}

func run(args []string, envOpts string, out io.Writer) error {
	var paths []string
	var flags []string
	for _, a := range args {
		if len(a) >= 2 && a[0] == '-' && a[1] == '-' {
			flags = append(flags, a)
		} else {
			paths = append(paths, a)
		}
	}

	opts, err := config.ParseOptions(envOpts, flags)
	if err != nil {
		return err
	}

	host := processHost{}
	e, err := engine.New(hostapi.PID(os.Getpid()), opts, out, describe)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if err := instrumentFile(e, host, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if opts.TaintStdin {
		if err := instrumentHeapCopy(e, host, os.Stdin, out); err != nil {
			return fmt.Errorf("stdin: %w", err)
		}
	}

	e.ObserveExit()
	return nil
}

// instrumentHeapCopy demonstrates the allocation path end to end: it draws
// a guest buffer from a hostapi.ReplacementAllocator, reads stdin into it,
// taints the whole block (honoring taint-stdin), and releases it through
// the engine's release-policy path.
func instrumentHeapCopy(e *engine.Engine, host processHost, r io.Reader, out io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	pa := newProcessAllocator()
	addr, err := pa.Alloc(uint64(len(data)))
	if err != nil {
		return err
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data))
	copy(buf, data)

	e.RecordMalloc(uint64(addr), uint64(len(data)), 0, host.CaptureStack())
	e.Dispatcher.MakeTainted(addr, uint64(len(data)))
	res, warn := e.RecordFree(uint64(addr), host.CaptureStack())
	if warn && res.Found {
		fmt.Fprintf(out, "==%d== [TAINT WARNING] freed tainted block at 0x%x\n", os.Getpid(), res.Chunk.Data)
	}
	pa.Free(addr)
	return nil
}

// instrumentFile opens path the way a traced guest's open(2) would,
// classifies it against the configured file filter, reads its contents
// into a heap buffer, and marks that buffer's shadow memory using the
// buffer's real address — a self-instrumentation demonstration of the
// open/read/taint path internal/syscallhooks implements.
func instrumentFile(e *engine.Engine, host processHost, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := int(info.Size())
	if size == 0 {
		return nil
	}

	const fd = 3
	e.Hooks.HandleOpen(demoThread, fd, path, e.FileFilter.Match)
	defer e.Hooks.HandleClose(demoThread, fd)

	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return err
	}
	buf = buf[:n]

	addr := bufAddr(buf)
	e.RecordMmap(addr, uint64(n), alloc.ClassMmapFile, host.CaptureStack())
	e.Hooks.HandleRead(demoThread, fd, hostapi.Addr(addr), n)

	return nil
}

func bufAddr(buf []byte) uint64 {
	if len(buf) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}
