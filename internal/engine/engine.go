// Package engine wires every component package into one running taint
// tracker: shadow memory, the allocation and provenance registries, the
// syscall hooks, the IR propagator, the summary engine, and the
// configuration/client-request layer. It owns no algorithm of its own —
// the component packages do the work; this package only decides
// construction order and which collaborator feeds which.
//
// Wiring order: options, then shadow memory, then the file filter, then
// syscall hooks (which need shadow memory), then the allocation/
// provenance registries, then instrumentation (which needs shadow
// memory and the registries for the summary classifier).
//
//	Options      -> everything below reads its flags at construction time
//	Shadow       -> syscallhooks.Hooks, ir.Propagator, ir.SIMDHelper, summary.Walk
//	FileFilter   -> syscallhooks.Hooks.HandleOpen's classify callback
//	Alloc        -> Classifier (via FindContaining) + release-time untaint
//	Provenance   -> Classifier fast path (IsHeapAddr) + summary chunk lookup
//	Propagator   -> every IR statement the host hands the engine
//	Summary      -> triggered at end-of-main, at exit, or by client request
package engine

import (
	"fmt"
	"io"
	"os"

	"github.com/secretgrind/secretgrind/internal/alloc"
	"github.com/secretgrind/secretgrind/internal/config"
	"github.com/secretgrind/secretgrind/internal/filefilter"
	"github.com/secretgrind/secretgrind/internal/hostapi"
	"github.com/secretgrind/secretgrind/internal/ir"
	"github.com/secretgrind/secretgrind/internal/provenance"
	"github.com/secretgrind/secretgrind/internal/shadow"
	"github.com/secretgrind/secretgrind/internal/summary"
	"github.com/secretgrind/secretgrind/internal/syscallhooks"
)

// shadowPrefixBytes sizes the primary array covering the low, densely
// used portion of the address space; addresses above it fall back to
// the auxiliary cache.
const shadowPrefixBytes = 4 << 30 // 4 GiB

// Engine is the process-wide singleton that owns every component.
type Engine struct {
	PID hostapi.PID

	Options    *config.Options
	Shadow     *shadow.Memory
	FileFilter *filefilter.Filter
	Hooks      *syscallhooks.Hooks
	Alloc      *alloc.Registry
	Provenance *provenance.Registry
	Temps      *ir.TempTable
	Regs       *ir.RegTable
	Propagator *ir.Propagator
	SIMD       *ir.SIMDHelper
	Toggles    *ir.Toggles
	Tracer     *ir.Tracer
	Dispatcher *config.Dispatcher

	Describe func(addr uint64) (string, bool)

	summaryOut  io.Writer
	wasInMain   bool
	haveWasInMain bool
}

// New builds an Engine from parsed options, wiring components in the
// order the package comment documents. out receives trace and summary
// text; describe resolves an address to a debug-info name, if any
// (plumbed from hostapi.AddressDescriber at the cmd/secretgrind layer).
func New(pid hostapi.PID, opts *config.Options, out io.Writer, describe func(addr uint64) (string, bool)) (*Engine, error) {
	e := &Engine{
		PID:        pid,
		Options:    opts,
		Shadow:     shadow.New(shadowPrefixBytes),
		FileFilter: filefilter.New(),
		Alloc:      alloc.New(),
		Provenance: provenance.New(),
		Temps:      ir.NewTempTable(),
		Regs:       ir.NewRegTable(),
		Describe:   describe,
		summaryOut: out,
	}

	home, _ := os.UserHomeDir()
	if err := e.FileFilter.AddAll(joinCSV(opts.FileFilter), home); err != nil {
		return nil, err
	}

	window := syscallhooks.Window{
		Offset:   opts.FileTaintStart,
		Length:   opts.FileTaintLen,
		TaintAll: false,
	}
	e.Hooks = syscallhooks.NewHooks(e.Shadow, window)

	e.Propagator = ir.NewPropagator(e.Shadow)
	e.Propagator.Temps = e.Temps
	e.Propagator.Regs = e.Regs
	e.Propagator.DataFlowOnly = opts.TaintDFOnly

	e.SIMD = ir.NewSIMDHelper(e.Shadow)

	e.Toggles = &ir.Toggles{Enabled: opts.Trace, TaintedOnly: opts.TraceTaintOnly || opts.CriticalInsOnly}
	e.Tracer = ir.NewTracer(pid, out, e.Toggles)
	e.Propagator.OnEvent = func(ev ir.Event) {
		if ev.HasAddr {
			ev.Class = e.Classify(uint64(ev.Addr)).String()
		}
		e.Tracer.Emit("", ev)
	}

	sandbox := config.NewSandboxState()
	e.Dispatcher = &config.Dispatcher{
		Sandbox:         sandbox,
		MakeTainted:     func(addr hostapi.Addr, length uint64) { e.Shadow.SetRange(uint64(addr), length, shadow.Tainted) },
		MakeUntainted:   func(addr hostapi.Addr, length uint64) { e.Shadow.SetRange(uint64(addr), length, shadow.Untainted) },
		PrintAllInst:    e.Toggles.EnableTemporary,
		StopPrint:       e.Toggles.DisableTemporary,
		TaintSummary:    func(label string) { e.Summarize(label) },
		ReadTaintStatus: e.reportTaintStatus,
	}

	return e, nil
}

// reportTaintStatus answers a read_taint_status client request: it
// checks every byte in [addr, addr+length), prints a per-byte taint
// bitmap line, and returns whether any byte in the range is tainted.
func (e *Engine) reportTaintStatus(desc string, addr hostapi.Addr, length uint64) bool {
	bits := make([]byte, length)
	any := false
	for i := uint64(0); i < length; i++ {
		if e.Shadow.IsByteTainted(uint64(addr) + i) {
			bits[i] = '1'
			any = true
		} else {
			bits[i] = '0'
		}
	}
	fmt.Fprintf(e.summaryOut, "==%d== [TAINT STATUS] %s @ 0x%x (%d bytes): %s\n",
		e.PID, desc, uint64(addr), length, bits)
	return any
}

func joinCSV(patterns []string) string {
	out := ""
	for i, p := range patterns {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// Classify resolves an address to its owning alloc.AddrClass, the
// predicate summary.Walk needs to split tainted runs at class
// boundaries. The heap-bounds fast path avoids an O(n) registry scan
// for the overwhelmingly common case.
func (e *Engine) Classify(addr uint64) alloc.AddrClass {
	if e.Provenance.IsHeapAddr(addr) {
		return alloc.ClassHeapMalloc
	}
	if c, ok := e.Alloc.FindContaining(addr, 1); ok {
		return c.Class
	}
	return alloc.ClassOther
}

// ObserveIP feeds the host's current-IP/in-main signal to the engine,
// triggering an automatic summary on the falling edge of "inside main",
// unless summary-exit-only suppresses it.
func (e *Engine) ObserveIP(inMain bool) {
	if e.haveWasInMain && e.wasInMain && !inMain && !e.Options.SummaryExitOnly {
		e.Summarize("end of main")
	}
	e.wasInMain, e.haveWasInMain = inMain, true
}

// ObserveExit triggers the summary for a guest exit/exit_group syscall,
// unless summary-main-only suppresses it.
func (e *Engine) ObserveExit() {
	if !e.Options.SummaryMainOnly {
		e.Summarize("exit")
	}
}

// Summarize runs the summary engine and prints it, honoring the
// `summary` master switch.
func (e *Engine) Summarize(label string) {
	if !e.Options.Summary {
		return
	}
	spans := summary.Walk(e.Shadow, e.Classify, e.Provenance)
	f := summary.NewFormatter(e.PID, e.summaryOut)
	f.Describe = e.Describe
	f.TotalOnly = e.Options.SummaryTotalOnly
	f.Print(spans, label)
}
