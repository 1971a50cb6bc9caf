package ir

import (
	"github.com/secretgrind/secretgrind/internal/hostapi"
	"github.com/secretgrind/secretgrind/internal/shadow"
)

// Propagator applies the per-statement-shape propagation table to one
// basic block at a time, reading and writing the temp and register
// taint tables and shadow memory as it goes.
type Propagator struct {
	Temps *TempTable
	Regs  *RegTable
	Mem   *shadow.Memory

	// DataFlowOnly suppresses indirect propagation via tainted
	// addresses ("taint-df-only"): a tainted pointer no longer taints
	// the value it loads, nor forces a store's destination range
	// tainted.
	DataFlowOnly bool

	// OnEvent, if set, is called for every statement processed, for
	// trace rendering. nil disables trace bookkeeping entirely.
	OnEvent func(Event)
}

// Event describes one instrumented statement's outcome, enough detail
// for trace.go to render a `lhs <- rhs` flow line without re-deriving
// it from the statement.
type Event struct {
	Stmt    Stmt
	Tainted bool
	Flow    string

	// Addr is the concrete memory address the statement touched (a
	// store destination, a load source, or an instruction's own
	// address for IMark); HasAddr is false for statements with no
	// associated address (register puts, exits, arithmetic writes),
	// in which case a trace line's value field renders as 0x0.
	Addr    hostapi.Addr
	HasAddr bool

	// Class is the address-class label of Addr, filled in by the
	// engine (which owns classification) before the event reaches a
	// Tracer; empty when HasAddr is false.
	Class string
}

// NewPropagator returns a propagator over fresh temp/register tables
// and the given shadow memory.
func NewPropagator(mem *shadow.Memory) *Propagator {
	return &Propagator{Temps: NewTempTable(), Regs: NewRegTable(), Mem: mem}
}

// anyTainted reports whether any byte in [addr, addr+size) is
// tainted — a boolean union in place of bit-precise partial-value taint
// arithmetic.
func anyTainted(mem *shadow.Memory, addr hostapi.Addr, size int) bool {
	a := uint64(addr)
	for i := 0; i < size; i++ {
		if mem.IsByteTainted(a + uint64(i)) {
			return true
		}
	}
	return false
}

// Exec runs one instrumented statement through the propagation table.
func (p *Propagator) Exec(s Stmt) {
	switch s.Kind {
	case StmtIMark:
		p.emit(s, false, "")

	case StmtWriteTmp:
		tainted, flow := p.evalExpr(s.Expr)
		p.Temps.Set(s.Tmp, tainted)
		p.emit(s, tainted, flow)

	case StmtPutReg:
		tainted := p.Temps.Taint(s.Tmp)
		p.Regs.Set(s.Reg, tainted)
		p.emit(s, tainted, flowEdge(tempLabel(p.Temps, s.Tmp), regLabel(s.Reg)))

	case StmtStore:
		valueTainted := p.Temps.Taint(s.Tmp)
		addrTainted := p.Temps.Taint(s.AddrTmp)
		dest := shadow.Untainted
		if valueTainted || (!p.DataFlowOnly && addrTainted) {
			dest = shadow.Tainted
		}
		p.Mem.SetRange(uint64(s.Addr), uint64(s.Size), dest)
		p.emit(s, dest == shadow.Tainted, flowEdge(tempLabel(p.Temps, s.Tmp), "*"+hexAddr(s.Addr)))

	case StmtExit:
		guardTainted := p.Temps.Taint(s.Guard)
		p.emit(s, guardTainted, "")
	}
}

func (p *Propagator) evalExpr(e Expr) (bool, string) {
	switch e.Kind {
	case ExprConst:
		return false, ""
	case ExprRdTmp:
		return p.Temps.Taint(e.Args[0]), tempLabel(p.Temps, e.Args[0])
	case ExprUnop:
		return p.Temps.Taint(e.Args[0]), tempLabel(p.Temps, e.Args[0])
	case ExprBinop:
		t := p.Temps.Taint(e.Args[0]) || p.Temps.Taint(e.Args[1])
		return t, flowJoin(p.Temps, e.Args)
	case ExprTriop, ExprQop:
		t := false
		for _, a := range e.Args {
			if p.Temps.Taint(a) {
				t = true
			}
		}
		return t, flowJoin(p.Temps, e.Args)
	case ExprITE:
		t := p.Temps.Taint(e.A) || p.Temps.Taint(e.B)
		// the condition's taint is surfaced in the trace only: it is
		// never propagated into the selected value.
		return t, flowJoin(p.Temps, []int{e.A, e.B})
	case ExprGet:
		return p.Regs.Taint(e.Reg), regLabel(e.Reg)
	case ExprLoad:
		loadTainted := anyTainted(p.Mem, e.Addr, e.Size)
		addrTainted := p.Temps.Taint(e.AddrTmp)
		t := loadTainted || (!p.DataFlowOnly && addrTainted)
		return t, flowEdge("*"+hexAddr(e.Addr), tempLabel(p.Temps, e.AddrTmp))
	default:
		return false, ""
	}
}

func (p *Propagator) emit(s Stmt, tainted bool, flow string) {
	if p.OnEvent == nil {
		return
	}
	addr, hasAddr := eventAddr(s)
	p.OnEvent(Event{Stmt: s, Tainted: tainted, Flow: flow, Addr: addr, HasAddr: hasAddr})
}

// eventAddr extracts the one concrete memory address a statement is
// about, if it has one: a store's destination, a load's source, or an
// IMark's own instruction address. Register puts, exits, and
// arithmetic writes have no address to report.
func eventAddr(s Stmt) (hostapi.Addr, bool) {
	switch s.Kind {
	case StmtStore:
		return s.Addr, true
	case StmtIMark:
		return s.InstAddr, true
	case StmtWriteTmp:
		if s.Expr.Kind == ExprLoad {
			return s.Expr.Addr, true
		}
	}
	return 0, false
}
