package ir

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/secretgrind/secretgrind/internal/hostapi"
)

// Toggles controls which instrumented statements reach the trace:
// globally on/off, tainted-only, and all-instructions-while-
// temporarily-enabled. The third toggle is the "print-all-inst"/
// "stop-print" client-request pair: while open, every instruction
// prints regardless of TaintedOnly.
type Toggles struct {
	Enabled     bool
	TaintedOnly bool

	temporaryOpen bool
}

// EnableTemporary opens the print-everything window, in response to
// the "print-all-inst" client request.
func (t *Toggles) EnableTemporary() { t.temporaryOpen = true }

// DisableTemporary closes the window, in response to "stop-print".
func (t *Toggles) DisableTemporary() { t.temporaryOpen = false }

func (t *Toggles) shouldPrint(tainted bool) bool {
	if !t.Enabled {
		return false
	}
	if t.temporaryOpen {
		return true
	}
	if t.TaintedOnly {
		return tainted
	}
	return true
}

// Tracer formats Events into one trace line each:
// "==<pid>== <func> | <ir-form> | 0x<value> | 0x<taint> | <flow>".
type Tracer struct {
	PID     hostapi.PID
	Out     io.Writer
	Toggles *Toggles
	color   bool
}

// NewTracer returns a tracer writing to w. Color escapes are emitted
// only when w is a terminal, detected via isatty on the underlying
// file descriptor when w is an *os.File.
func NewTracer(pid hostapi.PID, w io.Writer, toggles *Toggles) *Tracer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Tracer{PID: pid, Out: w, Toggles: toggles, color: color}
}

// classColor assigns a stable, perceptually distinct color to an
// address-class tag for summary/trace highlighting, spreading classes
// evenly around the HSV color wheel rather than hand-picking ANSI
// codes per class.
func classColor(class string) colorful.Color {
	classes := []string{"global", "malloc", "mmap_file", "mmap_anon", "stack", "other"}
	idx := 0
	for i, c := range classes {
		if c == class {
			idx = i
			break
		}
	}
	hue := float64(idx) * (360.0 / float64(len(classes)))
	return colorful.Hsv(hue, 0.55, 0.85)
}

func (t *Tracer) colorize(s, class string) string {
	if !t.color {
		return s
	}
	hex := classColor(class).Hex()
	return fmt.Sprintf("\x1b[38;2;%s;%s;%sm%s\x1b[0m", hexByte(hex, 1), hexByte(hex, 3), hexByte(hex, 5), s)
}

func hexByte(hex string, pos int) string {
	if len(hex) < pos+2 {
		return "0"
	}
	v, err := strconv.ParseInt(hex[pos:pos+2], 16, 32)
	if err != nil {
		return "0"
	}
	return strconv.FormatInt(v, 10)
}

func irForm(s Stmt) string {
	switch s.Kind {
	case StmtIMark:
		return fmt.Sprintf("IMark(0x%x,%d)", s.InstAddr, s.InstLen)
	case StmtWriteTmp:
		return fmt.Sprintf("t%d = %s", s.Tmp, exprForm(s.Expr))
	case StmtPutReg:
		return fmt.Sprintf("PUT(%d) = t%d", s.Reg, s.Tmp)
	case StmtStore:
		return fmt.Sprintf("STle(0x%x) = t%d", s.Addr, s.Tmp)
	case StmtExit:
		return fmt.Sprintf("exit-t%d", s.Guard)
	default:
		return "?"
	}
}

func exprForm(e Expr) string {
	switch e.Kind {
	case ExprConst:
		return "const"
	case ExprRdTmp:
		return fmt.Sprintf("RdTmp(t%d)", e.Args[0])
	case ExprUnop:
		return fmt.Sprintf("Unop(t%d)", e.Args[0])
	case ExprBinop:
		return fmt.Sprintf("Binop(t%d,t%d)", e.Args[0], e.Args[1])
	case ExprTriop:
		return "Triop(...)"
	case ExprQop:
		return "Qop(...)"
	case ExprITE:
		return fmt.Sprintf("ITE(t%d?t%d:t%d)", e.Cond, e.A, e.B)
	case ExprGet:
		return fmt.Sprintf("GET(%d)", e.Reg)
	case ExprLoad:
		return fmt.Sprintf("LDle(0x%x)", e.Addr)
	default:
		return "?"
	}
}

// Emit writes one formatted trace line for ev if the current toggles
// say it should be printed. The value field reports ev.Addr — the
// statement's store destination, load source, or instruction address —
// and renders as 0x0 for statements with no associated address.
func (t *Tracer) Emit(fn string, ev Event) {
	if t.Toggles == nil || !t.Toggles.shouldPrint(ev.Tainted) {
		return
	}
	taintWord := uint64(0)
	if ev.Tainted {
		taintWord = 0xff
	}
	class := ev.Class
	if class == "" {
		class = "other"
	}
	line := fmt.Sprintf("==%d== %s | %s | 0x%x | 0x%x | %s",
		t.PID, padRight(fn, 12), irForm(ev.Stmt), uint64(ev.Addr), taintWord, ev.Flow)
	fmt.Fprintln(t.Out, t.colorize(line, class))
}

func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func tempLabel(temps *TempTable, n int) string {
	return fmt.Sprintf("t%d_%d", n, temps.Version(n))
}

func regLabel(reg int) string {
	return fmt.Sprintf("r%d", reg)
}

func hexAddr(a hostapi.Addr) string {
	return fmt.Sprintf("0x%x", uint64(a))
}

func flowEdge(lhs, rhs string) string {
	return fmt.Sprintf("%s <- %s", lhs, rhs)
}

func flowJoin(temps *TempTable, args []int) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = tempLabel(temps, a)
	}
	return strings.Join(parts, "; ")
}
