package summary

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/secretgrind/secretgrind/internal/alloc"
	"github.com/secretgrind/secretgrind/internal/hostapi"
)

// Formatter renders spans as ASCII text: a header naming the trigger
// label, one `*** (id) (class) range [...] (N bytes) is tainted` block
// per span (unless TotalOnly suppresses per-span detail), and a
// trailing byte total.
type Formatter struct {
	PID       hostapi.PID
	Out       io.Writer
	Describe  func(addr uint64) (string, bool)
	TotalOnly bool

	color bool
}

// NewFormatter returns a formatter writing to w, detecting terminal
// color support the same way internal/ir's Tracer does.
func NewFormatter(pid hostapi.PID, w io.Writer) *Formatter {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Formatter{PID: pid, Out: w, color: color}
}

// Print renders spans, labeled by the trigger that produced the
// summary (e.g. "end of main", "exit", a client-supplied label).
func (f *Formatter) Print(spans []Span, label string) {
	fmt.Fprintf(f.Out, "==%d== [TAINT SUMMARY] - %s:\n", f.PID, label)

	if !f.TotalOnly {
		for i, s := range spans {
			f.printSpan(i+1, s)
		}
	}

	total := TotalBytes(spans)
	if total == 0 {
		fmt.Fprintln(f.Out, "No bytes tainted")
		return
	}
	fmt.Fprintf(f.Out, "Total bytes tainted: %d\n", total)
}

func (f *Formatter) printSpan(id int, s Span) {
	header := fmt.Sprintf("*** (%d) (%s) range [0x%x - 0x%x] (%d bytes) is tainted",
		id, s.Class, s.Start, s.End()-1, s.Length)
	fmt.Fprintln(f.Out, f.colorize(header, s.Class))

	for _, c := range s.Chunks {
		f.printChunk(c)
	}
}

func (f *Formatter) printChunk(c *alloc.Chunk) {
	name := c.DisplayName(f.Describe, uint64(f.PID), 0)
	fmt.Fprintf(f.Out, "  > %s\n", padColumn(name, 24))
	if len(c.AllocTrace) > 0 {
		fmt.Fprintf(f.Out, "      alloc: %s\n", c.AllocTrace)
	}
	if len(c.ReleaseTrace) > 0 {
		fmt.Fprintf(f.Out, "      release: %s\n", c.ReleaseTrace)
	} else {
		fmt.Fprintln(f.Out, "      *** WARNING: the block was never free()'d!")
	}
}

func padColumn(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// classHue spreads each address class evenly around the HSV color
// wheel, the same scheme internal/ir's Tracer uses for trace lines,
// so a span's header and trace lines of the same class read as one color.
func classHue(class alloc.AddrClass) float64 {
	return float64(class) * (360.0 / float64(alloc.NumClasses))
}

func (f *Formatter) colorize(s string, class alloc.AddrClass) string {
	if !f.color {
		return s
	}
	hex := colorful.Hsv(classHue(class), 0.55, 0.85).Hex()
	r, g, b := hexChannel(hex, 1), hexChannel(hex, 3), hexChannel(hex, 5)
	return fmt.Sprintf("\x1b[38;2;%s;%s;%sm%s\x1b[0m", r, g, b, s)
}

func hexChannel(hex string, pos int) string {
	if len(hex) < pos+2 {
		return "0"
	}
	v, err := strconv.ParseInt(hex[pos:pos+2], 16, 32)
	if err != nil {
		return "0"
	}
	return strconv.FormatInt(v, 10)
}
