// Package config implements the option parser and client-request
// dispatch: every user-tunable knob (file filtering, taint windows,
// trace/summary toggles) and every tag the guest program can send over
// the client-request channel.
package config

import (
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"

	"github.com/secretgrind/secretgrind/internal/libc"
)

// Options holds every user-tunable knob this tool exposes.
type Options struct {
	FileFilter []string

	FileTaintStart      uint64
	FileTaintLen        uint64
	FileMmapUsePageSize uint64

	TaintDFOnly          bool
	TaintRemoveOnRelease bool
	TaintWarnOnRelease   bool
	TaintShowSource      bool
	TaintStdin           bool

	Trace          bool
	TraceTaintOnly bool

	VarName  bool
	Mnemonics bool
	Debug    bool

	Summary          bool
	SummaryVerbose   bool
	SummaryExitOnly  bool
	SummaryMainOnly  bool
	SummaryTotalOnly bool
	SummaryFixInst   []uint64

	// CriticalInsOnly is wired but has no classification criterion of its
	// own yet: it currently behaves identically to TraceTaintOnly. Left as
	// a documented toggle rather than guessed at.
	CriticalInsOnly bool
}

// defaultOptions returns every option's default value explicitly
// rather than relying on the zero value, so a reader can see the
// default without cross-referencing the struct.
func defaultOptions() *Options {
	return &Options{
		FileFilter:           nil,
		FileTaintStart:       0,
		FileTaintLen:         0x800000,
		FileMmapUsePageSize:  4096,
		TaintDFOnly:          false,
		TaintRemoveOnRelease: false,
		TaintWarnOnRelease:   true,
		TaintShowSource:      false,
		TaintStdin:           false,
		Trace:                false,
		TraceTaintOnly:       false,
		VarName:              false,
		Mnemonics:            false,
		Debug:                false,
		Summary:              true,
		SummaryVerbose:       false,
		SummaryExitOnly:      false,
		SummaryMainOnly:      false,
		SummaryTotalOnly:     false,
		SummaryFixInst:       nil,
		CriticalInsOnly:      false,
	}
}

// IsDefaultWindow reports whether the file taint window is still at
// its out-of-the-box default, the signal internal/syscallhooks uses to
// decide whether a file-backed mmap should be page-aligned.
func (o *Options) IsDefaultWindow() bool {
	return o.FileTaintStart == 0 && o.FileTaintLen == 0x800000
}

func optString(arg, prefix string) (bool, string) {
	if strings.HasPrefix(arg, prefix) {
		return true, arg[len(prefix):]
	}
	return false, ""
}

func parseBool(name, val string) (bool, error) {
	switch val {
	case "", "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	default:
		return false, errors.Errorf("%s: expected yes/no, got %q", name, val)
	}
}

func parseUint(name, val string) (uint64, error) {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return 0, errors.Errorf("%s: invalid integer %q", name, val)
	}
	n, rest, err := libc.Strtoul(trimmed, 0)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: %q out of range", name, val)
	}
	if rest != "" {
		return 0, errors.Errorf("%s: invalid integer %q", name, val)
	}
	return n, nil
}

// parseOptions walks args applying `--name=value` and `--no-name`
// flags onto opts, a hand-rolled switch-over-argv parser rather than a
// general-purpose flag package, since every flag here is a uint, a
// comma-separated list, or an on/off switch with three spellings.
func parseOptions(opts *Options, args []string) error {
	for _, arg := range args {
		switch {
		case hasFlag(arg, "file-filter"):
			_, v := optString(arg, "--file-filter=")
			opts.FileFilter = splitNonEmpty(v, ",")

		case hasFlag(arg, "file-taint-start"):
			_, v := optString(arg, "--file-taint-start=")
			n, err := parseUint("file-taint-start", v)
			if err != nil {
				return err
			}
			opts.FileTaintStart = n

		case hasFlag(arg, "file-taint-len"):
			_, v := optString(arg, "--file-taint-len=")
			n, err := parseUint("file-taint-len", v)
			if err != nil {
				return err
			}
			opts.FileTaintLen = n

		case hasFlag(arg, "file-mmap-use-pagesize"):
			_, v := optString(arg, "--file-mmap-use-pagesize=")
			n, err := parseUint("file-mmap-use-pagesize", v)
			if err != nil {
				return err
			}
			if n == 0 || n&(n-1) != 0 {
				return errors.Errorf("file-mmap-use-pagesize: %d is not a power of two", n)
			}
			opts.FileMmapUsePageSize = n

		case matchBoolFlag(arg, "taint-df-only", &opts.TaintDFOnly):
		case matchBoolFlag(arg, "taint-remove-on-release", &opts.TaintRemoveOnRelease):
		case matchBoolFlag(arg, "taint-warn-on-release", &opts.TaintWarnOnRelease):
		case matchBoolFlag(arg, "taint-show-source", &opts.TaintShowSource):
		case matchBoolFlag(arg, "taint-stdin", &opts.TaintStdin):
		case matchBoolFlag(arg, "trace", &opts.Trace):
		case matchBoolFlag(arg, "trace-taint-only", &opts.TraceTaintOnly):
		case matchBoolFlag(arg, "var-name", &opts.VarName):
		case matchBoolFlag(arg, "mnemonics", &opts.Mnemonics):
		case matchBoolFlag(arg, "debug", &opts.Debug):
		case matchBoolFlag(arg, "summary", &opts.Summary):
		case matchBoolFlag(arg, "summary-verbose", &opts.SummaryVerbose):
		case matchBoolFlag(arg, "summary-exit-only", &opts.SummaryExitOnly):
		case matchBoolFlag(arg, "summary-main-only", &opts.SummaryMainOnly):
		case matchBoolFlag(arg, "summary-total-only", &opts.SummaryTotalOnly):
		case matchBoolFlag(arg, "critical-ins-only", &opts.CriticalInsOnly):

		case hasFlag(arg, "summary-fix-inst"):
			_, v := optString(arg, "--summary-fix-inst=")
			ids, err := parseUintList("summary-fix-inst", v)
			if err != nil {
				return err
			}
			opts.SummaryFixInst = ids

		default:
			return errors.Errorf("unknown option: %s", arg)
		}
	}
	return nil
}

func hasFlag(arg, name string) bool {
	return strings.HasPrefix(arg, "--"+name+"=") || arg == "--"+name || arg == "--no-"+name
}

// matchBoolFlag handles the `--name`/`--name=yes|no`/`--no-name` triad
// every on/off switch in this parser accepts.
func matchBoolFlag(arg, name string, dst *bool) bool {
	if !hasFlag(arg, name) {
		return false
	}
	if arg == "--no-"+name {
		*dst = false
		return true
	}
	if ok, v := optString(arg, "--"+name+"="); ok {
		b, err := parseBool(name, v)
		if err == nil {
			*dst = b
		}
		return true
	}
	*dst = true
	return true
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseUintList(name, s string) ([]uint64, error) {
	parts := splitNonEmpty(s, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		n, err := parseUint(name, p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// parseShellWords tokenizes a SECRETGRIND_OPTS-style string using
// go-shellwords, the same shell-word-splitting rules a real shell
// applies to an environment variable's contents.
func parseShellWords(s string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	return parser.Parse(s)
}

// ParseOptions builds Options from defaults, then SECRETGRIND_OPTS (if
// envOpts is non-empty), then args — later sources win, so an explicit
// command-line flag always overrides the environment default.
func ParseOptions(envOpts string, args []string) (*Options, error) {
	opts := defaultOptions()

	if envOpts != "" {
		words, err := parseShellWords(envOpts)
		if err != nil {
			return nil, errors.Wrap(err, "SECRETGRIND_OPTS")
		}
		if err := parseOptions(opts, words); err != nil {
			return nil, errors.Wrap(err, "SECRETGRIND_OPTS")
		}
	}

	if err := parseOptions(opts, args); err != nil {
		return nil, err
	}
	return opts, nil
}
