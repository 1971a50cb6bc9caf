// Package filefilter implements the file filter: a small ordered table
// of path patterns deciding which opened file descriptors become
// taint sources.
package filefilter

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/secretgrind/secretgrind/internal/libc"
)

// MaxPatterns bounds the filter's pattern list.
const MaxPatterns = 64

// MaxPatternLen bounds a single pattern's stored length, mirroring the
// fixed MAX_PATH-sized buffer each filter slot occupied originally.
const MaxPatternLen = 4096

// Wildcard is the single wildcard pattern meaning "every opened file".
const Wildcard = "*"

// Filter is an ordered list of literal-path or wildcard patterns.
type Filter struct {
	patterns []string
}

// New returns an empty filter (nothing matches until patterns are added).
func New() *Filter {
	return &Filter{}
}

// Add appends a pattern, normalized with filepath.Clean before storage
// — matching is case-sensitive and does not resolve symlinks, it just
// tolerates trailing slashes and repeated separators. The normalized
// pattern is bounded to MaxPatternLen bytes via libc.Strlcpy, the same
// fixed-capacity-slot storage the original filter used.
func (f *Filter) Add(pattern string) error {
	if len(f.patterns) >= MaxPatterns {
		return fmt.Errorf("filefilter: too many patterns (max %d)", MaxPatterns)
	}
	buf := make([]byte, MaxPatternLen)
	libc.Strlcpy(buf, normalize(pattern), len(buf))
	n := bytes.IndexByte(buf, 0)
	if n < 0 {
		n = len(buf)
	}
	f.patterns = append(f.patterns, string(buf[:n]))
	return nil
}

// AddAll parses a comma-separated pattern list ("--file-filter=a,b,c").
// home, if non-empty, is substituted for a leading "~".
func (f *Filter) AddAll(csv, home string) error {
	if csv == "" {
		return nil
	}
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := f.Add(expandHome(p, home)); err != nil {
			return err
		}
	}
	return nil
}

func expandHome(path, home string) string {
	if home == "" || path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

func normalize(path string) string {
	if path == Wildcard {
		return Wildcard
	}
	return filepath.Clean(path)
}

// Match reports whether path should be treated as a taint source: either
// some pattern equals path literally (after normalization) or the
// wildcard pattern is present.
func (f *Filter) Match(path string) bool {
	clean := normalize(path)
	for _, p := range f.patterns {
		if p == Wildcard || p == clean {
			return true
		}
	}
	return false
}

// All returns the configured patterns in insertion order.
func (f *Filter) All() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}

// Present reports whether any pattern has been configured.
func (f *Filter) Present() bool {
	return len(f.patterns) > 0
}
