// Package libc reimplements a handful of small C library entry points:
// strtol/strtoul-style numeric parsing and strlcpy/strlcat-style
// bounded string copying, plus basename. internal/config's option-value
// parsing uses Strtoul directly; internal/filefilter uses Strlcpy to
// bound a normalized pattern into a fixed-capacity slot the way the
// original filter's fixed per-pattern buffers did.
package libc

import "math"

// ErrRange reports that a numeric conversion overflowed its result type,
// mirroring errno==ERANGE in the source this package is grounded on.
type ErrRange struct{}

func (ErrRange) Error() string { return "libc: result out of range" }

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isAlpha(c byte) bool { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }
func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\r' || c == '\f' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Strtol converts the leading, optionally whitespace-prefixed and
// signed, digit run of s in the given base into an int64, the way
// libc_strtol scans nptr. base 0 means "detect": a leading "0x"/"0X"
// selects 16, "0b"/"0B" selects 2, a bare leading "0" selects 8,
// anything else selects 10. rest is everything after the consumed
// run (s itself, unconsumed, if nothing could be parsed). On overflow
// the magnitude saturates to math.MaxInt64/math.MinInt64 and err is
// ErrRange, matching the clamp-and-flag behavior of the source.
func Strtol(s string, base int) (value int64, rest string, err error) {
	i, neg := 0, false
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	base, i = detectBase(s, i, base)

	cutoff := uint64(math.MaxInt64)
	if neg {
		cutoff = uint64(math.MaxInt64) + 1
	}
	cutlim := cutoff % uint64(base)
	cutoff /= uint64(base)

	var acc uint64
	any := 0
	j := i
	for ; j < len(s); j++ {
		d, ok := digitVal(s[j])
		if !ok || d >= base {
			break
		}
		if any < 0 || acc > cutoff || (acc == cutoff && uint64(d) > cutlim) {
			any = -1
			continue
		}
		any = 1
		acc = acc*uint64(base) + uint64(d)
	}

	if any == 0 {
		return 0, s, nil
	}
	if any < 0 {
		if neg {
			return math.MinInt64, s[j:], ErrRange{}
		}
		return math.MaxInt64, s[j:], ErrRange{}
	}
	if neg {
		return -int64(acc), s[j:], nil
	}
	return int64(acc), s[j:], nil
}

// Strtoul is Strtol's unsigned counterpart, following libc_strtoul:
// a leading "-" is accepted and negates the parsed magnitude by
// two's-complement wraparound rather than being rejected.
func Strtoul(s string, base int) (value uint64, rest string, err error) {
	i, neg := 0, false
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	base, i = detectBase(s, i, base)

	cutoff := uint64(math.MaxUint64) / uint64(base)
	cutlim := uint64(math.MaxUint64) % uint64(base)

	var acc uint64
	any := 0
	j := i
	for ; j < len(s); j++ {
		d, ok := digitVal(s[j])
		if !ok || d >= base {
			break
		}
		if any < 0 || acc > cutoff || (acc == cutoff && uint64(d) > cutlim) {
			any = -1
			continue
		}
		any = 1
		acc = acc*uint64(base) + uint64(d)
	}

	if any == 0 {
		return 0, s, nil
	}
	if any < 0 {
		return math.MaxUint64, s[j:], ErrRange{}
	}
	if neg {
		return -acc, s[j:], nil
	}
	return acc, s[j:], nil
}

func detectBase(s string, i, base int) (int, int) {
	if i >= len(s) {
		if base == 0 {
			return 10, i
		}
		return base, i
	}
	if (base == 0 || base == 16) && s[i] == '0' && i+1 < len(s) && (s[i+1] == 'x' || s[i+1] == 'X') {
		return 16, i + 2
	}
	if (base == 0 || base == 2) && s[i] == '0' && i+1 < len(s) && (s[i+1] == 'b' || s[i+1] == 'B') {
		return 2, i + 2
	}
	if base == 0 {
		if s[i] == '0' {
			return 8, i
		}
		return 10, i
	}
	return base, i
}

func digitVal(c byte) (int, bool) {
	switch {
	case isDigit(c):
		return int(c - '0'), true
	case isAlpha(c):
		if isUpper(c) {
			return int(c-'A') + 10, true
		}
		return int(c-'a') + 10, true
	default:
		return 0, false
	}
}

// Strlcpy copies as much of src as fits into a buffer of the given
// size (including the trailing NUL) into dst, always NUL-terminating
// a non-empty buffer, and returns the larger of the resulting and
// source lengths — the return-value convention of libc_strlcpy,
// which differs from the stricter BSD strlcpy (always len(src)) in
// that it accounts for the copy having silently clamped to dst's
// actual capacity rather than the requested size.
func Strlcpy(dst []byte, src string, size int) int {
	if size > len(dst) {
		size = len(dst)
	}
	if size > 0 {
		dst[0] = 0
	}
	n := size - 1
	if n > 0 {
		if n > len(src) {
			n = len(src)
		}
		copy(dst[:n], src[:n])
		dst[n] = 0
	}
	dstLen := cstrlen(dst)
	if dstLen > len(src) {
		return dstLen
	}
	return len(src)
}

// Strlcat appends src onto the NUL-terminated string already in dst,
// never writing past size bytes (including the NUL), and returns the
// combined length src and the pre-existing dst content would occupy
// once joined — per libc_strlcat, the full attempted length, not the
// truncated one, so callers can detect truncation by comparing the
// return value against size.
func Strlcat(dst []byte, src string, size int) int {
	if size > len(dst) {
		size = len(dst)
	}
	dstLen := cstrlen(dst[:size])
	room := size - dstLen - 1
	if room > 0 {
		n := room
		if n > len(src) {
			n = len(src)
		}
		copy(dst[dstLen:dstLen+n], src[:n])
		dst[dstLen+n] = 0
	}
	return dstLen + len(src)
}

func cstrlen(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// Basename returns the final path component of path, following POSIX
// basename semantics: trailing slashes are stripped before splitting,
// an all-slash path yields "/", and an empty path yields ".". The
// source this package is grounded on simply forwards to the host
// tool's own basename primitive; here that primitive is reimplemented
// directly so the package has no collaborator dependency.
func Basename(path string) string {
	if path == "" {
		return "."
	}
	end := len(path)
	for end > 1 && path[end-1] == '/' {
		end--
	}
	if end == 1 && path[0] == '/' {
		return "/"
	}
	start := end
	for start > 0 && path[start-1] != '/' {
		start--
	}
	if start == end {
		return "/"
	}
	return path[start:end]
}
