package config

import (
	"strings"
	"testing"
)

func TestDefaultWindowMatchesSpecDefault(t *testing.T) {
	o := defaultOptions()
	if !o.IsDefaultWindow() {
		t.Fatal("expected fresh options to report the default window")
	}
}

func TestParseFileFilterSplitsOnComma(t *testing.T) {
	o, err := ParseOptions("", []string{"--file-filter=/tmp/a,/tmp/b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(o.FileFilter) != 2 || o.FileFilter[0] != "/tmp/a" || o.FileFilter[1] != "/tmp/b" {
		t.Fatalf("unexpected filter list: %v", o.FileFilter)
	}
}

func TestParseFileTaintWindowOverridesDefault(t *testing.T) {
	o, err := ParseOptions("", []string{"--file-taint-start=0x4", "--file-taint-len=0x8"})
	if err != nil {
		t.Fatal(err)
	}
	if o.FileTaintStart != 4 || o.FileTaintLen != 8 {
		t.Fatalf("unexpected window: start=%d len=%d", o.FileTaintStart, o.FileTaintLen)
	}
	if o.IsDefaultWindow() {
		t.Fatal("expected window to no longer read as default")
	}
}

func TestBoolFlagBareFormEnables(t *testing.T) {
	o, err := ParseOptions("", []string{"--trace"})
	if err != nil {
		t.Fatal(err)
	}
	if !o.Trace {
		t.Fatal("expected --trace to enable Trace")
	}
}

func TestBoolFlagNoFormDisables(t *testing.T) {
	o, err := ParseOptions("", []string{"--no-summary"})
	if err != nil {
		t.Fatal(err)
	}
	if o.Summary {
		t.Fatal("expected --no-summary to disable Summary (default is on)")
	}
}

func TestBoolFlagExplicitNoValue(t *testing.T) {
	o, err := ParseOptions("", []string{"--taint-warn-on-release=no"})
	if err != nil {
		t.Fatal(err)
	}
	if o.TaintWarnOnRelease {
		t.Fatal("expected =no to disable the flag")
	}
}

func TestFileMmapUsePageSizeRejectsNonPowerOfTwo(t *testing.T) {
	_, err := ParseOptions("", []string{"--file-mmap-use-pagesize=3000"})
	if err == nil {
		t.Fatal("expected an error for a non-power-of-two page size")
	}
}

func TestUnknownFlagIsAnError(t *testing.T) {
	_, err := ParseOptions("", []string{"--not-a-real-flag"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}

func TestSummaryFixInstParsesList(t *testing.T) {
	o, err := ParseOptions("", []string{"--summary-fix-inst=1,2,3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(o.SummaryFixInst) != 3 || o.SummaryFixInst[2] != 3 {
		t.Fatalf("unexpected list: %v", o.SummaryFixInst)
	}
}

func TestEnvOptsAppliedBeforeArgv(t *testing.T) {
	o, err := ParseOptions("--trace", []string{"--no-trace"})
	if err != nil {
		t.Fatal(err)
	}
	if o.Trace {
		t.Fatal("expected argv to win over SECRETGRIND_OPTS (last one wins)")
	}
}

func TestEnvOptsParseErrorIsWrapped(t *testing.T) {
	_, err := ParseOptions("--bogus-flag", nil)
	if err == nil {
		t.Fatal("expected an error from a bad SECRETGRIND_OPTS flag")
	}
	if !strings.HasPrefix(err.Error(), "SECRETGRIND_OPTS: ") {
		t.Fatalf("expected the error wrapped with SECRETGRIND_OPTS context, got %q", err)
	}
}
