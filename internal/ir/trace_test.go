package ir

import (
	"bytes"
	"strings"
	"testing"
)

func TestTracerSuppressedWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracer(1234, &buf, &Toggles{Enabled: false})
	tr.Emit("main", Event{Stmt: Stmt{Kind: StmtIMark}, Tainted: true})
	if buf.Len() != 0 {
		t.Fatal("expected no output while disabled")
	}
}

func TestTracerTaintedOnlyFiltersUntaintedEvents(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracer(1, &buf, &Toggles{Enabled: true, TaintedOnly: true})
	tr.Emit("f", Event{Stmt: Stmt{Kind: StmtIMark}, Tainted: false})
	if buf.Len() != 0 {
		t.Fatal("expected untainted event suppressed under tainted-only")
	}
	tr.Emit("f", Event{Stmt: Stmt{Kind: StmtIMark}, Tainted: true})
	if buf.Len() == 0 {
		t.Fatal("expected tainted event printed under tainted-only")
	}
}

func TestTracerLineFormat(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracer(42, &buf, &Toggles{Enabled: true})
	tr.Emit("main", Event{
		Stmt:    Stmt{Kind: StmtWriteTmp, Tmp: 1, Expr: Expr{Kind: ExprRdTmp, Args: []int{0}}},
		Tainted: true,
		Flow:    "t1_0 <- t0_0",
	})
	line := buf.String()
	if !strings.HasPrefix(line, "==42==") {
		t.Fatalf("expected pid-prefixed line, got %q", line)
	}
	if !strings.Contains(line, "t1_0 <- t0_0") {
		t.Fatalf("expected flow text in line, got %q", line)
	}
}

func TestTempLabelFormat(t *testing.T) {
	temps := NewTempTable()
	temps.Set(37, true)
	temps.Set(37, false)
	temps.Set(37, true)
	temps.Set(37, false)
	if got := tempLabel(temps, 37); got != "t37_4" {
		t.Fatalf("expected t37_4, got %s", got)
	}
}

func TestEnableDisableTemporary(t *testing.T) {
	var buf bytes.Buffer
	toggles := &Toggles{Enabled: true, TaintedOnly: true}
	tr := NewTracer(1, &buf, toggles)

	tr.Emit("f", Event{Stmt: Stmt{Kind: StmtIMark}, Tainted: false})
	if buf.Len() != 0 {
		t.Fatal("expected no output before EnableTemporary (tainted-only gate still applies)")
	}
	toggles.EnableTemporary()
	tr.Emit("f", Event{Stmt: Stmt{Kind: StmtIMark}, Tainted: false})
	if buf.Len() == 0 {
		t.Fatal("expected output once temporary window opened")
	}
	buf.Reset()
	toggles.DisableTemporary()
	tr.Emit("f", Event{Stmt: Stmt{Kind: StmtIMark}, Tainted: false})
	if buf.Len() != 0 {
		t.Fatal("expected output suppressed again after DisableTemporary")
	}
}
