package config

import (
	"testing"

	"github.com/secretgrind/secretgrind/internal/hostapi"
)

func TestHandleMakeMemTaintedInvokesHook(t *testing.T) {
	var gotAddr hostapi.Addr
	var gotLen uint64
	d := &Dispatcher{MakeTainted: func(addr hostapi.Addr, length uint64) {
		gotAddr, gotLen = addr, length
	}}
	handled := d.Handle(Request{Tag: ReqMakeMemTainted, Addr: 0x1000, Len: 16})
	if !handled {
		t.Fatal("expected request to be handled")
	}
	if gotAddr != 0x1000 || gotLen != 16 {
		t.Fatalf("hook not invoked with expected args: %#x %d", gotAddr, gotLen)
	}
}

func TestHandleUnknownHookIsStillHandled(t *testing.T) {
	d := &Dispatcher{}
	if !d.Handle(Request{Tag: ReqMakeMemTainted, Addr: 1, Len: 1}) {
		t.Fatal("expected handled=true even with no hook installed")
	}
}

func TestHandleSandboxRequestsStoredNotGating(t *testing.T) {
	sb := NewSandboxState()
	d := &Dispatcher{Sandbox: sb}
	d.Handle(Request{Tag: ReqEnterPersistentSandbox, SandboxKind: "net"})
	d.Handle(Request{Tag: ReqEnterPersistentSandbox, SandboxKind: "net"})
	if sb.Depth("net") != 2 {
		t.Fatalf("expected depth 2, got %d", sb.Depth("net"))
	}
	d.Handle(Request{Tag: ReqExitPersistentSandbox, SandboxKind: "net"})
	if sb.Depth("net") != 1 {
		t.Fatalf("expected depth 1 after one exit, got %d", sb.Depth("net"))
	}
}

func TestHandleBookkeepingOnlyTagsAlwaysHandled(t *testing.T) {
	d := &Dispatcher{}
	tags := []RequestTag{ReqCreateSandbox, ReqSharedFd, ReqSharedVar,
		ReqUpdateSharedVar, ReqAllowSyscall, ReqEnterCallgate, ReqExitCallgate}
	for _, tag := range tags {
		if !d.Handle(Request{Tag: tag}) {
			t.Fatalf("expected tag %v to be handled", tag)
		}
	}
}

func TestHandleUnknownTagIsNotHandled(t *testing.T) {
	d := &Dispatcher{}
	if d.Handle(Request{Tag: RequestTag(9999)}) {
		t.Fatal("expected an unrecognized tag to report handled=false")
	}
}
