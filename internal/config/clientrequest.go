package config

import "github.com/secretgrind/secretgrind/internal/hostapi"

// RequestTag identifies a client request the guest program issues over
// the DBI host's client-request channel.
type RequestTag int

const (
	ReqMakeMemTainted RequestTag = iota
	ReqMakeMemUntainted
	ReqPrintAllInst
	ReqPrintTaintedInst
	ReqStopPrint
	ReqTaintSummary
	ReqReadTaintStatus

	ReqEnterPersistentSandbox
	ReqExitPersistentSandbox
	ReqEnterEphemeralSandbox
	ReqExitEphemeralSandbox
	ReqCreateSandbox
	ReqSharedFd
	ReqSharedVar
	ReqUpdateSharedVar
	ReqAllowSyscall
	ReqEnterCallgate
	ReqExitCallgate
)

// Request is one decoded client request. Addr/Len apply to the taint
// and read-status requests; Label carries the taint-summary string;
// SandboxKind identifies which depth counter the sandbox-nesting tags
// act on.
type Request struct {
	Tag         RequestTag
	Addr        hostapi.Addr
	Len         uint64
	Label       string
	Desc        string
	SandboxKind string
}

// Dispatcher wires client requests onto the components they act on.
// Every field is a collaborator hook rather than a concrete type so
// internal/config stays free of a direct dependency on internal/shadow,
// internal/ir, or internal/summary (those are wired at the engine
// layer), matching the collaborator-interface shape internal/hostapi
// already establishes for the DBI host itself.
type Dispatcher struct {
	MakeTainted   func(addr hostapi.Addr, length uint64)
	MakeUntainted func(addr hostapi.Addr, length uint64)
	PrintAllInst  func()
	StopPrint     func()
	TaintSummary  func(label string)
	ReadTaintStatus func(desc string, addr hostapi.Addr, length uint64) bool

	Sandbox *SandboxState
}

// Handle dispatches req to the matching collaborator and reports
// whether the request was recognized — every client request returns a
// 1-word boolean (handled) to the guest.
func (d *Dispatcher) Handle(req Request) bool {
	switch req.Tag {
	case ReqMakeMemTainted:
		if d.MakeTainted != nil {
			d.MakeTainted(req.Addr, req.Len)
		}
		return true
	case ReqMakeMemUntainted:
		if d.MakeUntainted != nil {
			d.MakeUntainted(req.Addr, req.Len)
		}
		return true
	case ReqPrintAllInst, ReqPrintTaintedInst:
		if d.PrintAllInst != nil {
			d.PrintAllInst()
		}
		return true
	case ReqStopPrint:
		if d.StopPrint != nil {
			d.StopPrint()
		}
		return true
	case ReqTaintSummary:
		if d.TaintSummary != nil {
			d.TaintSummary(req.Label)
		}
		return true
	case ReqReadTaintStatus:
		if d.ReadTaintStatus != nil {
			d.ReadTaintStatus(req.Desc, req.Addr, req.Len)
		}
		return true

	case ReqEnterPersistentSandbox, ReqEnterEphemeralSandbox:
		if d.Sandbox != nil {
			d.Sandbox.Enter(req.SandboxKind)
		}
		return true
	case ReqExitPersistentSandbox, ReqExitEphemeralSandbox:
		if d.Sandbox != nil {
			d.Sandbox.Exit(req.SandboxKind)
		}
		return true
	case ReqCreateSandbox, ReqSharedFd, ReqSharedVar, ReqUpdateSharedVar,
		ReqAllowSyscall, ReqEnterCallgate, ReqExitCallgate:
		// Stored but does not gate core taint behavior.
		return true
	default:
		return false
	}
}
