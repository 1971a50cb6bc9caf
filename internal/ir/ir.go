// Package ir instruments the intermediate representation the host
// DBI framework hands the core one basic block at a time: it keeps the
// SSA-style temp and register taint tables, applies the
// per-statement-shape propagation rules, and formats the optional
// execution trace.
package ir

import "github.com/secretgrind/secretgrind/internal/hostapi"

// ExprKind tags the shape of an IR expression's taint-producing rule.
type ExprKind int

const (
	ExprConst ExprKind = iota
	ExprRdTmp
	ExprUnop
	ExprBinop
	ExprTriop
	ExprQop
	ExprITE
	ExprGet
	ExprLoad
)

// Expr is one IR expression: Kind selects which of Args/Addr/Reg/Cond
// is meaningful. Addresses arrive already resolved to concrete guest
// addresses — the host's code generator computes them before calling
// into the core, the same way a real DBI backend passes a resolved
// pointer value to a taint helper rather than a symbolic expression.
type Expr struct {
	Kind ExprKind

	// Args holds the input temp numbers for RdTmp/Unop/Binop/Triop/Qop,
	// whose taint is looked up in the temp table.
	Args []int

	// Cond, A, B hold the condition and value-arm temps of an ITE.
	Cond, A, B int

	// Reg is the guest register offset for Get.
	Reg int

	// AddrTmp is the IR temp that produced Addr, kept only so trace
	// output can render the dataflow edge; Addr is the concrete
	// address to actually access. Size is the load width in bytes.
	AddrTmp int
	Addr    hostapi.Addr
	Size    int
}

// StmtKind tags the shape of an IR statement: imark/exit/put/store/
// write-tmp, which are statements rather than expressions.
type StmtKind int

const (
	StmtWriteTmp StmtKind = iota // tmp = <Expr>
	StmtPutReg                   // put(reg) = tmp
	StmtStore                    // store addr = tmp
	StmtExit                     // exit guard -> target
	StmtIMark                    // imark: record instruction boundary
)

// Stmt is one instrumented IR statement.
type Stmt struct {
	Kind StmtKind

	Tmp  int  // StmtWriteTmp's destination, StmtPutReg/StmtStore's source
	Expr Expr // StmtWriteTmp's right-hand side

	Reg int // StmtPutReg's register offset

	AddrTmp int          // StmtStore's address-producing temp, for trace display
	Addr    hostapi.Addr // StmtStore's resolved store address
	Size    int          // StmtStore's store width in bytes

	Guard int // StmtExit's guard temp

	InstAddr hostapi.Addr // StmtIMark fields
	InstLen  int
	RawBytes []byte
	Mnemonic string
}

// Block is one basic block's IR statement stream, as handed to the
// core by the host for one round of instrumentation.
type Block struct {
	Func  string
	Stmts []Stmt
}
