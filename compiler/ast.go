package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for the Lua subset
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinOp is a binary operator.
type BinOp int

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinIDiv
	BinMod
	BinPow
	BinConcat
	BinBAnd
	BinBOr
	BinBXor
	BinShl
	BinShr
	BinEq
	BinNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinAnd
	BinOr
)

var binOpNames = [...]string{
	BinAdd:    "+",
	BinSub:    "-",
	BinMul:    "*",
	BinDiv:    "/",
	BinIDiv:   "//",
	BinMod:    "%",
	BinPow:    "^",
	BinConcat: "..",
	BinBAnd:   "&",
	BinBOr:    "|",
	BinBXor:   "~",
	BinShl:    "<<",
	BinShr:    ">>",
	BinEq:     "==",
	BinNe:     "~=",
	BinLt:     "<",
	BinLe:     "<=",
	BinGt:     ">",
	BinGe:     ">=",
	BinAnd:    "and",
	BinOr:     "or",
}

func (op BinOp) String() string {
	if op >= 0 && int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return fmt.Sprintf("BinOp(%d)", int(op))
}

// IsComparison reports whether op is a relational operator.
func (op BinOp) IsComparison() bool {
	return op >= BinEq && op <= BinGe
}

// IsLogical reports whether op is 'and' or 'or'.
func (op BinOp) IsLogical() bool {
	return op == BinAnd || op == BinOr
}

// UnOp is a unary operator.
type UnOp int

const (
	UnMinus UnOp = iota // -
	UnBNot              // ~
	UnNot               // not
	UnLen               // #
)

func (op UnOp) String() string {
	switch op {
	case UnMinus:
		return "-"
	case UnBNot:
		return "~"
	case UnNot:
		return "not"
	case UnLen:
		return "#"
	}
	return fmt.Sprintf("UnOp(%d)", int(op))
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// NilLiteral represents 'nil'.
type NilLiteral struct {
	SpanVal Span
}

func (n *NilLiteral) Span() Span { return n.SpanVal }
func (n *NilLiteral) node()      {}
func (n *NilLiteral) expr()      {}

// TrueLiteral represents 'true'.
type TrueLiteral struct {
	SpanVal Span
}

func (n *TrueLiteral) Span() Span { return n.SpanVal }
func (n *TrueLiteral) node()      {}
func (n *TrueLiteral) expr()      {}

// FalseLiteral represents 'false'.
type FalseLiteral struct {
	SpanVal Span
}

func (n *FalseLiteral) Span() Span { return n.SpanVal }
func (n *FalseLiteral) node()      {}
func (n *FalseLiteral) expr()      {}

// VarargExpr represents '...'.
type VarargExpr struct {
	SpanVal Span
}

func (n *VarargExpr) Span() Span { return n.SpanVal }
func (n *VarargExpr) node()      {}
func (n *VarargExpr) expr()      {}

// Name represents a variable reference.
type Name struct {
	SpanVal Span
	Name    string
}

func (n *Name) Span() Span { return n.SpanVal }
func (n *Name) node()      {}
func (n *Name) expr()      {}

// ParenExpr is a parenthesized expression. Parentheses truncate a
// multi-valued expression to one value.
type ParenExpr struct {
	SpanVal Span
	Inner   Expr
}

func (n *ParenExpr) Span() Span { return n.SpanVal }
func (n *ParenExpr) node()      {}
func (n *ParenExpr) expr()      {}

// BinaryExpr represents 'Left Op Right'.
type BinaryExpr struct {
	SpanVal Span
	Op      BinOp
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// UnaryExpr represents 'Op Operand'.
type UnaryExpr struct {
	SpanVal Span
	Op      UnOp
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// IndexExpr represents 'Object[Key]' and 'Object.name'.
type IndexExpr struct {
	SpanVal Span
	Object  Expr
	Key     Expr
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// CallExpr represents a function call. Method is set for 'obj:m(...)'.
type CallExpr struct {
	SpanVal Span
	Func    Expr
	Method  string
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// TableField is one entry of a table constructor. Key is nil for
// positional entries.
type TableField struct {
	Key   Expr
	Value Expr
}

// TableExpr represents a table constructor.
type TableExpr struct {
	SpanVal Span
	Fields  []TableField
}

func (n *TableExpr) Span() Span { return n.SpanVal }
func (n *TableExpr) node()      {}
func (n *TableExpr) expr()      {}

// FunctionExpr represents a function literal.
type FunctionExpr struct {
	SpanVal  Span
	Params   []string
	IsVararg bool
	Body     *Block
}

func (n *FunctionExpr) Span() Span { return n.SpanVal }
func (n *FunctionExpr) node()      {}
func (n *FunctionExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// LocalStat represents 'local n1, n2 = e1, e2'.
type LocalStat struct {
	SpanVal Span
	Names   []string
	Exprs   []Expr
}

func (n *LocalStat) Span() Span { return n.SpanVal }
func (n *LocalStat) node()      {}
func (n *LocalStat) stmt()      {}

// AssignStat represents 't1, t2 = e1, e2'.
type AssignStat struct {
	SpanVal Span
	Targets []Expr
	Exprs   []Expr
}

func (n *AssignStat) Span() Span { return n.SpanVal }
func (n *AssignStat) node()      {}
func (n *AssignStat) stmt()      {}

// CallStat is a function call used as a statement.
type CallStat struct {
	SpanVal Span
	Call    *CallExpr
}

func (n *CallStat) Span() Span { return n.SpanVal }
func (n *CallStat) node()      {}
func (n *CallStat) stmt()      {}

// DoStat represents 'do ... end'.
type DoStat struct {
	SpanVal Span
	Body    *Block
}

func (n *DoStat) Span() Span { return n.SpanVal }
func (n *DoStat) node()      {}
func (n *DoStat) stmt()      {}

// ReturnStat represents 'return e1, e2'. It is always the last statement
// of its block.
type ReturnStat struct {
	SpanVal Span
	Exprs   []Expr
}

func (n *ReturnStat) Span() Span { return n.SpanVal }
func (n *ReturnStat) node()      {}
func (n *ReturnStat) stmt()      {}

// ---------------------------------------------------------------------------
// Top-level structure
// ---------------------------------------------------------------------------

// Block is a sequence of statements. A parsed source file is one Block.
type Block struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}
