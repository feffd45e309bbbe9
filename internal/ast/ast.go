// Package ast defines the Abstract Syntax Tree types for peri programs.
//
// The tree is produced once by the parser (or, for peripheral declarations,
// by board scripts) and is never mutated afterwards: the registry, program
// model and verifier all read it, and verification results are kept beside
// it rather than written into it.
package ast

import "github.com/aqibfaruqui/peri/internal/lexer"

// ----------------------------------------------------------------------------
// Source Location
// ----------------------------------------------------------------------------

// Loc represents a location in source code.
type Loc struct {
	Start int32 // Byte offset of start
}

// Range represents a range in source code.
type Range struct {
	Loc Loc
	Len int32
}

// MakeRange builds a range from start (inclusive) and end (exclusive) byte
// offsets.
func MakeRange(start, end int) Range {
	if end < start {
		end = start
	}
	return Range{Loc: Loc{Start: int32(start)}, Len: int32(end - start)}
}

// End returns the byte offset just past the range.
func (r Range) End() int32 {
	return r.Loc.Start + r.Len
}

// Join returns the smallest range covering both r and other.
func (r Range) Join(other Range) Range {
	start, end := r.Loc.Start, r.End()
	if other.Loc.Start < start {
		start = other.Loc.Start
	}
	if other.End() > end {
		end = other.End()
	}
	return Range{Loc: Loc{Start: start}, Len: end - start}
}

// Node is implemented by every syntax node that carries a source range.
type Node interface {
	Span() Range
}

// Ident is a name as written in source.
type Ident struct {
	Name  string
	Range Range
}

func (i Ident) Span() Range { return i.Range }

// ----------------------------------------------------------------------------
// File (Top Level)
// ----------------------------------------------------------------------------

// File represents a complete peri translation unit.
type File struct {
	// Name is the path used in diagnostics.
	Name string

	// Source is the original source text.
	Source string

	Peripherals []*PeripheralDecl
	Functions   []*FunctionDecl
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

// PeripheralDecl represents:
//
//	peripheral Name at 0xBASE { states: A, B; initial: A; registers u32 { R at 0x0; } }
type PeripheralDecl struct {
	Range     Range
	Name      Ident
	Base      uint32
	States    []Ident
	Initial   Ident
	Registers []RegisterDecl

	// Origin is set for declarations that did not come from File.Source,
	// such as board scripts ("board.star:12"). Ranges are zero in that case.
	Origin string
}

func (d *PeripheralDecl) Span() Range { return d.Range }

// RegisterDecl represents a memory-mapped register inside a registers block.
type RegisterDecl struct {
	Name   Ident
	Offset uint32
	Width  uint8 // In bits: 8, 16 or 32
}

// FunctionDecl represents:
//
//	fn name(params) [:: P<S1> -> P<S2>, ...] { body }
type FunctionDecl struct {
	Range     Range
	Name      Ident
	Params    []Param
	Signature []Transition // Empty when the function is untyped
	Body      *BlockStmt
}

func (d *FunctionDecl) Span() Range { return d.Range }

// HasSignature reports whether the function declares any typestate transition.
func (d *FunctionDecl) HasSignature() bool {
	return len(d.Signature) > 0
}

// Param represents a function parameter. All parameters are i32.
type Param struct {
	Name Ident
	Type Ident
}

// Transition represents one P<Pre> -> P<Post> clause of a signature.
type Transition struct {
	Range      Range
	Peripheral Ident
	Pre        Ident
	Post       Ident
}

func (t Transition) Span() Range { return t.Range }

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

// Expr represents an expression.
type Expr interface {
	Node
	isExpr()
}

// IntLit represents an integer literal.
type IntLit struct {
	Range Range
	Value uint64
	Raw   string
}

// BoolLit represents true or false.
type BoolLit struct {
	Range Range
	Value bool
}

// IdentExpr represents a variable reference.
type IdentExpr struct {
	Name Ident
}

// CallExpr represents name(args). Range covers the callee through the
// closing parenthesis.
type CallExpr struct {
	Range  Range
	Callee Ident
	Args   []Expr
}

// RegisterRead represents Peripheral.REGISTER used as a value.
type RegisterRead struct {
	Range      Range
	Peripheral Ident
	Register   Ident
}

// BinaryExpr represents a binary operation.
type BinaryExpr struct {
	Range Range
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// BinaryOp represents binary operators.
type BinaryOp uint8

const (
	BinOpAdd        BinaryOp = iota // +
	BinOpSub                        // -
	BinOpMul                        // *
	BinOpDiv                        // /
	BinOpMod                        // %
	BinOpAnd                        // &
	BinOpOr                         // |
	BinOpXor                        // ^
	BinOpShl                        // <<
	BinOpShr                        // >>
	BinOpLogicalAnd                 // &&
	BinOpLogicalOr                  // ||
	BinOpEq                         // ==
	BinOpNe                         // !=
	BinOpLt                         // <
	BinOpLe                         // <=
	BinOpGt                         // >
	BinOpGe                         // >=
)

var binaryOpText = [...]string{
	BinOpAdd: "+", BinOpSub: "-", BinOpMul: "*", BinOpDiv: "/", BinOpMod: "%",
	BinOpAnd: "&", BinOpOr: "|", BinOpXor: "^", BinOpShl: "<<", BinOpShr: ">>",
	BinOpLogicalAnd: "&&", BinOpLogicalOr: "||",
	BinOpEq: "==", BinOpNe: "!=", BinOpLt: "<", BinOpLe: "<=", BinOpGt: ">", BinOpGe: ">=",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpText) {
		return binaryOpText[op]
	}
	return "?"
}

// BinaryOpFromToken maps an operator token to its BinaryOp.
func BinaryOpFromToken(kind lexer.TokenKind) (BinaryOp, bool) {
	switch kind {
	case lexer.TokPlus:
		return BinOpAdd, true
	case lexer.TokMinus:
		return BinOpSub, true
	case lexer.TokStar:
		return BinOpMul, true
	case lexer.TokSlash:
		return BinOpDiv, true
	case lexer.TokPercent:
		return BinOpMod, true
	case lexer.TokAmp:
		return BinOpAnd, true
	case lexer.TokPipe:
		return BinOpOr, true
	case lexer.TokCaret:
		return BinOpXor, true
	case lexer.TokLtLt:
		return BinOpShl, true
	case lexer.TokGtGt:
		return BinOpShr, true
	case lexer.TokAmpAmp:
		return BinOpLogicalAnd, true
	case lexer.TokPipePipe:
		return BinOpLogicalOr, true
	case lexer.TokEqEq:
		return BinOpEq, true
	case lexer.TokBangEq:
		return BinOpNe, true
	case lexer.TokLt:
		return BinOpLt, true
	case lexer.TokLtEq:
		return BinOpLe, true
	case lexer.TokGt:
		return BinOpGt, true
	case lexer.TokGtEq:
		return BinOpGe, true
	}
	return 0, false
}

// UnaryExpr represents a unary operation.
type UnaryExpr struct {
	Range   Range
	Op      UnaryOp
	Operand Expr
}

// UnaryOp represents unary operators.
type UnaryOp uint8

const (
	UnaryOpNeg    UnaryOp = iota // -
	UnaryOpNot                   // !
	UnaryOpBitNot                // ~
)

func (op UnaryOp) String() string {
	switch op {
	case UnaryOpNeg:
		return "-"
	case UnaryOpNot:
		return "!"
	case UnaryOpBitNot:
		return "~"
	}
	return "?"
}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Range Range
	Expr  Expr
}

func (*IntLit) isExpr()       {}
func (*BoolLit) isExpr()      {}
func (*IdentExpr) isExpr()    {}
func (*CallExpr) isExpr()     {}
func (*RegisterRead) isExpr() {}
func (*BinaryExpr) isExpr()   {}
func (*UnaryExpr) isExpr()    {}
func (*ParenExpr) isExpr()    {}

func (e *IntLit) Span() Range       { return e.Range }
func (e *BoolLit) Span() Range      { return e.Range }
func (e *IdentExpr) Span() Range    { return e.Name.Range }
func (e *CallExpr) Span() Range     { return e.Range }
func (e *RegisterRead) Span() Range { return e.Range }
func (e *BinaryExpr) Span() Range   { return e.Range }
func (e *UnaryExpr) Span() Range    { return e.Range }
func (e *ParenExpr) Span() Range    { return e.Range }

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

// Stmt represents a statement.
type Stmt interface {
	Node
	isStmt()
}

// BlockStmt represents { stmts }.
type BlockStmt struct {
	Range  Range
	Stmts  []Stmt
	RBrace Loc // Position of the closing brace
}

// LetStmt represents: let name = value;
type LetStmt struct {
	Range Range
	Name  Ident
	Value Expr
}

// AssignStmt represents: name = value;
type AssignStmt struct {
	Range Range
	Name  Ident
	Value Expr
}

// RegisterWriteStmt represents: Peripheral.REGISTER = value;
type RegisterWriteStmt struct {
	Range      Range
	Peripheral Ident
	Register   Ident
	Value      Expr
}

// CallStmt represents a call evaluated for its effect: name(args);
type CallStmt struct {
	Call *CallExpr
}

// IfStmt represents: if cond { } [else { } | else if ...]
type IfStmt struct {
	Range     Range // Covers "if" and the condition
	Condition Expr
	Body      *BlockStmt
	Else      Stmt // nil, *IfStmt, or *BlockStmt
}

// WhileStmt represents: while cond { }
type WhileStmt struct {
	Range     Range // Covers "while" and the condition
	Condition Expr
	Body      *BlockStmt
}

// ReturnStmt represents: return [expr];
type ReturnStmt struct {
	Range Range
	Value Expr // nil for bare return
}

func (*BlockStmt) isStmt()         {}
func (*LetStmt) isStmt()           {}
func (*AssignStmt) isStmt()        {}
func (*RegisterWriteStmt) isStmt() {}
func (*CallStmt) isStmt()          {}
func (*IfStmt) isStmt()            {}
func (*WhileStmt) isStmt()         {}
func (*ReturnStmt) isStmt()        {}

func (s *BlockStmt) Span() Range         { return s.Range }
func (s *LetStmt) Span() Range           { return s.Range }
func (s *AssignStmt) Span() Range        { return s.Range }
func (s *RegisterWriteStmt) Span() Range { return s.Range }
func (s *CallStmt) Span() Range          { return s.Call.Range }
func (s *IfStmt) Span() Range            { return s.Range }
func (s *WhileStmt) Span() Range         { return s.Range }
func (s *ReturnStmt) Span() Range        { return s.Range }
