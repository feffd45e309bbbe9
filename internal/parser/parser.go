// Package parser provides peri parsing into an AST.
//
// The parser is a hand-written recursive descent parser over the token
// stream produced by the lexer. It never stops at the first problem: every
// syntax error is collected with its line and column, and parsing resumes
// at the next declaration so that one typo does not hide the rest.
package parser

import (
	"fmt"
	"strconv"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/lexer"
	"github.com/aqibfaruqui/peri/internal/source"
)

// Parser parses peri source into an AST.
type Parser struct {
	source    string
	tokens    []lexer.Token
	pos       int
	lineIndex *source.LineIndex // For converting byte offsets to line/column

	errors []ParseError
}

// ParseError represents a parsing error.
type ParseError struct {
	Message string
	Pos     int
	End     int
	Line    int
	Column  int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// New creates a new parser for the given source.
func New(src string) *Parser {
	p := &Parser{
		source:    src,
		tokens:    lexer.New(src).Tokenize(),
		lineIndex: source.NewLineIndex(src),
	}

	// A lexer error ends the stream. Report it once and let parsing
	// run into a plain EOF from there.
	if last := &p.tokens[len(p.tokens)-1]; last.Kind == lexer.TokError {
		p.errorAt(*last, last.Value)
		last.Kind = lexer.TokEOF
	}
	return p
}

// Parse parses the source and returns the file AST. The file is returned
// even when errors are reported, but callers must not analyze it then.
func (p *Parser) Parse(name string) (*ast.File, []ParseError) {
	file := &ast.File{
		Name:   name,
		Source: p.source,
	}
	p.parseFile(file)
	return file, p.errors
}

// Parse is a convenience wrapper around New(src).Parse(name).
func Parse(name, src string) (*ast.File, []ParseError) {
	return New(src).Parse(name)
}

// ----------------------------------------------------------------------------
// Token Helpers
// ----------------------------------------------------------------------------

func (p *Parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek(offset int) lexer.Token {
	pos := p.pos + offset
	if pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[pos]
}

func (p *Parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// prevEnd returns the end offset of the last consumed token.
func (p *Parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	return p.tokens[p.pos-1].End
}

func (p *Parser) expect(kind lexer.TokenKind) (lexer.Token, bool) {
	tok := p.current()
	if tok.Kind != kind {
		p.error(fmt.Sprintf("expected %s, got %s", describe(kind), describeToken(tok)))
		// Don't advance here; the caller decides how to recover
		return tok, false
	}
	p.advance()
	return tok, true
}

func (p *Parser) expectIdent() (ast.Ident, bool) {
	tok, ok := p.expect(lexer.TokIdent)
	if !ok {
		return ast.Ident{Range: ast.MakeRange(tok.Start, tok.Start)}, false
	}
	return ast.Ident{Name: tok.Value, Range: ast.MakeRange(tok.Start, tok.End)}, true
}

func (p *Parser) match(kind lexer.TokenKind) bool {
	if p.current().Kind == kind {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) error(msg string) {
	p.errorAt(p.current(), msg)
}

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	line, col := p.lineIndex.Position(tok.Start)
	p.errors = append(p.errors, ParseError{
		Message: msg,
		Pos:     tok.Start,
		End:     tok.End,
		Line:    line,
		Column:  col,
	})
}

func describe(kind lexer.TokenKind) string {
	switch kind {
	case lexer.TokIdent, lexer.TokIntLiteral, lexer.TokEOF:
		return kind.String()
	}
	return "'" + kind.String() + "'"
}

func describeToken(tok lexer.Token) string {
	switch tok.Kind {
	case lexer.TokIdent:
		return "identifier '" + tok.Value + "'"
	case lexer.TokIntLiteral:
		return "integer " + tok.Value
	}
	return describe(tok.Kind)
}

// synchronize skips tokens until the start of the next top-level
// declaration.
func (p *Parser) synchronize() {
	for {
		switch p.current().Kind {
		case lexer.TokEOF, lexer.TokFn, lexer.TokPeripheral:
			return
		}
		p.advance()
	}
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func (p *Parser) parseFile(file *ast.File) {
	for p.current().Kind != lexer.TokEOF {
		errCount := len(p.errors)

		switch p.current().Kind {
		case lexer.TokPeripheral:
			file.Peripherals = append(file.Peripherals, p.parsePeripheralDecl())
		case lexer.TokFn:
			file.Functions = append(file.Functions, p.parseFunctionDecl())
		default:
			p.error(fmt.Sprintf("expected 'peripheral' or 'fn', got %s", describeToken(p.current())))
			p.advance()
		}

		if len(p.errors) > errCount {
			p.synchronize()
		}
	}
}

// parsePeripheralDecl parses:
//
//	peripheral Timer [at 0x4000_0000] {
//	    states: Off, On;
//	    initial: Off;
//	    registers u32 { CTRL at 0x00; }
//	}
func (p *Parser) parsePeripheralDecl() *ast.PeripheralDecl {
	start := p.advance().Start
	decl := &ast.PeripheralDecl{}
	decl.Name, _ = p.expectIdent()

	if p.match(lexer.TokAt) {
		decl.Base = p.parseUint32("base address")
	}

	if _, ok := p.expect(lexer.TokLBrace); !ok {
		return decl
	}

	p.expect(lexer.TokStates)
	p.expect(lexer.TokColon)
	for {
		state, ok := p.expectIdent()
		if !ok {
			return decl
		}
		decl.States = append(decl.States, state)
		if !p.match(lexer.TokComma) {
			break
		}
	}
	p.expect(lexer.TokSemicolon)

	p.expect(lexer.TokInitial)
	p.expect(lexer.TokColon)
	decl.Initial, _ = p.expectIdent()
	p.expect(lexer.TokSemicolon)

	for p.current().Kind == lexer.TokRegisters {
		p.advance()
		width := p.parseRegisterWidth()
		if _, ok := p.expect(lexer.TokLBrace); !ok {
			return decl
		}
		for p.current().Kind == lexer.TokIdent {
			name, _ := p.expectIdent()
			p.expect(lexer.TokAt)
			offset := p.parseUint32("register offset")
			p.expect(lexer.TokSemicolon)
			decl.Registers = append(decl.Registers, ast.RegisterDecl{Name: name, Offset: offset, Width: width})
		}
		p.expect(lexer.TokRBrace)
	}

	p.expect(lexer.TokRBrace)
	decl.Range = ast.MakeRange(start, p.prevEnd())
	return decl
}

func (p *Parser) parseRegisterWidth() uint8 {
	switch p.current().Kind {
	case lexer.TokU8:
		p.advance()
		return 8
	case lexer.TokU16:
		p.advance()
		return 16
	case lexer.TokU32:
		p.advance()
		return 32
	}
	p.error(fmt.Sprintf("expected register width u8, u16 or u32, got %s", describeToken(p.current())))
	return 32
}

func (p *Parser) parseUint32(what string) uint32 {
	tok, ok := p.expect(lexer.TokIntLiteral)
	if !ok {
		return 0
	}
	v, err := parseInt(tok.Value, 32)
	if err != nil {
		p.errorAt(tok, fmt.Sprintf("%s %s does not fit in 32 bits", what, tok.Text(p.source)))
		return 0
	}
	return uint32(v)
}

// parseInt parses a decimal or 0x-prefixed hex literal. Leading zeros are
// decimal, not octal.
func parseInt(text string, bitSize int) (uint64, error) {
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		return strconv.ParseUint(text[2:], 16, bitSize)
	}
	return strconv.ParseUint(text, 10, bitSize)
}

// parseFunctionDecl parses:
//
//	fn name(a: i32, b: i32) :: P<S1> -> P<S2>, Q<T1> -> Q<T2> { ... }
func (p *Parser) parseFunctionDecl() *ast.FunctionDecl {
	start := p.advance().Start
	decl := &ast.FunctionDecl{}
	decl.Name, _ = p.expectIdent()

	if _, ok := p.expect(lexer.TokLParen); !ok {
		return decl
	}
	decl.Params = p.parseParameters()
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return decl
	}

	if p.match(lexer.TokColonColon) {
		for {
			decl.Signature = append(decl.Signature, p.parseTransition())
			if !p.match(lexer.TokComma) {
				break
			}
		}
	}

	if p.current().Kind != lexer.TokLBrace {
		p.error(fmt.Sprintf("expected function body, got %s", describeToken(p.current())))
		return decl
	}
	decl.Body = p.parseBlockStmt()
	decl.Range = ast.MakeRange(start, p.prevEnd())
	return decl
}

func (p *Parser) parseParameters() []ast.Param {
	var params []ast.Param

	for p.current().Kind == lexer.TokIdent {
		name, _ := p.expectIdent()
		p.expect(lexer.TokColon)
		param := ast.Param{Name: name}
		if tok, ok := p.expect(lexer.TokI32); ok {
			param.Type = ast.Ident{Name: tok.Value, Range: ast.MakeRange(tok.Start, tok.End)}
		}
		params = append(params, param)

		if !p.match(lexer.TokComma) {
			break
		}
	}

	return params
}

// parseTransition parses one P<S1> -> P<S2> clause.
func (p *Parser) parseTransition() ast.Transition {
	start := p.current().Start
	periph, pre := p.parseStateType()
	p.expect(lexer.TokArrow)
	periph2, post := p.parseStateType()

	if periph.Name != "" && periph2.Name != "" && periph.Name != periph2.Name {
		p.errors = append(p.errors, p.errorFor(periph2.Range,
			fmt.Sprintf("transition changes peripheral from '%s' to '%s'", periph.Name, periph2.Name)))
	}

	return ast.Transition{
		Range:      ast.MakeRange(start, p.prevEnd()),
		Peripheral: periph,
		Pre:        pre,
		Post:       post,
	}
}

func (p *Parser) parseStateType() (periph ast.Ident, state ast.Ident) {
	periph, _ = p.expectIdent()
	p.expect(lexer.TokLt)
	state, _ = p.expectIdent()
	p.expect(lexer.TokGt)
	return periph, state
}

func (p *Parser) errorFor(r ast.Range, msg string) ParseError {
	line, col := p.lineIndex.Position(int(r.Loc.Start))
	return ParseError{Message: msg, Pos: int(r.Loc.Start), End: int(r.End()), Line: line, Column: col}
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

func (p *Parser) parseStatement() ast.Stmt {
	switch p.current().Kind {
	case lexer.TokLBrace:
		return p.parseBlockStmt()

	case lexer.TokReturn:
		return p.parseReturnStmt()

	case lexer.TokIf:
		return p.parseIfStmt()

	case lexer.TokWhile:
		return p.parseWhileStmt()

	case lexer.TokLet:
		return p.parseLetStmt()

	case lexer.TokIdent:
		switch p.peek(1).Kind {
		case lexer.TokEq:
			return p.parseAssignStmt()
		case lexer.TokDot:
			if p.peek(2).Kind == lexer.TokIdent && p.peek(3).Kind == lexer.TokEq {
				return p.parseRegisterWriteStmt()
			}
		}
	}

	return p.parseExpressionStmt()
}

func (p *Parser) parseBlockStmt() *ast.BlockStmt {
	lbrace, _ := p.expect(lexer.TokLBrace)

	stmt := &ast.BlockStmt{}
	for p.current().Kind != lexer.TokRBrace && p.current().Kind != lexer.TokEOF {
		before := p.pos
		if s := p.parseStatement(); s != nil {
			stmt.Stmts = append(stmt.Stmts, s)
		}
		if p.pos == before {
			p.advance()
		}
	}

	rbrace, _ := p.expect(lexer.TokRBrace)
	stmt.RBrace = ast.Loc{Start: int32(rbrace.Start)}
	stmt.Range = ast.MakeRange(lbrace.Start, p.prevEnd())
	return stmt
}

func (p *Parser) parseLetStmt() *ast.LetStmt {
	start := p.advance().Start
	stmt := &ast.LetStmt{}
	stmt.Name, _ = p.expectIdent()
	p.expect(lexer.TokEq)
	stmt.Value = p.parseExpression()
	p.expect(lexer.TokSemicolon)
	stmt.Range = ast.MakeRange(start, p.prevEnd())
	return stmt
}

func (p *Parser) parseAssignStmt() *ast.AssignStmt {
	stmt := &ast.AssignStmt{}
	stmt.Name, _ = p.expectIdent()
	p.expect(lexer.TokEq)
	stmt.Value = p.parseExpression()
	p.expect(lexer.TokSemicolon)
	stmt.Range = ast.MakeRange(int(stmt.Name.Range.Loc.Start), p.prevEnd())
	return stmt
}

func (p *Parser) parseRegisterWriteStmt() *ast.RegisterWriteStmt {
	stmt := &ast.RegisterWriteStmt{}
	stmt.Peripheral, _ = p.expectIdent()
	p.expect(lexer.TokDot)
	stmt.Register, _ = p.expectIdent()
	p.expect(lexer.TokEq)
	stmt.Value = p.parseExpression()
	p.expect(lexer.TokSemicolon)
	stmt.Range = ast.MakeRange(int(stmt.Peripheral.Range.Loc.Start), p.prevEnd())
	return stmt
}

func (p *Parser) parseReturnStmt() *ast.ReturnStmt {
	start := p.advance().Start
	stmt := &ast.ReturnStmt{}

	if p.current().Kind != lexer.TokSemicolon {
		stmt.Value = p.parseExpression()
	}

	p.expect(lexer.TokSemicolon)
	stmt.Range = ast.MakeRange(start, p.prevEnd())
	return stmt
}

func (p *Parser) parseIfStmt() *ast.IfStmt {
	start := p.advance().Start
	stmt := &ast.IfStmt{}

	stmt.Condition = p.parseExpression()
	stmt.Range = ast.MakeRange(start, p.prevEnd())
	stmt.Body = p.parseBlockStmt()

	if p.match(lexer.TokElse) {
		if p.current().Kind == lexer.TokIf {
			stmt.Else = p.parseIfStmt()
		} else {
			stmt.Else = p.parseBlockStmt()
		}
	}

	return stmt
}

func (p *Parser) parseWhileStmt() *ast.WhileStmt {
	start := p.advance().Start
	stmt := &ast.WhileStmt{}
	stmt.Condition = p.parseExpression()
	stmt.Range = ast.MakeRange(start, p.prevEnd())
	stmt.Body = p.parseBlockStmt()
	return stmt
}

// parseExpressionStmt parses an expression evaluated for its effect. Only
// calls are allowed in statement position.
func (p *Parser) parseExpressionStmt() ast.Stmt {
	startTok := p.current()
	expr := p.parseExpression()
	p.expect(lexer.TokSemicolon)

	if call, ok := expr.(*ast.CallExpr); ok {
		return &ast.CallStmt{Call: call}
	}

	p.errorAt(startTok, "expected statement")
	return nil
}

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

func (p *Parser) parseExpression() ast.Expr {
	return p.parseBinaryExpr(0)
}

// Binary operator precedence, lowest first.
var precedence = [][]lexer.TokenKind{
	{lexer.TokPipePipe},
	{lexer.TokAmpAmp},
	{lexer.TokPipe},
	{lexer.TokCaret},
	{lexer.TokAmp},
	{lexer.TokEqEq, lexer.TokBangEq},
	{lexer.TokLt, lexer.TokLtEq, lexer.TokGt, lexer.TokGtEq},
	{lexer.TokLtLt, lexer.TokGtGt},
	{lexer.TokPlus, lexer.TokMinus},
	{lexer.TokStar, lexer.TokSlash, lexer.TokPercent},
}

func (p *Parser) parseBinaryExpr(level int) ast.Expr {
	if level == len(precedence) {
		return p.parseUnaryExpr()
	}

	left := p.parseBinaryExpr(level + 1)
	for p.atOperator(level) {
		op, _ := ast.BinaryOpFromToken(p.advance().Kind)
		right := p.parseBinaryExpr(level + 1)
		left = &ast.BinaryExpr{
			Range: left.Span().Join(right.Span()),
			Op:    op,
			Left:  left,
			Right: right,
		}
	}
	return left
}

func (p *Parser) atOperator(level int) bool {
	kind := p.current().Kind
	for _, k := range precedence[level] {
		if k == kind {
			return true
		}
	}
	return false
}

func (p *Parser) parseUnaryExpr() ast.Expr {
	var op ast.UnaryOp

	switch p.current().Kind {
	case lexer.TokMinus:
		op = ast.UnaryOpNeg
	case lexer.TokBang:
		op = ast.UnaryOpNot
	case lexer.TokTilde:
		op = ast.UnaryOpBitNot
	default:
		return p.parsePrimaryExpr()
	}

	start := p.advance().Start
	operand := p.parseUnaryExpr()
	return &ast.UnaryExpr{
		Range:   ast.MakeRange(start, int(operand.Span().End())),
		Op:      op,
		Operand: operand,
	}
}

func (p *Parser) parsePrimaryExpr() ast.Expr {
	tok := p.current()

	switch tok.Kind {
	case lexer.TokIntLiteral:
		p.advance()
		v, err := parseInt(tok.Value, 64)
		if err != nil {
			p.errorAt(tok, "integer literal out of range")
		}
		return &ast.IntLit{Range: ast.MakeRange(tok.Start, tok.End), Value: v, Raw: tok.Text(p.source)}

	case lexer.TokTrue, lexer.TokFalse:
		p.advance()
		return &ast.BoolLit{Range: ast.MakeRange(tok.Start, tok.End), Value: tok.Kind == lexer.TokTrue}

	case lexer.TokIdent:
		p.advance()
		name := ast.Ident{Name: tok.Value, Range: ast.MakeRange(tok.Start, tok.End)}

		switch p.current().Kind {
		case lexer.TokLParen:
			p.advance()
			args := p.parseExpressionList()
			p.expect(lexer.TokRParen)
			return &ast.CallExpr{Range: ast.MakeRange(tok.Start, p.prevEnd()), Callee: name, Args: args}

		case lexer.TokDot:
			p.advance()
			reg, _ := p.expectIdent()
			return &ast.RegisterRead{Range: ast.MakeRange(tok.Start, p.prevEnd()), Peripheral: name, Register: reg}
		}

		return &ast.IdentExpr{Name: name}

	case lexer.TokLParen:
		p.advance()
		expr := p.parseExpression()
		p.expect(lexer.TokRParen)
		return &ast.ParenExpr{Range: ast.MakeRange(tok.Start, p.prevEnd()), Expr: expr}

	default:
		p.error(fmt.Sprintf("expected expression, got %s", describeToken(tok)))
		if tok.Kind != lexer.TokEOF && tok.Kind != lexer.TokSemicolon && tok.Kind != lexer.TokRBrace {
			p.advance()
		}
		// Placeholder so callers can keep building ranges.
		return &ast.IntLit{Range: ast.MakeRange(tok.Start, tok.Start)}
	}
}

func (p *Parser) parseExpressionList() []ast.Expr {
	var exprs []ast.Expr

	if p.current().Kind == lexer.TokRParen {
		return exprs
	}

	for {
		exprs = append(exprs, p.parseExpression())
		if !p.match(lexer.TokComma) {
			break
		}
		if p.current().Kind == lexer.TokRParen {
			break // Trailing comma
		}
	}

	return exprs
}
