// Package printer outputs peri source from an AST.
//
// Output is canonical: four-space indentation, one statement per line,
// hex addresses. An optional Annotate hook appends a trailing comment to
// each statement, which is how the checker shows the peripheral context it
// derived at every program point.
package printer

import (
	"fmt"
	"strings"

	"github.com/aqibfaruqui/peri/internal/ast"
)

// Options controls printer output.
type Options struct {
	// Annotate returns the comment text printed after a statement, or ""
	// for none. It is called once per statement in source order.
	Annotate func(ast.Stmt) string

	// SkipPeripherals omits peripheral declarations from the output
	SkipPeripherals bool
}

// Printer outputs peri code.
type Printer struct {
	options Options

	buf    strings.Builder
	indent int
}

// New creates a new printer.
func New(options Options) *Printer {
	return &Printer{options: options}
}

// Print outputs the file as a string.
func (p *Printer) Print(file *ast.File) string {
	p.buf.Reset()

	first := true
	separate := func() {
		if !first {
			p.buf.WriteByte('\n')
		}
		first = false
	}

	if !p.options.SkipPeripherals {
		for _, decl := range file.Peripherals {
			separate()
			p.printPeripheral(decl)
		}
	}
	for _, decl := range file.Functions {
		separate()
		p.printFunction(decl)
	}

	return p.buf.String()
}

// PrintExpr outputs a single expression.
func PrintExpr(e ast.Expr) string {
	p := &Printer{}
	p.printExpr(e)
	return p.buf.String()
}

// ----------------------------------------------------------------------------
// Output Helpers
// ----------------------------------------------------------------------------

func (p *Printer) print(s string) {
	p.buf.WriteString(s)
}

func (p *Printer) printIndent() {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("    ")
	}
}

// endLine finishes the current line, attaching the annotation for stmt.
func (p *Printer) endLine(stmt ast.Stmt) {
	if stmt != nil && p.options.Annotate != nil {
		if note := p.options.Annotate(stmt); note != "" {
			p.print(" // ")
			p.print(note)
		}
	}
	p.buf.WriteByte('\n')
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func (p *Printer) printPeripheral(decl *ast.PeripheralDecl) {
	p.print("peripheral ")
	p.print(decl.Name.Name)
	p.print(fmt.Sprintf(" at 0x%08X {\n", decl.Base))
	p.indent++

	p.printIndent()
	p.print("states: ")
	for i, s := range decl.States {
		if i > 0 {
			p.print(", ")
		}
		p.print(s.Name)
	}
	p.print(";\n")

	p.printIndent()
	p.print("initial: ")
	p.print(decl.Initial.Name)
	p.print(";\n")

	// Consecutive registers of the same width share one block.
	for i := 0; i < len(decl.Registers); {
		width := decl.Registers[i].Width
		p.printIndent()
		p.print(fmt.Sprintf("registers u%d {\n", width))
		p.indent++
		for ; i < len(decl.Registers) && decl.Registers[i].Width == width; i++ {
			reg := decl.Registers[i]
			p.printIndent()
			p.print(fmt.Sprintf("%s at 0x%02X;\n", reg.Name.Name, reg.Offset))
		}
		p.indent--
		p.printIndent()
		p.print("}\n")
	}

	p.indent--
	p.print("}\n")
}

func (p *Printer) printFunction(decl *ast.FunctionDecl) {
	p.print("fn ")
	p.print(decl.Name.Name)
	p.print("(")
	for i, param := range decl.Params {
		if i > 0 {
			p.print(", ")
		}
		p.print(param.Name.Name)
		p.print(": ")
		p.print(param.Type.Name)
	}
	p.print(")")

	if decl.HasSignature() {
		p.print(" :: ")
		p.print(FormatSignature(decl.Signature))
	}

	p.print(" ")
	p.printBlock(decl.Body)
	p.buf.WriteByte('\n')
}

// FormatSignature renders a signature as written in source.
func FormatSignature(sig []ast.Transition) string {
	parts := make([]string, len(sig))
	for i, t := range sig {
		parts[i] = fmt.Sprintf("%s<%s> -> %s<%s>", t.Peripheral.Name, t.Pre.Name, t.Peripheral.Name, t.Post.Name)
	}
	return strings.Join(parts, ", ")
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

// printBlock prints "{ ... }" without a trailing newline. The opening brace
// continues the current line.
func (p *Printer) printBlock(block *ast.BlockStmt) {
	p.print("{\n")
	p.indent++
	if block != nil {
		for _, stmt := range block.Stmts {
			p.printStmt(stmt)
		}
	}
	p.indent--
	p.printIndent()
	p.print("}")
}

func (p *Printer) printStmt(stmt ast.Stmt) {
	p.printIndent()

	switch s := stmt.(type) {
	case *ast.BlockStmt:
		p.printBlock(s)

	case *ast.LetStmt:
		p.print("let ")
		p.print(s.Name.Name)
		p.print(" = ")
		p.printExpr(s.Value)
		p.print(";")

	case *ast.AssignStmt:
		p.print(s.Name.Name)
		p.print(" = ")
		p.printExpr(s.Value)
		p.print(";")

	case *ast.RegisterWriteStmt:
		p.print(s.Peripheral.Name)
		p.print(".")
		p.print(s.Register.Name)
		p.print(" = ")
		p.printExpr(s.Value)
		p.print(";")

	case *ast.CallStmt:
		p.printExpr(s.Call)
		p.print(";")

	case *ast.IfStmt:
		p.printIf(s)

	case *ast.WhileStmt:
		p.print("while ")
		p.printExpr(s.Condition)
		p.print(" ")
		p.printBlock(s.Body)

	case *ast.ReturnStmt:
		p.print("return")
		if s.Value != nil {
			p.print(" ")
			p.printExpr(s.Value)
		}
		p.print(";")
	}

	p.endLine(stmt)
}

func (p *Printer) printIf(s *ast.IfStmt) {
	p.print("if ")
	p.printExpr(s.Condition)
	p.print(" ")
	p.printBlock(s.Body)

	switch e := s.Else.(type) {
	case *ast.IfStmt:
		p.print(" else ")
		p.printIf(e)
	case *ast.BlockStmt:
		p.print(" else ")
		p.printBlock(e)
	}
}

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

func (p *Printer) printExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.IntLit:
		if e.Raw != "" {
			p.print(e.Raw)
		} else {
			p.print(fmt.Sprint(e.Value))
		}

	case *ast.BoolLit:
		if e.Value {
			p.print("true")
		} else {
			p.print("false")
		}

	case *ast.IdentExpr:
		p.print(e.Name.Name)

	case *ast.CallExpr:
		p.print(e.Callee.Name)
		p.print("(")
		for i, arg := range e.Args {
			if i > 0 {
				p.print(", ")
			}
			p.printExpr(arg)
		}
		p.print(")")

	case *ast.RegisterRead:
		p.print(e.Peripheral.Name)
		p.print(".")
		p.print(e.Register.Name)

	case *ast.BinaryExpr:
		p.printExpr(e.Left)
		p.print(" ")
		p.print(e.Op.String())
		p.print(" ")
		p.printExpr(e.Right)

	case *ast.UnaryExpr:
		p.print(e.Op.String())
		p.printExpr(e.Operand)

	case *ast.ParenExpr:
		p.print("(")
		p.printExpr(e.Expr)
		p.print(")")
	}
}
