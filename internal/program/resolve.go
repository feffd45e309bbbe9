package program

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/source"
)

type builder struct {
	prog     *Program
	problems []*diagnostic.Problem

	lineIndex *source.LineIndex

	// Per-function state while resolving a body
	fn     *Function
	scopes []map[string]bool
}

func (b *builder) lines() *source.LineIndex {
	if b.lineIndex == nil {
		b.lineIndex = source.NewLineIndex(b.prog.File.Source)
	}
	return b.lineIndex
}

func (b *builder) report(fn string, code diagnostic.Code, r ast.Range, msg string, notes ...string) {
	b.problems = append(b.problems, &diagnostic.Problem{
		Code:     code,
		Function: fn,
		Message:  msg,
		Start:    int(r.Loc.Start),
		End:      int(r.End()),
		Notes:    notes,
	})
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func (b *builder) declare(decls []*ast.FunctionDecl) {
	for _, decl := range decls {
		if prev, dup := b.prog.byName[decl.Name.Name]; dup {
			first := b.prog.functions[prev].Decl
			line, _ := b.lines().Position(int(first.Name.Range.Loc.Start))
			b.report(decl.Name.Name, diagnostic.CodeDuplicateFunction, decl.Name.Range,
				fmt.Sprintf("'%s' is already defined", decl.Name.Name),
				fmt.Sprintf("first definition is on line %d", line))
			continue
		}
		id := FuncID(len(b.prog.functions))
		b.prog.functions = append(b.prog.functions, &Function{ID: id, Name: decl.Name.Name, Decl: decl})
		b.prog.byName[decl.Name.Name] = id
	}
}

func (b *builder) resolveSignature(fn *Function) {
	seen := make(map[string]bool, len(fn.Decl.Signature))

	for _, t := range fn.Decl.Signature {
		if seen[t.Peripheral.Name] {
			b.report(fn.Name, diagnostic.CodeDuplicateTransition, t.Range,
				fmt.Sprintf("%s appears more than once in the signature", t.Peripheral.Name))
			continue
		}
		seen[t.Peripheral.Name] = true

		id, pre, problem := b.prog.Registry.ResolveState(t.Peripheral, t.Pre)
		if problem != nil {
			problem.Function = fn.Name
			b.problems = append(b.problems, problem)
			continue
		}
		_, post, problem := b.prog.Registry.ResolveState(t.Peripheral, t.Post)
		if problem != nil {
			problem.Function = fn.Name
			b.problems = append(b.problems, problem)
			continue
		}
		fn.Signature = append(fn.Signature, Effect{Peripheral: id, Pre: pre, Post: post})
	}

	slices.SortFunc(fn.Signature, func(a, b Effect) int {
		return cmp.Compare(a.Peripheral, b.Peripheral)
	})
}

// ----------------------------------------------------------------------------
// Bodies
// ----------------------------------------------------------------------------

func (b *builder) resolveBody(fn *Function) {
	b.fn = fn
	b.scopes = b.scopes[:0]

	b.pushScope()
	for _, param := range fn.Decl.Params {
		b.declareVar(param.Name.Name)
	}
	b.resolveBlock(fn.Decl.Body)
	b.popScope()
}

func (b *builder) pushScope() {
	b.scopes = append(b.scopes, make(map[string]bool))
}

func (b *builder) popScope() {
	b.scopes = b.scopes[:len(b.scopes)-1]
}

func (b *builder) declareVar(name string) {
	b.scopes[len(b.scopes)-1][name] = true
}

func (b *builder) lookupVar(name string) bool {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if b.scopes[i][name] {
			return true
		}
	}
	return false
}

func (b *builder) resolveBlock(block *ast.BlockStmt) {
	if block == nil {
		return
	}
	b.pushScope()
	for _, stmt := range block.Stmts {
		b.resolveStmt(stmt)
	}
	b.popScope()
}

func (b *builder) resolveStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		b.resolveBlock(s)

	case *ast.LetStmt:
		// The initializer cannot see the variable it declares.
		b.resolveExpr(s.Value)
		b.declareVar(s.Name.Name)

	case *ast.AssignStmt:
		b.resolveExpr(s.Value)
		if !b.lookupVar(s.Name.Name) {
			b.report(b.fn.Name, diagnostic.CodeUndefinedVariable, s.Name.Range,
				fmt.Sprintf("assignment to undeclared variable '%s'", s.Name.Name))
		}

	case *ast.RegisterWriteStmt:
		b.resolveExpr(s.Value)
		b.resolveRegister(s.Peripheral, s.Register)

	case *ast.CallStmt:
		b.resolveExpr(s.Call)

	case *ast.IfStmt:
		b.resolveExpr(s.Condition)
		b.resolveBlock(s.Body)
		if s.Else != nil {
			b.resolveStmt(s.Else)
		}

	case *ast.WhileStmt:
		b.resolveExpr(s.Condition)
		b.resolveBlock(s.Body)

	case *ast.ReturnStmt:
		if s.Value != nil {
			b.resolveExpr(s.Value)
		}
	}
}

func (b *builder) resolveExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.IdentExpr:
		if !b.lookupVar(e.Name.Name) {
			b.report(b.fn.Name, diagnostic.CodeUndefinedVariable, e.Name.Range,
				fmt.Sprintf("use of undeclared variable '%s'", e.Name.Name))
		}

	case *ast.CallExpr:
		for _, arg := range e.Args {
			b.resolveExpr(arg)
		}
		b.resolveCall(e)

	case *ast.RegisterRead:
		b.resolveRegister(e.Peripheral, e.Register)

	case *ast.BinaryExpr:
		b.resolveExpr(e.Left)
		b.resolveExpr(e.Right)

	case *ast.UnaryExpr:
		b.resolveExpr(e.Operand)

	case *ast.ParenExpr:
		b.resolveExpr(e.Expr)
	}
}

func (b *builder) resolveCall(call *ast.CallExpr) {
	callee, ok := b.prog.Lookup(call.Callee.Name)
	if !ok {
		b.report(b.fn.Name, diagnostic.CodeUndefinedFunction, call.Callee.Range,
			fmt.Sprintf("no function named '%s'", call.Callee.Name))
		return
	}

	if want, got := len(callee.Decl.Params), len(call.Args); want != got {
		b.report(b.fn.Name, diagnostic.CodeArityMismatch, call.Range,
			fmt.Sprintf("'%s' takes %d argument%s but %d %s given",
				callee.Name, want, plural(want), got, wasWere(got)))
	}

	b.prog.callees[call] = callee.ID
	b.fn.Calls = append(b.fn.Calls, Call{Expr: call, Callee: callee.ID})
}

func (b *builder) resolveRegister(periph, reg ast.Ident) {
	if _, _, problem := b.prog.Registry.ResolveRegister(periph, reg); problem != nil {
		problem.Function = b.fn.Name
		b.problems = append(b.problems, problem)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}
