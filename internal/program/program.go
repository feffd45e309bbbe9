// Package program builds the function table for a peri file.
//
// Construction resolves every name once: signatures become (peripheral,
// pre, post) triples over registry IDs, and every call expression is bound
// to the FuncID of its callee. The resulting Program is immutable and safe
// to share between goroutines.
package program

import (
	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/registry"
)

// FuncID indexes a function in the program.
type FuncID uint32

// Effect is one P<Pre> -> P<Post> clause of a signature, interned.
type Effect struct {
	Peripheral registry.PeripheralID
	Pre        registry.StateID
	Post       registry.StateID
}

// Call is a resolved call site.
type Call struct {
	Expr   *ast.CallExpr
	Callee FuncID
}

// Function is a resolved function declaration.
type Function struct {
	ID   FuncID
	Name string
	Decl *ast.FunctionDecl

	// Signature is sorted by peripheral ID; empty for untyped functions.
	Signature []Effect

	// Calls lists the direct calls in the body in evaluation order.
	Calls []Call
}

// Typed reports whether the function carries a typestate signature.
func (f *Function) Typed() bool {
	return len(f.Signature) > 0
}

// Program is the function table.
type Program struct {
	File     *ast.File
	Registry *registry.Registry

	functions []*Function
	byName    map[string]FuncID
	callees   map[*ast.CallExpr]FuncID
}

// Build resolves the file's functions against the registry. All problems
// are returned together; any of them makes the program unusable for
// verification.
func Build(file *ast.File, reg *registry.Registry) (*Program, []*diagnostic.Problem) {
	b := &builder{
		prog: &Program{
			File:     file,
			Registry: reg,
			byName:   make(map[string]FuncID, len(file.Functions)),
			callees:  make(map[*ast.CallExpr]FuncID),
		},
	}
	b.declare(file.Functions)
	for _, fn := range b.prog.functions {
		b.resolveSignature(fn)
	}
	for _, fn := range b.prog.functions {
		b.resolveBody(fn)
	}
	return b.prog, b.problems
}

// ----------------------------------------------------------------------------
// Lookup
// ----------------------------------------------------------------------------

// Len returns the number of functions.
func (p *Program) Len() int {
	return len(p.functions)
}

// Functions returns the functions in declaration order.
func (p *Program) Functions() []*Function {
	return p.functions
}

// Function returns the function with the given ID.
func (p *Program) Function(id FuncID) *Function {
	return p.functions[id]
}

// Lookup finds a function by name.
func (p *Program) Lookup(name string) (*Function, bool) {
	id, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	return p.functions[id], true
}

// Callee returns the function a call expression resolves to.
func (p *Program) Callee(call *ast.CallExpr) (*Function, bool) {
	id, ok := p.callees[call]
	if !ok {
		return nil, false
	}
	return p.functions[id], true
}

// FormatPre renders the precondition side "P<S>" of an effect.
func (p *Program) FormatPre(e Effect) string {
	return p.Registry.Format(e.Peripheral, e.Pre)
}

// FormatPost renders the postcondition side "P<S>" of an effect.
func (p *Program) FormatPost(e Effect) string {
	return p.Registry.Format(e.Peripheral, e.Post)
}
