// Package typestate checks function bodies against their peripheral
// state signatures.
//
// The walk threads an immutable Context through each statement. Calls to
// typestated functions check and update it, branches must agree, loop
// bodies must leave it unchanged, and every return point must match the
// declared postcondition. The first violation rejects the function.
package typestate

import (
	"fmt"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/callgraph"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/program"
	"github.com/aqibfaruqui/peri/internal/registry"
)

// Options configures the walk.
type Options struct {
	// Strict rejects calls whose signature names a peripheral the caller
	// does not track. Otherwise such peripherals are ignored.
	Strict bool
}

// Snapshot is the context around one statement. Live is false for
// statements that cannot be reached; their contexts are empty.
type Snapshot struct {
	Before Context
	After  Context
	Live   bool
}

// Result is the outcome for a single function.
type Result struct {
	Function *program.Function
	Kind     callgraph.Kind
	Accepted bool

	// Violation is set when the function was rejected.
	Violation *Violation

	// Snapshots holds the context before and after each reachable
	// statement of a walked body. Trusted and untyped functions have none.
	Snapshots map[ast.Stmt]Snapshot

	Warnings []*diagnostic.Problem
}

// Verifier checks functions of one program. It only reads the program and
// graph, so a single Verifier may be used from several goroutines.
type Verifier struct {
	prog    *program.Program
	graph   *callgraph.Graph
	options Options
}

// NewVerifier creates a verifier.
func NewVerifier(prog *program.Program, graph *callgraph.Graph, options Options) *Verifier {
	return &Verifier{prog: prog, graph: graph, options: options}
}

// Verify checks one function. Trusted and untyped functions are accepted
// without walking their bodies.
func (v *Verifier) Verify(id program.FuncID) *Result {
	fn := v.prog.Function(id)
	kind := v.graph.Kind(id)
	result := &Result{Function: fn, Kind: kind}
	if !kind.Checked() {
		result.Accepted = true
		return result
	}

	w := &walker{
		v:         v,
		fn:        fn,
		kind:      kind,
		snapshots: make(map[ast.Stmt]Snapshot),
	}
	err := w.walkFunction()
	result.Snapshots = w.snapshots
	result.Warnings = w.warnings
	if err != nil {
		result.Violation = err
		return result
	}
	result.Accepted = true
	return result
}

// Entry returns the context a function body starts from: the signature's
// preconditions, or every peripheral's initial state for entry functions.
func (v *Verifier) Entry(fn *program.Function) Context {
	var entries []Entry
	if v.graph.Kind(fn.ID) == callgraph.Entry {
		for _, p := range v.prog.Registry.All() {
			entries = append(entries, Entry{Peripheral: p.ID, State: p.Initial})
		}
	} else {
		for _, e := range fn.Signature {
			entries = append(entries, Entry{Peripheral: e.Peripheral, State: e.Pre})
		}
	}
	return NewContext(entries...)
}

// ----------------------------------------------------------------------------
// Walker
// ----------------------------------------------------------------------------

type walker struct {
	v         *Verifier
	fn        *program.Function
	kind      callgraph.Kind
	snapshots map[ast.Stmt]Snapshot
	warnings  []*diagnostic.Problem
}

func (w *walker) reg() *registry.Registry {
	return w.v.prog.Registry
}

func (w *walker) walkFunction() *Violation {
	body := w.fn.Decl.Body
	out, live, err := w.walkBlock(body, w.v.Entry(w.fn))
	if err != nil {
		return err
	}
	if live {
		// Falling off the end returns at the closing brace.
		return w.checkReturn(out, ast.Range{Loc: body.RBrace, Len: 1})
	}
	return nil
}

// walkBlock walks statements in order. It returns the context at the end
// of the block and whether the end is reachable.
func (w *walker) walkBlock(block *ast.BlockStmt, ctx Context) (Context, bool, *Violation) {
	for i, stmt := range block.Stmts {
		out, live, err := w.walkStmt(stmt, ctx)
		if err != nil {
			return ctx, false, err
		}
		w.snapshots[stmt] = Snapshot{Before: ctx, After: out, Live: true}
		ctx = out
		if !live {
			if i+1 < len(block.Stmts) {
				w.unreachable(block.Stmts[i+1:])
			}
			return ctx, false, nil
		}
	}
	return ctx, true, nil
}

func (w *walker) walkStmt(stmt ast.Stmt, ctx Context) (Context, bool, *Violation) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		return w.walkBlock(s, ctx)

	case *ast.LetStmt:
		out, err := w.walkExpr(s.Value, ctx)
		return out, true, err

	case *ast.AssignStmt:
		out, err := w.walkExpr(s.Value, ctx)
		return out, true, err

	case *ast.RegisterWriteStmt:
		// Raw register access never moves the context.
		out, err := w.walkExpr(s.Value, ctx)
		return out, true, err

	case *ast.CallStmt:
		out, err := w.walkExpr(s.Call, ctx)
		return out, true, err

	case *ast.IfStmt:
		return w.walkIf(s, ctx)

	case *ast.WhileStmt:
		return w.walkWhile(s, ctx)

	case *ast.ReturnStmt:
		if s.Value != nil {
			out, err := w.walkExpr(s.Value, ctx)
			if err != nil {
				return ctx, false, err
			}
			ctx = out
		}
		if err := w.checkReturn(ctx, s.Range); err != nil {
			return ctx, false, err
		}
		return ctx, false, nil
	}

	panic(fmt.Sprintf("typestate: unexpected statement %T", stmt))
}

// walkIf walks both branches from the context after the condition. A
// missing else branch leaves that context unchanged. Only branches that
// reach the end of the if statement take part in the merge.
func (w *walker) walkIf(s *ast.IfStmt, ctx Context) (Context, bool, *Violation) {
	cond, err := w.walkExpr(s.Condition, ctx)
	if err != nil {
		return ctx, false, err
	}

	thenCtx, thenLive, err := w.walkBlock(s.Body, cond)
	if err != nil {
		return ctx, false, err
	}

	elseCtx, elseLive := cond, true
	if s.Else != nil {
		elseCtx, elseLive, err = w.walkStmt(s.Else, cond)
		if err != nil {
			return ctx, false, err
		}
		if _, nested := s.Else.(*ast.IfStmt); nested {
			w.snapshots[s.Else] = Snapshot{Before: cond, After: elseCtx, Live: true}
		}
	}

	switch {
	case thenLive && elseLive:
		if !thenCtx.Equal(elseCtx) {
			return ctx, false, &Violation{
				Code:       diagnostic.CodeDivergentBranchEffect,
				Function:   w.fn.Name,
				Range:      s.Range,
				Mismatches: w.disagreements(thenCtx, elseCtx),
				Notes:      []string{"both branches of an if must leave every peripheral in the same state"},
			}
		}
		return thenCtx, true, nil
	case thenLive:
		return thenCtx, true, nil
	case elseLive:
		return elseCtx, true, nil
	}
	return ctx, false, nil
}

// walkWhile walks the body once. The body starts after the condition has
// been evaluated and must end in the context the loop was entered with, so
// that any number of iterations is sound. The loop exits after a final
// evaluation of the condition.
func (w *walker) walkWhile(s *ast.WhileStmt, ctx Context) (Context, bool, *Violation) {
	cond, err := w.walkExpr(s.Condition, ctx)
	if err != nil {
		return ctx, false, err
	}

	body, live, err := w.walkBlock(s.Body, cond)
	if err != nil {
		return ctx, false, err
	}
	if live && !body.Equal(ctx) {
		return ctx, false, &Violation{
			Code:       diagnostic.CodeLoopEffectNotInvariant,
			Function:   w.fn.Name,
			Range:      s.Range,
			Mismatches: w.disagreements(ctx, body),
			Notes:      []string{"a loop body may run any number of times, so it must leave every peripheral as it found it"},
		}
	}
	return cond, true, nil
}

// walkExpr threads the context through the calls inside an expression in
// evaluation order. The right operand of && and || may not run, so it is
// checked like an if without else: it must leave the context unchanged.
func (w *walker) walkExpr(expr ast.Expr, ctx Context) (Context, *Violation) {
	switch e := expr.(type) {
	case *ast.CallExpr:
		for _, arg := range e.Args {
			var err *Violation
			if ctx, err = w.walkExpr(arg, ctx); err != nil {
				return ctx, err
			}
		}
		return w.applyCall(e, ctx)

	case *ast.BinaryExpr:
		left, err := w.walkExpr(e.Left, ctx)
		if err != nil {
			return ctx, err
		}
		right, err := w.walkExpr(e.Right, left)
		if err != nil {
			return ctx, err
		}
		if e.Op != ast.BinOpLogicalAnd && e.Op != ast.BinOpLogicalOr {
			return right, nil
		}
		if !right.Equal(left) {
			return ctx, &Violation{
				Code:       diagnostic.CodeDivergentBranchEffect,
				Function:   w.fn.Name,
				Range:      e.Range,
				Mismatches: w.disagreements(right, left),
				Notes:      []string{fmt.Sprintf("the right operand of %s does not always run, so it must leave every peripheral in the same state", e.Op)},
			}
		}
		return left, nil

	case *ast.UnaryExpr:
		return w.walkExpr(e.Operand, ctx)

	case *ast.ParenExpr:
		return w.walkExpr(e.Expr, ctx)
	}
	return ctx, nil
}

// applyCall checks every precondition of a typestated callee before any
// postcondition is applied.
func (w *walker) applyCall(call *ast.CallExpr, ctx Context) (Context, *Violation) {
	callee, ok := w.v.prog.Callee(call)
	if !ok {
		panic("typestate: unresolved call to " + call.Callee.Name)
	}

	if !callee.Typed() {
		if w.v.graph.ReachesTypestate(callee.ID) {
			w.warnings = append(w.warnings, &diagnostic.Problem{
				Severity: diagnostic.Warning,
				Code:     diagnostic.CodeOpaqueTypestateCall,
				Function: w.fn.Name,
				Message:  fmt.Sprintf("'%s' calls typestated functions but has no signature", callee.Name),
				Start:    int(call.Range.Loc.Start),
				End:      int(call.Range.End()),
				Notes:    []string{"its peripheral effects are not visible to this check"},
			})
		}
		return ctx, nil
	}

	var mismatches, untracked []Mismatch
	for _, e := range callee.Signature {
		state, tracked := ctx.Get(e.Peripheral)
		switch {
		case !tracked:
			if w.v.options.Strict {
				untracked = append(untracked, Mismatch{
					Peripheral: w.reg().Peripheral(e.Peripheral).Name,
					Expected:   w.v.prog.FormatPre(e),
				})
			}
		case state != e.Pre:
			mismatches = append(mismatches, Mismatch{
				Peripheral: w.reg().Peripheral(e.Peripheral).Name,
				Expected:   w.v.prog.FormatPre(e),
				Actual:     w.reg().Format(e.Peripheral, state),
			})
		}
	}

	if len(untracked) > 0 {
		return ctx, &Violation{
			Code:       diagnostic.CodeUntrackedPeripheral,
			Function:   w.fn.Name,
			Range:      call.Range,
			Callee:     callee.Name,
			Mismatches: untracked,
			Notes:      []string{fmt.Sprintf("add the peripheral to the signature of '%s'", w.fn.Name)},
		}
	}
	if len(mismatches) > 0 {
		notes := make([]string, len(mismatches))
		for i, m := range mismatches {
			notes[i] = fmt.Sprintf("'%s' requires %s", callee.Name, m.Expected)
		}
		return ctx, &Violation{
			Code:       diagnostic.CodeTypestateViolation,
			Function:   w.fn.Name,
			Range:      call.Range,
			Callee:     callee.Name,
			Mismatches: mismatches,
			Notes:      notes,
		}
	}

	for _, e := range callee.Signature {
		if _, tracked := ctx.Get(e.Peripheral); tracked {
			ctx = ctx.With(e.Peripheral, e.Post)
		}
	}
	return ctx, nil
}

// checkReturn compares the context at a return point with the declared
// postcondition. Entry functions have none.
func (w *walker) checkReturn(ctx Context, at ast.Range) *Violation {
	if w.kind == callgraph.Entry {
		return nil
	}

	var mismatches []Mismatch
	for _, e := range w.fn.Signature {
		state, _ := ctx.Get(e.Peripheral)
		if state != e.Post {
			mismatches = append(mismatches, Mismatch{
				Peripheral: w.reg().Peripheral(e.Peripheral).Name,
				Expected:   w.v.prog.FormatPost(e),
				Actual:     w.reg().Format(e.Peripheral, state),
			})
		}
	}
	if len(mismatches) == 0 {
		return nil
	}

	return &Violation{
		Code:       diagnostic.CodeTypestateViolation,
		Function:   w.fn.Name,
		Range:      at,
		AtReturn:   true,
		Mismatches: mismatches,
		Notes:      []string{fmt.Sprintf("'%s' must return with %s", w.fn.Name, w.formatPost())},
	}
}

func (w *walker) formatPost() string {
	var post Context
	for _, e := range w.fn.Signature {
		post = post.With(e.Peripheral, e.Post)
	}
	return post.Format(w.reg())
}

func (w *walker) disagreements(left, right Context) []Mismatch {
	diffs := left.Diff(right)
	out := make([]Mismatch, len(diffs))
	for i, d := range diffs {
		m := Mismatch{Peripheral: w.reg().Peripheral(d.Peripheral).Name}
		if d.LeftTracked {
			m.Expected = w.reg().Format(d.Peripheral, d.Left)
		}
		if d.RightTracked {
			m.Actual = w.reg().Format(d.Peripheral, d.Right)
		}
		out[i] = m
	}
	return out
}

func (w *walker) unreachable(stmts []ast.Stmt) {
	for _, stmt := range stmts {
		w.snapshots[stmt] = Snapshot{}
	}
	first := stmts[0].Span()
	p := &diagnostic.Problem{
		Severity: diagnostic.Warning,
		Code:     diagnostic.CodeUnreachableCode,
		Function: w.fn.Name,
		Message:  "unreachable statement",
		Start:    int(first.Loc.Start),
		End:      int(first.End()),
	}
	if len(stmts) > 1 {
		p.Notes = []string{fmt.Sprintf("%d statements after a return are skipped", len(stmts))}
	}
	w.warnings = append(w.warnings, p)
}
