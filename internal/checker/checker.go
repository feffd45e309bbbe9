// Package checker runs the verification pipeline over one peri file.
//
// The phases are: peripheral registry, program model, call graph
// classification and body verification. The first three are all-or-nothing:
// any problem they report stops the pipeline, since no function can be
// checked against an inconsistent model. Verification problems are per
// function and all of them are reported together.
package checker

import (
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/callgraph"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/parser"
	"github.com/aqibfaruqui/peri/internal/program"
	"github.com/aqibfaruqui/peri/internal/registry"
	"github.com/aqibfaruqui/peri/internal/typestate"
)

// DefaultEntries names the functions checked from the initial state of
// every peripheral when no entries are configured.
var DefaultEntries = []string{"main"}

// Options controls the pipeline.
type Options struct {
	// Entries lists unsigned functions whose bodies are checked from every
	// peripheral's initial state. Nil means DefaultEntries.
	Entries []string

	// Strict rejects calls that need a peripheral the caller does not track.
	Strict bool

	// Workers bounds the number of functions verified concurrently. Zero
	// means GOMAXPROCS.
	Workers int

	// Peripherals are declarations from outside the file, such as board
	// scripts. They are registered after the file's own.
	Peripherals []*ast.PeripheralDecl

	// Warnings filters warning diagnostics. Nil reports all of them.
	Warnings *diagnostic.Filter

	// Logger receives phase timings and per-function outcomes at debug
	// level. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Entries: slices.Clone(DefaultEntries)}
}

// Result is the outcome of checking a file.
type Result struct {
	// Valid is true when no error diagnostic was reported.
	Valid bool

	File        *ast.File
	Diagnostics *diagnostic.List

	// The models built by the pipeline. Later ones are nil when an earlier
	// phase failed.
	Registry *registry.Registry
	Program  *program.Program
	Graph    *callgraph.Graph

	// Outcomes holds one result per function in declaration order. It is
	// empty when a fatal phase failed.
	Outcomes []*typestate.Result
}

// Outcome returns the result for a function by name.
func (r *Result) Outcome(name string) (*typestate.Result, bool) {
	for _, o := range r.Outcomes {
		if o.Function.Name == name {
			return o, true
		}
	}
	return nil, false
}

// CheckSource parses and checks source text. Syntax errors stop the
// pipeline before any model is built.
func CheckSource(name, src string, opts Options) *Result {
	logger := opts.logger()
	start := time.Now()
	file, errs := parser.Parse(name, src)
	logger.Debug("parsed", "file", name, "functions", len(file.Functions), "peripherals", len(file.Peripherals), "duration", time.Since(start))

	if len(errs) > 0 {
		diags := newList(file, opts)
		for _, e := range errs {
			diags.AddError(diagnostic.CodeSyntax, e.Pos, e.End, e.Message)
		}
		diags.Sort()
		return &Result{File: file, Diagnostics: diags}
	}
	return Check(file, opts)
}

// Check runs the pipeline on a parsed file.
func Check(file *ast.File, opts Options) *Result {
	logger := opts.logger()
	result := &Result{File: file, Diagnostics: newList(file, opts)}
	diags := result.Diagnostics

	fatal := func(phase string, problems []*diagnostic.Problem) bool {
		if len(problems) == 0 {
			return false
		}
		for _, p := range problems {
			diags.AddProblem(p)
		}
		diags.Sort()
		logger.Debug("phase failed", "phase", phase, "problems", len(problems))
		return true
	}

	// Registry
	start := time.Now()
	decls := append(slices.Clone(file.Peripherals), opts.Peripherals...)
	reg, problems := registry.Build(decls)
	logger.Debug("registry built", "peripherals", reg.Names(), "duration", time.Since(start))
	if fatal("registry", problems) {
		return result
	}
	result.Registry = reg

	// Program model
	start = time.Now()
	prog, problems := program.Build(file, reg)
	logger.Debug("program built", "functions", prog.Len(), "duration", time.Since(start))
	if fatal("program", problems) {
		return result
	}
	result.Program = prog

	// Classification
	start = time.Now()
	graph, problems := callgraph.Classify(prog, opts.entries())
	logger.Debug("call graph classified", "components", len(graph.SCCs()), "waves", len(graph.Waves()), "duration", time.Since(start))
	if fatal("classification", problems) {
		return result
	}
	result.Graph = graph

	// Verification
	start = time.Now()
	result.Outcomes = verify(prog, graph, opts)
	logger.Debug("functions verified", "duration", time.Since(start))

	for _, o := range result.Outcomes {
		logOutcome(logger, o)
		for _, w := range o.Warnings {
			diags.AddProblem(w)
		}
		if o.Violation != nil {
			diags.AddProblem(o.Violation.Problem())
		}
	}
	diags.Sort()
	result.Valid = !diags.HasErrors()
	return result
}

// verify checks every function. Checked functions run wave by wave so that
// callees finish before their callers; functions within a wave are
// independent and share the read-only models.
func verify(prog *program.Program, graph *callgraph.Graph, opts Options) []*typestate.Result {
	verifier := typestate.NewVerifier(prog, graph, typestate.Options{Strict: opts.Strict})
	outcomes := make([]*typestate.Result, prog.Len())

	for _, wave := range graph.Waves() {
		var g errgroup.Group
		g.SetLimit(opts.workers())
		for _, id := range wave {
			g.Go(func() error {
				outcomes[id] = verifier.Verify(id)
				return nil
			})
		}
		// Verify reports problems in its result; the group never fails.
		_ = g.Wait()
	}

	// Trusted and untyped functions are accepted on their signature.
	for i, o := range outcomes {
		if o == nil {
			outcomes[i] = verifier.Verify(program.FuncID(i))
		}
	}
	return outcomes
}

func logOutcome(logger *slog.Logger, o *typestate.Result) {
	if !o.Kind.Checked() {
		return
	}
	if o.Accepted {
		logger.Debug("function accepted", "function", o.Function.Name, "kind", o.Kind.String())
		return
	}
	logger.Debug("function rejected", "function", o.Function.Name, "kind", o.Kind.String(), "code", o.Violation.Code.Name())
}

func newList(file *ast.File, opts Options) *diagnostic.List {
	diags := diagnostic.NewList(file.Name, file.Source)
	diags.SetFilter(opts.Warnings)
	return diags
}

func (o Options) entries() []string {
	if o.Entries == nil {
		return DefaultEntries
	}
	return o.Entries
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
