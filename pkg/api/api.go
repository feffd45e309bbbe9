// Package api provides the public API for the peri typestate checker.
//
// This package is intended for programmatic use of the checker.
// For CLI usage, see cmd/peric.
package api

import (
	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/board"
	"github.com/aqibfaruqui/peri/internal/cheader"
	"github.com/aqibfaruqui/peri/internal/checker"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/printer"
)

// CheckOptions controls checking behavior.
type CheckOptions struct {
	// Filename is used in diagnostics. Defaults to "input.peri".
	Filename string

	// Entries lists unsigned functions checked from every peripheral's
	// initial state. Nil means ["main"].
	Entries []string

	// Strict rejects calls whose signature names a peripheral the caller
	// does not track.
	Strict bool

	// Workers bounds concurrent verification. Zero means GOMAXPROCS.
	Workers int

	// Boards are Starlark board scripts declaring extra peripherals.
	Boards []BoardScript

	// NoWarnings drops all warnings.
	NoWarnings bool

	// Header requests a C header for a valid program.
	Header bool
}

// BoardScript is a named Starlark board script.
type BoardScript struct {
	Name   string
	Source string
}

// CheckResult contains the checker output.
type CheckResult struct {
	// Valid is true when no errors were reported.
	Valid bool `json:"valid"`

	// Errors and Warnings are rendered diagnostics, in source order.
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Functions lists every function in declaration order. Empty when the
	// program could not be modelled.
	Functions []FunctionInfo `json:"functions"`

	// Header is the generated C header. Empty unless requested and valid.
	Header string `json:"header,omitempty"`
}

// FunctionInfo describes the outcome for one function.
type FunctionInfo struct {
	// Name is the function name.
	Name string `json:"name"`

	// Kind is "untyped", "trusted", "verified" or "entry".
	Kind string `json:"kind"`

	// Signature is the declared signature, e.g. "Timer<Disabled> -> Timer<Enabled>".
	Signature string `json:"signature,omitempty"`

	// Accepted is false when the function violated its signature.
	Accepted bool `json:"accepted"`

	// Code is the error kind of the violation, e.g. "TypestateViolation".
	Code string `json:"code,omitempty"`

	// Message describes the violation.
	Message string `json:"message,omitempty"`
}

// Check verifies peri source code.
func Check(source string, opts CheckOptions) CheckResult {
	filename := opts.Filename
	if filename == "" {
		filename = "input.peri"
	}

	checkOpts := checker.Options{
		Entries: opts.Entries,
		Strict:  opts.Strict,
		Workers: opts.Workers,
	}
	if opts.NoWarnings {
		checkOpts.Warnings = diagnostic.NewFilter()
		checkOpts.Warnings.DisableAll()
	}

	var boardErrors []string
	for _, b := range opts.Boards {
		decls, err := board.Exec(b.Name, []byte(b.Source))
		if err != nil {
			boardErrors = append(boardErrors, err.Error())
			continue
		}
		checkOpts.Peripherals = append(checkOpts.Peripherals, decls...)
	}
	if len(boardErrors) > 0 {
		return CheckResult{Errors: boardErrors}
	}

	result := checker.CheckSource(filename, source, checkOpts)
	apiResult := CheckResult{
		Valid:     result.Valid,
		Errors:    render(result.Diagnostics, result.Diagnostics.Errors()),
		Warnings:  render(result.Diagnostics, result.Diagnostics.Warnings()),
		Functions: convertOutcomes(result),
	}

	if opts.Header && result.Valid {
		header, err := cheader.Generate(result, cheader.Options{})
		if err != nil {
			apiResult.Errors = append(apiResult.Errors, err.Error())
			apiResult.Valid = false
		} else {
			apiResult.Header = header
		}
	}

	return apiResult
}

func render(list *diagnostic.List, diags []diagnostic.Diagnostic) []string {
	if len(diags) == 0 {
		return nil
	}
	out := make([]string, len(diags))
	for i := range diags {
		out[i] = list.FormatDiagnostic(&diags[i])
	}
	return out
}

// convertOutcomes converts per-function results to API types.
func convertOutcomes(result *checker.Result) []FunctionInfo {
	infos := make([]FunctionInfo, len(result.Outcomes))
	for i, o := range result.Outcomes {
		infos[i] = FunctionInfo{
			Name:      o.Function.Name,
			Kind:      o.Kind.String(),
			Signature: signature(o.Function.Decl),
			Accepted:  o.Accepted,
		}
		if o.Violation != nil {
			infos[i].Code = o.Violation.Code.Name()
			infos[i].Message = o.Violation.Message()
		}
	}
	return infos
}

func signature(decl *ast.FunctionDecl) string {
	if !decl.HasSignature() {
		return ""
	}
	return printer.FormatSignature(decl.Signature)
}
