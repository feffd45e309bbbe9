package checker

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/printer"
	"github.com/aqibfaruqui/peri/internal/typestate"
)

// Report renders every diagnostic in source order.
func (r *Result) Report() string {
	return r.Diagnostics.Format()
}

// Accepted returns the names of accepted functions in declaration order.
func (r *Result) Accepted() []string {
	return r.names(func(o *typestate.Result) bool { return o.Accepted })
}

// Rejected returns the names of rejected functions in declaration order.
func (r *Result) Rejected() []string {
	return r.names(func(o *typestate.Result) bool { return !o.Accepted })
}

func (r *Result) names(keep func(*typestate.Result) bool) []string {
	kept := lo.Filter(r.Outcomes, func(o *typestate.Result, _ int) bool { return keep(o) })
	return lo.Map(kept, func(o *typestate.Result, _ int) string { return o.Function.Name })
}

// Summary is a one-line count of the outcome, e.g.
// "4 functions: 1 verified, 2 trusted, 1 rejected; 1 warning".
func (r *Result) Summary() string {
	if len(r.Outcomes) == 0 {
		return fmt.Sprintf("not checked: %s", plural(r.Diagnostics.ErrorCount(), "error"))
	}

	var verified, trusted, rejected int
	for _, o := range r.Outcomes {
		switch {
		case !o.Accepted:
			rejected++
		case o.Kind.Checked():
			verified++
		case o.Function.Typed():
			trusted++
		}
	}

	s := fmt.Sprintf("%s: %d verified, %d trusted, %d rejected",
		plural(len(r.Outcomes), "function"), verified, trusted, rejected)
	if n := len(r.Diagnostics.Warnings()); n > 0 {
		s += "; " + plural(n, "warning")
	}
	return s
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// DumpStates prints the file's functions with the context after each
// statement of every walked body as a trailing comment.
func (r *Result) DumpStates() string {
	if r.Program == nil {
		return ""
	}

	snapshots := make(map[ast.Stmt]typestate.Snapshot)
	for _, o := range r.Outcomes {
		for stmt, snap := range o.Snapshots {
			snapshots[stmt] = snap
		}
	}

	p := printer.New(printer.Options{
		SkipPeripherals: true,
		Annotate: func(stmt ast.Stmt) string {
			snap, ok := snapshots[stmt]
			switch {
			case !ok:
				return ""
			case !snap.Live:
				return "unreachable"
			}
			return "Σ = " + snap.After.Format(r.Registry)
		},
	})

	var sb strings.Builder
	for _, o := range r.Outcomes {
		fmt.Fprintf(&sb, "// %s: %s\n", o.Function.Name, describe(o))
	}
	sb.WriteByte('\n')
	sb.WriteString(p.Print(r.File))
	return sb.String()
}

func describe(o *typestate.Result) string {
	if !o.Accepted {
		return o.Kind.String() + ", rejected"
	}
	return o.Kind.String()
}
