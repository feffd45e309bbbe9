package typestate

import (
	"fmt"
	"strings"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
)

// Mismatch is one peripheral whose state differs from what was required.
// Expected and Actual are rendered as "P<S>"; Actual is empty when the
// peripheral is not tracked.
type Mismatch struct {
	Peripheral string
	Expected   string
	Actual     string
}

// Violation is the reason a function was rejected. Only the first
// violation in a function is reported.
type Violation struct {
	Code     diagnostic.Code
	Function string
	Range    ast.Range

	// Callee is set when the violation is at a call site.
	Callee string

	// AtReturn marks postcondition failures, at a return statement or at
	// the closing brace of the body.
	AtReturn bool

	Mismatches []Mismatch
	Notes      []string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s in function '%s': %s", v.Code.Title(), v.Function, v.Message())
}

// Message is the one-line description shown under the source excerpt.
func (v *Violation) Message() string {
	switch v.Code {
	case diagnostic.CodeDivergentBranchEffect:
		return "branches disagree: " + joinMismatches(v.Mismatches, func(m Mismatch) string {
			return fmt.Sprintf("then leaves %s, else leaves %s", orUntracked(m.Expected, m.Peripheral), orUntracked(m.Actual, m.Peripheral))
		})
	case diagnostic.CodeLoopEffectNotInvariant:
		return "loop body does not preserve state: " + joinMismatches(v.Mismatches, func(m Mismatch) string {
			return fmt.Sprintf("entered with %s, leaves %s", orUntracked(m.Expected, m.Peripheral), orUntracked(m.Actual, m.Peripheral))
		})
	case diagnostic.CodeUntrackedPeripheral:
		return joinMismatches(v.Mismatches, func(m Mismatch) string {
			return fmt.Sprintf("%s is not tracked here, but '%s' requires %s", m.Peripheral, v.Callee, m.Expected)
		})
	}
	return joinMismatches(v.Mismatches, func(m Mismatch) string {
		return fmt.Sprintf("expected %s, found %s", m.Expected, orUntracked(m.Actual, m.Peripheral))
	})
}

// Problem converts the violation into a diagnostic problem.
func (v *Violation) Problem() *diagnostic.Problem {
	return &diagnostic.Problem{
		Severity: diagnostic.Error,
		Code:     v.Code,
		Function: v.Function,
		Message:  v.Message(),
		Start:    int(v.Range.Loc.Start),
		End:      int(v.Range.End()),
		Notes:    v.Notes,
	}
}

func joinMismatches(ms []Mismatch, format func(Mismatch) string) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = format(m)
	}
	return strings.Join(parts, "; ")
}

func orUntracked(state, peripheral string) string {
	if state == "" {
		return peripheral + " untracked"
	}
	return state
}
