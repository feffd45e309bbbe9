// Package diagnostic provides error reporting for peri programs.
//
// Diagnostics carry a stable code, a source range and an optional function
// name, and render in a rustc-like block:
//
//	Error: Typestate violation in function 'boot_timer'
//	  --> boot.peri:12
//	    |
//	 12 |     start_timer();
//	    |     ^^^^^^^^^^^^^ expected Timer<Enabled>, found Timer<Disabled>
package diagnostic

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aqibfaruqui/peri/internal/source"
)

// Severity represents the severity level of a diagnostic.
type Severity uint8

const (
	// Error rejects the program (or the function it names).
	Error Severity = iota
	// Warning is a non-blocking issue.
	Warning
	// Note provides additional context for another diagnostic.
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Title returns the capitalized form used in rendered headers.
func (s Severity) Title() string {
	switch s {
	case Error:
		return "Error"
	case Warning:
		return "Warning"
	case Note:
		return "Note"
	default:
		return "Unknown"
	}
}

// Position represents a position in source code.
type Position struct {
	Offset int // Byte offset (0-based)
	Line   int // Line number (1-based)
	Column int // Column number (1-based)
}

// Range represents a range in source code.
type Range struct {
	Start Position
	End   Position
}

// Diagnostic represents a single diagnostic message.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Function string   // Function the diagnostic belongs to, if any
	Subject  string   // Named declaration for non-function diagnostics
	Message  string   // One-line message printed after the caret
	Range    Range    // Source location
	Notes    []string // Rendered as "= note: ..." lines
	Origin   string   // "file:line" for declarations without source text
}

// Title returns the header text, e.g. "Typestate violation in function 'f'".
func (d *Diagnostic) Title() string {
	title := d.Code.Title()
	switch {
	case d.Function != "":
		title += " in function '" + d.Function + "'"
	case d.Subject != "":
		title += " '" + d.Subject + "'"
	}
	return title
}

// Error returns a one-line form of the diagnostic.
func (d *Diagnostic) Error() string {
	if d.Origin != "" {
		return fmt.Sprintf("%s: %s: %s", d.Origin, d.Severity, d.Message)
	}
	return fmt.Sprintf("%d:%d: %s: %s", d.Range.Start.Line, d.Range.Start.Column, d.Severity, d.Message)
}

// Problem is a diagnostic reported by an analysis phase before it is placed
// in a List. It carries byte offsets instead of line/column positions.
type Problem struct {
	Severity Severity
	Code     Code
	Function string
	Subject  string
	Message  string
	Start    int
	End      int
	Notes    []string
	Origin   string
}

func (p *Problem) Error() string {
	if p.Origin != "" {
		return p.Origin + ": " + p.Message
	}
	return p.Message
}

// ----------------------------------------------------------------------------
// Diagnostic List
// ----------------------------------------------------------------------------

// List collects diagnostics for one source file.
type List struct {
	diagnostics []Diagnostic
	lineIndex   *source.LineIndex
	file        string
	hasErrors   bool
	filter      *Filter
}

// NewList creates a new diagnostic list for the given file and source.
func NewList(file, src string) *List {
	return &List{
		lineIndex: source.NewLineIndex(src),
		file:      file,
	}
}

// SetFilter installs a filter consulted by Add.
func (dl *List) SetFilter(f *Filter) {
	dl.filter = f
}

// Add adds a diagnostic to the list. Warnings disabled by the filter are
// dropped; errors never are.
func (dl *List) Add(d Diagnostic) {
	if d.Severity != Error && dl.filter.IsDisabled(d.Code) {
		return
	}
	dl.diagnostics = append(dl.diagnostics, d)
	if d.Severity == Error {
		dl.hasErrors = true
	}
}

// AddError adds an error diagnostic for a byte range.
func (dl *List) AddError(code Code, start, end int, message string) {
	dl.Add(Diagnostic{
		Severity: Error,
		Code:     code,
		Message:  message,
		Range:    dl.MakeRange(start, end),
	})
}

// AddProblem converts a Problem to a Diagnostic and adds it.
func (dl *List) AddProblem(p *Problem) {
	d := Diagnostic{
		Severity: p.Severity,
		Code:     p.Code,
		Function: p.Function,
		Subject:  p.Subject,
		Message:  p.Message,
		Notes:    p.Notes,
		Origin:   p.Origin,
	}
	if p.Origin == "" {
		d.Range = dl.MakeRange(p.Start, p.End)
	}
	dl.Add(d)
}

// MakePosition converts a byte offset to a Position.
func (dl *List) MakePosition(offset int) Position {
	line, col := dl.lineIndex.Position(offset)
	return Position{Offset: offset, Line: line, Column: col}
}

// MakeRange converts byte offsets to a Range.
func (dl *List) MakeRange(start, end int) Range {
	return Range{
		Start: dl.MakePosition(start),
		End:   dl.MakePosition(end),
	}
}

// HasErrors returns true if there are any error-level diagnostics.
func (dl *List) HasErrors() bool {
	return dl.hasErrors
}

// Diagnostics returns all collected diagnostics.
func (dl *List) Diagnostics() []Diagnostic {
	return dl.diagnostics
}

// Errors returns only error-level diagnostics.
func (dl *List) Errors() []Diagnostic {
	return dl.bySeverity(Error)
}

// Warnings returns only warning-level diagnostics.
func (dl *List) Warnings() []Diagnostic {
	return dl.bySeverity(Warning)
}

func (dl *List) bySeverity(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range dl.diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// ErrorCount returns the number of error-level diagnostics.
func (dl *List) ErrorCount() int {
	return len(dl.Errors())
}

// Sort orders diagnostics by source position, then function name, then
// code. Origin-only diagnostics sort first, by origin.
func (dl *List) Sort() {
	slices.SortStableFunc(dl.diagnostics, func(a, b Diagnostic) int {
		if c := cmp.Compare(a.Origin, b.Origin); c != 0 {
			if a.Origin == "" {
				return 1
			}
			if b.Origin == "" {
				return -1
			}
			return c
		}
		if c := cmp.Compare(a.Range.Start.Offset, b.Range.Start.Offset); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Function, b.Function); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
}

// ----------------------------------------------------------------------------
// Rendering
// ----------------------------------------------------------------------------

// Format renders all diagnostics, separated by blank lines.
func (dl *List) Format() string {
	blocks := make([]string, len(dl.diagnostics))
	for i := range dl.diagnostics {
		blocks[i] = dl.FormatDiagnostic(&dl.diagnostics[i])
	}
	return strings.Join(blocks, "\n")
}

// FormatDiagnostic renders a single diagnostic with its source excerpt.
func (dl *List) FormatDiagnostic(d *Diagnostic) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s: %s\n", d.Severity.Title(), d.Title())

	if d.Origin != "" {
		fmt.Fprintf(&sb, "  --> %s\n", d.Origin)
		fmt.Fprintf(&sb, "   = %s\n", d.Message)
		for _, note := range d.Notes {
			fmt.Fprintf(&sb, "   = note: %s\n", note)
		}
		return sb.String()
	}

	line := d.Range.Start.Line
	gutter := strings.Repeat(" ", len(strconv.Itoa(line))+2)

	fmt.Fprintf(&sb, "  --> %s:%d\n", dl.file, line)
	fmt.Fprintf(&sb, "%s|\n", gutter)
	fmt.Fprintf(&sb, " %d | %s\n", line, dl.lineIndex.LineText(line-1))

	// Spans past the end of the first line are clipped to it.
	endCol := d.Range.End.Column
	if d.Range.End.Line != line {
		endCol = dl.lineIndex.LineEnd(line-1) - (d.Range.Start.Offset - (d.Range.Start.Column - 1)) + 1
	}
	width := max(endCol-d.Range.Start.Column, 1)

	fmt.Fprintf(&sb, "%s| %s%s", gutter, strings.Repeat(" ", d.Range.Start.Column-1), strings.Repeat("^", width))
	if d.Message != "" {
		sb.WriteString(" ")
		sb.WriteString(d.Message)
	}
	sb.WriteByte('\n')

	for _, note := range d.Notes {
		fmt.Fprintf(&sb, "%s= note: %s\n", gutter, note)
	}

	return sb.String()
}

// ----------------------------------------------------------------------------
// Codes
// ----------------------------------------------------------------------------

// Code is a stable diagnostic code.
type Code string

const (
	// Syntax errors (E00xx)
	CodeSyntax Code = "E0001"

	// Registry errors (E01xx)
	CodeInvalidPeripheral   Code = "E0100"
	CodeMalformedState      Code = "E0101"
	CodeUnknownRegister     Code = "E0102"
	CodeUnknownPeripheral   Code = "E0103"
	CodeDuplicateTransition Code = "E0104"

	// Program model errors (E02xx)
	CodeUndefinedFunction Code = "E0200"
	CodeArityMismatch     Code = "E0201"
	CodeUndefinedVariable Code = "E0202"
	CodeDuplicateFunction Code = "E0203"

	// Classification errors (E03xx)
	CodeCircularTypestateDependency Code = "E0300"

	// Verification errors (E04xx)
	CodeTypestateViolation     Code = "E0400"
	CodeDivergentBranchEffect  Code = "E0401"
	CodeLoopEffectNotInvariant Code = "E0402"
	CodeUntrackedPeripheral    Code = "E0403"

	// Warnings (W05xx)
	CodeOpaqueTypestateCall Code = "W0500"
	CodeUnreachableCode     Code = "W0501"
)

var codeInfo = map[Code]struct{ name, title string }{
	CodeSyntax:                      {"SyntaxError", "Syntax error"},
	CodeInvalidPeripheral:           {"InvalidPeripheral", "Invalid peripheral"},
	CodeMalformedState:              {"MalformedState", "Malformed state"},
	CodeUnknownRegister:             {"UnknownRegister", "Unknown register"},
	CodeUnknownPeripheral:           {"UnknownPeripheral", "Unknown peripheral"},
	CodeDuplicateTransition:         {"DuplicateTransition", "Duplicate transition"},
	CodeUndefinedFunction:           {"UndefinedFunction", "Undefined function"},
	CodeArityMismatch:               {"ArityMismatch", "Arity mismatch"},
	CodeUndefinedVariable:           {"UndefinedVariable", "Undefined variable"},
	CodeDuplicateFunction:           {"DuplicateFunction", "Duplicate function"},
	CodeCircularTypestateDependency: {"CircularTypestateDependency", "Circular typestate dependency"},
	CodeTypestateViolation:          {"TypestateViolation", "Typestate violation"},
	CodeDivergentBranchEffect:       {"DivergentBranchEffect", "Divergent branch effect"},
	CodeLoopEffectNotInvariant:      {"LoopEffectNotInvariant", "Loop effect not invariant"},
	CodeUntrackedPeripheral:         {"UntrackedPeripheral", "Untracked peripheral"},
	CodeOpaqueTypestateCall:         {"OpaqueTypestateCall", "Opaque typestate call"},
	CodeUnreachableCode:             {"UnreachableCode", "Unreachable code"},
}

// Name returns the error kind name, e.g. "TypestateViolation".
func (c Code) Name() string {
	if info, ok := codeInfo[c]; ok {
		return info.name
	}
	return string(c)
}

// Title returns the human-readable kind, e.g. "Typestate violation".
func (c Code) Title() string {
	if info, ok := codeInfo[c]; ok {
		return info.title
	}
	return string(c)
}

// CodeByName resolves either a code ("W0501") or a kind name
// ("UnreachableCode").
func CodeByName(s string) (Code, bool) {
	if _, ok := codeInfo[Code(s)]; ok {
		return Code(s), true
	}
	for code, info := range codeInfo {
		if info.name == s {
			return code, true
		}
	}
	return "", false
}

// ----------------------------------------------------------------------------
// Filter
// ----------------------------------------------------------------------------

// Filter controls which warnings are reported.
type Filter struct {
	disabled map[Code]bool
	all      bool
}

// NewFilter creates a filter that reports everything.
func NewFilter() *Filter {
	return &Filter{disabled: make(map[Code]bool)}
}

// Disable turns off one warning code.
func (f *Filter) Disable(code Code) {
	f.disabled[code] = true
}

// DisableAll turns off every warning.
func (f *Filter) DisableAll() {
	f.all = true
}

// IsDisabled reports whether warnings with this code are dropped. A nil
// filter disables nothing.
func (f *Filter) IsDisabled(code Code) bool {
	if f == nil {
		return false
	}
	return f.all || f.disabled[code]
}
