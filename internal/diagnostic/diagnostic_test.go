package diagnostic

import (
	"strings"
	"testing"

	"github.com/aqibfaruqui/peri/internal/test"
)

const bootSource = `fn boot_timer() :: Timer<Disabled> -> Timer<Running> {
    start_timer();
    enable_timer();
}
`

func TestFormatTypestateViolation(t *testing.T) {
	dl := NewList("boot.peri", bootSource)
	start := strings.Index(bootSource, "start_timer")
	dl.Add(Diagnostic{
		Severity: Error,
		Code:     CodeTypestateViolation,
		Function: "boot_timer",
		Message:  "expected Timer<Enabled>, found Timer<Disabled>",
		Range:    dl.MakeRange(start, start+len("start_timer()")),
	})

	expected := `Error: Typestate violation in function 'boot_timer'
  --> boot.peri:2
   |
 2 |     start_timer();
   |     ^^^^^^^^^^^^^ expected Timer<Enabled>, found Timer<Disabled>
`
	test.AssertEqualWithDiff(t, dl.Format(), expected)
}

func TestGutterFollowsLineNumberWidth(t *testing.T) {
	src := strings.Repeat("\n", 11) + "    start_timer();\n"
	dl := NewList("boot.peri", src)
	start := strings.Index(src, "start_timer")
	dl.Add(Diagnostic{
		Severity: Error,
		Code:     CodeTypestateViolation,
		Function: "boot_timer",
		Message:  "expected Timer<Enabled>, found Timer<Disabled>",
		Range:    dl.MakeRange(start, start+13),
		Notes:    []string{"'start_timer' requires Timer<Enabled>"},
	})

	expected := `Error: Typestate violation in function 'boot_timer'
  --> boot.peri:12
    |
 12 |     start_timer();
    |     ^^^^^^^^^^^^^ expected Timer<Enabled>, found Timer<Disabled>
    = note: 'start_timer' requires Timer<Enabled>
`
	test.AssertEqualWithDiff(t, dl.Format(), expected)
}

func TestMultiLineSpanIsClipped(t *testing.T) {
	src := "fn f() {\n    if c {\n        a();\n    }\n}\n"
	dl := NewList("f.peri", src)
	start := strings.Index(src, "if")
	dl.AddError(CodeDivergentBranchEffect, start, len(src)-2, "branches disagree")

	out := dl.Format()
	test.AssertContains(t, out, "   |     ^^^^^^ branches disagree\n")
}

func TestFormatOriginWithoutExcerpt(t *testing.T) {
	dl := NewList("main.peri", "")
	dl.Add(Diagnostic{
		Severity: Error,
		Code:     CodeInvalidPeripheral,
		Subject:  "Uart0",
		Message:  "initial state 'Idle' is not declared",
		Origin:   "board.star:7",
	})

	expected := `Error: Invalid peripheral 'Uart0'
  --> board.star:7
   = initial state 'Idle' is not declared
`
	test.AssertEqualWithDiff(t, dl.Format(), expected)
}

func TestSortByPositionThenFunction(t *testing.T) {
	src := "a\nb\nc\n"
	dl := NewList("x.peri", src)
	dl.Add(Diagnostic{Severity: Error, Code: CodeTypestateViolation, Function: "z", Range: dl.MakeRange(4, 5)})
	dl.Add(Diagnostic{Severity: Error, Code: CodeTypestateViolation, Function: "b", Range: dl.MakeRange(0, 1)})
	dl.Add(Diagnostic{Severity: Error, Code: CodeTypestateViolation, Function: "a", Range: dl.MakeRange(0, 1)})
	dl.Add(Diagnostic{Severity: Error, Code: CodeInvalidPeripheral, Origin: "board.star:1"})
	dl.Sort()

	got := dl.Diagnostics()
	test.AssertEqual(t, got[0].Origin, "board.star:1")
	test.AssertEqual(t, got[1].Function, "a")
	test.AssertEqual(t, got[2].Function, "b")
	test.AssertEqual(t, got[3].Function, "z")
}

func TestFilterDropsWarningsOnly(t *testing.T) {
	dl := NewList("x.peri", "fn f() {}")
	f := NewFilter()
	f.Disable(CodeUnreachableCode)
	dl.SetFilter(f)

	dl.Add(Diagnostic{Severity: Warning, Code: CodeUnreachableCode})
	dl.Add(Diagnostic{Severity: Warning, Code: CodeOpaqueTypestateCall})
	dl.Add(Diagnostic{Severity: Error, Code: CodeUnreachableCode})

	test.AssertEqual(t, len(dl.Warnings()), 1)
	test.AssertEqual(t, len(dl.Errors()), 1)
	test.AssertEqual(t, dl.HasErrors(), true)

	f.DisableAll()
	dl.Add(Diagnostic{Severity: Warning, Code: CodeOpaqueTypestateCall})
	test.AssertEqual(t, len(dl.Warnings()), 1)
}

func TestCodeNames(t *testing.T) {
	test.AssertEqual(t, CodeLoopEffectNotInvariant.Name(), "LoopEffectNotInvariant")
	test.AssertEqual(t, CodeLoopEffectNotInvariant.Title(), "Loop effect not invariant")

	code, ok := CodeByName("UnreachableCode")
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, code, CodeUnreachableCode)

	code, ok = CodeByName("E0300")
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, code, CodeCircularTypestateDependency)

	_, ok = CodeByName("Nope")
	test.AssertEqual(t, ok, false)
}

func TestDiagnosticError(t *testing.T) {
	dl := NewList("x.peri", "fn f() {\n  g();\n}")
	d := Diagnostic{Severity: Error, Message: "boom", Range: dl.MakeRange(11, 14)}
	test.AssertEqual(t, d.Error(), "2:3: error: boom")

	d = Diagnostic{Severity: Warning, Message: "odd", Origin: "b.star:3"}
	test.AssertEqual(t, d.Error(), "b.star:3: warning: odd")
}

func TestAddProblem(t *testing.T) {
	src := "fn f() {\n    g();\n}\n"
	dl := NewList("f.peri", src)
	dl.AddProblem(&Problem{
		Code:     CodeUndefinedFunction,
		Function: "f",
		Message:  "no function named 'g'",
		Start:    13,
		End:      16,
	})
	dl.AddProblem(&Problem{
		Severity: Warning,
		Code:     CodeUnreachableCode,
		Message:  "never runs",
		Origin:   "board.star:2",
	})

	test.AssertEqual(t, dl.ErrorCount(), 1)
	d := dl.Errors()[0]
	test.AssertEqual(t, d.Range.Start.Line, 2)
	test.AssertEqual(t, d.Range.Start.Column, 5)
	test.AssertEqual(t, d.Range.End.Column, 8)
	test.AssertEqual(t, dl.Warnings()[0].Range, Range{})

	p := &Problem{Message: "bad", Origin: "b.star:1"}
	test.AssertEqual(t, p.Error(), "b.star:1: bad")
}
