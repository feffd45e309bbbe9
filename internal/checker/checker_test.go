package checker

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/aqibfaruqui/peri/internal/callgraph"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/parser"
	"github.com/aqibfaruqui/peri/internal/test"
)

const timer = `peripheral Timer at 0x4000_0000 {
    states: Disabled, Enabled, Running;
    initial: Disabled;
}

fn enable_timer() :: Timer<Disabled> -> Timer<Enabled> { }
fn start_timer() :: Timer<Enabled> -> Timer<Running> { }
`

func check(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	return CheckSource("boot.peri", src, opts)
}

func TestReportFormat(t *testing.T) {
	r := check(t, timer+`
fn boot_timer() :: Timer<Disabled> -> Timer<Running> {
    start_timer();
    enable_timer();
}
`, DefaultOptions())

	test.AssertEqual(t, r.Valid, false)
	test.AssertEqualWithDiff(t, r.Report(), `Error: Typestate violation in function 'boot_timer'
  --> boot.peri:10
    |
 10 |     start_timer();
    |     ^^^^^^^^^^^^^ expected Timer<Enabled>, found Timer<Disabled>
    = note: 'start_timer' requires Timer<Enabled>
`)
}

func TestAcceptedProgram(t *testing.T) {
	r := check(t, timer+`
fn boot_timer() :: Timer<Disabled> -> Timer<Running> {
    enable_timer();
    start_timer();
}
fn main() { boot_timer(); }
`, DefaultOptions())

	test.AssertEqual(t, r.Valid, true)
	test.AssertEqual(t, r.Report(), "")
	test.AssertEqual(t, strings.Join(r.Accepted(), ","), "enable_timer,start_timer,boot_timer,main")
	test.AssertEqual(t, len(r.Rejected()), 0)
	test.AssertEqual(t, r.Summary(), "4 functions: 2 verified, 2 trusted, 0 rejected")

	main, ok := r.Outcome("main")
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, main.Kind, callgraph.Entry)
}

func TestIndependentFunctionsReportedTogether(t *testing.T) {
	r := check(t, timer+`
fn a() :: Timer<Disabled> -> Timer<Running> { start_timer(); }
fn b() :: Timer<Disabled> -> Timer<Enabled> { enable_timer(); }
fn c(n: i32) :: Timer<Enabled> -> Timer<Enabled> { if n { start_timer(); } }
`, DefaultOptions())

	test.AssertEqual(t, r.Valid, false)
	test.AssertEqual(t, strings.Join(r.Rejected(), ","), "a,c")
	test.AssertEqual(t, r.Diagnostics.ErrorCount(), 2)

	errs := r.Diagnostics.Errors()
	test.AssertEqual(t, errs[0].Function, "a")
	test.AssertEqual(t, errs[0].Code, diagnostic.CodeTypestateViolation)
	test.AssertEqual(t, errs[1].Function, "c")
	test.AssertEqual(t, errs[1].Code, diagnostic.CodeDivergentBranchEffect)
}

func TestRegistryErrorsHaltPipeline(t *testing.T) {
	r := check(t, `peripheral Led {
    states: Off, On;
    initial: Blinking;
}
fn f() :: Led<Off> -> Led<On> { }
`, DefaultOptions())

	test.AssertEqual(t, r.Valid, false)
	test.AssertEqual(t, r.Program == nil, true)
	test.AssertEqual(t, len(r.Outcomes), 0)
	test.AssertEqual(t, r.Diagnostics.Errors()[0].Code, diagnostic.CodeInvalidPeripheral)
	test.AssertEqual(t, r.Summary(), "not checked: 1 error")
}

func TestProgramErrorsHaltPipeline(t *testing.T) {
	r := check(t, timer+`
fn f() { missing(); }
fn g() :: Timer<Disabled> -> Timer<Running> { start_timer(); }
`, DefaultOptions())

	test.AssertEqual(t, r.Valid, false)
	test.AssertEqual(t, r.Graph == nil, true)
	test.AssertEqual(t, r.Diagnostics.ErrorCount(), 1)
	test.AssertEqual(t, r.Diagnostics.Errors()[0].Code, diagnostic.CodeUndefinedFunction)
}

func TestCircularDependencyHaltsPipeline(t *testing.T) {
	r := check(t, timer+`
fn a() :: Timer<Disabled> -> Timer<Enabled> { b(); }
fn b() :: Timer<Enabled> -> Timer<Disabled> { a(); }
`, DefaultOptions())

	test.AssertEqual(t, r.Valid, false)
	test.AssertEqual(t, len(r.Outcomes), 0)
	test.AssertEqual(t, r.Diagnostics.Errors()[0].Code, diagnostic.CodeCircularTypestateDependency)
}

func TestSyntaxErrors(t *testing.T) {
	r := check(t, "fn f() {\n  let = 1;\n}\n", DefaultOptions())
	test.AssertEqual(t, r.Valid, false)
	test.AssertEqual(t, r.Registry == nil, true)
	d := r.Diagnostics.Errors()[0]
	test.AssertEqual(t, d.Code, diagnostic.CodeSyntax)
	test.AssertEqual(t, d.Range.Start.Line, 2)
}

func TestWarningsAndFilter(t *testing.T) {
	src := timer + `
fn helper() { start_timer(); }
fn boot() :: Timer<Disabled> -> Timer<Enabled> {
    enable_timer();
    helper();
    return;
    start_timer();
}
`
	r := check(t, src, DefaultOptions())
	test.AssertEqual(t, r.Valid, true)
	warnings := r.Diagnostics.Warnings()
	test.AssertEqual(t, len(warnings), 2)
	test.AssertEqual(t, warnings[0].Code, diagnostic.CodeOpaqueTypestateCall)
	test.AssertEqual(t, warnings[1].Code, diagnostic.CodeUnreachableCode)
	test.AssertContains(t, r.Report(), "Warning: Opaque typestate call in function 'boot'")
	test.AssertEqual(t, r.Summary(), "4 functions: 1 verified, 2 trusted, 0 rejected; 2 warnings")

	opts := DefaultOptions()
	opts.Warnings = diagnostic.NewFilter()
	opts.Warnings.Disable(diagnostic.CodeUnreachableCode)
	r = check(t, src, opts)
	test.AssertEqual(t, len(r.Diagnostics.Warnings()), 1)

	opts.Warnings.DisableAll()
	r = check(t, src, opts)
	test.AssertEqual(t, len(r.Diagnostics.Warnings()), 0)
}

func TestStrictOption(t *testing.T) {
	src := `peripheral Led { states: Off, On; initial: Off; }
` + timer + `
fn turn_on() :: Led<Off> -> Led<On> { }
fn f() :: Timer<Disabled> -> Timer<Enabled> { enable_timer(); turn_on(); }
`
	test.AssertEqual(t, check(t, src, DefaultOptions()).Valid, true)

	opts := DefaultOptions()
	opts.Strict = true
	r := check(t, src, opts)
	test.AssertEqual(t, r.Valid, false)
	test.AssertEqual(t, r.Diagnostics.Errors()[0].Code, diagnostic.CodeUntrackedPeripheral)
}

func TestEntries(t *testing.T) {
	src := timer + `
fn main() { start_timer(); }
fn reset() { start_timer(); }
`
	r := check(t, src, DefaultOptions())
	test.AssertEqual(t, strings.Join(r.Rejected(), ","), "main")

	opts := DefaultOptions()
	opts.Entries = []string{"reset"}
	r = check(t, src, opts)
	test.AssertEqual(t, strings.Join(r.Rejected(), ","), "reset")

	opts.Entries = []string{}
	r = check(t, src, opts)
	test.AssertEqual(t, r.Valid, true)
}

func TestExternalPeripherals(t *testing.T) {
	board, errs := parser.Parse("board.peri", `peripheral Led at 0x5000_0000 { states: Off, On; initial: Off; }`)
	if len(errs) > 0 {
		t.Fatal(errs)
	}

	opts := DefaultOptions()
	opts.Peripherals = board.Peripherals
	r := check(t, timer+`
fn turn_on() :: Led<Off> -> Led<On> { }
fn main() { enable_timer(); turn_on(); }
`, opts)
	test.AssertEqual(t, r.Valid, true)
	led, ok := r.Registry.Lookup("Led")
	test.AssertEqual(t, ok, true)
	test.AssertEqual(t, led.Base, uint32(0x5000_0000))
}

func TestParallelRunsAreDeterministic(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(timer)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		sb.WriteString("fn " + name + "() :: Timer<Disabled> -> Timer<Running> { start_timer(); enable_timer(); }\n")
		sb.WriteString("fn " + name + "_ok() :: Timer<Disabled> -> Timer<Running> { enable_timer(); start_timer(); }\n")
	}
	sb.WriteString("fn main() { a_ok(); b(); }\n")
	src := sb.String()

	serial := DefaultOptions()
	serial.Workers = 1
	want := check(t, src, serial).Report()

	parallel := DefaultOptions()
	parallel.Workers = 8
	for i := 0; i < 10; i++ {
		test.AssertEqualWithDiff(t, check(t, src, parallel).Report(), want)
	}
	test.AssertEqual(t, strings.Count(want, "Error:"), 9)
}

func TestDumpStates(t *testing.T) {
	r := check(t, timer+`
fn main() {
    enable_timer();
    start_timer();
    return;
    enable_timer();
}
`, DefaultOptions())

	dump := r.DumpStates()
	test.AssertContains(t, dump, "// enable_timer: trusted\n")
	test.AssertContains(t, dump, "// main: entry\n")
	test.AssertContains(t, dump, `fn main() {
    enable_timer(); // Σ = Timer<Enabled>
    start_timer(); // Σ = Timer<Running>
    return; // Σ = Timer<Running>
    enable_timer(); // unreachable
}
`)
	test.AssertNotContains(t, dump, "peripheral Timer")
}

func TestLogsPhases(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	check(t, timer+"fn main() { enable_timer(); }\n", opts)

	out := buf.String()
	test.AssertContains(t, out, "msg=\"registry built\" peripherals=[Timer]")
	test.AssertContains(t, out, "msg=\"function accepted\" function=main kind=entry")
}
