package program

import (
	"strings"
	"testing"

	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/parser"
	"github.com/aqibfaruqui/peri/internal/registry"
	"github.com/aqibfaruqui/peri/internal/test"
)

const prelude = `peripheral Timer at 0x4000_0000 {
    states: Disabled, Enabled, Running;
    initial: Disabled;
    registers u32 { CTRL at 0x00; COUNT at 0x04; }
}
peripheral Led at 0x4000_1000 {
    states: Off, On;
    initial: Off;
}
`

func build(t *testing.T, src string) (*Program, []*diagnostic.Problem) {
	t.Helper()
	file, errs := parser.Parse("test.peri", prelude+src)
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	reg, problems := registry.Build(file.Peripherals)
	if len(problems) > 0 {
		t.Fatalf("registry problems: %v", problems)
	}
	return Build(file, reg)
}

func mustBuild(t *testing.T, src string) *Program {
	t.Helper()
	prog, problems := build(t, src)
	if len(problems) > 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
	return prog
}

// expectProblem verifies that building src reports code with a message
// containing substring, attributed to function fn.
func expectProblem(t *testing.T, src string, code diagnostic.Code, fn string, substring string) {
	t.Helper()
	t.Run(code.Name()+"/"+substring, func(t *testing.T) {
		t.Helper()
		_, problems := build(t, src)
		for _, p := range problems {
			if p.Code == code && p.Function == fn && strings.Contains(p.Message, substring) {
				return
			}
		}
		t.Errorf("expected %s in %s containing %q, got %v", code.Name(), fn, substring, problems)
	})
}

func TestBuildResolvesSignatures(t *testing.T) {
	prog := mustBuild(t, `
fn enable_timer() :: Timer<Disabled> -> Timer<Enabled> { Timer.CTRL = 1; }
fn boot() :: Led<Off> -> Led<On>, Timer<Disabled> -> Timer<Running> { enable_timer(); }
fn helper(a: i32) { }
`)

	test.AssertEqual(t, prog.Len(), 3)

	boot, ok := prog.Lookup("boot")
	if !ok {
		t.Fatal("boot not found")
	}
	test.AssertEqual(t, boot.Typed(), true)
	test.AssertEqual(t, len(boot.Signature), 2)

	// Sorted by peripheral ID: Timer (0) before Led (1)
	test.AssertEqual(t, prog.FormatPre(boot.Signature[0]), "Timer<Disabled>")
	test.AssertEqual(t, prog.FormatPost(boot.Signature[0]), "Timer<Running>")
	test.AssertEqual(t, prog.FormatPost(boot.Signature[1]), "Led<On>")

	helper, _ := prog.Lookup("helper")
	test.AssertEqual(t, helper.Typed(), false)
}

func TestBuildResolvesCalls(t *testing.T) {
	prog := mustBuild(t, `
fn a(x: i32) { }
fn b() { }
fn main() {
    let v = 1;
    if v > 0 { a(b()); }
    while v < 3 { v = v + 1; b(); }
}
`)

	main, _ := prog.Lookup("main")
	names := make([]string, len(main.Calls))
	for i, c := range main.Calls {
		names[i] = prog.Function(c.Callee).Name
		callee, ok := prog.Callee(c.Expr)
		test.AssertEqual(t, ok, true)
		test.AssertEqual(t, callee.ID, c.Callee)
	}
	// Arguments are evaluated before the call that consumes them.
	test.AssertEqual(t, strings.Join(names, ","), "b,a,b")
}

func TestDuplicateFunction(t *testing.T) {
	expectProblem(t, "fn f() {}\nfn f() {}", diagnostic.CodeDuplicateFunction, "f", "'f' is already defined")

	_, problems := build(t, "fn f() {}\nfn f() {}")
	test.AssertContains(t, problems[0].Notes[0], "first definition is on line 10")
}

func TestUndefinedFunction(t *testing.T) {
	expectProblem(t, "fn f() { missing(); }", diagnostic.CodeUndefinedFunction, "f", "no function named 'missing'")
	expectProblem(t, "fn f() { let x = missing(); }", diagnostic.CodeUndefinedFunction, "f", "missing")
}

func TestArityMismatch(t *testing.T) {
	expectProblem(t, "fn g(a: i32) {}\nfn f() { g(); }", diagnostic.CodeArityMismatch, "f",
		"'g' takes 1 argument but 0 were given")
	expectProblem(t, "fn g() {}\nfn f() { g(1, 2); }", diagnostic.CodeArityMismatch, "f",
		"'g' takes 0 arguments but 2 were given")
	expectProblem(t, "fn g(a: i32, b: i32) {}\nfn f() { g(1); }", diagnostic.CodeArityMismatch, "f",
		"'g' takes 2 arguments but 1 was given")
}

func TestUndefinedVariable(t *testing.T) {
	expectProblem(t, "fn f() { x = 1; }", diagnostic.CodeUndefinedVariable, "f", "assignment to undeclared variable 'x'")
	expectProblem(t, "fn f() { let y = x; }", diagnostic.CodeUndefinedVariable, "f", "use of undeclared variable 'x'")
	expectProblem(t, "fn f() { let x = x; }", diagnostic.CodeUndefinedVariable, "f", "'x'")

	// Branch-local variables do not escape their block.
	expectProblem(t, "fn f(c: i32) { if c { let t = 1; } let u = t; }", diagnostic.CodeUndefinedVariable, "f", "'t'")
	expectProblem(t, "fn f(c: i32) { while c { let t = 1; } c = t; }", diagnostic.CodeUndefinedVariable, "f", "'t'")
}

func TestScopingAccepts(t *testing.T) {
	mustBuild(t, `
fn f(n: i32) {
    let total = 0;
    while n > 0 {
        let step = n;
        total = total + step;
        n = n - 1;
    }
    if total { let t = total; total = t; } else { let t = 0; total = t; }
    Timer.CTRL = total;
}
`)
}

func TestSignatureProblems(t *testing.T) {
	expectProblem(t, "fn f() :: Adc<Off> -> Adc<On> {}", diagnostic.CodeUnknownPeripheral, "f", "no peripheral named 'Adc'")
	expectProblem(t, "fn f() :: Led<Off> -> Led<Blinking> {}", diagnostic.CodeMalformedState, "f", "'Blinking' is not a state of Led")
	expectProblem(t, "fn f() :: Led<Dim> -> Led<On> {}", diagnostic.CodeMalformedState, "f", "'Dim' is not a state of Led")
	expectProblem(t, "fn f() :: Led<Off> -> Led<On>, Led<On> -> Led<Off> {}", diagnostic.CodeDuplicateTransition, "f",
		"Led appears more than once in the signature")
}

func TestRegisterProblems(t *testing.T) {
	expectProblem(t, "fn f() { Timer.STATUS = 1; }", diagnostic.CodeUnknownRegister, "f", "Timer has no register named 'STATUS'")
	expectProblem(t, "fn f() { let v = Led.OUT; }", diagnostic.CodeUnknownRegister, "f", "Led has no register named 'OUT'")
	expectProblem(t, "fn f() { Gpio.OUT = 1; }", diagnostic.CodeUnknownPeripheral, "f", "no peripheral named 'Gpio'")
}
