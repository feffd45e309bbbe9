package printer

import (
	"testing"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/parser"
	"github.com/aqibfaruqui/peri/internal/test"
)

// ----------------------------------------------------------------------------
// Test Helpers (esbuild-style)
// ----------------------------------------------------------------------------

func parse(t *testing.T, input string) *ast.File {
	t.Helper()
	file, errs := parser.Parse("test.peri", input)
	if len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return file
}

// expectPrinted verifies printed output with the given options.
func expectPrinted(t *testing.T, options Options, input string, expected string) {
	t.Helper()
	t.Run(input, func(t *testing.T) {
		t.Helper()
		actual := New(options).Print(parse(t, input))
		test.AssertEqualWithDiff(t, actual, expected)
	})
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func TestPeripheral(t *testing.T) {
	expectPrinted(t, Options{},
		"peripheral Timer at 0x4000_0000 { states: Disabled, Enabled; initial: Disabled; "+
			"registers u32 { CTRL at 0x0; COUNT at 0x4; } registers u8 { FLAGS at 0x8; } }",
		`peripheral Timer at 0x40000000 {
    states: Disabled, Enabled;
    initial: Disabled;
    registers u32 {
        CTRL at 0x00;
        COUNT at 0x04;
    }
    registers u8 {
        FLAGS at 0x08;
    }
}
`)

	expectPrinted(t, Options{},
		"peripheral Led { states: Off, On; initial: Off; }",
		`peripheral Led at 0x00000000 {
    states: Off, On;
    initial: Off;
}
`)
}

func TestDeclarationsSeparated(t *testing.T) {
	src := "peripheral Led { states: Off, On; initial: Off; }\n" +
		"fn turn_on() :: Led<Off> -> Led<On> { Led.OUT = 1; }\n" +
		"fn main() { turn_on(); }\n"

	expectPrinted(t, Options{}, src, `peripheral Led at 0x00000000 {
    states: Off, On;
    initial: Off;
}

fn turn_on() :: Led<Off> -> Led<On> {
    Led.OUT = 1;
}

fn main() {
    turn_on();
}
`)

	expectPrinted(t, Options{SkipPeripherals: true}, src, `fn turn_on() :: Led<Off> -> Led<On> {
    Led.OUT = 1;
}

fn main() {
    turn_on();
}
`)
}

func TestRoundTrip(t *testing.T) {
	src := `fn f(n: i32, m: i32) :: Timer<Enabled> -> Timer<Running>, Led<Off> -> Led<On> {
    let x = -n + (m << 2);
    while x > 0 && !done() {
        x = x - 1;
    }
    if x == 0 {
        start_timer();
    } else if x != 1 {
        start_timer();
    } else {
        start_timer();
    }
    {
        turn_on();
    }
    return ~x;
}
`
	first := New(Options{}).Print(parse(t, src))
	test.AssertEqualWithDiff(t, first, src)
	test.AssertEqualWithDiff(t, New(Options{}).Print(parse(t, first)), first)
}

// ----------------------------------------------------------------------------
// Annotations
// ----------------------------------------------------------------------------

func TestAnnotate(t *testing.T) {
	var seen []string
	options := Options{
		Annotate: func(stmt ast.Stmt) string {
			switch s := stmt.(type) {
			case *ast.CallStmt:
				seen = append(seen, s.Call.Callee.Name)
				return "after " + s.Call.Callee.Name
			case *ast.IfStmt:
				return "merged"
			}
			return ""
		},
	}

	expectPrinted(t, options, "fn f(c: i32) { a(); if c { b(); } else { d(); } let x = 1; }", `fn f(c: i32) {
    a(); // after a
    if c {
        b(); // after b
    } else {
        d(); // after d
    } // merged
    let x = 1;
}
`)
	test.AssertEqual(t, len(seen), 3)
	test.AssertEqual(t, seen[0]+seen[1]+seen[2], "abd")
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func TestFormatSignature(t *testing.T) {
	file := parse(t, "fn f() :: Timer<Disabled> -> Timer<Enabled>, Led<Off> -> Led<Off> { }")
	test.AssertEqual(t, FormatSignature(file.Functions[0].Signature),
		"Timer<Disabled> -> Timer<Enabled>, Led<Off> -> Led<Off>")
	test.AssertEqual(t, FormatSignature(nil), "")
}

func TestPrintExpr(t *testing.T) {
	expr := &ast.BinaryExpr{
		Op:   ast.BinOpOr,
		Left: &ast.RegisterRead{Peripheral: ast.Ident{Name: "Timer"}, Register: ast.Ident{Name: "CTRL"}},
		Right: &ast.CallExpr{
			Callee: ast.Ident{Name: "mask"},
			Args:   []ast.Expr{&ast.IntLit{Value: 4}, &ast.BoolLit{Value: true}},
		},
	}
	test.AssertEqual(t, PrintExpr(expr), "Timer.CTRL | mask(4, true)")
	test.AssertEqual(t, PrintExpr(&ast.IntLit{Value: 16, Raw: "0x10"}), "0x10")
}
