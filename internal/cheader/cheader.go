// Package cheader emits a C header for a verified program.
//
// The header gives every peripheral state its own opaque handle type and
// every typestated function a prototype that consumes the precondition
// handles and returns the postcondition ones, so a C compiler enforces the
// same call order the checker proved.
package cheader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/checker"
	"github.com/aqibfaruqui/peri/internal/program"
	"github.com/aqibfaruqui/peri/internal/registry"
)

// ErrInvalid is returned for results that did not pass the checker.
var ErrInvalid = errors.New("cheader: program has errors")

// Options controls header output.
type Options struct {
	// Guard is the include guard macro. Empty derives it from the file name.
	Guard string
}

// Generate renders the header for a checked file.
func Generate(result *checker.Result, options Options) (string, error) {
	if !result.Valid || result.Program == nil {
		return "", ErrInvalid
	}

	g := &generator{reg: result.Registry, prog: result.Program}
	guard := options.Guard
	if guard == "" {
		guard = Guard(result.File.Name)
	}

	g.printf("/* Generated by peric from %s. Do not edit. */\n", filepath.Base(result.File.Name))
	g.printf("#ifndef %s\n#define %s\n\n", guard, guard)
	g.print("#include <stdint.h>\n")

	for _, p := range g.reg.All() {
		g.print("\n")
		g.printPeripheral(p)
	}

	var typed, plain []*program.Function
	for _, o := range result.Outcomes {
		if !o.Accepted {
			continue
		}
		if o.Function.Typed() {
			typed = append(typed, o.Function)
		} else {
			plain = append(plain, o.Function)
		}
	}

	if len(typed) > 0 {
		g.print("\n/* Typestated functions */\n")
		for _, fn := range typed {
			g.printTyped(fn)
		}
	}
	if len(plain) > 0 {
		g.print("\n")
		for _, fn := range plain {
			g.printf("%s %s(%s);\n", returnType(fn.Decl), fn.Name, g.params(fn, nil))
		}
	}

	g.printf("\n#endif /* %s */\n", guard)
	return g.buf.String(), nil
}

// Guard derives an include guard from a file name: "boards/boot.peri"
// becomes "BOOT_PERI_H".
func Guard(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "peri"
	}
	return macro(base) + "_H"
}

type generator struct {
	reg  *registry.Registry
	prog *program.Program
	buf  strings.Builder
}

func (g *generator) print(s string) {
	g.buf.WriteString(s)
}

func (g *generator) printf(format string, args ...any) {
	fmt.Fprintf(&g.buf, format, args...)
}

// ----------------------------------------------------------------------------
// Peripherals
// ----------------------------------------------------------------------------

func (g *generator) printPeripheral(p *registry.Peripheral) {
	name := macro(p.Name)
	g.printf("/* %s: %s, initially %s */\n", p.Name, strings.Join(p.States, ", "), p.StateName(p.Initial))
	g.printf("#define %s_BASE 0x%08Xu\n", name, p.Base)
	for _, r := range p.Registers {
		g.printf("#define %s_%s (*(volatile uint%d_t *)0x%08Xu)\n", name, macro(r.Name), r.Width, r.Address(p.Base))
	}
	for i := range p.States {
		handle := handleType(p, registry.StateID(i))
		g.printf("typedef struct %s_s *%s;\n", handle, handle)
	}
}

// handleType names the opaque handle of one state, e.g. "Timer_Enabled".
func handleType(p *registry.Peripheral, s registry.StateID) string {
	return p.Name + "_" + p.StateName(s)
}

// ----------------------------------------------------------------------------
// Functions
// ----------------------------------------------------------------------------

// printTyped declares a typestated function. A function with one
// peripheral and no return value returns its postcondition handle. Others
// return a struct holding one handle per peripheral and, when the function
// returns a value, that value.
func (g *generator) printTyped(fn *program.Function) {
	handles := g.handleNames(fn)
	params := g.params(fn, handles)
	value := returnsValue(fn.Decl.Body)

	g.printf("/* %s: %s */\n", fn.Name, strings.Join(lo.Map(fn.Signature, func(e program.Effect, _ int) string {
		return g.prog.FormatPre(e) + " -> " + g.prog.FormatPost(e)
	}), ", "))

	if len(fn.Signature) == 1 && !value {
		e := fn.Signature[0]
		g.printf("%s %s(%s);\n", handleType(g.reg.Peripheral(e.Peripheral), e.Post), fn.Name, params)
		return
	}

	result := fn.Name + "_result"
	g.print("typedef struct {\n")
	if value {
		g.print("    int32_t value;\n")
	}
	for i, e := range fn.Signature {
		g.printf("    %s %s;\n", handleType(g.reg.Peripheral(e.Peripheral), e.Post), handles[i])
	}
	g.printf("} %s;\n", result)
	g.printf("%s %s(%s);\n", result, fn.Name, params)
}

// params lists the declared parameters followed by one handle per
// precondition, named by handles.
func (g *generator) params(fn *program.Function, handles []string) string {
	parts := lo.Map(fn.Decl.Params, func(p ast.Param, _ int) string {
		return "int32_t " + p.Name.Name
	})
	for i, e := range fn.Signature[:len(handles)] {
		parts = append(parts, handleType(g.reg.Peripheral(e.Peripheral), e.Pre)+" "+handles[i])
	}
	if len(parts) == 0 {
		return "void"
	}
	return strings.Join(parts, ", ")
}

// handleNames names the handle of each signature peripheral, e.g.
// "timer_h". Names never collide with the function's parameters or with
// the result field "value".
func (g *generator) handleNames(fn *program.Function) []string {
	taken := lo.SliceToMap(fn.Decl.Params, func(p ast.Param) (string, bool) { return p.Name.Name, true })
	taken["value"] = true

	names := make([]string, len(fn.Signature))
	for i, e := range fn.Signature {
		name := strings.ToLower(g.reg.Peripheral(e.Peripheral).Name) + "_h"
		for taken[name] {
			name += "_"
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

// returnType is int32_t when any return statement carries a value.
func returnType(decl *ast.FunctionDecl) string {
	if returnsValue(decl.Body) {
		return "int32_t"
	}
	return "void"
}

func returnsValue(stmt ast.Stmt) bool {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		return lo.ContainsBy(s.Stmts, returnsValue)
	case *ast.IfStmt:
		return returnsValue(s.Body) || (s.Else != nil && returnsValue(s.Else))
	case *ast.WhileStmt:
		return returnsValue(s.Body)
	case *ast.ReturnStmt:
		return s.Value != nil
	}
	return false
}

// macro converts a name to an upper-case C macro name.
func macro(name string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return '_'
		}
		return unicode.ToUpper(r)
	}, name)
}
