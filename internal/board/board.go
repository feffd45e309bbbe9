// Package board loads peripheral declarations from Starlark board scripts.
//
// A board script describes the peripherals of one device. It can compute
// addresses and generate families of peripherals with loops:
//
//	for i in range(2):
//	    peripheral(name = "Uart%d" % i, base = 0x40001000 + i * 0x100,
//	               states = ["Off", "On"], initial = "Off",
//	               registers = [register("DATA", 0x0), register("STAT", 0x4, 8)])
//
// Scripts only build declarations. Whether a declaration is valid is
// decided by the registry, which reports problems at the script position
// recorded in each declaration's Origin.
package board

import (
	"fmt"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/aqibfaruqui/peri/internal/ast"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Load reads and runs a board script.
func Load(path string) ([]*ast.PeripheralDecl, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Exec(path, src)
}

// Exec runs board script source and returns the declared peripherals in
// call order.
func Exec(filename string, src []byte) ([]*ast.PeripheralDecl, error) {
	b := &builder{}
	thread := &starlark.Thread{
		Name: "board " + filename,
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts have no output channel.
		},
	}
	predeclared := starlark.StringDict{
		"peripheral": starlark.NewBuiltin("peripheral", b.peripheral),
		"register":   starlark.NewBuiltin("register", makeRegister),
	}

	if _, err := starlark.ExecFileOptions(fileOptions, thread, filename, src, predeclared); err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return nil, fmt.Errorf("board %s: %s", filename, evalErr.Backtrace())
		}
		return nil, fmt.Errorf("board %s: %w", filename, err)
	}
	return b.decls, nil
}

type builder struct {
	decls []*ast.PeripheralDecl
}

// peripheral(name, base, states, initial, registers=[])
func (b *builder) peripheral(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name      string
		base      starlark.Int
		states    *starlark.List
		initial   string
		registers *starlark.List
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name", &name,
		"base", &base,
		"states", &states,
		"initial", &initial,
		"registers?", &registers,
	); err != nil {
		return nil, err
	}

	addr, ok := base.Uint64()
	if !ok || addr > 0xFFFF_FFFF {
		return nil, fmt.Errorf("%s: base %s of %s does not fit in 32 bits", fn.Name(), base, name)
	}

	decl := &ast.PeripheralDecl{
		Name:    ast.Ident{Name: name},
		Base:    uint32(addr),
		Initial: ast.Ident{Name: initial},
		Origin:  origin(thread),
	}

	for i := range states.Len() {
		s, ok := starlark.AsString(states.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: states[%d] is %s, want string", fn.Name(), i, states.Index(i).Type())
		}
		decl.States = append(decl.States, ast.Ident{Name: s})
	}

	if registers != nil {
		for i := range registers.Len() {
			r, ok := registers.Index(i).(*Register)
			if !ok {
				return nil, fmt.Errorf("%s: registers[%d] is %s, want register", fn.Name(), i, registers.Index(i).Type())
			}
			decl.Registers = append(decl.Registers, r.decl)
		}
	}

	b.decls = append(b.decls, decl)
	return starlark.None, nil
}

// origin is the script position of the builtin's caller.
func origin(thread *starlark.Thread) string {
	pos := thread.CallFrame(1).Pos
	return fmt.Sprintf("%s:%d", pos.Filename(), pos.Line)
}

// ----------------------------------------------------------------------------
// Registers
// ----------------------------------------------------------------------------

// Register is the Starlark value returned by register().
type Register struct {
	decl ast.RegisterDecl
}

var _ starlark.Value = (*Register)(nil)

func (r *Register) String() string {
	return fmt.Sprintf("register(%q, 0x%02x, %d)", r.decl.Name.Name, r.decl.Offset, r.decl.Width)
}
func (r *Register) Type() string         { return "register" }
func (r *Register) Freeze()              {}
func (r *Register) Truth() starlark.Bool { return starlark.True }
func (r *Register) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: register")
}

// register(name, offset, width=32)
func makeRegister(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name   string
		offset starlark.Int
		width  = 32
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs,
		"name", &name,
		"offset", &offset,
		"width?", &width,
	); err != nil {
		return nil, err
	}

	off, ok := offset.Uint64()
	if !ok || off > 0xFFFF_FFFF {
		return nil, fmt.Errorf("%s: offset %s of %s does not fit in 32 bits", fn.Name(), offset, name)
	}
	switch width {
	case 8, 16, 32:
	default:
		return nil, fmt.Errorf("%s: width of %s must be 8, 16 or 32, got %d", fn.Name(), name, width)
	}

	return &Register{decl: ast.RegisterDecl{
		Name:   ast.Ident{Name: name},
		Offset: uint32(off),
		Width:  uint8(width),
	}}, nil
}
