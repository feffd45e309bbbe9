// Package registry holds the declared shape of every peripheral.
//
// The registry is built once from the peripheral declarations (source and
// board scripts alike) and is read-only afterwards. Peripheral and state
// names are interned to small integer IDs here so later phases compare
// integers, never strings.
package registry

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/aqibfaruqui/peri/internal/ast"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
)

// PeripheralID indexes a peripheral in the registry.
type PeripheralID uint16

// StateID indexes a state within one peripheral's declared state list.
type StateID uint16

// Register is a memory-mapped register.
type Register struct {
	Name   string
	Offset uint32
	Width  uint8
}

// Address returns the absolute address of the register.
func (r Register) Address(base uint32) uint32 {
	return base + r.Offset
}

// Peripheral is a validated peripheral declaration.
type Peripheral struct {
	ID        PeripheralID
	Name      string
	Base      uint32
	States    []string
	Initial   StateID
	Registers []Register
	Decl      *ast.PeripheralDecl

	stateIndex map[string]StateID
	regIndex   map[string]int
}

// State looks up a state by name.
func (p *Peripheral) State(name string) (StateID, bool) {
	id, ok := p.stateIndex[name]
	return id, ok
}

// StateName returns the name of a state.
func (p *Peripheral) StateName(id StateID) string {
	if int(id) < len(p.States) {
		return p.States[id]
	}
	return fmt.Sprintf("?%d", id)
}

// Register looks up a register by name.
func (p *Peripheral) Register(name string) (Register, bool) {
	i, ok := p.regIndex[name]
	if !ok {
		return Register{}, false
	}
	return p.Registers[i], true
}

// Format renders "Name<State>".
func (p *Peripheral) Format(state StateID) string {
	return p.Name + "<" + p.StateName(state) + ">"
}

// Registry maps peripheral names to their declarations.
type Registry struct {
	peripherals []*Peripheral
	byName      map[string]PeripheralID
}

// Build validates the declarations and builds a registry. Every invalid
// declaration is reported; an invalid peripheral is left out of the result.
func Build(decls []*ast.PeripheralDecl) (*Registry, []*diagnostic.Problem) {
	r := &Registry{byName: make(map[string]PeripheralID)}
	var problems []*diagnostic.Problem

	for _, decl := range decls {
		if _, dup := r.byName[decl.Name.Name]; dup {
			problems = append(problems, invalid(decl, decl.Name.Range,
				fmt.Sprintf("peripheral '%s' is declared more than once", decl.Name.Name)))
			continue
		}

		p, errs := validate(decl)
		problems = append(problems, errs...)
		if len(errs) > 0 {
			continue
		}

		p.ID = PeripheralID(len(r.peripherals))
		r.peripherals = append(r.peripherals, p)
		r.byName[p.Name] = p.ID
	}

	return r, problems
}

func validate(decl *ast.PeripheralDecl) (*Peripheral, []*diagnostic.Problem) {
	var problems []*diagnostic.Problem
	p := &Peripheral{
		Name:       decl.Name.Name,
		Base:       decl.Base,
		Decl:       decl,
		stateIndex: make(map[string]StateID, len(decl.States)),
		regIndex:   make(map[string]int, len(decl.Registers)),
	}

	if len(decl.States) == 0 {
		problems = append(problems, invalid(decl, decl.Name.Range, "no states are declared"))
	}

	for _, s := range decl.States {
		if _, dup := p.stateIndex[s.Name]; dup {
			problems = append(problems, invalid(decl, s.Range,
				fmt.Sprintf("state '%s' is declared more than once", s.Name)))
			continue
		}
		p.stateIndex[s.Name] = StateID(len(p.States))
		p.States = append(p.States, s.Name)
	}

	if id, ok := p.stateIndex[decl.Initial.Name]; ok {
		p.Initial = id
	} else if len(decl.States) > 0 {
		problems = append(problems, invalid(decl, decl.Initial.Range,
			fmt.Sprintf("initial state '%s' is not one of %s", decl.Initial.Name, formatStates(p.States))))
	}

	offsets := make(map[uint32]string, len(decl.Registers))
	for _, reg := range decl.Registers {
		switch reg.Width {
		case 8, 16, 32:
		default:
			problems = append(problems, invalid(decl, reg.Name.Range,
				fmt.Sprintf("register '%s' has width %d; expected 8, 16 or 32", reg.Name.Name, reg.Width)))
			continue
		}
		if _, dup := p.regIndex[reg.Name.Name]; dup {
			problems = append(problems, invalid(decl, reg.Name.Range,
				fmt.Sprintf("register '%s' is declared more than once", reg.Name.Name)))
			continue
		}
		if other, dup := offsets[reg.Offset]; dup {
			problems = append(problems, invalid(decl, reg.Name.Range,
				fmt.Sprintf("register '%s' at offset 0x%02X collides with '%s'", reg.Name.Name, reg.Offset, other)))
			continue
		}
		offsets[reg.Offset] = reg.Name.Name
		p.regIndex[reg.Name.Name] = len(p.Registers)
		p.Registers = append(p.Registers, Register{Name: reg.Name.Name, Offset: reg.Offset, Width: reg.Width})
	}

	return p, problems
}

func invalid(decl *ast.PeripheralDecl, at ast.Range, msg string) *diagnostic.Problem {
	return &diagnostic.Problem{
		Code:    diagnostic.CodeInvalidPeripheral,
		Subject: decl.Name.Name,
		Message: msg,
		Start:   int(at.Loc.Start),
		End:     int(at.End()),
		Origin:  decl.Origin,
	}
}

func formatStates(states []string) string {
	quoted := lo.Map(states, func(s string, _ int) string { return "'" + s + "'" })
	return "{" + strings.Join(quoted, ", ") + "}"
}

// ----------------------------------------------------------------------------
// Lookup
// ----------------------------------------------------------------------------

// Len returns the number of registered peripherals.
func (r *Registry) Len() int {
	return len(r.peripherals)
}

// All returns the peripherals in declaration order.
func (r *Registry) All() []*Peripheral {
	return r.peripherals
}

// Names returns the peripheral names in declaration order.
func (r *Registry) Names() []string {
	return lo.Map(r.peripherals, func(p *Peripheral, _ int) string { return p.Name })
}

// Lookup finds a peripheral by name.
func (r *Registry) Lookup(name string) (*Peripheral, bool) {
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.peripherals[id], true
}

// Peripheral returns the peripheral with the given ID.
func (r *Registry) Peripheral(id PeripheralID) *Peripheral {
	return r.peripherals[id]
}

// Format renders "Name<State>" for an interned pair.
func (r *Registry) Format(id PeripheralID, state StateID) string {
	return r.peripherals[id].Format(state)
}

// ResolveState interns a P<S> reference. It reports UnknownPeripheral when
// P is not registered and MalformedState when S is not one of P's states.
func (r *Registry) ResolveState(periph, state ast.Ident) (PeripheralID, StateID, *diagnostic.Problem) {
	p, ok := r.Lookup(periph.Name)
	if !ok {
		return 0, 0, &diagnostic.Problem{
			Code:    diagnostic.CodeUnknownPeripheral,
			Message: fmt.Sprintf("no peripheral named '%s'", periph.Name),
			Start:   int(periph.Range.Loc.Start),
			End:     int(periph.Range.End()),
		}
	}
	s, ok := p.State(state.Name)
	if !ok {
		return 0, 0, &diagnostic.Problem{
			Code:    diagnostic.CodeMalformedState,
			Message: fmt.Sprintf("'%s' is not a state of %s", state.Name, p.Name),
			Start:   int(state.Range.Loc.Start),
			End:     int(state.Range.End()),
			Notes:   []string{fmt.Sprintf("%s declares states %s", p.Name, formatStates(p.States))},
		}
	}
	return p.ID, s, nil
}

// ResolveRegister checks a P.REG access. It reports UnknownPeripheral or
// UnknownRegister.
func (r *Registry) ResolveRegister(periph, reg ast.Ident) (*Peripheral, Register, *diagnostic.Problem) {
	p, ok := r.Lookup(periph.Name)
	if !ok {
		return nil, Register{}, &diagnostic.Problem{
			Code:    diagnostic.CodeUnknownPeripheral,
			Message: fmt.Sprintf("no peripheral named '%s'", periph.Name),
			Start:   int(periph.Range.Loc.Start),
			End:     int(periph.Range.End()),
		}
	}
	rg, ok := p.Register(reg.Name)
	if !ok {
		return p, Register{}, &diagnostic.Problem{
			Code:    diagnostic.CodeUnknownRegister,
			Message: fmt.Sprintf("%s has no register named '%s'", p.Name, reg.Name),
			Start:   int(reg.Range.Loc.Start),
			End:     int(reg.Range.End()),
		}
	}
	return p, rg, nil
}
