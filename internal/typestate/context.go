package typestate

import (
	"cmp"
	"slices"
	"strings"

	"github.com/aqibfaruqui/peri/internal/registry"
)

// Entry is one tracked peripheral and its current state.
type Entry struct {
	Peripheral registry.PeripheralID
	State      registry.StateID
}

// Context is the symbolic peripheral state Σ at one program point.
//
// A Context is an immutable value: With returns a new Context and never
// modifies the receiver, so branches can share their entry context freely.
// Entries are kept sorted by peripheral ID.
type Context struct {
	entries []Entry
}

func compareEntry(e Entry, id registry.PeripheralID) int {
	return cmp.Compare(e.Peripheral, id)
}

// NewContext builds a context from entries. A later entry for the same
// peripheral replaces an earlier one.
func NewContext(entries ...Entry) Context {
	var c Context
	for _, e := range entries {
		c = c.With(e.Peripheral, e.State)
	}
	return c
}

// Len returns the number of tracked peripherals.
func (c Context) Len() int {
	return len(c.entries)
}

// Get returns the state of a peripheral and whether it is tracked.
func (c Context) Get(p registry.PeripheralID) (registry.StateID, bool) {
	i, ok := slices.BinarySearchFunc(c.entries, p, compareEntry)
	if !ok {
		return 0, false
	}
	return c.entries[i].State, true
}

// With returns a context where p is in state s.
func (c Context) With(p registry.PeripheralID, s registry.StateID) Context {
	i, ok := slices.BinarySearchFunc(c.entries, p, compareEntry)
	if ok {
		if c.entries[i].State == s {
			return c
		}
		next := slices.Clone(c.entries)
		next[i].State = s
		return Context{entries: next}
	}

	next := make([]Entry, 0, len(c.entries)+1)
	next = append(next, c.entries[:i]...)
	next = append(next, Entry{Peripheral: p, State: s})
	next = append(next, c.entries[i:]...)
	return Context{entries: next}
}

// Entries returns a copy of the tracked entries in peripheral order.
func (c Context) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Equal reports whether both contexts track the same peripherals in the
// same states.
func (c Context) Equal(other Context) bool {
	return slices.Equal(c.entries, other.entries)
}

// Disagreement is a peripheral on which two contexts differ. A side that
// does not track the peripheral has the matching Tracked flag unset.
type Disagreement struct {
	Peripheral                registry.PeripheralID
	Left, Right               registry.StateID
	LeftTracked, RightTracked bool
}

// Diff lists the peripherals on which c and other differ, in peripheral
// order.
func (c Context) Diff(other Context) []Disagreement {
	var out []Disagreement
	i, j := 0, 0
	for i < len(c.entries) || j < len(other.entries) {
		switch {
		case j >= len(other.entries) || (i < len(c.entries) && c.entries[i].Peripheral < other.entries[j].Peripheral):
			out = append(out, Disagreement{Peripheral: c.entries[i].Peripheral, Left: c.entries[i].State, LeftTracked: true})
			i++
		case i >= len(c.entries) || other.entries[j].Peripheral < c.entries[i].Peripheral:
			out = append(out, Disagreement{Peripheral: other.entries[j].Peripheral, Right: other.entries[j].State, RightTracked: true})
			j++
		default:
			if c.entries[i].State != other.entries[j].State {
				out = append(out, Disagreement{
					Peripheral:   c.entries[i].Peripheral,
					Left:         c.entries[i].State,
					Right:        other.entries[j].State,
					LeftTracked:  true,
					RightTracked: true,
				})
			}
			i++
			j++
		}
	}
	return out
}

// Format renders the context as "Timer<Enabled>, Led<Off>", or "{}" when
// nothing is tracked.
func (c Context) Format(reg *registry.Registry) string {
	if len(c.entries) == 0 {
		return "{}"
	}
	parts := make([]string, len(c.entries))
	for i, e := range c.entries {
		parts[i] = reg.Format(e.Peripheral, e.State)
	}
	return strings.Join(parts, ", ")
}
