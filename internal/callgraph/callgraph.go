// Package callgraph classifies functions as trusted or verified.
//
// A typestated function whose body calls no other typestated function is
// trusted: its signature is an axiom. One that calls a typestated function
// is verified: its body must be walked. Classification runs over the
// strongly connected components of the call graph so that recursion
// terminates, and a component holding more than one typestated function is
// rejected because neither member's body can be checked first.
package callgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/program"
)

// Kind is the verification treatment of a function.
type Kind uint8

const (
	// Untyped functions have no signature and are opaque to callers.
	Untyped Kind = iota
	// Trusted functions are accepted on their declared signature.
	Trusted
	// Verified functions have their body checked against their signature.
	Verified
	// Entry functions have no signature; their body is checked from every
	// peripheral's initial state.
	Entry
)

func (k Kind) String() string {
	switch k {
	case Untyped:
		return "untyped"
	case Trusted:
		return "trusted"
	case Verified:
		return "verified"
	case Entry:
		return "entry"
	}
	return "unknown"
}

// Checked reports whether bodies of this kind are walked.
func (k Kind) Checked() bool {
	return k == Verified || k == Entry
}

// Graph is the classified call graph.
type Graph struct {
	prog  *program.Program
	succ  [][]program.FuncID
	kinds []Kind

	// Components in reverse topological order: callees come first.
	sccs  [][]program.FuncID
	sccOf []int

	reaches []bool // Per SCC: some member transitively calls a typed function
	waves   [][]program.FuncID
}

// Classify builds the call graph and classifies every function. Untyped
// functions named in entries become Entry functions. A non-nil problem list
// means the program cannot be verified.
func Classify(prog *program.Program, entries []string) (*Graph, []*diagnostic.Problem) {
	n := prog.Len()
	g := &Graph{
		prog:  prog,
		succ:  make([][]program.FuncID, n),
		kinds: make([]Kind, n),
		sccOf: make([]int, n),
	}

	for _, fn := range prog.Functions() {
		g.succ[fn.ID] = lo.Uniq(lo.Map(fn.Calls, func(c program.Call, _ int) program.FuncID { return c.Callee }))
	}

	g.tarjan()
	problems := g.classify(entries)
	g.computeReach()
	g.computeWaves()
	return g, problems
}

// ----------------------------------------------------------------------------
// Strongly Connected Components
// ----------------------------------------------------------------------------

// tarjan computes SCCs. Tarjan's algorithm emits a component only after
// every component reachable from it, so g.sccs is callees-first.
func (g *Graph) tarjan() {
	n := len(g.succ)
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var stack []program.FuncID
	next := 0

	var strongConnect func(v program.FuncID)
	strongConnect = func(v program.FuncID) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.callees(v) {
			if index[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], index[w])
			}
		}

		if lowlink[v] != index[v] {
			return
		}

		var scc []program.FuncID
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			g.sccOf[w] = len(g.sccs)
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		// Members in declaration order keep output deterministic.
		g.sccs = append(g.sccs, sortIDs(scc))
	}

	for v := 0; v < n; v++ {
		if index[v] < 0 {
			strongConnect(program.FuncID(v))
		}
	}
}

func sortIDs(ids []program.FuncID) []program.FuncID {
	slices.Sort(ids)
	return ids
}

// cyclic reports whether an SCC contains a cycle: more than one member, or
// a single member that calls itself.
func (g *Graph) cyclic(scc []program.FuncID) bool {
	if len(scc) > 1 {
		return true
	}
	return lo.Contains(g.callees(scc[0]), scc[0])
}

// ----------------------------------------------------------------------------
// Classification
// ----------------------------------------------------------------------------

func (g *Graph) classify(entries []string) []*diagnostic.Problem {
	var problems []*diagnostic.Problem
	isEntry := lo.SliceToMap(entries, func(name string) (string, bool) { return name, true })

	for _, scc := range g.sccs {
		typed := lo.Filter(scc, func(id program.FuncID, _ int) bool { return g.prog.Function(id).Typed() })
		cyclic := g.cyclic(scc)

		if len(typed) > 1 {
			problems = append(problems, g.circular(typed))
		}

		for _, id := range scc {
			fn := g.prog.Function(id)
			switch {
			case !fn.Typed():
				if isEntry[fn.Name] {
					g.kinds[id] = Entry
				} else {
					g.kinds[id] = Untyped
				}
			case cyclic || g.callsTyped(id):
				g.kinds[id] = Verified
			default:
				g.kinds[id] = Trusted
			}
		}
	}

	return problems
}

func (g *Graph) callsTyped(id program.FuncID) bool {
	return lo.ContainsBy(g.callees(id), func(c program.FuncID) bool {
		return c != id && g.prog.Function(c).Typed()
	})
}

func (g *Graph) circular(typed []program.FuncID) *diagnostic.Problem {
	names := lo.Map(typed, func(id program.FuncID, _ int) string { return "'" + g.prog.Function(id).Name + "'" })
	first := g.prog.Function(typed[0])
	return &diagnostic.Problem{
		Code:     diagnostic.CodeCircularTypestateDependency,
		Function: first.Name,
		Message:  fmt.Sprintf("typestated functions %s call each other", strings.Join(names, ", ")),
		Start:    int(first.Decl.Name.Range.Loc.Start),
		End:      int(first.Decl.Name.Range.End()),
		Notes:    []string{"each callee's signature must be known before its caller is checked"},
	}
}

// computeReach marks components that can transitively reach a typed
// function. Callees-first order means every successor is already done.
func (g *Graph) computeReach() {
	g.reaches = make([]bool, len(g.sccs))
	for i, scc := range g.sccs {
		for _, id := range scc {
			for _, c := range g.callees(id) {
				if g.prog.Function(c).Typed() || (g.sccOf[c] != i && g.reaches[g.sccOf[c]]) {
					g.reaches[i] = true
				}
			}
		}
	}
}

// computeWaves groups checked functions by the depth of their component in
// the condensed graph. Every callee of a wave-k function sits in an earlier
// wave or in the same component.
func (g *Graph) computeWaves() {
	level := make([]int, len(g.sccs))
	maxLevel := -1
	for i, scc := range g.sccs {
		for _, id := range scc {
			for _, c := range g.callees(id) {
				if j := g.sccOf[c]; j != i {
					level[i] = max(level[i], level[j]+1)
				}
			}
		}
		maxLevel = max(maxLevel, level[i])
	}

	waves := make([][]program.FuncID, maxLevel+1)
	for i, scc := range g.sccs {
		for _, id := range scc {
			if g.kinds[id].Checked() {
				waves[level[i]] = append(waves[level[i]], id)
			}
		}
	}
	g.waves = lo.Filter(waves, func(w []program.FuncID, _ int) bool { return len(w) > 0 })
	for _, w := range g.waves {
		sortIDs(w)
	}
}

// ----------------------------------------------------------------------------
// Queries
// ----------------------------------------------------------------------------

// Kind returns the classification of a function.
func (g *Graph) Kind(id program.FuncID) Kind {
	return g.kinds[id]
}

// callees returns the distinct direct callees of a function in call order.
func (g *Graph) callees(id program.FuncID) []program.FuncID {
	return g.succ[id]
}

// SCCs returns the strongly connected components, callees first.
func (g *Graph) SCCs() [][]program.FuncID {
	return g.sccs
}

// ReachesTypestate reports whether calling the function can, through any
// chain of calls, invoke a typestated function.
func (g *Graph) ReachesTypestate(id program.FuncID) bool {
	return g.prog.Function(id).Typed() || g.reaches[g.sccOf[id]]
}

// Waves returns the functions whose bodies must be checked, grouped so
// that each group only depends on earlier groups. Functions within a group
// are independent.
func (g *Graph) Waves() [][]program.FuncID {
	return g.waves
}
