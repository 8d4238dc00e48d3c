package lc

import (
	"fmt"
	"sort"
	"strings"
)

// CycleDetectedError names the packages forming a dependency cycle. Cycles
// are a hard planning failure, never broken heuristically.
type CycleDetectedError struct {
	Members []string
}

func (e *CycleDetectedError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Members, " -> ")
}

// UnknownPackageError marks a trigger or prerequisite with no forge in the
// repository or supplied references.
type UnknownPackageError struct {
	Package string
}

func (e *UnknownPackageError) Error() string {
	return fmt.Sprintf("unknown package %q: no forge or recipe found", e.Package)
}

// DepGraph is an owned adjacency mapping over package names. An edge
// A -> B means "building A requires B's build output": B is a
// prerequisite of A.
type DepGraph struct {
	nodes   map[string]bool
	prereqs map[string][]string // dependent -> prerequisites
}

func NewDepGraph() *DepGraph {
	return &DepGraph{
		nodes:   make(map[string]bool),
		prereqs: make(map[string][]string),
	}
}

func (g *DepGraph) AddNode(pkg string) {
	g.nodes[pkg] = true
}

// AddEdge records that dependent requires prerequisite. Self-edges are
// ignored; a package trivially provides for itself.
func (g *DepGraph) AddEdge(dependent, prerequisite string) {
	if dependent == prerequisite {
		return
	}
	g.AddNode(dependent)
	g.AddNode(prerequisite)
	for _, p := range g.prereqs[dependent] {
		if p == prerequisite {
			return
		}
	}
	g.prereqs[dependent] = append(g.prereqs[dependent], prerequisite)
}

// Prerequisites returns the direct prerequisites of pkg in sorted order.
func (g *DepGraph) Prerequisites(pkg string) []string {
	out := append([]string{}, g.prereqs[pkg]...)
	sort.Strings(out)
	return out
}

// dependents returns the reverse adjacency: prerequisite -> dependents.
func (g *DepGraph) dependents() map[string][]string {
	rev := make(map[string][]string, len(g.nodes))
	for dep, prereqs := range g.prereqs {
		for _, p := range prereqs {
			rev[p] = append(rev[p], dep)
		}
	}
	return rev
}

// AffectedBy returns the rebuild set for a trigger set: the triggers, every
// transitive dependent (a change invalidates what was built against it),
// and every transitive prerequisite of those (a chain rebuild needs its
// inputs present as fresh artifacts). Levels record BFS distance from the
// triggers along dependent edges; prerequisites pulled in afterwards get
// level 0 so they sort first.
func (g *DepGraph) AffectedBy(triggers []string) (map[string]int, error) {
	for _, t := range triggers {
		if !g.nodes[t] {
			return nil, &UnknownPackageError{Package: t}
		}
	}

	level := make(map[string]int)
	queue := append([]string{}, triggers...)
	for _, t := range triggers {
		level[t] = 0
	}
	rev := g.dependents()
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, dep := range rev[curr] {
			if next, seen := level[dep]; !seen || next > level[curr]+1 {
				level[dep] = level[curr] + 1
				queue = append(queue, dep)
			}
		}
	}

	// Close under prerequisites so every affected package can resolve its
	// build inputs from artifacts produced earlier in the same chain.
	stack := make([]string, 0, len(level))
	for pkg := range level {
		stack = append(stack, pkg)
	}
	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, pre := range g.prereqs[curr] {
			if _, seen := level[pre]; !seen {
				level[pre] = 0
				stack = append(stack, pre)
			}
		}
	}
	return level, nil
}

// TopoSort orders the given subset prerequisites-first (Kahn). Ties among
// independent packages break by ascending name, so identical inputs always
// produce identical plans. A cycle within the subset is a
// CycleDetectedError naming its members in sorted order.
func (g *DepGraph) TopoSort(subset map[string]int) ([]string, error) {
	indegree := make(map[string]int, len(subset))
	for pkg := range subset {
		indegree[pkg] = 0
	}
	for pkg := range subset {
		for _, pre := range g.prereqs[pkg] {
			if _, in := subset[pre]; in {
				indegree[pkg]++
			}
		}
	}

	var ready []string
	for pkg, deg := range indegree {
		if deg == 0 {
			ready = append(ready, pkg)
		}
	}
	sort.Strings(ready)

	rev := g.dependents()
	var order []string
	for len(ready) > 0 {
		curr := ready[0]
		ready = ready[1:]
		order = append(order, curr)
		var unlocked []string
		for _, dep := range rev[curr] {
			if _, in := subset[dep]; !in {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		// Keep the ready set sorted as new packages unlock.
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}

	if len(order) != len(subset) {
		var cycle []string
		for pkg, deg := range indegree {
			if deg > 0 {
				cycle = append(cycle, pkg)
			}
		}
		sort.Strings(cycle)
		return nil, &CycleDetectedError{Members: cycle}
	}
	return order, nil
}

func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
