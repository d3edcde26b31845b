package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// CycleWarning represents a cycle in the cascade-delete graph.
//
// Cycles are warnings, not errors: the cascade manager keeps a visited set,
// so a delete through a cycle terminates. They are still worth surfacing
// because one delete may remove far more instances than expected.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["Order", "OrderLine", "Order"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// cascadeGraph maps a type name to the type names whose instances are
// deleted when one of its instances is deleted.
type cascadeGraph map[string][]string

// AnalyzeCascadeCycles finds cycles of cascading deletes.
//
// Edges:
//   - composition owner → target (children die with the owner)
//   - reverseCascadeDelete target → owner (the referrer dies with the target)
//
// Tarjan's algorithm finds strongly connected components; every component
// with more than one type, or with a self edge, is reported. Self-edges
// through a composition (trees) are reported at "info" level since they are
// the common recursive-structure case.
func AnalyzeCascadeCycles(g *schema.Graph) []CycleWarning {
	graph := make(cascadeGraph)
	selfInfo := make(map[string]bool)
	for _, t := range g.Types() {
		if !t.IsEntity() {
			continue
		}
		graph[t.Name] = nil
	}
	for _, t := range g.Types() {
		if !t.IsEntity() {
			continue
		}
		for _, rid := range t.Relations {
			r := g.Relation(rid)
			if !r.IsStored() {
				continue
			}
			owner, target := t.Name, g.Type(r.Target).Name
			if r.Kind == schema.Composition {
				graph[owner] = appendUnique(graph[owner], target)
				if owner == target {
					selfInfo[owner] = true
				}
			}
			if r.ReverseCascadeDelete {
				graph[target] = appendUnique(graph[target], owner)
				if owner == target {
					selfInfo[owner] = false
				}
			}
		}
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		switch {
		case len(scc) > 1:
			path := reconstructCyclePath(scc, graph)
			warnings = append(warnings, CycleWarning{
				Path:    path,
				Message: fmt.Sprintf("cascade delete cycle: %s", strings.Join(path, " -> ")),
				Level:   "warning",
			})
		case hasSelfLoop(scc[0], graph):
			level := "warning"
			if selfInfo[scc[0]] {
				level = "info"
			}
			warnings = append(warnings, CycleWarning{
				Path:    []string{scc[0], scc[0]},
				Message: fmt.Sprintf("recursive cascade delete on %s", scc[0]),
				Level:   level,
			})
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return strings.Join(warnings[i].Path, ",") < strings.Join(warnings[j].Path, ",")
	})
	return warnings
}

func appendUnique(list []string, s string) []string {
	for _, e := range list {
		if e == s {
			return list
		}
	}
	return append(list, s)
}

func hasSelfLoop(node string, graph cascadeGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph cascadeGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath walks edges inside the component from its first
// member until it returns to the start.
func reconstructCyclePath(scc []string, graph cascadeGraph) []string {
	inSCC := make(map[string]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if w == start && len(path) > 1 {
				next = w
				break
			}
			if next == "" && inSCC[w] && !visited[w] {
				next = w
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
