// SPDX-License-Identifier: MPL-2.0

// Package dag provides directed acyclic graph operations for topological sorting
// and cycle detection. The lifecycle composer uses it to reject target graphs whose
// prerequisite edges form a cycle before any target body runs.
package dag

import (
	"fmt"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle lists the nodes of one cycle in edge order. The first node is
		// repeated at the end so the message reads as a closed path.
		Cycle []string
	}

	// Graph is a directed graph for topological sorting.
	// An edge from A to B means A must complete before B starts.
	Graph struct {
		adjacency map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to, meaning "from" must run before "to".
// Both nodes are implicitly added if they don't exist.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
}

// TopologicalSort returns a valid execution order using Kahn's algorithm.
// Returns CycleError if the graph contains a cycle.
// Nodes at the same topological level appear in insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = 0
	}
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) != len(g.nodes) {
		remaining := make(map[string]bool)
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				remaining[node] = true
			}
		}
		return nil, &CycleError{Cycle: g.findCycle(remaining)}
	}

	return result, nil
}

// findCycle walks the nodes Kahn's algorithm could not drain and returns one
// concrete cycle among them. Every such node has a predecessor inside the set,
// so walking predecessors restricted to the set always closes a loop.
func (g *Graph) findCycle(remaining map[string]bool) []string {
	predecessor := make(map[string]string, len(remaining))
	var start string
	for _, from := range g.nodes {
		if !remaining[from] {
			continue
		}
		if start == "" {
			start = from
		}
		for _, to := range g.adjacency[from] {
			if _, ok := predecessor[to]; !ok && remaining[to] {
				predecessor[to] = from
			}
		}
	}

	index := make(map[string]int)
	var walked []string
	node := start
	for {
		if at, seen := index[node]; seen {
			loop := walked[at:]
			// walked follows edges backwards; flip it to edge order.
			cycle := make([]string, 0, len(loop)+1)
			for i := len(loop) - 1; i >= 0; i-- {
				cycle = append(cycle, loop[i])
			}
			return append(cycle, cycle[0])
		}
		index[node] = len(walked)
		walked = append(walked, node)
		node = predecessor[node]
	}
}
