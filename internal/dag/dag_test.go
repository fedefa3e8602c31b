// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"errors"
	"slices"
	"testing"
)

func TestTopologicalSort_EmptyGraph(t *testing.T) {
	t.Parallel()
	order, err := New().TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Errorf("expected nil, got %v", order)
	}
}

func TestTopologicalSort_PrerequisiteChain(t *testing.T) {
	t.Parallel()
	g := New()
	// init must run before up, which runs before nothing else.
	g.AddEdge("init", "up")
	g.AddNode("down")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"init", "down", "up"}
	if !slices.Equal(order, expected) {
		t.Errorf("expected %v, got %v", expected, order)
	}
}

func TestTopologicalSort_Diamond(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("dev-chown-volumes", "dev-clean")
	g.AddEdge("dev-down-v", "dev-clean")
	g.AddEdge("dev-clean", "dev-full-rebuild")
	g.AddEdge("dev-init", "dev-full-rebuild")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 nodes, got %v", order)
	}
	if order[len(order)-1] != "dev-full-rebuild" {
		t.Errorf("expected dev-full-rebuild last, got %v", order)
	}
	if slices.Index(order, "dev-clean") < slices.Index(order, "dev-down-v") {
		t.Errorf("dev-down-v must precede dev-clean in %v", order)
	}
}

func TestTopologicalSort_Cycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edges [][2]string
		// wantLen is the closed path length (first node repeated at the end).
		wantLen int
	}{
		{name: "self loop", edges: [][2]string{{"A", "A"}}, wantLen: 2},
		{name: "two nodes", edges: [][2]string{{"A", "B"}, {"B", "A"}}, wantLen: 3},
		{name: "three nodes", edges: [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}}, wantLen: 4},
		{
			name: "cycle with downstream tail",
			// D hangs off the cycle and must not appear in the reported loop.
			edges:   [][2]string{{"D", "D2"}, {"B", "D"}, {"A", "B"}, {"B", "A"}},
			wantLen: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New()
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}

			_, err := g.TopologicalSort()
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("expected *CycleError, got %T: %v", err, err)
			}
			if len(cycleErr.Cycle) != tt.wantLen {
				t.Fatalf("expected cycle of length %d, got %v", tt.wantLen, cycleErr.Cycle)
			}
			if cycleErr.Cycle[0] != cycleErr.Cycle[len(cycleErr.Cycle)-1] {
				t.Errorf("cycle %v is not closed", cycleErr.Cycle)
			}
			for i := 0; i+1 < len(cycleErr.Cycle); i++ {
				from, to := cycleErr.Cycle[i], cycleErr.Cycle[i+1]
				if !slices.Contains(g.adjacency[from], to) {
					t.Errorf("cycle %v uses missing edge %s -> %s", cycleErr.Cycle, from, to)
				}
			}
		})
	}
}

func TestTopologicalSort_DuplicateEdges(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("A", "B")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(order, []string{"A", "B"}) {
		t.Errorf("expected [A B], got %v", order)
	}
}

func TestCycleError_Message(t *testing.T) {
	t.Parallel()
	err := &CycleError{Cycle: []string{"A", "B", "A"}}
	expected := "dependency cycle detected: A -> B -> A"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}
