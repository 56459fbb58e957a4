package connectivity

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Triglit/flowgraph/internal/graph"
)

func node(id, nodeType string) graph.Node {
	return graph.Node{
		ID:   id,
		Kind: graph.KindFor(nodeType),
		Data: graph.NodeData{Type: nodeType, Name: id, Config: map[string]interface{}{}},
	}
}

func switchNode(id string, cases int) graph.Node {
	n := node(id, graph.TypeSwitch)
	list := make([]interface{}, cases)
	for i := range list {
		list[i] = map[string]interface{}{"value": fmt.Sprintf("v%d", i), "nodeId": ""}
	}
	n.Data.Config["cases"] = list
	return n
}

func baseGraph() graph.Graph {
	return graph.Graph{Nodes: []graph.Node{
		node("T", "trigger_event"),
		node("A", "noop"),
		node("B", "noop"),
		node("C", "noop"),
		node("X", graph.TypeCondition),
		switchNode("S", 2),
	}}
}

func TestCheckRules(t *testing.T) {
	tests := []struct {
		name  string
		edges []graph.Edge
		conn  Connection
		want  error
	}{
		{"trigger to action", nil, Connection{Source: "T", Target: "A"}, nil},
		{"unknown target", nil, Connection{Source: "A", Target: "Z"}, ErrUnknownNode},
		{"into trigger", nil, Connection{Source: "A", Target: "T"}, ErrTriggerTarget},
		{"self loop", nil, Connection{Source: "A", Target: "A"}, ErrSelfLoop},
		{"branch without handle", nil, Connection{Source: "X", Target: "A"}, ErrMissingHandle},
		{"branch unknown handle", nil, Connection{Source: "S", Target: "A", SourceHandle: "case-5"}, ErrUnknownHandle},
		{
			"target already fed",
			[]graph.Edge{{ID: "e1", Source: "T", Target: "B"}},
			Connection{Source: "A", Target: "B"},
			ErrTargetConnected,
		},
		{
			"source already used",
			[]graph.Edge{{ID: "e1", Source: "A", Target: "B"}},
			Connection{Source: "A", Target: "C"},
			ErrSourceConnected,
		},
		{
			"branch handle reused",
			[]graph.Edge{{ID: "e1", Source: "X", Target: "A", SourceHandle: "true"}},
			Connection{Source: "X", Target: "B", SourceHandle: "true"},
			ErrHandleConnected,
		},
		{
			"branch other handle",
			[]graph.Edge{{ID: "e1", Source: "X", Target: "A", SourceHandle: "true"}},
			Connection{Source: "X", Target: "B", SourceHandle: "false"},
			nil,
		},
		{
			"switch case handle",
			nil,
			Connection{Source: "S", Target: "A", SourceHandle: "case-1"},
			nil,
		},
		{
			"closes cycle",
			[]graph.Edge{
				{ID: "e1", Source: "A", Target: "B"},
				{ID: "e2", Source: "B", Target: "C"},
			},
			Connection{Source: "C", Target: "X"},
			nil,
		},
		{
			"cycle through branch",
			[]graph.Edge{
				{ID: "e1", Source: "A", Target: "X"},
				{ID: "e2", Source: "X", Target: "B", SourceHandle: "true"},
			},
			Connection{Source: "B", Target: "A"},
			ErrCycle,
		},
		{
			"trigger target checked before self loop",
			nil,
			Connection{Source: "T", Target: "T"},
			ErrTriggerTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := baseGraph()
			g.Edges = tt.edges
			err := Check(g, tt.conn)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("Check(%+v) = %v, want %v", tt.conn, err, tt.want)
			}
			if CanConnect(g, tt.conn) != (tt.want == nil) {
				t.Errorf("CanConnect disagrees with Check for %+v", tt.conn)
			}
		})
	}
}

func TestCheckDoesNotMutateGraph(t *testing.T) {
	g := baseGraph()
	g.Edges = []graph.Edge{{ID: "e1", Source: "A", Target: "B"}}
	before := len(g.Edges)
	Check(g, Connection{Source: "B", Target: "C"})
	if len(g.Edges) != before {
		t.Errorf("Check modified the graph")
	}
}

func TestHasCycle(t *testing.T) {
	acyclic := []graph.Edge{
		{Source: "A", Target: "B"},
		{Source: "A", Target: "C"},
		{Source: "B", Target: "D"},
		{Source: "C", Target: "D"},
	}
	if HasCycle(acyclic) {
		t.Errorf("diamond reported as cyclic")
	}

	cyclic := append(append([]graph.Edge{}, acyclic...), graph.Edge{Source: "D", Target: "A"})
	if !HasCycle(cyclic) {
		t.Errorf("expected cycle D->A to be detected")
	}

	if HasCycle(nil) {
		t.Errorf("empty edge set reported as cyclic")
	}
	if !HasCycle([]graph.Edge{{Source: "A", Target: "A"}}) {
		t.Errorf("self loop not reported as cycle")
	}
}

// Random edit sequences accepted through CanConnect must never break the
// structural rules of the graph.
func TestRandomConnectionsStayValid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		g := graph.Graph{}
		g.Nodes = append(g.Nodes, node("T0", "trigger_event"), node("T1", "trigger_schedule"))
		for i := 0; i < 8; i++ {
			g.Nodes = append(g.Nodes, node(fmt.Sprintf("N%d", i), "noop"))
		}
		g.Nodes = append(g.Nodes, node("X0", graph.TypeCondition), switchNode("S0", 3))

		for step := 0; step < 60; step++ {
			src := g.Nodes[rng.Intn(len(g.Nodes))]
			dst := g.Nodes[rng.Intn(len(g.Nodes))]
			conn := Connection{Source: src.ID, Target: dst.ID}
			if handles := graph.Handles(src.Data); len(handles) > 0 {
				conn.SourceHandle = handles[rng.Intn(len(handles))].ID
			}
			if CanConnect(g, conn) {
				g = g.WithEdge(graph.Edge{
					ID:           fmt.Sprintf("e%d", step),
					Source:       conn.Source,
					Target:       conn.Target,
					SourceHandle: conn.SourceHandle,
				})
			}
		}

		if v := Validate(g); len(v) > 0 {
			t.Fatalf("round %d: violations after random edits: %v", round, v)
		}
	}
}

func TestReason(t *testing.T) {
	wrapped := fmt.Errorf("connect a -> b: %w", ErrHandleConnected)
	if got := Reason(wrapped); got != "handle_connected" {
		t.Errorf("Reason(wrapped) = %q", got)
	}
	if got := Reason(ErrCycle); got != "cycle" {
		t.Errorf("Reason(ErrCycle) = %q", got)
	}
	if got := Reason(errors.New("other")); got != "" {
		t.Errorf("Reason(other) = %q, want empty", got)
	}
}
