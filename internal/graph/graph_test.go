package graph

import (
	"errors"
	"testing"
)

func sampleGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "t", Kind: KindOneWayOut, Data: NodeData{Type: "trigger_event", Name: "Start", Config: map[string]interface{}{}}},
			{ID: "c", Kind: KindBranch, Data: NodeData{Type: TypeCondition, Name: "Check", Config: map[string]interface{}{"trueBranch": "a"}}},
			{ID: "a", Kind: KindTwoWay, Data: NodeData{Type: "noop", Name: "A", Config: map[string]interface{}{}}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "t", Target: "c"},
			{ID: "e2", Source: "c", Target: "a", SourceHandle: HandleTrue},
		},
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := sampleGraph()
	c := g.Clone()
	c.Nodes[1].Data.Config["trueBranch"] = "changed"
	c.Edges[0].Target = "a"

	if g.Nodes[1].Data.Config["trueBranch"] != "a" {
		t.Errorf("clone config write leaked into original")
	}
	if g.Edges[0].Target != "c" {
		t.Errorf("clone edge write leaked into original")
	}
}

func TestWithoutNodeDropsIncidentEdges(t *testing.T) {
	g := sampleGraph()
	next, removed, err := g.WithoutNode("c")
	if err != nil {
		t.Fatalf("WithoutNode: %v", err)
	}
	if len(next.Edges) != 0 {
		t.Errorf("expected no edges left, got %d", len(next.Edges))
	}
	if len(removed) != 2 {
		t.Errorf("expected 2 removed edges, got %d", len(removed))
	}
	if len(g.Edges) != 2 {
		t.Errorf("original graph modified")
	}
}

func TestRenameNodeRewritesEdgesAndBranchConfig(t *testing.T) {
	g := sampleGraph()
	next, err := g.RenameNode("a", "archive")
	if err != nil {
		t.Fatalf("RenameNode: %v", err)
	}
	if !next.HasNode("archive") || next.HasNode("a") {
		t.Fatalf("node not renamed")
	}
	if next.Edges[1].Target != "archive" {
		t.Errorf("edge target = %s, want archive", next.Edges[1].Target)
	}
	c, _ := next.Node("c")
	if c.Data.Config["trueBranch"] != "archive" {
		t.Errorf("trueBranch = %v, want archive", c.Data.Config["trueBranch"])
	}
}

func TestRenameNodeRejectsDuplicate(t *testing.T) {
	g := sampleGraph()
	if _, err := g.RenameNode("a", "c"); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}

	g.Nodes[0].Data.CustomID = "taken"
	if _, err := g.RenameNode("a", "taken"); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID for custom id clash, got %v", err)
	}
}

func TestWithTriggerRefs(t *testing.T) {
	g := sampleGraph()
	next := g.WithTriggerRefs(map[string]string{"t": "trg_9", "missing": "x"})
	n, _ := next.Node("t")
	if n.Data.TriggerRef != "trg_9" {
		t.Errorf("TriggerRef = %q, want trg_9", n.Data.TriggerRef)
	}
	if n.Data.Config[ConfigTriggerID] != "trg_9" {
		t.Errorf("config _triggerId = %v, want trg_9", n.Data.Config[ConfigTriggerID])
	}
	orig, _ := g.Node("t")
	if orig.Data.TriggerRef != "" {
		t.Errorf("original graph modified")
	}
}

func TestWithoutEdge(t *testing.T) {
	g := sampleGraph()
	next, removed, err := g.WithoutEdge("e2")
	if err != nil {
		t.Fatalf("WithoutEdge: %v", err)
	}
	if removed.Source != "c" || len(next.Edges) != 1 {
		t.Errorf("unexpected result: removed=%v edges=%v", removed, next.Edges)
	}
	if _, _, err := g.WithoutEdge("nope"); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("expected ErrEdgeNotFound, got %v", err)
	}
}
