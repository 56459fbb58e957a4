// Package connectivity decides whether an edge may be added to a workflow
// graph and checks whole graphs for structural violations.
package connectivity

import (
	"errors"

	"github.com/Triglit/flowgraph/internal/graph"
)

// Rejection reasons returned by Check.
var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrTriggerTarget   = errors.New("trigger nodes cannot have inbound edges")
	ErrSelfLoop        = errors.New("node cannot connect to itself")
	ErrMissingHandle   = errors.New("branch connection requires a source handle")
	ErrUnknownHandle   = errors.New("source handle does not exist on branch node")
	ErrTargetConnected = errors.New("target already has an inbound edge")
	ErrSourceConnected = errors.New("source already has an outbound edge")
	ErrHandleConnected = errors.New("branch handle already connected")
	ErrCycle           = errors.New("connection would create a cycle")
)

var reasons = []struct {
	err  error
	code string
}{
	{ErrUnknownNode, "unknown_node"},
	{ErrTriggerTarget, "trigger_target"},
	{ErrSelfLoop, "self_loop"},
	{ErrMissingHandle, "missing_handle"},
	{ErrUnknownHandle, "unknown_handle"},
	{ErrTargetConnected, "target_connected"},
	{ErrSourceConnected, "source_connected"},
	{ErrHandleConnected, "handle_connected"},
	{ErrCycle, "cycle"},
}

// Reason returns a stable code for an error returned by Check, or "" when
// err is not a rejection.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return ""
}

// Connection is a proposed edge.
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// CanConnect reports whether c may be added to g.
func CanConnect(g graph.Graph, c Connection) bool {
	return Check(g, c) == nil
}

// Check returns the first rule c violates in g, or nil. Rules are evaluated
// in a fixed order so the reported reason is stable.
func Check(g graph.Graph, c Connection) error {
	source, ok := g.Node(c.Source)
	if !ok {
		return ErrUnknownNode
	}
	target, ok := g.Node(c.Target)
	if !ok {
		return ErrUnknownNode
	}

	if target.IsTrigger() {
		return ErrTriggerTarget
	}
	if c.Source == c.Target {
		return ErrSelfLoop
	}

	branch := graph.SupportsBranches(source.Data.Type)
	if branch {
		if c.SourceHandle == "" {
			return ErrMissingHandle
		}
		if !graph.HasHandle(source.Data, c.SourceHandle) {
			return ErrUnknownHandle
		}
	}

	for _, e := range g.Edges {
		if e.Target == c.Target {
			return ErrTargetConnected
		}
	}
	for _, e := range g.Edges {
		if e.Source != c.Source {
			continue
		}
		if !branch {
			return ErrSourceConnected
		}
		if e.SourceHandle == c.SourceHandle {
			return ErrHandleConnected
		}
	}

	if reachable(g.Edges, c.Target, c.Source) {
		return ErrCycle
	}
	return nil
}

// reachable walks edges from start with an explicit worklist.
func reachable(edges []graph.Edge, start, goal string) bool {
	adj := adjacency(edges)
	visited := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == goal {
			return true
		}
		for _, next := range adj[id] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func adjacency(edges []graph.Edge) map[string][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

// HasCycle reports whether the edge set contains a directed cycle.
func HasCycle(edges []graph.Edge) bool {
	return len(cycleNodes(edges)) > 0
}

const (
	unvisited = iota
	onStack
	done
)

// cycleNodes returns the node at which a back edge was found for each cycle
// detected by an iterative depth-first search, in deterministic order.
func cycleNodes(edges []graph.Edge) []string {
	adj := adjacency(edges)

	var order []string
	seen := make(map[string]bool)
	for _, e := range edges {
		for _, id := range []string{e.Source, e.Target} {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}

	type frame struct {
		id   string
		next int
	}
	state := make(map[string]int, len(order))
	var found []string
	for _, root := range order {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{id: root}}
		state[root] = onStack
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(adj[top.id]) {
				state[top.id] = done
				stack = stack[:len(stack)-1]
				continue
			}
			child := adj[top.id][top.next]
			top.next++
			switch state[child] {
			case onStack:
				found = append(found, child)
			case unvisited:
				state[child] = onStack
				stack = append(stack, frame{id: child})
			}
		}
	}
	return found
}
