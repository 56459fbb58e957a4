package graph

import "strings"

// TriggerPrefix marks node types that represent remote triggers.
const TriggerPrefix = "trigger_"

// NodeKind constrains how a node may participate in edges.
type NodeKind string

const (
	// KindOneWayOut nodes are sources only (trigger nodes).
	KindOneWayOut NodeKind = "one_way_out"
	// KindTwoWay nodes accept one inbound and one outbound edge.
	KindTwoWay NodeKind = "two_way"
	// KindBranch nodes fan out through named handles.
	KindBranch NodeKind = "branch"
)

// Position is the canvas location of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the editable payload of a node.
type NodeData struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Version     string                 `json:"version,omitempty"`
	CustomName  string                 `json:"customName,omitempty"`
	CustomID    string                 `json:"customId,omitempty"`
	Config      map[string]interface{} `json:"config"`
	TriggerRef  string                 `json:"triggerRef,omitempty"`
}

// DisplayName returns the custom name if set, else the node name.
func (d NodeData) DisplayName() string {
	if d.CustomName != "" {
		return d.CustomName
	}
	return d.Name
}

// Node is a vertex of the workflow graph.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// IsTrigger reports whether the node represents a remote trigger.
func (n Node) IsTrigger() bool {
	return IsTriggerType(n.Data.Type)
}

// Edge is a directed connection between two nodes.
// SourceHandle is required when the source is a branch node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// Graph is a snapshot of nodes and edges. Methods returning a Graph never
// modify the receiver.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// IsTriggerType reports whether a node type carries the trigger prefix.
func IsTriggerType(nodeType string) bool {
	return strings.HasPrefix(nodeType, TriggerPrefix)
}

// TriggerType strips the trigger prefix from a node type.
func TriggerType(nodeType string) string {
	return strings.TrimPrefix(nodeType, TriggerPrefix)
}

// KindFor derives the node kind from its type.
func KindFor(nodeType string) NodeKind {
	switch {
	case IsTriggerType(nodeType):
		return KindOneWayOut
	case SupportsBranches(nodeType):
		return KindBranch
	default:
		return KindTwoWay
	}
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasNode reports whether a node with the given id exists.
func (g Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// Edge returns the edge with the given id.
func (g Graph) Edge(id string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// Outgoing returns the edges leaving a node, in graph order.
func (g Graph) Outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges entering a node, in graph order.
func (g Graph) Incoming(nodeID string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// TriggerNodes returns every trigger node, in graph order.
func (g Graph) TriggerNodes() []Node {
	var nodes []Node
	for _, n := range g.Nodes {
		if n.IsTrigger() {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Clone returns a deep copy of the graph, including node configs.
func (g Graph) Clone() Graph {
	c := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		n.Data.Config = CopyConfig(n.Data.Config)
		c.Nodes[i] = n
	}
	copy(c.Edges, g.Edges)
	return c
}

// CopyConfig deep-copies a node config. Nested maps and slices are copied;
// other values are shared.
func CopyConfig(config map[string]interface{}) map[string]interface{} {
	if config == nil {
		return nil
	}
	out := make(map[string]interface{}, len(config))
	for k, v := range config {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CopyConfig(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CopyConfig(item)
		}
		return out
	default:
		return v
	}
}
