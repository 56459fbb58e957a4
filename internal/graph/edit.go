package graph

import (
	"errors"
	"fmt"
)

// Reserved config keys used to persist editor-only node fields.
const (
	ConfigCustomName = "_customName"
	ConfigCustomID   = "_customId"
	ConfigTriggerID  = "_triggerId"
)

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrNodeExists     = errors.New("node already exists")
	ErrDuplicateID    = errors.New("custom id already in use")
	ErrEdgeNotFound   = errors.New("edge not found")
	ErrInvalidNodeRef = errors.New("invalid node reference")
)

// WithNode returns a copy of g with n appended.
func (g Graph) WithNode(n Node) (Graph, error) {
	if n.ID == "" {
		return g, fmt.Errorf("%w: empty id", ErrInvalidNodeRef)
	}
	if g.HasNode(n.ID) {
		return g, fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
	}
	c := g.Clone()
	c.Nodes = append(c.Nodes, n)
	return c, nil
}

// WithoutNode returns a copy of g without the node and its incident edges.
// The removed edges are returned so callers can clear dependent config.
func (g Graph) WithoutNode(id string) (Graph, []Edge, error) {
	if !g.HasNode(id) {
		return g, nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	c := Graph{}
	for _, n := range g.Nodes {
		if n.ID != id {
			n.Data.Config = CopyConfig(n.Data.Config)
			c.Nodes = append(c.Nodes, n)
		}
	}
	var removed []Edge
	for _, e := range g.Edges {
		if e.Source == id || e.Target == id {
			removed = append(removed, e)
			continue
		}
		c.Edges = append(c.Edges, e)
	}
	return c, removed, nil
}

// WithEdge returns a copy of g with e appended. It does not check
// connectivity rules.
func (g Graph) WithEdge(e Edge) Graph {
	c := g.Clone()
	c.Edges = append(c.Edges, e)
	return c
}

// WithoutEdge returns a copy of g without the edge and the removed edge.
func (g Graph) WithoutEdge(id string) (Graph, Edge, error) {
	c := g.Clone()
	for i, e := range c.Edges {
		if e.ID == id {
			c.Edges = append(c.Edges[:i], c.Edges[i+1:]...)
			return c, e, nil
		}
	}
	return g, Edge{}, fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
}

// WithConfig returns a copy of g with the node's config replaced.
func (g Graph) WithConfig(nodeID string, config map[string]interface{}) (Graph, error) {
	c := g.Clone()
	for i := range c.Nodes {
		if c.Nodes[i].ID == nodeID {
			c.Nodes[i].Data.Config = CopyConfig(config)
			return c, nil
		}
	}
	return g, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
}

// WithData returns a copy of g with the node's data replaced.
func (g Graph) WithData(nodeID string, data NodeData) (Graph, error) {
	c := g.Clone()
	for i := range c.Nodes {
		if c.Nodes[i].ID == nodeID {
			data.Config = CopyConfig(data.Config)
			c.Nodes[i].Data = data
			return c, nil
		}
	}
	return g, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
}

// WithTriggerRefs sets TriggerRef (and the _triggerId config key) for each
// node id in refs. Unknown node ids are skipped.
func (g Graph) WithTriggerRefs(refs map[string]string) Graph {
	c := g.Clone()
	for i := range c.Nodes {
		ref, ok := refs[c.Nodes[i].ID]
		if !ok {
			continue
		}
		c.Nodes[i].Data.TriggerRef = ref
		if c.Nodes[i].Data.Config == nil {
			c.Nodes[i].Data.Config = map[string]interface{}{}
		}
		if ref == "" {
			delete(c.Nodes[i].Data.Config, ConfigTriggerID)
		} else {
			c.Nodes[i].Data.Config[ConfigTriggerID] = ref
		}
	}
	return c
}

// RenameNode changes a node id and rewrites every edge endpoint that
// referenced it. Branch config values pointing at the old id are rewritten too.
func (g Graph) RenameNode(oldID, newID string) (Graph, error) {
	if oldID == newID {
		return g, nil
	}
	if newID == "" {
		return g, fmt.Errorf("%w: empty id", ErrInvalidNodeRef)
	}
	if !g.HasNode(oldID) {
		return g, fmt.Errorf("%w: %s", ErrNodeNotFound, oldID)
	}
	if g.HasNode(newID) {
		return g, fmt.Errorf("%w: %s", ErrDuplicateID, newID)
	}
	for _, n := range g.Nodes {
		if n.ID != oldID && n.Data.CustomID == newID {
			return g, fmt.Errorf("%w: %s", ErrDuplicateID, newID)
		}
	}

	c := g.Clone()
	for i := range c.Nodes {
		if c.Nodes[i].ID == oldID {
			c.Nodes[i].ID = newID
		}
		renameConfigRefs(c.Nodes[i].Data.Config, oldID, newID)
	}
	for i := range c.Edges {
		if c.Edges[i].Source == oldID {
			c.Edges[i].Source = newID
		}
		if c.Edges[i].Target == oldID {
			c.Edges[i].Target = newID
		}
	}
	return c, nil
}

func renameConfigRefs(config map[string]interface{}, oldID, newID string) {
	for _, key := range []string{"trueBranch", "falseBranch", "defaultNode"} {
		if v, ok := config[key].(string); ok && v == oldID {
			config[key] = newID
		}
	}
	cases, ok := config["cases"].([]interface{})
	if !ok {
		return
	}
	for _, item := range cases {
		if c, ok := item.(map[string]interface{}); ok {
			if v, ok := c["nodeId"].(string); ok && v == oldID {
				c["nodeId"] = newID
			}
		}
	}
}
