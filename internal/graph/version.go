package graph

import (
	"errors"
	"time"
)

// ErrVersionNotFound is returned by version stores for unknown ids.
var ErrVersionNotFound = errors.New("workflow version not found")

// Version is a persisted workflow version as stored by the remote
// workflow-definition service.
type Version struct {
	ID          string        `json:"id"`
	WorkflowID  string        `json:"workflowId"`
	Version     int           `json:"version"`
	Nodes       []VersionNode `json:"nodes"`
	Edges       []VersionEdge `json:"edges"`
	IsActive    bool          `json:"isActive"`
	CreatedAt   time.Time     `json:"createdAt"`
	PublishedAt *time.Time    `json:"publishedAt,omitempty"`
}

// VersionNode is the persisted form of a node.
type VersionNode struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Version      string                 `json:"version,omitempty"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	Config       map[string]interface{} `json:"config"`
	InputSchema  map[string]interface{} `json:"inputSchema,omitempty"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	CanPause     bool                   `json:"canPause,omitempty"`
	Position     *Position              `json:"position,omitempty"`
}

// VersionEdge is the persisted form of an edge. SourceOutputKey carries the
// branch handle.
type VersionEdge struct {
	ID              string `json:"id"`
	SourceNodeID    string `json:"sourceNodeId"`
	TargetNodeID    string `json:"targetNodeId"`
	SourceOutputKey string `json:"sourceOutputKey,omitempty"`
	TargetInputKey  string `json:"targetInputKey,omitempty"`
	Condition       string `json:"condition,omitempty"`
	Label           string `json:"label,omitempty"`
}

// FromVersion builds an editor graph from a persisted version. Reserved
// config keys are lifted into NodeData and removed from the config.
func FromVersion(v Version) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(v.Nodes)),
		Edges: make([]Edge, 0, len(v.Edges)),
	}
	for _, vn := range v.Nodes {
		config := CopyConfig(vn.Config)
		if config == nil {
			config = map[string]interface{}{}
		}
		data := NodeData{
			Type:        vn.Type,
			Name:        vn.Name,
			Description: vn.Description,
			Version:     vn.Version,
			CustomName:  popString(config, ConfigCustomName),
			CustomID:    popString(config, ConfigCustomID),
			TriggerRef:  popString(config, ConfigTriggerID),
			Config:      config,
		}
		n := Node{ID: vn.ID, Kind: KindFor(vn.Type), Data: data}
		if vn.Position != nil {
			n.Position = *vn.Position
		}
		g.Nodes = append(g.Nodes, n)
	}
	for _, ve := range v.Edges {
		g.Edges = append(g.Edges, Edge{
			ID:           ve.ID,
			Source:       ve.SourceNodeID,
			Target:       ve.TargetNodeID,
			SourceHandle: ve.SourceOutputKey,
			TargetHandle: ve.TargetInputKey,
			Label:        ve.Label,
		})
	}
	return g
}

// ToVersion converts an editor graph into persisted nodes and edges.
func ToVersion(g Graph) ([]VersionNode, []VersionEdge) {
	nodes := make([]VersionNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		config := CopyConfig(n.Data.Config)
		if config == nil {
			config = map[string]interface{}{}
		}
		setOrDelete(config, ConfigCustomName, n.Data.CustomName)
		setOrDelete(config, ConfigCustomID, n.Data.CustomID)
		setOrDelete(config, ConfigTriggerID, n.Data.TriggerRef)

		pos := n.Position
		nodes = append(nodes, VersionNode{
			ID:          n.ID,
			Type:        n.Data.Type,
			Version:     n.Data.Version,
			Name:        n.Data.Name,
			Description: n.Data.Description,
			Config:      config,
			Position:    &pos,
		})
	}
	edges := make([]VersionEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, VersionEdge{
			ID:              e.ID,
			SourceNodeID:    e.Source,
			TargetNodeID:    e.Target,
			SourceOutputKey: e.SourceHandle,
			TargetInputKey:  e.TargetHandle,
			Label:           e.Label,
		})
	}
	return nodes, edges
}

// SelectVersion picks the version to open: the published one, else the
// highest version number, else the most recently created.
func SelectVersion(versions []Version) (Version, bool) {
	if len(versions) == 0 {
		return Version{}, false
	}
	for _, v := range versions {
		if v.PublishedAt != nil {
			return v, true
		}
	}
	best := versions[0]
	for _, v := range versions[1:] {
		if v.Version > best.Version ||
			(v.Version == best.Version && v.CreatedAt.After(best.CreatedAt)) {
			best = v
		}
	}
	return best, true
}

func popString(config map[string]interface{}, key string) string {
	v, ok := config[key]
	if !ok {
		return ""
	}
	delete(config, key)
	s, _ := v.(string)
	return s
}

func setOrDelete(config map[string]interface{}, key, value string) {
	if value == "" {
		delete(config, key)
		return
	}
	config[key] = value
}
