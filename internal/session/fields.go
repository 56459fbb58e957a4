package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Triglit/flowgraph/internal/branchsync"
	"github.com/Triglit/flowgraph/internal/graph"
)

// HandleState is a branch handle and the edge leaving it, if any.
type HandleState struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	EdgeID string `json:"edgeId,omitempty"`
	Target string `json:"target,omitempty"`
}

// Field describes one config field for an editing form. ReadOnly fields are
// derived from edges; Handle names the handle that drives them.
type Field struct {
	Name     string      `json:"name"`
	Value    interface{} `json:"value"`
	ReadOnly bool        `json:"readOnly"`
	Handle   string      `json:"handle,omitempty"`
}

// Handles lists the branch handles of a node with their connections.
// Non-branch nodes have none.
func (s *Session) Handles(nodeID string) ([]HandleState, error) {
	g := s.Graph()
	n, ok := g.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	out := []HandleState{}
	outgoing := g.Outgoing(nodeID)
	for _, h := range graph.Handles(n.Data) {
		hs := HandleState{ID: h.ID, Label: h.Label}
		for _, e := range outgoing {
			if e.SourceHandle == h.ID {
				hs.EdgeID = e.ID
				hs.Target = e.Target
				break
			}
		}
		out = append(out, hs)
	}
	return out, nil
}

// Fields describes the config of a node. Reserved keys are hidden. Switch
// cases expand into one read-only field per case target.
func (s *Session) Fields(nodeID string) ([]Field, error) {
	n, ok := s.Graph().Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}

	keys := make([]string, 0, len(n.Data.Config))
	for k := range n.Data.Config {
		if !strings.HasPrefix(k, "_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		if n.Data.Type == graph.TypeSwitch && k == branchsync.FieldCases {
			out = append(out, Field{Name: k, Value: n.Data.Config[k]})
			for i, c := range graph.Cases(n.Data.Config) {
				handle, _ := branchsync.HandleForField(n.Data.Type, k, i)
				var target interface{}
				if c != nil {
					target = c[branchsync.FieldCaseNodeID]
				}
				out = append(out, Field{
					Name:     fmt.Sprintf("%s[%d].%s", k, i, branchsync.FieldCaseNodeID),
					Value:    target,
					ReadOnly: true,
					Handle:   handle,
				})
			}
			continue
		}
		f := Field{Name: k, Value: n.Data.Config[k]}
		if branchsync.IsBranchField(n.Data.Type, k) {
			f.ReadOnly = true
			f.Handle, _ = branchsync.HandleForField(n.Data.Type, k, -1)
		}
		out = append(out, f)
	}
	return out, nil
}
