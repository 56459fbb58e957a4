package connectivity

import (
	"fmt"

	"github.com/Triglit/flowgraph/internal/graph"
)

// Violation rule names.
const (
	RuleDanglingEdge    = "dangling_edge"
	RuleTriggerInbound  = "trigger_inbound"
	RuleSelfLoop        = "self_loop"
	RuleFanIn           = "fan_in"
	RuleFanOut          = "fan_out"
	RuleHandleReuse     = "handle_reuse"
	RuleMissingHandle   = "missing_handle"
	RuleUnknownHandle   = "unknown_handle"
	RuleDuplicateCustom = "duplicate_custom_id"
	RuleCycle           = "cycle"
)

// Violation is a structural problem found in a whole graph.
type Violation struct {
	Rule    string `json:"rule"`
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Rule + ": " + v.Message
}

// Validate scans a loaded graph for anything CanConnect would have
// prevented. Graphs built only through CanConnect yield no violations.
func Validate(g graph.Graph) []Violation {
	var out []Violation

	nodes := make(map[string]graph.Node, len(g.Nodes))
	customIDs := make(map[string]string)
	for _, n := range g.Nodes {
		nodes[n.ID] = n
		if n.Data.CustomID == "" {
			continue
		}
		if other, ok := customIDs[n.Data.CustomID]; ok {
			out = append(out, Violation{
				Rule:    RuleDuplicateCustom,
				NodeID:  n.ID,
				Message: fmt.Sprintf("custom id %q also used by node %s", n.Data.CustomID, other),
			})
			continue
		}
		customIDs[n.Data.CustomID] = n.ID
	}

	inbound := make(map[string]int)
	outbound := make(map[string]int)
	handles := make(map[string]bool)
	for _, e := range g.Edges {
		source, okSource := nodes[e.Source]
		target, okTarget := nodes[e.Target]
		if !okSource || !okTarget {
			out = append(out, Violation{
				Rule:    RuleDanglingEdge,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("edge %s references a missing node", e.ID),
			})
			continue
		}
		if e.Source == e.Target {
			out = append(out, Violation{
				Rule:    RuleSelfLoop,
				NodeID:  e.Source,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("node %s connects to itself", e.Source),
			})
		}
		if target.IsTrigger() {
			out = append(out, Violation{
				Rule:    RuleTriggerInbound,
				NodeID:  e.Target,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("trigger node %s has an inbound edge", e.Target),
			})
		}

		inbound[e.Target]++
		if inbound[e.Target] == 2 {
			out = append(out, Violation{
				Rule:    RuleFanIn,
				NodeID:  e.Target,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("node %s has more than one inbound edge", e.Target),
			})
		}

		if !graph.SupportsBranches(source.Data.Type) {
			outbound[e.Source]++
			if outbound[e.Source] == 2 {
				out = append(out, Violation{
					Rule:    RuleFanOut,
					NodeID:  e.Source,
					EdgeID:  e.ID,
					Message: fmt.Sprintf("node %s has more than one outbound edge", e.Source),
				})
			}
			continue
		}
		if e.SourceHandle == "" {
			out = append(out, Violation{
				Rule:    RuleMissingHandle,
				NodeID:  e.Source,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("branch edge %s has no source handle", e.ID),
			})
			continue
		}
		if !graph.HasHandle(source.Data, e.SourceHandle) {
			out = append(out, Violation{
				Rule:    RuleUnknownHandle,
				NodeID:  e.Source,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("node %s has no handle %q", e.Source, e.SourceHandle),
			})
			continue
		}
		key := e.Source + "\x00" + e.SourceHandle
		if handles[key] {
			out = append(out, Violation{
				Rule:    RuleHandleReuse,
				NodeID:  e.Source,
				EdgeID:  e.ID,
				Message: fmt.Sprintf("handle %q on node %s is connected more than once", e.SourceHandle, e.Source),
			})
		}
		handles[key] = true
	}

	for _, id := range cycleNodes(g.Edges) {
		out = append(out, Violation{
			Rule:    RuleCycle,
			NodeID:  id,
			Message: fmt.Sprintf("cycle through node %s", id),
		})
	}
	return out
}
