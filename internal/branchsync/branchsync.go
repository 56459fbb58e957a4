// Package branchsync keeps the routing fields of branch node configs in step
// with the node's outgoing edges.
//
// condition: handle "true" -> trueBranch, "false" -> falseBranch.
// switch:    handle "default" -> defaultNode, "case-i" -> cases[i].nodeId.
package branchsync

import (
	"github.com/Triglit/flowgraph/internal/graph"
)

// Config fields written by the synchronizer.
const (
	FieldTrueBranch  = "trueBranch"
	FieldFalseBranch = "falseBranch"
	FieldDefaultNode = "defaultNode"
	FieldCases       = "cases"
	FieldCaseNodeID  = "nodeId"
)

// ApplyEdgeConnected returns a copy of data.Config with the field mapped to
// handle set to targetID. Unknown types or handles return an unchanged copy.
func ApplyEdgeConnected(data graph.NodeData, handle, targetID string) map[string]interface{} {
	return setField(data, handle, targetID)
}

// ApplyEdgeDisconnected returns a copy of data.Config with the field mapped to
// handle cleared.
func ApplyEdgeDisconnected(data graph.NodeData, handle string) map[string]interface{} {
	return setField(data, handle, "")
}

func setField(data graph.NodeData, handle, value string) map[string]interface{} {
	config := graph.CopyConfig(data.Config)
	if config == nil {
		config = map[string]interface{}{}
	}

	switch data.Type {
	case graph.TypeCondition:
		switch handle {
		case graph.HandleTrue:
			config[FieldTrueBranch] = value
		case graph.HandleFalse:
			config[FieldFalseBranch] = value
		}
	case graph.TypeSwitch:
		if handle == graph.HandleDefault {
			config[FieldDefaultNode] = value
			break
		}
		i, ok := graph.ParseCaseHandle(handle)
		if !ok {
			break
		}
		cases, ok := config[FieldCases].([]interface{})
		if !ok || i >= len(cases) {
			break
		}
		if c, ok := cases[i].(map[string]interface{}); ok {
			c[FieldCaseNodeID] = value
		}
	}
	return config
}

// IsBranchField reports whether a config field is derived from edges and
// must not be edited directly.
func IsBranchField(nodeType, field string) bool {
	switch nodeType {
	case graph.TypeCondition:
		return field == FieldTrueBranch || field == FieldFalseBranch
	case graph.TypeSwitch:
		return field == FieldDefaultNode || field == FieldCases
	}
	return false
}

// HandleForField returns the handle that drives a config field. caseIndex
// selects the case for the switch "cases" field; pass a negative value when
// there is none.
func HandleForField(nodeType, field string, caseIndex int) (string, bool) {
	switch nodeType {
	case graph.TypeCondition:
		switch field {
		case FieldTrueBranch:
			return graph.HandleTrue, true
		case FieldFalseBranch:
			return graph.HandleFalse, true
		}
	case graph.TypeSwitch:
		switch field {
		case FieldDefaultNode:
			return graph.HandleDefault, true
		case FieldCases:
			if caseIndex >= 0 {
				return graph.CaseHandle(caseIndex), true
			}
		}
	}
	return "", false
}

// ReconcileFromEdges re-derives the routing fields of every branch node from
// its outgoing edges. Persisted values are overwritten; edges win.
func ReconcileFromEdges(g graph.Graph) graph.Graph {
	out := g.Clone()
	for i := range out.Nodes {
		n := &out.Nodes[i]
		if !graph.SupportsBranches(n.Data.Type) {
			continue
		}
		n.Data.Config = clearFields(n.Data)
		for _, e := range g.Outgoing(n.ID) {
			n.Data.Config = ApplyEdgeConnected(n.Data, e.SourceHandle, e.Target)
		}
	}
	return out
}

// StripBranchFields returns config with edge-derived values replaced by the
// values currently held in current. It is used when a user edit would
// otherwise overwrite routing fields.
func StripBranchFields(nodeType string, edited, current map[string]interface{}) map[string]interface{} {
	out := graph.CopyConfig(edited)
	if out == nil {
		out = map[string]interface{}{}
	}
	switch nodeType {
	case graph.TypeCondition:
		for _, f := range []string{FieldTrueBranch, FieldFalseBranch} {
			copyField(out, current, f)
		}
	case graph.TypeSwitch:
		copyField(out, current, FieldDefaultNode)
		edCases, _ := out[FieldCases].([]interface{})
		curCases := graph.Cases(current)
		for i, item := range edCases {
			c, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if i < len(curCases) && curCases[i] != nil {
				copyField(c, curCases[i], FieldCaseNodeID)
			} else {
				c[FieldCaseNodeID] = ""
			}
		}
	}
	return out
}

func copyField(dst, src map[string]interface{}, field string) {
	if v, ok := src[field]; ok {
		dst[field] = v
		return
	}
	delete(dst, field)
}

func clearFields(data graph.NodeData) map[string]interface{} {
	config := graph.CopyConfig(data.Config)
	if config == nil {
		config = map[string]interface{}{}
	}
	switch data.Type {
	case graph.TypeCondition:
		config[FieldTrueBranch] = ""
		config[FieldFalseBranch] = ""
	case graph.TypeSwitch:
		config[FieldDefaultNode] = ""
		if cases, ok := config[FieldCases].([]interface{}); ok {
			for _, item := range cases {
				if c, ok := item.(map[string]interface{}); ok {
					c[FieldCaseNodeID] = ""
				}
			}
		}
	}
	return config
}
