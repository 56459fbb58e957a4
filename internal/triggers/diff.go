package triggers

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/Triglit/flowgraph/internal/graph"
)

// NodeTrigger is the trigger a graph node asks for.
type NodeTrigger struct {
	NodeID      string                 `json:"nodeId"`
	TriggerType string                 `json:"triggerType"`
	TriggerName string                 `json:"triggerName"`
	APIConfig   map[string]interface{} `json:"apiConfig"`
	TriggerRef  string                 `json:"triggerRef,omitempty"`
}

// Update pairs a remote trigger with the node it was matched to.
type Update struct {
	Trigger    Trigger     `json:"trigger"`
	Node       NodeTrigger `json:"node"`
	HasChanges bool        `json:"hasChanges"`
}

// Diff is the set of operations that brings the remote collection in line
// with the graph.
type Diff struct {
	ToCreate []NodeTrigger `json:"toCreate"`
	ToUpdate []Update      `json:"toUpdate"`
	ToDelete []Trigger     `json:"toDelete"`
}

// Empty reports whether the diff has no remote effect.
func (d Diff) Empty() bool {
	if len(d.ToCreate) > 0 || len(d.ToDelete) > 0 {
		return false
	}
	for _, u := range d.ToUpdate {
		if u.HasChanges {
			return false
		}
	}
	return true
}

// NodeTriggers extracts the desired trigger of every trigger node.
func NodeTriggers(g graph.Graph, tr Translator) []NodeTrigger {
	var out []NodeTrigger
	for _, n := range g.TriggerNodes() {
		out = append(out, NodeTrigger{
			NodeID:      n.ID,
			TriggerType: graph.TriggerType(n.Data.Type),
			TriggerName: n.Data.DisplayName(),
			APIConfig:   tr.Translate(n.Data.Type, n.Data.Config),
			TriggerRef:  n.Data.TriggerRef,
		})
	}
	return out
}

// ComputeDiff matches trigger nodes to remote triggers. A node is matched by
// its TriggerRef when that trigger exists and is still unclaimed; otherwise
// by (type, name) when exactly one unclaimed trigger fits. Ambiguous or
// missing matches produce a create. Unclaimed remote triggers are deleted.
func ComputeDiff(g graph.Graph, remote []Trigger, tr Translator) Diff {
	byID := make(map[string]Trigger, len(remote))
	for _, t := range remote {
		byID[t.ID] = t
	}
	processed := make(map[string]bool, len(remote))

	var d Diff
	for _, nt := range NodeTriggers(g, tr) {
		match, ok := Trigger{}, false
		if nt.TriggerRef != "" {
			if t, found := byID[nt.TriggerRef]; found && !processed[t.ID] {
				match, ok = t, true
			}
		}
		if !ok {
			match, ok = uniqueCandidate(remote, processed, nt)
		}
		if !ok {
			d.ToCreate = append(d.ToCreate, nt)
			continue
		}

		processed[match.ID] = true
		d.ToUpdate = append(d.ToUpdate, Update{
			Trigger:    match,
			Node:       nt,
			HasChanges: match.Name != nt.TriggerName || configsDiffer(match.Config, nt.APIConfig),
		})
	}

	for _, t := range remote {
		if !processed[t.ID] {
			d.ToDelete = append(d.ToDelete, t)
		}
	}
	return d
}

func uniqueCandidate(remote []Trigger, processed map[string]bool, nt NodeTrigger) (Trigger, bool) {
	var found []Trigger
	for _, t := range remote {
		if processed[t.ID] || t.Type != nt.TriggerType || t.Name != nt.TriggerName {
			continue
		}
		found = append(found, t)
	}
	if len(found) != 1 {
		return Trigger{}, false
	}
	return found[0], true
}

// configsDiffer compares two configs key by key. Nested values compare by
// their JSON encoding; scalars compare by value with numbers normalized.
func configsDiffer(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return true
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			return true
		}
		if !valuesEqual(va, vb) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if isComposite(a) || isComposite(b) {
		ja, errA := json.Marshal(a)
		jb, errB := json.Marshal(b)
		if errA != nil || errB != nil {
			return reflect.DeepEqual(a, b)
		}
		return bytes.Equal(ja, jb)
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func isComposite(v interface{}) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
