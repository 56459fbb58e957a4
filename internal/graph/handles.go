package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Branch node types.
const (
	TypeCondition = "condition"
	TypeSwitch    = "switch"
)

// Handle ids exposed by branch nodes.
const (
	HandleTrue    = "true"
	HandleFalse   = "false"
	HandleDefault = "default"

	casePrefix = "case-"
)

// BranchHandle is an outgoing port of a branch node. Handles are derived from
// the node type and config and never stored.
type BranchHandle struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SupportsBranches reports whether the node type fans out through handles.
func SupportsBranches(nodeType string) bool {
	return nodeType == TypeCondition || nodeType == TypeSwitch
}

// CaseHandle returns the handle id for switch case i.
func CaseHandle(i int) string {
	return casePrefix + strconv.Itoa(i)
}

// ParseCaseHandle extracts the case index from a case handle id.
func ParseCaseHandle(handle string) (int, bool) {
	if !strings.HasPrefix(handle, casePrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(handle, casePrefix))
	if err != nil || i < 0 || CaseHandle(i) != handle {
		return 0, false
	}
	return i, true
}

// Handles returns the ordered branch handles of a node, or nil for
// non-branch types.
func Handles(data NodeData) []BranchHandle {
	switch data.Type {
	case TypeCondition:
		return []BranchHandle{
			{ID: HandleTrue, Label: "True"},
			{ID: HandleFalse, Label: "False"},
		}
	case TypeSwitch:
		cases := Cases(data.Config)
		handles := make([]BranchHandle, 0, len(cases)+1)
		for i, c := range cases {
			handles = append(handles, BranchHandle{ID: CaseHandle(i), Label: caseLabel(c, i)})
		}
		return append(handles, BranchHandle{ID: HandleDefault, Label: "Default"})
	default:
		return nil
	}
}

// HasHandle reports whether the node exposes the given handle id.
func HasHandle(data NodeData, handle string) bool {
	for _, h := range Handles(data) {
		if h.ID == handle {
			return true
		}
	}
	return false
}

// Cases returns the switch cases of a config. Entries that are not objects
// are returned as nil so indexes stay aligned with the config.
func Cases(config map[string]interface{}) []map[string]interface{} {
	switch raw := config["cases"].(type) {
	case []interface{}:
		out := make([]map[string]interface{}, len(raw))
		for i, item := range raw {
			out[i], _ = item.(map[string]interface{})
		}
		return out
	case []map[string]interface{}:
		return raw
	default:
		return nil
	}
}

func caseLabel(c map[string]interface{}, i int) string {
	if desc, ok := c["description"].(string); ok && desc != "" {
		return desc
	}
	if value, ok := c["value"]; ok {
		switch v := value.(type) {
		case nil:
			return "null"
		case string:
			return v
		case bool, float64, float32, int, int64, int32:
			return fmt.Sprint(v)
		}
	}
	return fmt.Sprintf("Case %d", i+1)
}
