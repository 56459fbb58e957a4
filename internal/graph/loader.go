package graph

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadVersionFile loads a persisted workflow version from a JSON file.
func LoadVersionFile(path string) (*Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read version file: %w", err)
	}

	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse version JSON: %w", err)
	}

	if err := ValidateVersion(v); err != nil {
		return nil, err
	}

	return &v, nil
}

// ValidateVersion checks that every node has an id, type and name and that
// every edge references existing, distinct nodes.
func ValidateVersion(v Version) error {
	ids := make(map[string]bool, len(v.Nodes))
	for i, n := range v.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %d: missing id", i)
		}
		if n.Type == "" {
			return fmt.Errorf("node %s: missing type", n.ID)
		}
		if n.Name == "" {
			return fmt.Errorf("node %s: missing name", n.ID)
		}
		if ids[n.ID] {
			return fmt.Errorf("node %s: %w", n.ID, ErrNodeExists)
		}
		ids[n.ID] = true
	}
	for _, e := range v.Edges {
		if !ids[e.SourceNodeID] {
			return fmt.Errorf("edge %s: unknown source node %q", e.ID, e.SourceNodeID)
		}
		if !ids[e.TargetNodeID] {
			return fmt.Errorf("edge %s: unknown target node %q", e.ID, e.TargetNodeID)
		}
		if e.SourceNodeID == e.TargetNodeID {
			return fmt.Errorf("edge %s: self loop on %s", e.ID, e.SourceNodeID)
		}
	}
	return nil
}
