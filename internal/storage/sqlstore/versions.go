package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Triglit/flowgraph/internal/graph"
)

const versionColumns = `id, workflow_id, version, nodes, edges, is_active, created_at, published_at`

// CreateVersion stores a new version numbered one past the workflow's
// highest version.
func (s *Store) CreateVersion(ctx context.Context, workflowID string, nodes []graph.VersionNode, edges []graph.VersionEdge) (graph.Version, error) {
	nodesJSON, edgesJSON, err := encodeGraph(nodes, edges)
	if err != nil {
		return graph.Version{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return graph.Version{}, err
	}
	defer tx.Rollback()

	var latest sql.NullInt64
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT MAX(version) FROM workflow_versions WHERE workflow_id = ?`),
		workflowID,
	).Scan(&latest)
	if err != nil {
		return graph.Version{}, fmt.Errorf("failed to read latest version: %w", err)
	}

	v := graph.Version{
		ID:         "ver_" + uuid.NewString(),
		WorkflowID: workflowID,
		Version:    int(latest.Int64) + 1,
		Nodes:      nodes,
		Edges:      edges,
		CreatedAt:  s.now(),
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO workflow_versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.WorkflowID, v.Version, nodesJSON, edgesJSON, v.IsActive, formatTime(v.CreatedAt), nil,
	)
	if err != nil {
		return graph.Version{}, fmt.Errorf("failed to insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return graph.Version{}, err
	}
	return v, nil
}

// UpdateVersion replaces the nodes and edges of an existing version.
func (s *Store) UpdateVersion(ctx context.Context, versionID string, nodes []graph.VersionNode, edges []graph.VersionEdge) (graph.Version, error) {
	nodesJSON, edgesJSON, err := encodeGraph(nodes, edges)
	if err != nil {
		return graph.Version{}, err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE workflow_versions SET nodes = ?, edges = ? WHERE id = ?`),
		nodesJSON, edgesJSON, versionID,
	)
	if err != nil {
		return graph.Version{}, fmt.Errorf("failed to update version: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return graph.Version{}, fmt.Errorf("%w: %s", graph.ErrVersionNotFound, versionID)
	}
	return s.GetVersion(ctx, versionID)
}

// GetVersion loads a version by id.
func (s *Store) GetVersion(ctx context.Context, versionID string) (graph.Version, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+versionColumns+` FROM workflow_versions WHERE id = ?`),
		versionID,
	)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.Version{}, fmt.Errorf("%w: %s", graph.ErrVersionNotFound, versionID)
	}
	return v, err
}

// ListVersions returns every version of a workflow, oldest first.
func (s *Store) ListVersions(ctx context.Context, workflowID string) ([]graph.Version, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+versionColumns+`
		FROM workflow_versions
		WHERE workflow_id = ?
		ORDER BY version`),
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []graph.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PublishVersion marks a version as published and active.
func (s *Store) PublishVersion(ctx context.Context, versionID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE workflow_versions SET is_active = ?, published_at = ? WHERE id = ?`),
		true, formatTime(s.now()), versionID,
	)
	if err != nil {
		return fmt.Errorf("failed to publish version: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", graph.ErrVersionNotFound, versionID)
	}
	return nil
}

func scanVersion(r rowScanner) (graph.Version, error) {
	var (
		v                    graph.Version
		nodesJSON, edgesJSON []byte
		created              string
		published            sql.NullString
	)
	if err := r.Scan(&v.ID, &v.WorkflowID, &v.Version, &nodesJSON, &edgesJSON, &v.IsActive, &created, &published); err != nil {
		return graph.Version{}, err
	}
	if err := json.Unmarshal(nodesJSON, &v.Nodes); err != nil {
		return graph.Version{}, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &v.Edges); err != nil {
		return graph.Version{}, fmt.Errorf("failed to unmarshal edges: %w", err)
	}
	var err error
	if v.CreatedAt, err = parseTime(created); err != nil {
		return graph.Version{}, err
	}
	if published.Valid {
		t, err := parseTime(published.String)
		if err != nil {
			return graph.Version{}, err
		}
		v.PublishedAt = &t
	}
	return v, nil
}

func encodeGraph(nodes []graph.VersionNode, edges []graph.VersionEdge) (string, string, error) {
	if nodes == nil {
		nodes = []graph.VersionNode{}
	}
	if edges == nil {
		edges = []graph.VersionEdge{}
	}
	n, err := json.Marshal(nodes)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal nodes: %w", err)
	}
	e, err := json.Marshal(edges)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal edges: %w", err)
	}
	return string(n), string(e), nil
}
