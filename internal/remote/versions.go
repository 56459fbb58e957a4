package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Triglit/flowgraph/internal/graph"
)

type versionBody struct {
	Nodes []graph.VersionNode `json:"nodes"`
	Edges []graph.VersionEdge `json:"edges"`
}

func (c *Client) CreateVersion(ctx context.Context, workflowID string, nodes []graph.VersionNode, edges []graph.VersionEdge) (graph.Version, error) {
	var v graph.Version
	path := "/v1/workflows/" + url.PathEscape(workflowID) + "/versions"
	if err := c.do(ctx, http.MethodPost, path, nil, versionBody{Nodes: nodes, Edges: edges}, &v); err != nil {
		return graph.Version{}, err
	}
	return v, nil
}

func (c *Client) UpdateVersion(ctx context.Context, versionID string, nodes []graph.VersionNode, edges []graph.VersionEdge) (graph.Version, error) {
	var v graph.Version
	path := "/v1/workflow-versions/" + url.PathEscape(versionID)
	err := c.do(ctx, http.MethodPatch, path, nil, versionBody{Nodes: nodes, Edges: edges}, &v)
	if isNotFound(err) {
		return graph.Version{}, fmt.Errorf("%w: %s", graph.ErrVersionNotFound, versionID)
	}
	if err != nil {
		return graph.Version{}, err
	}
	return v, nil
}

func (c *Client) GetVersion(ctx context.Context, versionID string) (graph.Version, error) {
	var v graph.Version
	err := c.do(ctx, http.MethodGet, "/v1/workflow-versions/"+url.PathEscape(versionID), nil, nil, &v)
	if isNotFound(err) {
		return graph.Version{}, fmt.Errorf("%w: %s", graph.ErrVersionNotFound, versionID)
	}
	if err != nil {
		return graph.Version{}, err
	}
	return v, nil
}

func (c *Client) ListVersions(ctx context.Context, workflowID string) ([]graph.Version, error) {
	var p page[graph.Version]
	path := "/v1/workflows/" + url.PathEscape(workflowID) + "/versions"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &p); err != nil {
		return nil, err
	}
	return p.Data, nil
}
