package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Triglit/flowgraph/internal/triggers"
)

var _ triggers.API = (*Client)(nil)

type page[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"nextCursor,omitempty"`
}

func (c *Client) Create(ctx context.Context, p triggers.CreateParams) (triggers.Trigger, error) {
	var t triggers.Trigger
	if err := c.do(ctx, http.MethodPost, "/v1/triggers", nil, p, &t); err != nil {
		return triggers.Trigger{}, err
	}
	return t, nil
}

func (c *Client) Update(ctx context.Context, id string, p triggers.UpdateParams) (triggers.Trigger, error) {
	var t triggers.Trigger
	err := c.do(ctx, http.MethodPatch, "/v1/triggers/"+url.PathEscape(id), nil, p, &t)
	if isNotFound(err) {
		return triggers.Trigger{}, fmt.Errorf("%w: %s", triggers.ErrTriggerNotFound, id)
	}
	if err != nil {
		return triggers.Trigger{}, err
	}
	return t, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/triggers/"+url.PathEscape(id), nil, nil, nil)
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", triggers.ErrTriggerNotFound, id)
	}
	return err
}

// List follows the cursor until every trigger of the version is read.
func (c *Client) List(ctx context.Context, workflowVersionID string) ([]triggers.Trigger, error) {
	path := "/v1/workflow-versions/" + url.PathEscape(workflowVersionID) + "/triggers"
	var out []triggers.Trigger
	cursor := ""
	for {
		q := url.Values{"pageSize": {"100"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var p page[triggers.Trigger]
		if err := c.do(ctx, http.MethodGet, path, q, nil, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Data...)
		if p.NextCursor == "" || p.NextCursor == cursor {
			return out, nil
		}
		cursor = p.NextCursor
	}
}
