// Package triggers reconciles the trigger nodes of a workflow graph against
// the trigger records held by the remote workflow-definition service.
package triggers

import (
	"context"
	"errors"
	"time"
)

// ErrTriggerNotFound is returned by API implementations for unknown ids.
var ErrTriggerNotFound = errors.New("trigger not found")

// Trigger is a remote trigger record bound to a workflow version.
type Trigger struct {
	ID                string                 `json:"id"`
	WorkflowVersionID string                 `json:"workflowVersionId"`
	Type              string                 `json:"type"`
	Name              string                 `json:"name,omitempty"`
	Config            map[string]interface{} `json:"config,omitempty"`
	IsActive          bool                   `json:"isActive"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// CreateParams describes a trigger to create.
type CreateParams struct {
	WorkflowVersionID string                 `json:"workflowVersionId"`
	Type              string                 `json:"type"`
	Name              string                 `json:"name"`
	Config            map[string]interface{} `json:"config"`
}

// UpdateParams carries the fields to change on an existing trigger. Nil
// fields are left untouched. A non-nil empty Config clears the remote
// config and is sent as {}.
type UpdateParams struct {
	Name   *string                `json:"name,omitempty"`
	Config map[string]interface{} `json:"config"`
}

// API is the remote trigger collection.
type API interface {
	Create(ctx context.Context, params CreateParams) (Trigger, error)
	Update(ctx context.Context, id string, params UpdateParams) (Trigger, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, workflowVersionID string) ([]Trigger, error)
}
