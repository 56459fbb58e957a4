package triggers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Triglit/flowgraph/internal/events"
	"github.com/Triglit/flowgraph/internal/graph"
	"github.com/Triglit/flowgraph/internal/logging"
)

// Result reports what an apply pass did.
type Result struct {
	// Refs maps node id to the remote trigger id it is bound to. It holds
	// every successful create and every matched update.
	Refs    map[string]string `json:"refs"`
	Created []Trigger         `json:"created"`
	Updated []Trigger         `json:"updated"`
	Deleted []string          `json:"deleted"`
}

// ApplyError aggregates the failures of one apply pass. Operations that
// succeeded are not rolled back.
type ApplyError struct {
	Failed int
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("trigger reconciliation: %d operation(s) failed: %v", e.Failed, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Reconciler applies trigger diffs against the remote API.
type Reconciler struct {
	api            API
	translator     Translator
	log            *logrus.Entry
	maxConcurrency int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger entry.
func WithLogger(l *logrus.Entry) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithMaxConcurrency bounds the number of in-flight remote calls. Zero or
// negative means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(r *Reconciler) { r.maxConcurrency = n }
}

// NewReconciler returns a reconciler for the given API and translator.
func NewReconciler(api API, tr Translator, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:        api,
		translator: tr,
		log:        logging.Component("triggers"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Translator returns the translator used for node configs.
func (r *Reconciler) Translator() Translator {
	return r.translator
}

// List returns the remote triggers of a version.
func (r *Reconciler) List(ctx context.Context, workflowVersionID string) ([]Trigger, error) {
	remote, err := r.api.List(ctx, workflowVersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	return remote, nil
}

// Diff lists the remote triggers of a version and computes the diff for g.
func (r *Reconciler) Diff(ctx context.Context, g graph.Graph, workflowVersionID string) (Diff, []Trigger, error) {
	remote, err := r.List(ctx, workflowVersionID)
	if err != nil {
		return Diff{}, nil, err
	}
	return ComputeDiff(g, remote, r.translator), remote, nil
}

// Reconcile brings the remote triggers of a version in line with g and
// returns g with trigger refs back-filled. Refs that landed are written back
// even when the pass failed, so a retry matches them instead of creating
// duplicates.
func (r *Reconciler) Reconcile(ctx context.Context, g graph.Graph, workflowVersionID string) (graph.Graph, Result, error) {
	d, _, err := r.Diff(ctx, g, workflowVersionID)
	if err != nil {
		return g, Result{}, err
	}
	res, err := r.Apply(ctx, workflowVersionID, d)
	return g.WithTriggerRefs(res.Refs), res, err
}

// Apply runs the creates, changed updates and deletes of d concurrently.
// Every started operation is awaited; failures are logged and returned as
// an *ApplyError.
func (r *Reconciler) Apply(ctx context.Context, workflowVersionID string, d Diff) (Result, error) {
	fields := logrus.Fields{
		"workflow_version_id": workflowVersionID,
		"create":              len(d.ToCreate),
		"update":              len(d.ToUpdate),
		"delete":              len(d.ToDelete),
	}
	r.log.WithFields(fields).Debug("applying trigger diff")
	events.Emit("info", "reconcile.started", "", map[string]interface{}{
		"workflow_version_id": workflowVersionID,
		"create":              len(d.ToCreate),
		"update":              len(d.ToUpdate),
		"delete":              len(d.ToDelete),
	})

	var (
		mu   sync.Mutex
		res  = Result{Refs: make(map[string]string)}
		errs []error
	)
	fail := func(op, id string, err error) error {
		err = fmt.Errorf("%s trigger %s: %w", op, id, err)
		r.log.WithFields(logrus.Fields{"op": op, "target": id}).WithError(err).Error("trigger operation failed")
		events.Emit("error", "trigger.failed", err.Error(), map[string]interface{}{
			"workflow_version_id": workflowVersionID,
			"op":                  op,
			"target":              id,
		})
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		return err
	}

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}

	for _, nt := range d.ToCreate {
		g.Go(func() error {
			t, err := r.api.Create(ctx, CreateParams{
				WorkflowVersionID: workflowVersionID,
				Type:              nt.TriggerType,
				Name:              nt.TriggerName,
				Config:            nt.APIConfig,
			})
			if err != nil {
				return fail("create", nt.NodeID, err)
			}
			mu.Lock()
			res.Refs[nt.NodeID] = t.ID
			res.Created = append(res.Created, t)
			mu.Unlock()
			events.Emit("info", "trigger.created", "", map[string]interface{}{
				"workflow_version_id": workflowVersionID,
				"trigger_id":          t.ID,
				"node_id":             nt.NodeID,
			})
			return nil
		})
	}

	for _, u := range d.ToUpdate {
		if !u.HasChanges {
			mu.Lock()
			res.Refs[u.Node.NodeID] = u.Trigger.ID
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			name := u.Node.TriggerName
			config := u.Node.APIConfig
			if config == nil {
				config = map[string]interface{}{}
			}
			t, err := r.api.Update(ctx, u.Trigger.ID, UpdateParams{Name: &name, Config: config})
			if err != nil {
				return fail("update", u.Trigger.ID, err)
			}
			mu.Lock()
			res.Refs[u.Node.NodeID] = u.Trigger.ID
			res.Updated = append(res.Updated, t)
			mu.Unlock()
			events.Emit("info", "trigger.updated", "", map[string]interface{}{
				"workflow_version_id": workflowVersionID,
				"trigger_id":          u.Trigger.ID,
				"node_id":             u.Node.NodeID,
			})
			return nil
		})
	}

	for _, t := range d.ToDelete {
		g.Go(func() error {
			if err := r.api.Delete(ctx, t.ID); err != nil {
				return fail("delete", t.ID, err)
			}
			mu.Lock()
			res.Deleted = append(res.Deleted, t.ID)
			mu.Unlock()
			events.Emit("info", "trigger.deleted", "", map[string]interface{}{
				"workflow_version_id": workflowVersionID,
				"trigger_id":          t.ID,
			})
			return nil
		})
	}

	_ = g.Wait()

	if len(errs) > 0 {
		applyErr := &ApplyError{Failed: len(errs), Err: errors.Join(errs...)}
		events.Emit("error", "reconcile.failed", applyErr.Error(), map[string]interface{}{
			"workflow_version_id": workflowVersionID,
			"failed":              len(errs),
		})
		return res, applyErr
	}

	r.log.WithFields(fields).Info("trigger diff applied")
	events.Emit("info", "reconcile.completed", "", map[string]interface{}{
		"workflow_version_id": workflowVersionID,
		"created":             len(res.Created),
		"updated":             len(res.Updated),
		"deleted":             len(res.Deleted),
	})
	return res, nil
}

// ResolveRefs clears trigger refs that no longer exist remotely so the next
// diff falls back to matching by type and name.
func ResolveRefs(g graph.Graph, remote []Trigger) graph.Graph {
	known := make(map[string]bool, len(remote))
	for _, t := range remote {
		known[t.ID] = true
	}
	stale := make(map[string]string)
	for _, n := range g.TriggerNodes() {
		if n.Data.TriggerRef != "" && !known[n.Data.TriggerRef] {
			stale[n.ID] = ""
		}
	}
	if len(stale) == 0 {
		return g
	}
	return g.WithTriggerRefs(stale)
}
